package server

import (
	"embed"
	"html/template"
	"io"
	"net/http"

	"Healthbite/internal/utility"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

// TemplateRenderer is a custom html/template renderer for Echo framework
type TemplateRenderer struct {
	templates *template.Template
}

// Render renders a template document
func (t *TemplateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	// Use ExecuteTemplate to select the correct template by name
	return t.templates.ExecuteTemplate(w, name, data)
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"https://*", "http://*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	e.Renderer = &TemplateRenderer{
		templates: template.Must(template.ParseFS(templateFS, "templates/*.html")),
	}

	e.Use(s.LoggerMiddleware)

	e.GET("/health", s.healthHandler)

	// Conversation routes, bound to the browser session
	conv := e.Group("")
	conv.Use(s.SessionMiddleware)

	conv.GET("/", s.indexHandler)
	conv.GET("/ws", s.socketHandler)
	conv.POST("/api/intake", s.intakeHandler)
	conv.POST("/api/chat", s.chatHandler)
	conv.GET("/api/conversation", s.conversationHandler)
	conv.GET("/api/mealplan", s.mealPlanHandler)
	conv.POST("/api/reset", s.resetHandler)

	return e
}

func (s *Server) LoggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := c.Request().Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(utility.ContextRequestID, requestID)
		c.Response().Header().Set("X-Request-ID", requestID)

		logger := s.logger.With().
			Str("request_id", requestID).
			Str("ip", utility.GetRealIP(c)).
			Logger()

		c.Set(utility.ContextLogger, &logger)

		return next(c)
	}
}

// SessionMiddleware resolves the signed session cookie to a conversation,
// creating one for new or expired sessions.
func (s *Server) SessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		logger := utility.LoggerFromContext(c)

		// 1. Decode the cookie. A tampered or stale cookie yields a fresh session.
		sess, err := s.cookies.Get(c.Request(), sessionCookie)
		if err != nil {
			logger.Debug().Err(err).Msg("Discarding unreadable session cookie")
		}
		id, _ := sess.Values[sessionKey].(string)

		// 2. Resolve or create the conversation
		entry, created := s.store.GetOrCreate(id)
		if created {
			sess.Values[sessionKey] = entry.ID
			if err := sess.Save(c.Request(), c.Response()); err != nil {
				logger.Error().Err(err).Msg("Failed to save session cookie")
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create session"})
			}
		}

		// 3. Attach the session to the request
		sessionLogger := logger.With().Str("session_id", entry.ID).Logger()
		c.Set(utility.ContextLogger, &sessionLogger)
		c.Set(utility.ContextSessionID, entry.ID)
		c.Set(contextEntry, entry)

		return next(c)
	}
}
