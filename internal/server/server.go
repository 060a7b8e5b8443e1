/*
Package server implements the application's network transport layer.
It initializes the HTTP server, configures timeouts, binds browser sessions
to conversations, and pushes conversation events over WebSocket.
*/
package server

import (
	"fmt"
	"net/http"
	"time"

	"Healthbite/internal/config"
	"Healthbite/internal/session"
	"Healthbite/internal/utility"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
)

const (
	// sessionCookie holds the signed session ID.
	sessionCookie = "healthbite_session"
	sessionKey    = "id"
)

// Server defines the configuration and dependencies for the HTTP service.
type Server struct {
	// port specifies the TCP port the server will listen on.
	port int

	// store maps session IDs to conversations.
	store *session.Store

	// hub pushes conversation events to connected browsers.
	hub *utility.Hub

	// cookies signs the session cookie.
	cookies *sessions.CookieStore

	logger    zerolog.Logger
	startTime time.Time
	// writeTimeout must outlast a completion call.
	writeTimeout time.Duration
}

// New builds a Server from resolved configuration.
func New(cfg config.Config, store *session.Store, hub *utility.Hub, logger zerolog.Logger) *Server {
	cookies := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	cookies.MaxAge(int(cfg.Sessions.TTL.Seconds()))
	cookies.Options.Path = "/"
	cookies.Options.HttpOnly = true
	cookies.Options.Secure = cfg.IsProduction()
	cookies.Options.SameSite = http.SameSiteLaxMode

	return &Server{
		port:         cfg.Port,
		store:        store,
		hub:          hub,
		cookies:      cookies,
		logger:       logger,
		startTime:    time.Now(),
		writeTimeout: cfg.Conversation.Timeout + 30*time.Second,
	}
}

// NewServer initializes a new Server instance and returns a configured *http.Server.
func NewServer(cfg config.Config, store *session.Store, hub *utility.Hub, logger zerolog.Logger) *http.Server {
	app := New(cfg, store, hub, logger)

	// Configure the standard library http.Server with the application's router and timeouts.
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", app.port),
		Handler:      app.RegisterRoutes(), // Injected from routes.go
		IdleTimeout:  time.Minute,          // Time to wait for the next request on keep-alive connections.
		ReadTimeout:  10 * time.Second,     // Maximum duration for reading the entire request.
		WriteTimeout: app.writeTimeout,     // A chat request waits on the language model.
	}
}
