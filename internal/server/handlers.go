package server

import (
	"errors"
	"net/http"
	"strings"

	"Healthbite/internal/conversation"
	"Healthbite/internal/intake"
	"Healthbite/internal/presentation"
	"Healthbite/internal/session"
	"Healthbite/internal/utility"
	"github.com/labstack/echo/v4"
)

const contextEntry = "session_entry"

/* =================================================================================
							DTOs (Data Transfer Objects)
=================================================================================*/

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message" form:"message"`
}

// ConversationResponse is a snapshot plus display-ready messages.
type ConversationResponse struct {
	conversation.Snapshot
	Messages []presentation.Message `json:"messages"`
	Finished bool                   `json:"finished"`
}

type conditionOption struct {
	Value string
	Label string
}

type indexPage struct {
	Conditions   []conditionOption
	Conversation ConversationResponse
	MealPlan     *presentation.MealPlanView
}

func newConversationResponse(snap conversation.Snapshot) ConversationResponse {
	return ConversationResponse{
		Snapshot: snap,
		Messages: presentation.Transcript(snap.Turns),
		Finished: snap.Finished(),
	}
}

func entryFromContext(c echo.Context) *session.Entry {
	e, _ := c.Get(contextEntry).(*session.Entry)
	return e
}

/* =================================================================================
								PAGE HANDLERS
=================================================================================*/

// indexHandler renders the chat page with the current conversation.
func (s *Server) indexHandler(c echo.Context) error {
	entry := entryFromContext(c)
	snap := entry.Driver.Snapshot()

	page := indexPage{Conversation: newConversationResponse(snap)}
	for _, cond := range intake.Conditions() {
		page.Conditions = append(page.Conditions, conditionOption{Value: string(cond), Label: cond.Label()})
	}
	if plan, data, ok := entry.Driver.MealPlan(); ok {
		view, err := presentation.NewMealPlanView(plan, data)
		if err != nil {
			utility.LoggerFromContext(c).Error().Err(err).Msg("indexHandler: failed to render meal plan")
		} else {
			page.MealPlan = &view
		}
	}
	return c.Render(http.StatusOK, "index.html", page)
}

/* =================================================================================
								API HANDLERS
=================================================================================*/

// intakeHandler validates the intake form and opens the conversation.
func (s *Server) intakeHandler(c echo.Context) error {
	logger := utility.LoggerFromContext(c)
	entry := entryFromContext(c)

	// 1. Bind and validate the form
	var form intake.Form
	if err := c.Bind(&form); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	profile, err := intake.Validate(form)
	if err != nil {
		var verr *intake.ValidationError
		if errors.As(err, &verr) {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"error":  "Please correct the highlighted fields",
				"fields": verr.Fields,
			})
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	// 2. Reject a second submission before calling the model
	if entry.Driver.Snapshot().Profile != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": conversation.ErrProfileExists.Error()})
	}

	// 3. Start the onboarding conversation
	snap, err := entry.Driver.Start(c.Request().Context(), profile)
	if err != nil {
		return s.conversationError(c, err)
	}

	logger.Info().Str("condition", string(profile.ChronicCondition)).Msg("Intake submitted")
	s.publishExchange(entry.ID, snap)
	return c.JSON(http.StatusCreated, newConversationResponse(snap))
}

// chatHandler routes one user message to the active assistant.
func (s *Server) chatHandler(c echo.Context) error {
	entry := entryFromContext(c)

	if !entry.Limiter.Allow() {
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "Too many messages, please slow down"})
	}

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": conversation.ErrEmptyMessage.Error()})
	}

	snap, err := entry.Driver.Send(c.Request().Context(), req.Message)
	if err != nil {
		return s.conversationError(c, err)
	}

	s.publishExchange(entry.ID, snap)
	return c.JSON(http.StatusOK, newConversationResponse(snap))
}

// conversationHandler returns the current snapshot.
func (s *Server) conversationHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, newConversationResponse(entryFromContext(c).Driver.Snapshot()))
}

// mealPlanHandler returns the rendered meal plan once the conversation finished.
func (s *Server) mealPlanHandler(c echo.Context) error {
	plan, data, ok := entryFromContext(c).Driver.MealPlan()
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Meal plan is not ready yet"})
	}

	view, err := presentation.NewMealPlanView(plan, data)
	if err != nil {
		utility.LoggerFromContext(c).Error().Err(err).Msg("mealPlanHandler: failed to render meal plan")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to render meal plan"})
	}
	return c.JSON(http.StatusOK, view)
}

// resetHandler discards the conversation and any pending reply.
func (s *Server) resetHandler(c echo.Context) error {
	entry := entryFromContext(c)
	entry.Driver.Reset()

	utility.LoggerFromContext(c).Info().Msg("Conversation reset")
	s.hub.Publish(entry.ID, utility.Event{Type: utility.EventReset})
	return c.JSON(http.StatusOK, newConversationResponse(entry.Driver.Snapshot()))
}

// socketHandler upgrades to a WebSocket that receives this session's events.
func (s *Server) socketHandler(c echo.Context) error {
	entry := entryFromContext(c)

	// 1. Upgrade HTTP to WebSocket
	ws, err := s.hub.Upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	// 2. Register Client
	s.hub.Register(entry.ID, ws)
	defer s.hub.Unregister(entry.ID, ws)

	// 3. Keep connection alive (Read Loop)
	// We don't expect messages FROM the client, but we must read to keep socket open
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	return nil
}

/* =================================================================================
								HELPERS
=================================================================================*/

// publishExchange pushes the latest user and assistant turns, then the state.
func (s *Server) publishExchange(sessionID string, snap conversation.Snapshot) {
	msgs := presentation.Transcript(snap.Turns)
	if len(msgs) > 2 {
		msgs = msgs[len(msgs)-2:]
	}
	s.hub.Publish(sessionID, utility.Event{Type: utility.EventTurn, Data: msgs})
	s.hub.Publish(sessionID, utility.Event{Type: utility.EventState, Data: snap.State})
}

// conversationError maps driver errors onto HTTP responses.
func (s *Server) conversationError(c echo.Context, err error) error {
	logger := utility.LoggerFromContext(c)

	var perr *conversation.ProviderError
	switch {
	case errors.As(err, &perr):
		logger.Warn().Err(err).Msg("Completion provider failed")
		return c.JSON(http.StatusBadGateway, map[string]interface{}{
			"error":     "The assistant is unavailable right now, please try again",
			"retryable": perr.Retryable(),
		})
	case errors.Is(err, conversation.ErrEmptyMessage), errors.Is(err, conversation.ErrIncompleteProfile):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, conversation.ErrBusy),
		errors.Is(err, conversation.ErrConversationFinished),
		errors.Is(err, conversation.ErrConversationReset),
		errors.Is(err, conversation.ErrProfileExists):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}

	logger.Error().Err(err).Msg("Unexpected conversation error")
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
}
