package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"Healthbite/internal/config"
	"Healthbite/internal/conversation"
	"Healthbite/internal/session"
	"Healthbite/internal/utility"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mealPlanReply = `Here is your plan.

<json>[
  {"Date": "2024-06-01", "Meal": "Breakfast", "Fat%": 20, "Calorie Intake": 350, "Sugar": 8},
  {"Date": "2024-06-01", "Meal": "Lunch", "Fat%": 25, "Calorie Intake": 600, "Sugar": 12}
]</json>

TERMINATE`

// queue replies in order; an error entry fails that call.
type queue struct {
	mu      sync.Mutex
	replies []any
}

func (q *queue) Complete(_ context.Context, _ conversation.CompletionRequest) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	next := q.replies[0]
	q.replies = q.replies[1:]
	if err, ok := next.(error); ok {
		return "", err
	}
	return next.(string), nil
}

type testEnv struct {
	srv    *httptest.Server
	client *http.Client
	store  *session.Store
	hub    *utility.Hub
}

func newTestEnv(t *testing.T, provider conversation.CompletionProvider, sessions session.Config) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	cfg := config.Config{
		Port:          8080,
		AppEnv:        config.EnvDevelopment,
		SessionSecret: "test-secret",
		Conversation:  conversation.DefaultConfig(),
		Sessions:      sessions,
	}
	store := session.NewStore(cfg.Sessions, func(string) *conversation.Driver {
		return conversation.NewDriver(provider, cfg.Conversation)
	}, logger)
	hub := utility.NewHub(logger, nil)

	srv := httptest.NewServer(New(cfg, store, hub, logger).RegisterRoutes())
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		store.Close()
	})
	return &testEnv{srv: srv, client: &http.Client{Jar: jar}, store: store, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

var validIntake = map[string]any{
	"name":                "Ada",
	"zip_code":            "10001",
	"chronic_condition":   "type_2_diabetes",
	"cuisine_preferences": []string{"Italian"},
	"avoid_ingredients":   "peanuts",
}

func TestIntakeValidationErrors(t *testing.T) {
	env := newTestEnv(t, &queue{}, session.Config{RateLimit: 100, Burst: 100})

	status, body := env.do(t, http.MethodPost, "/api/intake", map[string]any{"chronic_condition": "flu"})
	assert.Equal(t, http.StatusBadRequest, status)

	fields := map[string]bool{}
	for _, f := range body["fields"].([]any) {
		fields[f.(map[string]any)["field"].(string)] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["zip_code"])
	assert.True(t, fields["chronic_condition"])
}

func TestFullConversationOverHTTP(t *testing.T) {
	env := newTestEnv(t, &queue{replies: []any{
		"Welcome Ada! Any allergies?",
		"Thanks, TERMINATE",
		mealPlanReply,
	}}, session.Config{RateLimit: 100, Burst: 100})

	status, _ := env.do(t, http.MethodGet, "/api/mealplan", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body := env.do(t, http.MethodPost, "/api/intake", validIntake)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "onboarding", body["state"].(map[string]any)["active_role"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "You", msgs[0].(map[string]any)["speaker"])

	status, _ = env.do(t, http.MethodPost, "/api/intake", validIntake)
	assert.Equal(t, http.StatusConflict, status)

	status, body = env.do(t, http.MethodPost, "/api/chat", map[string]string{"message": "No allergies"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "engagement", body["state"].(map[string]any)["active_role"])
	assert.Equal(t, true, body["state"].(map[string]any)["terminated"])

	status, body = env.do(t, http.MethodPost, "/api/chat", map[string]string{"message": "Please make my plan"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["finished"])

	status, _ = env.do(t, http.MethodPost, "/api/chat", map[string]string{"message": "more?"})
	assert.Equal(t, http.StatusConflict, status)

	status, body = env.do(t, http.MethodGet, "/api/mealplan", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Len(t, body["table"].(map[string]any)["rows"], 2)
	assert.Len(t, body["chart"].(map[string]any)["bars"], 2)
	assert.Contains(t, body["html"], "Here is your plan.")

	assert.Equal(t, 1, env.store.Len())
}

func TestChatErrors(t *testing.T) {
	env := newTestEnv(t, &queue{replies: []any{"Hello!", errors.New("upstream down"), "Still here"}}, session.Config{RateLimit: 100, Burst: 100})

	status, _ := env.do(t, http.MethodPost, "/api/intake", validIntake)
	require.Equal(t, http.StatusCreated, status)

	status, _ = env.do(t, http.MethodPost, "/api/chat", map[string]string{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := env.do(t, http.MethodPost, "/api/chat", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, true, body["retryable"])

	_, body = env.do(t, http.MethodGet, "/api/conversation", nil)
	assert.Len(t, body["turns"], 2)
	assert.Equal(t, "onboarding", body["state"].(map[string]any)["active_role"])

	status, body = env.do(t, http.MethodPost, "/api/chat", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["turns"], 4)
}

func TestChatIsRateLimited(t *testing.T) {
	env := newTestEnv(t, &queue{replies: []any{"Hello!", "one", "two"}}, session.Config{RateLimit: 0.001, Burst: 1})

	status, _ := env.do(t, http.MethodPost, "/api/intake", validIntake)
	require.Equal(t, http.StatusCreated, status)

	status, _ = env.do(t, http.MethodPost, "/api/chat", map[string]string{"message": "a"})
	assert.Equal(t, http.StatusOK, status)
	status, _ = env.do(t, http.MethodPost, "/api/chat", map[string]string{"message": "b"})
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestResetStartsOver(t *testing.T) {
	env := newTestEnv(t, &queue{replies: []any{"Hello!", "Hello again!"}}, session.Config{RateLimit: 100, Burst: 100})

	status, _ := env.do(t, http.MethodPost, "/api/intake", validIntake)
	require.Equal(t, http.StatusCreated, status)

	status, body := env.do(t, http.MethodPost, "/api/reset", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["turns"])
	assert.Nil(t, body["profile"])
	assert.Equal(t, "onboarding", body["state"].(map[string]any)["active_role"])

	status, _ = env.do(t, http.MethodPost, "/api/intake", validIntake)
	assert.Equal(t, http.StatusCreated, status)
}

func TestSessionsAreIsolated(t *testing.T) {
	env := newTestEnv(t, &queue{replies: []any{"Hello!"}}, session.Config{RateLimit: 100, Burst: 100})

	status, _ := env.do(t, http.MethodPost, "/api/intake", validIntake)
	require.Equal(t, http.StatusCreated, status)

	other := &testEnv{srv: env.srv, client: &http.Client{}}
	_, body := other.do(t, http.MethodGet, "/api/conversation", nil)
	assert.Empty(t, body["turns"])
	assert.Equal(t, 2, env.store.Len())
}

func TestIndexAndHealth(t *testing.T) {
	env := newTestEnv(t, &queue{}, session.Config{RateLimit: 100, Burst: 100})

	resp, err := env.client.Get(env.srv.URL + "/")
	require.NoError(t, err)
	page, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(page), "Type 2 Diabetes")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	status, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "online", body["status"])
	assert.EqualValues(t, 1, body["sessions"].(map[string]any)["active"])
}

func TestSocketReceivesTurns(t *testing.T) {
	env := newTestEnv(t, &queue{replies: []any{"Hello Ada!"}}, session.Config{RateLimit: 100, Burst: 100})

	// Establish the session cookie first.
	status, _ := env.do(t, http.MethodGet, "/api/conversation", nil)
	require.Equal(t, http.StatusOK, status)

	header := http.Header{}
	req, _ := http.NewRequest(http.MethodGet, env.srv.URL, nil)
	for _, c := range env.client.Jar.Cookies(req.URL) {
		header.Add("Cookie", c.String())
	}
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(env.srv.URL, "http")+"/ws", header)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return env.hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	status, _ = env.do(t, http.MethodPost, "/api/intake", validIntake)
	require.Equal(t, http.StatusCreated, status)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(time.Second)))
	var ev struct {
		Type string           `json:"type"`
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, utility.EventTurn, ev.Type)
	require.Len(t, ev.Data, 2)
	assert.Equal(t, "Hello Ada!", ev.Data[1]["content"])
}
