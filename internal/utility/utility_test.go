package utility

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRealIP(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", GetRealIP(e.NewContext(req, httptest.NewRecorder())))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", GetRealIP(e.NewContext(req, httptest.NewRecorder())))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", GetRealIP(e.NewContext(req, httptest.NewRecorder())))
}

func TestContextHelpers(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	_, err := GetSessionIDFromContext(c)
	assert.Error(t, err)
	assert.NotNil(t, LoggerFromContext(c))

	logger := zerolog.Nop()
	c.Set(ContextLogger, &logger)
	c.Set(ContextSessionID, "abc")
	id, err := GetSessionIDFromContext(c)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
	assert.Same(t, &logger, LoggerFromContext(c))
}

// dialHub serves a socket for sessionID and returns the client side.
func dialHub(t *testing.T, h *Hub, sessionID string) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.Upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Register(sessionID, conn)
		defer h.Unregister(sessionID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)
	return client, func() {
		client.Close()
		srv.Close()
	}
}

func TestHubPublishesToSession(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	client, closeAll := dialHub(t, h, "s1")
	defer closeAll()

	h.Publish("other", Event{Type: EventReset})
	h.Publish("s1", Event{Type: EventState, Data: map[string]string{"active_role": "engagement"}})

	require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
	var ev struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, client.ReadJSON(&ev))
	assert.Equal(t, EventState, ev.Type)
	assert.Equal(t, "engagement", ev.Data["active_role"])
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	client, closeAll := dialHub(t, h, "s1")
	defer closeAll()

	client.Close()
	assert.Eventually(t, func() bool { return h.Len() == 0 }, time.Second, 5*time.Millisecond)

	h.Publish("s1", Event{Type: EventReset})
}

func TestHubClose(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	_, closeAll := dialHub(t, h, "s1")
	defer closeAll()

	h.Close()
	assert.Zero(t, h.Len())
}
