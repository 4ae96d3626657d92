package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/chat"
)

const testOrigin = "http://chat.test"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	hub    *Hub
	server *httptest.Server
	wsURL  string
}

// newTestEnv starts a hub behind an httptest server. Shutdown order is hub
// first so hijacked connections are released before the server closes.
func newTestEnv(t *testing.T, customize func(cfg *Config)) *testEnv {
	t.Helper()

	cfg := NewConfig()
	cfg.AllowedOrigins = []string{testOrigin}
	cfg.DeliveryInterval = 10 * time.Millisecond
	if customize != nil {
		customize(cfg)
	}

	logger := quietLogger()
	svc := chat.NewService(chat.WithLogger(logger), chat.WithMaxRoomMessages(cfg.MaxRoomMessages))
	hub := NewHub(cfg, svc, logger)
	hub.Start()

	srv := httptest.NewServer(SetupRoutes(hub))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = hub.Shutdown(2 * time.Second) })

	return &testEnv{
		hub:    hub,
		server: srv,
		wsURL:  "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, err := e.dialWithOrigin(testOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (e *testEnv) dialWithOrigin(origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(e.wsURL, header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

func sendEvent(t *testing.T, conn *websocket.Conn, eventType, ref string, payload any) {
	t.Helper()

	env := Envelope{Type: eventType, Ref: ref}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		env.Payload = raw
	}
	require.NoError(t, conn.WriteJSON(env))
}

// readUntil reads frames until match accepts one or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, match func(Envelope) bool) Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	for {
		var env Envelope
		err := conn.ReadJSON(&env)
		require.NoError(t, err, "waiting for frame")
		if match(env) {
			return env
		}
	}
}

func isType(eventType string) func(Envelope) bool {
	return func(env Envelope) bool { return env.Type == eventType }
}

// logMatches accepts a messages frame whose contents equal want.
func logMatches(t *testing.T, want ...string) func(Envelope) bool {
	return func(env Envelope) bool {
		if env.Type != EventMessages {
			return false
		}
		got := decodeLog(t, env)
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i].Content != want[i] {
				return false
			}
		}
		return true
	}
}

func decodeLog(t *testing.T, env Envelope) []chat.Message {
	t.Helper()
	var msgs []chat.Message
	require.NoError(t, json.Unmarshal(env.Payload, &msgs))
	return msgs
}

func decodeUser(t *testing.T, env Envelope) chat.User {
	t.Helper()
	var user chat.User
	require.NoError(t, json.Unmarshal(env.Payload, &user))
	return user
}

// expectNoFrame asserts nothing arrives for the given window.
func expectNoFrame(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(window)))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no frame, got %s", data)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of frame: %v", err)
}

// identify registers username over conn and returns the assigned user.
func identify(t *testing.T, conn *websocket.Conn, username string) chat.User {
	t.Helper()
	sendEvent(t, conn, EventRequestIdentity, username, IdentityRequest{Username: username})
	env := readUntil(t, conn, func(env Envelope) bool {
		return env.Type == EventIdentity && env.Ref == username
	})
	return decodeUser(t, env)
}
