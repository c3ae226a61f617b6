package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TonniChopper/Project-Manager/auth"
	"github.com/TonniChopper/Project-Manager/domain"
	"github.com/TonniChopper/Project-Manager/hub"
	"github.com/TonniChopper/Project-Manager/protocol"
)

const (
	testSecret   = "test-secret"
	testIssuer   = "project_manager"
	testAudience = "project_manager_users"
)

func signToken(t *testing.T, username string) string {
	t.Helper()

	claims := auth.Claims{
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func newTestServer(t *testing.T, maxPerUser int) (*httptest.Server, *hub.Hub) {
	t.Helper()

	broadcaster := hub.New(maxPerUser)
	verifier := auth.NewVerifier(testSecret, testIssuer, testAudience)
	handler := protocol.NewHandler(broadcaster)

	srv := httptest.NewServer(Handler(broadcaster, verifier, handler, 30*time.Second))
	t.Cleanup(srv.Close)
	return srv, broadcaster
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) domain.Envelope {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env domain.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, code), "expected close code %d, got %v", code, err)
}

func TestHandler_MissingToken(t *testing.T) {
	srv, _ := newTestServer(t, 5)
	conn := dial(t, srv, "")

	expectClose(t, conn, domain.CloseAuthFailed)
}

func TestHandler_InvalidToken(t *testing.T) {
	srv, _ := newTestServer(t, 5)
	conn := dial(t, srv, "?token=not.a.token")

	expectClose(t, conn, domain.CloseAuthFailed)
}

func TestHandler_TooManyConnections(t *testing.T) {
	srv, _ := newTestServer(t, 1)
	token := signToken(t, "alice")

	first := dial(t, srv, "?token="+token)
	env := readEnvelope(t, first)
	require.Equal(t, "connected", env.Type)

	second := dial(t, srv, "?token="+token)
	expectClose(t, second, domain.CloseTooManyConnections)

	// The first connection is unaffected: a ping still round-trips.
	require.NoError(t, first.WriteJSON(domain.Frame{Type: "ping"}))
	env = readEnvelope(t, first)
	assert.Equal(t, "pong", env.Type)
}

func TestHandler_EndToEnd(t *testing.T) {
	srv, broadcaster := newTestServer(t, 5)
	conn := dial(t, srv, "?token="+signToken(t, "alice"))

	env := readEnvelope(t, conn)
	require.Equal(t, "connected", env.Type)
	assert.Equal(t, "alice", env.Data["username"])
	assert.EqualValues(t, auth.UserID("alice"), env.Data["user_id"])

	require.NoError(t, conn.WriteJSON(domain.Frame{Type: "join_room", Room: "channel:1"}))

	env = readEnvelope(t, conn)
	require.Equal(t, "joined_room", env.Type)
	assert.Equal(t, "channel:1", env.Room)

	env = readEnvelope(t, conn)
	require.Equal(t, "user_joined", env.Type)
	assert.Equal(t, "channel:1", env.Room)
	assert.Equal(t, "alice", env.Data["username"])

	require.NoError(t, conn.WriteJSON(domain.Frame{
		Type: "send_message",
		Room: "channel:1",
		Data: map[string]any{"content": "hi"},
	}))

	env = readEnvelope(t, conn)
	require.Equal(t, "message", env.Type)
	assert.Equal(t, "channel:1", env.Room)
	assert.Equal(t, "hi", env.Data["content"])
	assert.Equal(t, "alice", env.Data["username"])
	assert.Equal(t, "alice", env.Sender)
	assert.NotEmpty(t, env.Timestamp)

	assert.Equal(t, 1, broadcaster.MemberCount("channel:1"))
}

func TestHandler_Ping(t *testing.T) {
	srv, _ := newTestServer(t, 5)
	conn := dial(t, srv, "?token="+signToken(t, "alice"))

	env := readEnvelope(t, conn)
	require.Equal(t, "connected", env.Type)

	require.NoError(t, conn.WriteJSON(domain.Frame{Type: "ping"}))

	env = readEnvelope(t, conn)
	require.Equal(t, "pong", env.Type)
	assert.NotEmpty(t, env.Data["timestamp"])

	// Exactly one reply: nothing else arrives.
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHandler_ProtocolErrorKeepsConnectionOpen(t *testing.T) {
	srv, _ := newTestServer(t, 5)
	conn := dial(t, srv, "?token="+signToken(t, "alice"))

	env := readEnvelope(t, conn)
	require.Equal(t, "connected", env.Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	env = readEnvelope(t, conn)
	require.Equal(t, "error", env.Type)
	assert.Equal(t, "Invalid JSON format", env.Data["error"])

	// Still connected: a ping round-trips afterwards.
	require.NoError(t, conn.WriteJSON(domain.Frame{Type: "ping"}))
	env = readEnvelope(t, conn)
	assert.Equal(t, "pong", env.Type)
}

func TestHandler_BroadcastBetweenClients(t *testing.T) {
	srv, _ := newTestServer(t, 5)

	alice := dial(t, srv, "?token="+signToken(t, "alice"))
	bob := dial(t, srv, "?token="+signToken(t, "bob"))
	readEnvelope(t, alice) // connected
	readEnvelope(t, bob)   // connected

	require.NoError(t, alice.WriteJSON(domain.Frame{Type: "join_room", Room: "channel:1"}))
	readEnvelope(t, alice) // joined_room
	readEnvelope(t, alice) // user_joined

	require.NoError(t, bob.WriteJSON(domain.Frame{Type: "join_room", Room: "channel:1"}))
	readEnvelope(t, bob) // joined_room

	// Both members hear bob arrive.
	env := readEnvelope(t, bob)
	require.Equal(t, "user_joined", env.Type)
	env = readEnvelope(t, alice)
	require.Equal(t, "user_joined", env.Type)
	assert.Equal(t, "bob", env.Data["username"])

	require.NoError(t, bob.WriteJSON(domain.Frame{
		Type: "send_message",
		Room: "channel:1",
		Data: map[string]any{"content": "hello alice"},
	}))

	env = readEnvelope(t, alice)
	require.Equal(t, "message", env.Type)
	assert.Equal(t, "hello alice", env.Data["content"])
	assert.Equal(t, "bob", env.Data["username"])
}

func TestHandler_CleanupOnDisconnect(t *testing.T) {
	srv, broadcaster := newTestServer(t, 5)
	conn := dial(t, srv, "?token="+signToken(t, "alice"))

	env := readEnvelope(t, conn)
	require.Equal(t, "connected", env.Type)

	require.NoError(t, conn.WriteJSON(domain.Frame{Type: "join_room", Room: "channel:1"}))
	env = readEnvelope(t, conn)
	require.Equal(t, "joined_room", env.Type)

	conn.Close()

	assert.Eventually(t, func() bool {
		rooms, clients := broadcaster.Stats()
		return rooms == 0 && clients == 0
	}, 2*time.Second, 20*time.Millisecond)
}
