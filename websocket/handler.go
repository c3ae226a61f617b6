package websocket

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/TonniChopper/Project-Manager/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP requests to WebSocket connections and runs the
// handshake: token from the query string, verification, capacity-checked
// registration, then the welcome frame. Any handshake failure closes the
// socket with an application close code before the connection reaches
// any room.
func Handler(hub domain.Broadcaster, verifier domain.TokenVerifier, msgHandler domain.MessageHandler, heartbeat time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("upgrade error", "error", err)
			return
		}

		token := r.URL.Query().Get("token")
		if token == "" {
			slog.Warn("connection rejected: missing token", "remote", r.RemoteAddr)
			closeWith(ws, domain.CloseAuthFailed, "Missing token")
			return
		}

		principal, err := verifier.Verify(token)
		if err != nil {
			slog.Warn("connection rejected: auth failed", "remote", r.RemoteAddr, "error", err)
			closeWith(ws, domain.CloseAuthFailed, "Authentication failed")
			return
		}

		conn := NewConn(uuid.New().String(), principal, ws, hub, msgHandler, heartbeat)
		if err := hub.Register(conn); err != nil {
			if errors.Is(err, domain.ErrAtCapacity) {
				slog.Warn("connection rejected: at capacity", "user", principal.Username)
				closeWith(ws, domain.CloseTooManyConnections, "Too many connections")
			} else {
				slog.Error("registration failed", "user", principal.Username, "error", err)
				closeWith(ws, domain.CloseInternalError, "Connection failed")
			}
			return
		}

		conn.Start()
		conn.Send(domain.Envelope{
			Type: "connected",
			Data: map[string]any{
				"message":  "Connected successfully",
				"user_id":  principal.UserID,
				"username": principal.Username,
			},
		})
	}
}

func closeWith(ws *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	ws.Close()
}
