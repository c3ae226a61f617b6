package protocol

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/TonniChopper/Project-Manager/domain"
)

// Handler dispatches inbound client frames. It holds no per-connection
// state; every effect goes through the broadcaster.
type Handler struct {
	broadcaster domain.Broadcaster
}

func NewHandler(b domain.Broadcaster) *Handler {
	return &Handler{broadcaster: b}
}

func (h *Handler) Handle(conn domain.Connection, data []byte) {
	var frame domain.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		slog.Warn("invalid frame", "user", conn.Principal().Username, "error", err)
		conn.Send(errorEnvelope("Invalid JSON format"))
		return
	}

	switch frame.Type {
	case "join_room":
		h.joinRoom(conn, frame)
	case "leave_room":
		h.leaveRoom(conn, frame)
	case "send_message":
		h.sendMessage(conn, frame)
	case "ping":
		conn.Send(domain.Envelope{
			Type: "pong",
			Data: map[string]any{"timestamp": time.Now().UTC().Format(time.RFC3339)},
		})
	default:
		conn.Send(errorEnvelope(fmt.Sprintf("Unknown message type: %s", frame.Type)))
	}
}

func (h *Handler) joinRoom(conn domain.Connection, frame domain.Frame) {
	if frame.Room == "" {
		conn.Send(errorEnvelope("Room ID required"))
		return
	}

	// TODO: check user access to the room (project, channel, task permissions)
	h.broadcaster.Join(conn, frame.Room)
	conn.Send(domain.Envelope{
		Type: "joined_room",
		Room: frame.Room,
		Data: map[string]any{"message": fmt.Sprintf("Joined room %s", frame.Room)},
	})

	p := conn.Principal()
	h.broadcaster.Broadcast(frame.Room, domain.Envelope{
		Type: "user_joined",
		Data: map[string]any{"username": p.Username, "user_id": p.UserID},
	}, p.Username)
}

func (h *Handler) leaveRoom(conn domain.Connection, frame domain.Frame) {
	if frame.Room == "" {
		conn.Send(errorEnvelope("Room ID required"))
		return
	}

	h.broadcaster.Leave(conn, frame.Room)
	conn.Send(domain.Envelope{
		Type: "left_room",
		Room: frame.Room,
		Data: map[string]any{"message": fmt.Sprintf("Left room %s", frame.Room)},
	})

	p := conn.Principal()
	h.broadcaster.Broadcast(frame.Room, domain.Envelope{
		Type: "user_left",
		Data: map[string]any{"username": p.Username, "user_id": p.UserID},
	}, p.Username)
}

func (h *Handler) sendMessage(conn domain.Connection, frame domain.Frame) {
	if frame.Room == "" {
		conn.Send(errorEnvelope("Room ID required"))
		return
	}

	p := conn.Principal()
	payload := map[string]any{
		"content":  "",
		"username": p.Username,
		"user_id":  p.UserID,
	}
	// Caller-supplied fields win over the defaults, identity excepted.
	for k, v := range frame.Data {
		payload[k] = v
	}
	payload["username"] = p.Username
	payload["user_id"] = p.UserID

	h.broadcaster.Broadcast(frame.Room, domain.Envelope{
		Type: "message",
		Data: payload,
	}, p.Username)
}

func errorEnvelope(msg string) domain.Envelope {
	return domain.Envelope{Type: "error", Data: map[string]any{"error": msg}}
}
