package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TonniChopper/Project-Manager/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 4096
	sendQueueSize  = 256
)

// Conn adapts a gorilla connection to domain.Connection. The read pump
// owns the socket's lifecycle; the hub and the protocol handler only
// hold references.
type Conn struct {
	id        string
	principal domain.Principal
	ws        *websocket.Conn
	send      chan []byte
	hub       domain.Broadcaster
	handler   domain.MessageHandler

	heartbeat time.Duration
	cleanup   sync.Once
}

func NewConn(id string, principal domain.Principal, ws *websocket.Conn, hub domain.Broadcaster, h domain.MessageHandler, heartbeat time.Duration) *Conn {
	if heartbeat <= 0 || heartbeat >= pongWait {
		heartbeat = (pongWait * 9) / 10
	}
	return &Conn{
		id:        id,
		principal: principal,
		ws:        ws,
		send:      make(chan []byte, sendQueueSize),
		hub:       hub,
		handler:   h,
		heartbeat: heartbeat,
	}
}

func (c *Conn) ID() string                  { return c.id }
func (c *Conn) Principal() domain.Principal { return c.principal }

// Send queues an envelope for delivery. It never blocks: a full queue
// means the client is not draining and the connection is reported dead
// so the hub can drop it instead of stalling a broadcast.
func (c *Conn) Send(env domain.Envelope) error {
	if env.Timestamp == "" {
		env.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	default:
		return domain.ErrSendBufferFull
	}
}

func (c *Conn) Close() error {
	return c.ws.Close()
}

// Start registers pumps for an already-authenticated connection.
func (c *Conn) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Conn) readPump() {
	defer c.cleanup.Do(func() {
		c.hub.Unregister(c)
		c.ws.Close()
	})

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Error("read error", "user", c.principal.Username, "error", err)
			}
			return
		}

		c.handler.Handle(c, data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.heartbeat)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
