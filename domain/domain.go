package domain

import "errors"

// Application-level close codes carried in the WebSocket close frame.
const (
	CloseAuthFailed         = 4401
	CloseTooManyConnections = 4429
	CloseInternalError      = 4500
)

// ErrAtCapacity is returned by Register when the user already holds the
// maximum number of concurrent connections.
var ErrAtCapacity = errors.New("too many connections")

// ErrSendBufferFull is returned by a connection whose outbound queue is
// full; the hub treats it like a dead connection.
var ErrSendBufferFull = errors.New("send buffer full")

// Principal is the verified identity bound to a connection at handshake
// time. It never changes for the lifetime of the connection.
type Principal struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// Envelope is the server-to-client message unit. Room, Sender and
// Timestamp are stamped by the hub on broadcast, never by the caller.
type Envelope struct {
	Type      string         `json:"type"`
	Room      string         `json:"room,omitempty"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp,omitempty"`
	Sender    string         `json:"sender,omitempty"`
}

// Frame is the client-to-server message shape.
type Frame struct {
	Type string         `json:"type"`
	Room string         `json:"room,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

type Connection interface {
	ID() string
	Principal() Principal
	Send(env Envelope) error
	Close() error
}

// Broadcaster tracks live connections and their room memberships and
// fans envelopes out to them.
type Broadcaster interface {
	Register(conn Connection) error
	Unregister(conn Connection)
	Join(conn Connection, room string)
	Leave(conn Connection, room string)
	Broadcast(room string, env Envelope, sender string)
	BroadcastLocal(room string, env Envelope)
	NotifyUser(userID int64, env Envelope)
	MemberCount(room string) int
	Stats() (rooms, clients int)
}

// Publisher replicates envelopes to other server instances.
type Publisher interface {
	Publish(env Envelope)
}

// LocalBroadcaster is the subset of Broadcaster the relay needs to
// deliver bus events to connections held by this instance.
type LocalBroadcaster interface {
	BroadcastLocal(room string, env Envelope)
}

// TokenVerifier turns an opaque bearer token into a Principal.
type TokenVerifier interface {
	Verify(token string) (Principal, error)
}

type MessageHandler interface {
	Handle(conn Connection, data []byte)
}
