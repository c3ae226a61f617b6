package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/TonniChopper/Project-Manager/domain"
)

const DefaultMaxConnectionsPerUser = 5

// Hub is the connection registry and room router. One mutex guards the
// per-user index, the per-room index and the reverse room index; nothing
// does network I/O while holding it.
type Hub struct {
	mu     sync.Mutex
	byUser map[int64]map[domain.Connection]struct{}
	byRoom map[string]map[domain.Connection]struct{}
	rooms  map[domain.Connection]map[string]struct{}

	maxPerUser int
	publisher  domain.Publisher
}

func New(maxPerUser int) *Hub {
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxConnectionsPerUser
	}
	return &Hub{
		byUser:     make(map[int64]map[domain.Connection]struct{}),
		byRoom:     make(map[string]map[domain.Connection]struct{}),
		rooms:      make(map[domain.Connection]map[string]struct{}),
		maxPerUser: maxPerUser,
	}
}

// SetPublisher wires the cross-instance relay. Must be called before the
// hub starts accepting connections; nil leaves the hub local-only.
func (h *Hub) SetPublisher(p domain.Publisher) {
	h.publisher = p
}

// Register admits a connection into the per-user index. It fails with
// domain.ErrAtCapacity, touching no index, when the user already holds
// the maximum number of connections.
func (h *Hub) Register(conn domain.Connection) error {
	userID := conn.Principal().UserID

	h.mu.Lock()
	if len(h.byUser[userID]) >= h.maxPerUser {
		h.mu.Unlock()
		return domain.ErrAtCapacity
	}
	set, ok := h.byUser[userID]
	if !ok {
		set = make(map[domain.Connection]struct{})
		h.byUser[userID] = set
	}
	set[conn] = struct{}{}
	h.rooms[conn] = make(map[string]struct{})
	count := len(set)
	h.mu.Unlock()

	slog.Info("client connected", "user", conn.Principal().Username, "userId", userID, "connections", count)
	return nil
}

// Unregister removes the connection from the user index and from every
// room it joined. Idempotent; safe to call from error paths.
func (h *Hub) Unregister(conn domain.Connection) {
	userID := conn.Principal().UserID

	h.mu.Lock()
	joined, registered := h.rooms[conn]
	if !registered {
		h.mu.Unlock()
		return
	}
	delete(h.rooms, conn)
	for room := range joined {
		h.dropMemberLocked(conn, room)
	}
	if set, ok := h.byUser[userID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.byUser, userID)
		}
	}
	h.mu.Unlock()

	slog.Info("client disconnected", "user", conn.Principal().Username, "userId", userID)
}

// Join adds the connection to a room. Re-joining is a no-op. Connections
// that are not (or no longer) registered are never added, so a racing
// Unregister cannot leave a dangling membership.
func (h *Hub) Join(conn domain.Connection, room string) {
	h.mu.Lock()
	joined, registered := h.rooms[conn]
	if !registered {
		h.mu.Unlock()
		return
	}
	members, ok := h.byRoom[room]
	if !ok {
		members = make(map[domain.Connection]struct{})
		h.byRoom[room] = members
	}
	members[conn] = struct{}{}
	joined[room] = struct{}{}
	count := len(members)
	h.mu.Unlock()

	slog.Info("joined room", "room", room, "user", conn.Principal().Username, "members", count)
}

// Leave removes the connection from a room; the room key is dropped when
// its last member leaves.
func (h *Hub) Leave(conn domain.Connection, room string) {
	h.mu.Lock()
	if joined, ok := h.rooms[conn]; ok {
		delete(joined, room)
	}
	h.dropMemberLocked(conn, room)
	h.mu.Unlock()

	slog.Info("left room", "room", room, "user", conn.Principal().Username)
}

func (h *Hub) dropMemberLocked(conn domain.Connection, room string) {
	members, ok := h.byRoom[room]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(h.byRoom, room)
	}
}

// Broadcast stamps the envelope's control fields, publishes it to the
// relay for other instances, and fans it out to local members. The
// publishing instance also receives the envelope back through the relay,
// so consumers see at-least-once delivery.
func (h *Hub) Broadcast(room string, env domain.Envelope, sender string) {
	env.Room = room
	env.Timestamp = time.Now().UTC().Format(time.RFC3339)
	if sender != "" {
		env.Sender = sender
	}

	if h.publisher != nil {
		h.publisher.Publish(env)
	}
	h.BroadcastLocal(room, env)
}

// BroadcastLocal delivers the envelope to every local member of the
// room. A failed member does not abort delivery to the rest; it is
// unregistered and closed instead.
func (h *Hub) BroadcastLocal(room string, env domain.Envelope) {
	h.mu.Lock()
	members := make([]domain.Connection, 0, len(h.byRoom[room]))
	for conn := range h.byRoom[room] {
		members = append(members, conn)
	}
	h.mu.Unlock()

	var dead []domain.Connection
	for _, conn := range members {
		if err := conn.Send(env); err != nil {
			slog.Warn("send failed", "room", room, "user", conn.Principal().Username, "error", err)
			dead = append(dead, conn)
		}
	}
	h.reap(dead)
}

// NotifyUser delivers the envelope to every connection held by one user.
func (h *Hub) NotifyUser(userID int64, env domain.Envelope) {
	env.Timestamp = time.Now().UTC().Format(time.RFC3339)

	h.mu.Lock()
	conns := make([]domain.Connection, 0, len(h.byUser[userID]))
	for conn := range h.byUser[userID] {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	var dead []domain.Connection
	for _, conn := range conns {
		if err := conn.Send(env); err != nil {
			slog.Warn("send failed", "userId", userID, "error", err)
			dead = append(dead, conn)
		}
	}
	h.reap(dead)
}

func (h *Hub) reap(dead []domain.Connection) {
	for _, conn := range dead {
		h.Unregister(conn)
		conn.Close()
	}
}

// MemberCount reports local membership only; members held by other
// instances are not reflected.
func (h *Hub) MemberCount(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byRoom[room])
}

func (h *Hub) Stats() (rooms, clients int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byRoom), len(h.rooms)
}
