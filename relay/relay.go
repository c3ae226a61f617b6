package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TonniChopper/Project-Manager/domain"
)

// Channel is the well-known pub/sub channel every instance shares.
const Channel = "ws:events"

const publishTimeout = 5 * time.Second

// Relay replicates room broadcasts across server instances through
// Redis pub/sub. When Redis is unreachable at startup the relay stays
// disabled and the hub keeps working in local-only mode.
type Relay struct {
	client *redis.Client
	pubsub *redis.PubSub
	local  domain.LocalBroadcaster
	done   chan struct{}
}

func New(local domain.LocalBroadcaster) *Relay {
	return &Relay{local: local, done: make(chan struct{})}
}

// Start connects to Redis and subscribes to the shared channel. A
// connection failure degrades to local-only delivery instead of failing
// startup.
func (r *Relay) Start(ctx context.Context, redisURL string) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		slog.Warn("relay disabled: bad redis url", "error", err)
		close(r.done)
		return
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("relay disabled: redis unreachable, local-only mode", "error", err)
		client.Close()
		close(r.done)
		return
	}

	r.client = client
	r.pubsub = client.Subscribe(ctx, Channel)
	go r.listen()

	slog.Info("relay started", "channel", Channel)
}

// Publish replicates the envelope to other instances. Fire-and-forget:
// failures are logged, never surfaced to the broadcaster.
func (r *Relay) Publish(env domain.Envelope) {
	if r.client == nil {
		return
	}

	payload, err := json.Marshal(env)
	if err != nil {
		slog.Error("relay marshal failed", "type", env.Type, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, Channel, payload).Err(); err != nil {
		slog.Error("relay publish failed", "type", env.Type, "error", err)
	}
}

// listen fans every bus message out to local room members. The loop
// ends when the subscription is closed; the publishing instance hears
// its own messages here, so local members can see duplicates.
func (r *Relay) listen() {
	defer close(r.done)

	for msg := range r.pubsub.Channel() {
		r.dispatch([]byte(msg.Payload))
	}

	slog.Info("relay listener stopped")
}

func (r *Relay) dispatch(payload []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		slog.Error("relay decode failed", "error", err)
		return
	}
	if env.Room == "" {
		return
	}
	r.local.BroadcastLocal(env.Room, env)
}

// Close unsubscribes, stops the listener goroutine and releases the
// Redis client. Safe to call when the relay never started.
func (r *Relay) Close() {
	if r.pubsub != nil {
		r.pubsub.Close()
		<-r.done
	}
	if r.client != nil {
		r.client.Close()
	}
}
