package realtime

import (
    "context"
    "encoding/json"
    "log"

    "github.com/google/uuid"
    "github.com/redis/go-redis/v9"
)

// relayChannel is the Redis pub/sub channel carrying broadcast events
// between coordinator instances.
const relayChannel = "seatlive:v1:events"

// relayMsg is the wire format on the relay channel.  Instance tags let
// subscribers skip their own publications.
type relayMsg struct {
    Instance string          `json:"instance"`
    ShowID   uint64          `json:"show_id"`
    Event    json.RawMessage `json:"event"`
}

// Relay mirrors broadcast events across coordinator instances through
// Redis pub/sub.  It relays notifications only; hold state stays local
// to each process.  Construct it with NewRelay and start Run in its own
// goroutine; a nil Relay on the hub disables relaying entirely.
type Relay struct {
    rdb      *redis.Client
    instance string
    cancel   context.CancelFunc

    // deliver is set by the hub: it pushes a foreign event to the
    // local members of the show's group.
    deliver func(showID uint64, payload []byte)
}

// NewRelay returns a relay over the given Redis client, or nil when the
// client is nil (Redis unreachable at startup; the coordinator then
// runs single-instance).
func NewRelay(rdb *redis.Client) *Relay {
    if rdb == nil {
        return nil
    }
    return &Relay{rdb: rdb, instance: uuid.NewString()}
}

// Publish mirrors a locally broadcast event to the other instances.
// Failures are logged and otherwise ignored: the local fan-out already
// happened and must not be affected.
func (r *Relay) Publish(showID uint64, payload []byte) {
    msg := relayMsg{Instance: r.instance, ShowID: showID, Event: payload}
    b, _ := json.Marshal(msg)
    if err := r.rdb.Publish(context.Background(), relayChannel, b).Err(); err != nil {
        log.Printf("relay: publish show=%d: %v", showID, err)
    }
}

// Run subscribes to the relay channel and delivers foreign events to
// local sessions until the context is cancelled or Close is called.
func (r *Relay) Run(ctx context.Context) {
    ctx, r.cancel = context.WithCancel(ctx)
    sub := r.rdb.Subscribe(ctx, relayChannel)
    defer sub.Close()

    ch := sub.Channel(redis.WithChannelSize(256))
    for {
        select {
        case <-ctx.Done():
            return
        case m, ok := <-ch:
            if !ok {
                return
            }
            var msg relayMsg
            if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
                log.Printf("relay: bad message: %v", err)
                continue
            }
            if msg.Instance == r.instance || msg.ShowID == 0 || r.deliver == nil {
                continue
            }
            r.deliver(msg.ShowID, msg.Event)
        }
    }
}

// Close stops the subscriber loop.
func (r *Relay) Close() {
    if r.cancel != nil {
        r.cancel()
    }
}
