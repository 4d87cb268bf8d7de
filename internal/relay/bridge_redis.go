package relay

import (
    "context"
    "encoding/json"
    "strings"
    "sync"

    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/obslog"
    "github.com/RunRun-labs/RunRun-Backend-sub001/pkg/battledto"
)

const topicPrefix = "battle:topic:"

func topicKey(sessionID string) string { return topicPrefix + strings.TrimSpace(sessionID) }

// RedisPublisher routes frames through Redis Pub/Sub so broadcasts reach
// subscribers regardless of which instance handled the triggering event.
// Local delivery happens via the bridge's subscription loop — one delivery
// path, so clients on every instance observe the same order.
type RedisPublisher struct {
    rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher { return &RedisPublisher{rdb: rdb} }

func (p *RedisPublisher) Publish(ctx context.Context, sessionID string, frame *battledto.Frame) error {
    raw, err := json.Marshal(frame)
    if err != nil { return err }
    return p.rdb.Publish(ctx, topicKey(sessionID), raw).Err()
}

// Bridge subscribes to every session topic on Redis and feeds frames into the
// local hub.
type Bridge struct {
    rdb  *redis.Client
    hub  *Hub
    ps   *redis.PubSub
    done chan struct{}
    once sync.Once
}

func NewBridge(rdb *redis.Client, hub *Hub) *Bridge {
    return &Bridge{rdb: rdb, hub: hub, done: make(chan struct{})}
}

// Start begins pumping Redis messages into the hub. Non-blocking.
func (b *Bridge) Start(ctx context.Context) {
    b.ps = b.rdb.PSubscribe(ctx, topicPrefix+"*")
    go b.loop()
}

func (b *Bridge) loop() {
    ch := b.ps.Channel()
    for {
        select {
        case <-b.done:
            return
        case msg, ok := <-ch:
            if !ok { return }
            var frame battledto.Frame
            if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
                obslog.L().Warn("relay_bridge_decode_error", zap.String("channel", msg.Channel), zap.Error(err))
                continue
            }
            sessionID := strings.TrimPrefix(msg.Channel, topicPrefix)
            b.hub.Broadcast(sessionID, &frame)
        }
    }
}

func (b *Bridge) Close() error {
    var err error
    b.once.Do(func() {
        close(b.done)
        if b.ps != nil { err = b.ps.Close() }
    })
    return err
}

// NewPublisher selects the fan-out path: with a Redis client, frames travel
// through Pub/Sub and the caller must Start a Bridge; without one, the hub
// delivers in-process only.
func NewPublisher(hub *Hub, rdb *redis.Client) Publisher {
    if rdb == nil { return hub }
    return NewRedisPublisher(rdb)
}
