package farmer

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"github.com/chia-farm/farmer-core/internal/util"
)

// EventBus is component O: an optional mirror of the local Subscribe()
// channel onto a Redis pub/sub channel, so external observers (for example a
// notification worker on another host) can
// watch farmer events without holding a Go channel open inside this
// process. Grounded on the deleted internal/storage/redis.go connection
// setup, repurposed here for pub/sub instead of persistence.
type EventBus struct {
	client  *redis.Client
	channel string
}

// NewEventBus connects to addr and prepares to publish on channel. The
// connection is lazy: redis.NewClient never blocks, matching go-redis's
// usual lazy-dial behavior.
func NewEventBus(addr, password string, db int, channel string) *EventBus {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &EventBus{client: client, channel: channel}
}

// Run drains events from the Farmer's Subscribe() channel and republishes
// each as a JSON-encoded message until ctx is canceled or the channel
// closes (on Farmer.Stop).
func (b *EventBus) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				util.Warnf("farmer: event bus marshal failed for %s: %v", ev.Type, err)
				continue
			}
			if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
				util.Warnf("farmer: event bus publish failed for %s: %v", ev.Type, err)
			}
		}
	}
}

// Close releases the underlying Redis connection pool.
func (b *EventBus) Close() error {
	return b.client.Close()
}
