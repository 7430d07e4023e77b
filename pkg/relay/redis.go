package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/autosd-vss-mw/vss-lib/pkg/vss"
	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix is prepended to the signal name to form the channel.
const DefaultChannelPrefix = "vss:signal:"

// Message is the JSON payload published for every reading.
type Message struct {
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Redis publishes readings through Redis Pub/Sub.
type Redis struct {
	client        redis.UniversalClient
	channelPrefix string
	now           func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewRedis creates a Redis relay. The client is closed by Close.
func NewRedis(client redis.UniversalClient, channelPrefix string) *Redis {
	if channelPrefix == "" {
		channelPrefix = DefaultChannelPrefix
	}
	return &Redis{
		client:        client,
		channelPrefix: channelPrefix,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Name returns "redis".
func (b *Redis) Name() string {
	return "redis"
}

// Channel returns the channel readings of name are published on.
func (b *Redis) Channel(name string) string {
	return b.channelPrefix + name
}

// Publish sends r as a Message to the reading's channel.
func (b *Redis) Publish(ctx context.Context, r vss.Reading) error {
	if r.Name == "" {
		return fmt.Errorf("signal name cannot be empty")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	b.mu.RUnlock()

	data, err := json.Marshal(Message{Name: r.Name, Value: r.Value, EmittedAt: b.now()})
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	if err := b.client.Publish(ctx, b.Channel(r.Name), data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", b.Channel(r.Name), err)
	}
	return nil
}

// Close closes the Redis client.
func (b *Redis) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.client.Close()
}

// Healthy checks if the Redis connection is alive.
func (b *Redis) Healthy() bool {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return false
	}
	b.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return b.client.Ping(ctx).Err() == nil
}
