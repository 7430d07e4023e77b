package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/autosd-vss-mw/vss-lib/pkg/vss"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func TestRedis_PublishDeliversJSON(t *testing.T) {
	mr, client := newTestRedis(t)
	subscriber := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer subscriber.Close()

	relay := NewRedis(client, "")
	defer relay.Close()
	fixed := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	relay.now = func() time.Time { return fixed }

	ctx := context.Background()
	sub := subscriber.Subscribe(ctx, "vss:signal:Speed")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, relay.Publish(ctx, vss.Reading{Name: "Speed", Value: 80}))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "vss:signal:Speed", msg.Channel)
		var got Message
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, Message{Name: "Speed", Value: 80, EmittedAt: fixed}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for redis message")
	}
}

func TestRedis_ChannelPrefix(t *testing.T) {
	_, client := newTestRedis(t)
	relay := NewRedis(client, "fleet:7:")
	defer relay.Close()

	assert.Equal(t, "fleet:7:EngineRPM", relay.Channel("EngineRPM"))
	assert.Equal(t, "redis", relay.Name())
}

func TestRedis_RejectsEmptyName(t *testing.T) {
	_, client := newTestRedis(t)
	relay := NewRedis(client, "")
	defer relay.Close()

	assert.Error(t, relay.Publish(context.Background(), vss.Reading{Value: 1}))
}

func TestRedis_PublishAfterClose(t *testing.T) {
	_, client := newTestRedis(t)
	relay := NewRedis(client, "")

	require.NoError(t, relay.Close())
	require.NoError(t, relay.Close())

	err := relay.Publish(context.Background(), vss.Reading{Name: "Speed", Value: 1})
	assert.True(t, errors.Is(err, ErrClosed))
	assert.False(t, relay.Healthy())
}

func TestRedis_Healthy(t *testing.T) {
	mr, client := newTestRedis(t)
	relay := NewRedis(client, "")
	defer relay.Close()

	assert.True(t, relay.Healthy())

	mr.Close()
	assert.False(t, relay.Healthy())
	assert.Error(t, relay.Publish(context.Background(), vss.Reading{Name: "Speed", Value: 1}))
}
