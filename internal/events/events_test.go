package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	channel string
	message []byte
	err     error
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message, _ = message.([]byte)
	return redis.NewIntResult(1, f.err)
}

func TestRedisPublisher_Envelope(t *testing.T) {
	rdb := &fakeRedis{}
	p := NewRedisPublisher(rdb)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	err := p.Publish(context.Background(), BicycleUpdated, map[string]any{"bikeId": 7})
	require.NoError(t, err)
	assert.Equal(t, BicycleUpdated, rdb.channel)

	var ev Event
	require.NoError(t, json.Unmarshal(rdb.message, &ev))
	assert.Equal(t, BicycleUpdated, ev.Type)
	assert.NotEmpty(t, ev.ID)
	assert.True(t, ev.At.Equal(fixed))
	assert.EqualValues(t, 7, ev.Data["bikeId"])
}

func TestRedisPublisher_Error(t *testing.T) {
	rdb := &fakeRedis{err: errors.New("connection refused")}
	err := NewRedisPublisher(rdb).Publish(context.Background(), ReviewDecided, nil)
	assert.ErrorContains(t, err, "publish EVENT_REVIEW_DECIDED")
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Publish(context.Background(), ReviewQueue, nil))
}
