// Package events publishes catalog domain events on redis pub/sub channels.
// The channel name equals the event type.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Event types.
const (
	ReviewDecided  = "EVENT_REVIEW_DECIDED"
	ReviewDeleted  = "EVENT_REVIEW_DELETED"
	BicycleUpdated = "EVENT_BICYCLE_UPDATED"
	ReviewQueue    = "EVENT_REVIEW_QUEUE"
)

// Event is the envelope written to the channel.
type Event struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	At   time.Time      `json:"at"`
	Data map[string]any `json:"data,omitempty"`
}

// Publisher emits events. Callers treat failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data map[string]any) error
}

// redisPublishClient is the subset of *redis.Client used here.
type redisPublishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes events through a redis client.
type RedisPublisher struct {
	rdb redisPublishClient
	now func() time.Time
}

// NewRedisPublisher returns a Publisher backed by rdb.
func NewRedisPublisher(rdb redisPublishClient) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, now: time.Now}
}

// Publish marshals an Event envelope and publishes it on the eventType channel.
func (p *RedisPublisher) Publish(ctx context.Context, eventType string, data map[string]any) error {
	payload, err := json.Marshal(Event{
		ID:   uuid.NewString(),
		Type: eventType,
		At:   p.now().UTC(),
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}
	if err := p.rdb.Publish(ctx, eventType, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, map[string]any) error { return nil }
