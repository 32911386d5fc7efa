package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/anonto42/nano-midea/engine/internal/models"
)

// NotificationChannel is the pub/sub channel carrying live notifications for uid.
func NotificationChannel(uid string) string {
	return fmt.Sprintf("user_notifications:%s", uid)
}

// RedisPublisher pushes committed notifications to per-user Redis channels.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a new RedisPublisher
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) PublishNotification(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return p.client.Publish(ctx, NotificationChannel(n.TargetUserID), payload).Err()
}

// Subscribe opens the live channel of uid and waits for the subscription to
// be confirmed.
func (p *RedisPublisher) Subscribe(ctx context.Context, uid string) (*redis.PubSub, error) {
	pubsub := p.client.Subscribe(ctx, NotificationChannel(uid))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", NotificationChannel(uid), err)
	}
	return pubsub, nil
}
