// internal/integration/stripe/dedup.go
package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisEventDeduplicator remembers processed event ids for ttl.
type RedisEventDeduplicator struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisEventDeduplicator(client *redis.Client, ttl time.Duration) *RedisEventDeduplicator {
	return &RedisEventDeduplicator{client: client, ttl: ttl}
}

func (d *RedisEventDeduplicator) key(eventID string) string {
	return fmt.Sprintf("stripe:event:%s", eventID)
}

func (d *RedisEventDeduplicator) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return n > 0, nil
}

func (d *RedisEventDeduplicator) MarkProcessed(ctx context.Context, eventID string) error {
	if err := d.client.Set(ctx, d.key(eventID), time.Now().Unix(), d.ttl).Err(); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}
