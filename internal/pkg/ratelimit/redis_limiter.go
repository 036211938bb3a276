// internal/pkg/ratelimit/redis_limiter.go
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window request counter kept in Redis.
type RateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

func key(userID, endpoint string) string {
	return fmt.Sprintf("ratelimit:api:%s:%s", userID, endpoint)
}

// Allow counts one request for (userID, endpoint) and reports whether it
// fits within maxRequests for the current window.
func (r *RateLimiter) Allow(ctx context.Context, userID, endpoint string, maxRequests int64, window time.Duration) (bool, error) {
	k := key(userID, endpoint)

	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment API rate limit: %w", err)
	}

	// Set expiration on first attempt
	if count == 1 {
		r.client.Expire(ctx, k, window)
	}

	return count <= maxRequests, nil
}

// Remaining returns how many requests are left in the current window.
func (r *RateLimiter) Remaining(ctx context.Context, userID, endpoint string, maxRequests int64) (int64, error) {
	count, err := r.client.Get(ctx, key(userID, endpoint)).Int64()
	if err == redis.Nil {
		return maxRequests, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get API rate limit: %w", err)
	}

	remaining := maxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset clears the counter.
func (r *RateLimiter) Reset(ctx context.Context, userID, endpoint string) error {
	return r.client.Del(ctx, key(userID, endpoint)).Err()
}
