// internal/pkg/session/revocation.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList reads the token blacklist the identity service keeps in
// Redis under blacklist:<jti>.
type RevocationList struct {
	client *redis.Client
}

func NewRevocationList(client *redis.Client) *RevocationList {
	return &RevocationList{client: client}
}

func blacklistKey(jti string) string {
	return fmt.Sprintf("blacklist:%s", jti)
}

// IsRevoked checks if a token is blacklisted
func (r *RevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	exists, err := r.client.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists > 0, nil
}

// Revoke blacklists a token until it would have expired anyway.
func (r *RevocationList) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	return r.client.Set(ctx, blacklistKey(jti), "1", ttl).Err()
}
