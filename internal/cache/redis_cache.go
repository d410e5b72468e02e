package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "caixa:revoked:"

// RedisRevocationList stores each revoked token ID as a key that expires
// with the token, so Redis does the pruning.
type RedisRevocationList struct {
	client *redis.Client
}

func NewRedisRevocationList(addr string, password string, db int) *RedisRevocationList {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisRevocationList{client: client}
}

func (c *RedisRevocationList) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisRevocationList) Close() error {
	return c.client.Close()
}

func (c *RedisRevocationList) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return nil
	}
	// Zero until stores the key without expiry.
	var ttl time.Duration
	if !until.IsZero() {
		if ttl = time.Until(until); ttl <= 0 {
			return nil
		}
	}
	return c.client.Set(ctx, revokedKeyPrefix+tokenID, 1, ttl).Err()
}

func (c *RedisRevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := c.client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
