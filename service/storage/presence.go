package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// presence key: chat:presence:<user>
// value: gateway_id, TTL bounds staleness when a gateway dies without cleanup
func presenceKey(user string) string { return "chat:presence:" + user }

// RedisPresence keeps the shared online mirror.
type RedisPresence struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisPresence(rdb *redis.Client, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisPresence{rdb: rdb, ttl: ttl}
}

func (p *RedisPresence) Online(ctx context.Context, userID, gatewayID string) error {
	return p.rdb.Set(ctx, presenceKey(userID), gatewayID, p.ttl).Err()
}

func (p *RedisPresence) Offline(ctx context.Context, userID string) error {
	return p.rdb.Del(ctx, presenceKey(userID)).Err()
}

// Lookup reports where (if anywhere) a user is online.
func (p *RedisPresence) Lookup(ctx context.Context, userID string) (gatewayID string, online bool, err error) {
	val, err := p.rdb.Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}
