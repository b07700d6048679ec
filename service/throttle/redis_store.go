package throttle

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ===== Lua =====

// 原子 INCR + 首次设置过期
// KEYS[1] = counter key
// ARGV[1] = window millis
// 返回：自增后的计数
const luaIncrWindow = `
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`

// RedisStore is the shared counter backend; one INCR+PEXPIRE script keeps the
// window assignment atomic however many gateways are running.
type RedisStore struct {
	rdb  *redis.Client
	incr *redis.Script
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{
		rdb:  rdb,
		incr: redis.NewScript(luaIncrWindow),
	}
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	return s.incr.Run(ctx, s.rdb, []string{key}, window.Milliseconds()).Int64()
}
