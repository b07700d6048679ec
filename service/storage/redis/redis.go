// Package redis owns the process-wide Redis client shared by the throttle
// counters and the presence mirror.
package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

var (
	mu     sync.Mutex
	client *redis.Client
)

// InitRedis dials and pings once; subsequent calls are no-ops.
func InitRedis(c Config) error {
	mu.Lock()
	defer mu.Unlock()
	if client != nil {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return err
	}
	client = rdb
	return nil
}

// GetRedis returns the shared client; panics when InitRedis was never called.
func GetRedis() *redis.Client {
	mu.Lock()
	defer mu.Unlock()
	if client == nil {
		panic(errors.New("redis: InitRedis not called"))
	}
	return client
}

func CloseRedis() error {
	mu.Lock()
	defer mu.Unlock()
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}
