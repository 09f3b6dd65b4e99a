package redis

import (
	"context"
	"time"

	"tenant-gateway/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("redis",
	fx.Provide(New),
)

const (
	connectAttempts = 5
	connectBackoff  = 3 * time.Second
)

// New returns nil when REDIS.ADDR is empty. The rate limiter then counts in
// process memory.
func New(lc fx.Lifecycle, c *config.Config) *redis.Client {
	if c.Redis.Addr == "" {
		zap.L().Info("[Redis] REDIS.ADDR not set, rate limiting stays in process")
		return nil
	}

	rdb := redis.NewClient(Options(c))

	log := zap.L().With(zap.String("addr", c.Redis.Addr), zap.Int("db", c.Redis.DB))
	if err := WaitReady(context.Background(), rdb, connectAttempts, connectBackoff); err != nil {
		// The limiter falls back per call, so an unreachable server is not fatal.
		log.Warn("[Redis] unreachable, rate limiting degraded to process memory", zap.Error(err))
	} else {
		log.Info("[Redis] connected")
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})

	return rdb
}

func Options(c *config.Config) *redis.Options {
	return &redis.Options{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		PoolSize:    c.Redis.PoolSize,
		PoolTimeout: c.Redis.PoolTimeout,
	}
}

// WaitReady pings until the server answers or attempts run out.
func WaitReady(ctx context.Context, rdb *redis.Client, attempts int, backoff time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = rdb.Ping(ctx).Err(); err == nil {
			return nil
		}
		zap.L().Warn("[Redis] not ready, retrying", zap.Int("attempt", i+1), zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
