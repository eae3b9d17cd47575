package redis

import (
	"context"
	"fmt"
	"time"

	"outreach-controlplane/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

var Module = fx.Module("redis",
	fx.Provide(New, NewLocker),
)

// New connects to redis and fails startup when it stays unreachable; the
// scheduler lock and the dead letter queue both depend on it.
func New(lc fx.Lifecycle, c *config.Config) (*redis.Client, error) {
	log := zap.L().With(zap.String("addr", c.Redis.Addr), zap.Int("db", c.Redis.DB))

	rdb := redis.NewClient(&redis.Options{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		PoolSize:    c.Redis.PoolSize,
		PoolTimeout: c.Redis.PoolTimeout,
	})

	if err := ping(rdb, log); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	log.Info("[Redis] Connected to Redis", zap.Int("pool_size", c.Redis.PoolSize))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})

	return rdb, nil
}

func ping(rdb *redis.Client, log *zap.Logger) error {
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err = rdb.Ping(ctx).Err()
		cancel()
		if err == nil {
			return nil
		}
		log.Warn("[Redis] Redis not ready", zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(time.Duration(attempt) * connectBackoff)
	}
	return fmt.Errorf("redis unreachable after %d attempts: %w", connectAttempts, err)
}
