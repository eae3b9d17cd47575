package redis

import (
	"context"
	"errors"
	"time"

	"outreach-controlplane/pkg/rediskey"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Locker hands out SET NX based locks that only their owner can release.
type Locker struct {
	rdb redis.UniversalClient
}

type Lock struct {
	rdb   redis.UniversalClient
	key   string
	value string
}

func NewLocker(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

func NewLockerFromClient(rdb redis.UniversalClient) *Locker {
	return &Locker{rdb: rdb}
}

func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	key := rediskey.BuildLockKey(name)
	value := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	return &Lock{rdb: l.rdb, key: key, value: value}, nil
}

func (lock *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, lock.rdb, []string{lock.key}, lock.value).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
