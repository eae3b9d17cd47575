package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"outreach-controlplane/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("deadletter",
	fx.Provide(
		fx.Annotate(NewRedisQueue, fx.As(new(Queue))),
	),
)

// Entry is a write that could not be committed to the primary store.
type Entry struct {
	Kind      string          `json:"kind"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	CreatedAt time.Time       `json:"created_at"`
}

type Queue interface {
	Push(ctx context.Context, e Entry) error
}

type RedisQueue struct {
	rdb    redis.UniversalClient
	key    string
	maxLen int64
}

func NewRedisQueue(rdb *redis.Client, cfg *config.Config) *RedisQueue {
	return NewRedisQueueFromClient(rdb, cfg.DeadLetter.Key, cfg.DeadLetter.MaxLen)
}

func NewRedisQueueFromClient(rdb redis.UniversalClient, key string, maxLen int64) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: key, maxLen: maxLen}
}

// Push prepends the entry and trims the list to maxLen.
func (q *RedisQueue) Push(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.LPush(ctx, q.key, b)
	if q.maxLen > 0 {
		pipe.LTrim(ctx, q.key, 0, q.maxLen-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push dead letter: %w", err)
	}
	return nil
}

// List returns up to n newest entries.
func (q *RedisQueue) List(ctx context.Context, n int64) ([]Entry, error) {
	raw, err := q.rdb.LRange(ctx, q.key, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("decode dead letter: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}
