package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisPopTimeout bounds each blocking pop so context cancellation is
// observed promptly.
const redisPopTimeout = 5 * time.Second

// RedisQueue implements both sides of the channel on a Redis list. Unlike the
// Postgres channel, signals pushed while no worker is subscribed stay queued,
// so redelivery is at-least-once by construction.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue wraps an established client with a named list key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

// Notify pushes the job id onto the list.
func (q *RedisQueue) Notify(ctx context.Context, jobID string) error {
	if err := q.client.LPush(ctx, q.key, jobID).Err(); err != nil {
		return fmt.Errorf("lpush %q: %w", q.key, err)
	}
	return nil
}

// Receive pops the next job id, blocking until one arrives or ctx is
// cancelled.
func (q *RedisQueue) Receive(ctx context.Context) (string, error) {
	for {
		vals, err := q.client.BRPop(ctx, redisPopTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("brpop %q: %w", q.key, err)
		}
		// BRPop returns [key, value].
		if len(vals) != 2 {
			continue
		}
		return vals[1], nil
	}
}

// Close releases the underlying client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

var (
	_ Notifier   = (*RedisQueue)(nil)
	_ Subscriber = (*RedisQueue)(nil)
)
