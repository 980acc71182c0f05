package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the list holding pending tasks.
const DefaultRedisKey = "orchestra:tasks"

// RedisQueue stores tasks as JSON in a Redis list: LPUSH to enqueue,
// BRPOP to dequeue, so several processes can share one queue.
type RedisQueue struct {
	client  redis.UniversalClient
	key     string
	ownsCli bool
	closed  atomic.Bool
}

// NewRedisQueue wraps an existing client. The caller keeps ownership.
func NewRedisQueue(client redis.UniversalClient, key string) *RedisQueue {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisQueue{client: client, key: key}
}

// DialRedisQueue connects to addr and owns the resulting client.
func DialRedisQueue(ctx context.Context, opts *redis.Options, key string) (*RedisQueue, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	q := NewRedisQueue(client, key)
	q.ownsCli = true
	return q, nil
}

// Key returns the list key.
func (q *RedisQueue) Key() string { return q.key }

// Enqueue implements Queue.
func (q *RedisQueue) Enqueue(ctx context.Context, task *Task) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.ID, err)
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

// Dequeue implements Queue. Redis blocks in whole seconds, so timeouts
// below one second wait one second.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	if q.closed.Load() {
		return nil, ErrQueueClosed
	}
	if timeout < time.Second {
		timeout = time.Second
	}
	vals, err := q.client.BRPop(ctx, timeout.Truncate(time.Second), q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(vals) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of %d elements", len(vals))
	}

	var task Task
	if err := json.Unmarshal([]byte(vals[1]), &task); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &task, nil
}

// Len implements Queue.
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	return int(n), err
}

// Close implements Queue. The client is closed only when the queue dialed it.
func (q *RedisQueue) Close() error {
	if q.closed.Swap(true) {
		return nil
	}
	if q.ownsCli {
		return q.client.Close()
	}
	return nil
}
