// Package redisqueue backs response streams with Redis lists so they can be observed
// outside the serving process.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"chatwire/pkg/channel"
)

const (
	// pollInterval bounds each BLPOP so cancellation is noticed promptly.
	pollInterval = time.Second
	defaultTTL   = 10 * time.Minute
)

// Queue is a channel.Queue stored in one Redis list.
type Queue struct {
	client *redis.Client
	key    string
	ttl    time.Duration

	mu     sync.Mutex
	closed bool
}

// New returns a queue on key. A non-positive ttl uses the default expiry.
func New(client *redis.Client, key string, ttl time.Duration) *Queue {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Queue{client: client, key: key, ttl: ttl}
}

// Factory returns a channel.QueueFactory keying each stream as prefix+streamID.
func Factory(client *redis.Client, prefix string, ttl time.Duration) channel.QueueFactory {
	return func(streamID string) (channel.Queue, error) {
		if client == nil {
			return nil, errors.New("redis client is required")
		}
		return New(client, prefix+streamID, ttl), nil
	}
}

// Key returns the Redis list key.
func (q *Queue) Key() string { return q.key }

// Put appends item to the list and refreshes its expiry.
func (q *Queue) Put(ctx context.Context, item channel.Item) error {
	if q.isClosed() {
		return channel.ErrQueueClosed
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode stream item: %w", err)
	}

	_, err = q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, q.key, payload)
		pipe.Expire(ctx, q.key, q.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("push stream item: %w", err)
	}

	return nil
}

// Get pops the oldest item, blocking until one arrives or ctx is done.
func (q *Queue) Get(ctx context.Context) (channel.Item, error) {
	for {
		if err := ctx.Err(); err != nil {
			return channel.Item{}, err
		}
		if q.isClosed() {
			return channel.Item{}, channel.ErrQueueClosed
		}

		result, err := q.client.BLPop(ctx, pollInterval, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return channel.Item{}, ctxErr
			}
			return channel.Item{}, fmt.Errorf("pop stream item: %w", err)
		}
		if len(result) != 2 {
			return channel.Item{}, fmt.Errorf("pop stream item: unexpected reply %v", result)
		}

		var item channel.Item
		if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
			return channel.Item{}, fmt.Errorf("decode stream item: %w", err)
		}
		return item, nil
	}
}

// Close deletes the list. Further puts fail with channel.ErrQueueClosed.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	if err := q.client.Del(context.Background(), q.key).Err(); err != nil {
		return fmt.Errorf("delete stream key: %w", err)
	}
	return nil
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
