// Package redis implements queue.Queue over Redis Lists. Tasks, results,
// and stream updates are JSON-encoded list entries; cancellation flags
// are plain keys. Every queue key carries a TTL refreshed on write, so
// abandoned queues are garbage-collected by Redis itself.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	q := redisqueue.New(client)
//	if err := q.Connect(ctx); err != nil { ... }
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/conveyordev/conveyor/queue"
	"github.com/conveyordev/conveyor/task"
)

// Compile-time interface check.
var _ queue.Queue = (*Queue)(nil)

// DefaultTTL is the queue-expiry TTL applied when none is configured.
const DefaultTTL = 24 * time.Hour

// Option configures the Queue.
type Option func(*Queue)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithPollInterval sets the subscription poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) { q.pollInterval = d }
}

// WithTTL sets the expiry applied to queue keys on every write.
func WithTTL(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.ttl = d
		}
	}
}

// Queue implements queue.Queue backed by Redis. It is safe for
// concurrent use.
type Queue struct {
	client       goredis.Cmdable
	logger       *slog.Logger
	pollInterval time.Duration
	ttl          time.Duration

	resultSubs *queue.Subscriptions
	streamSubs *queue.Subscriptions
}

// New creates a Redis-backed queue. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Queue {
	q := &Queue{
		client:       client,
		logger:       slog.Default(),
		pollInterval: queue.DefaultPollInterval,
		ttl:          DefaultTTL,
	}
	for _, o := range opts {
		o(q)
	}
	q.resultSubs = queue.NewSubscriptions(q.pollInterval)
	q.streamSubs = queue.NewSubscriptions(q.pollInterval)
	return q
}

// Connect verifies the Redis connection is alive.
func (q *Queue) Connect(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("conveyor/redis: connect: %w", err)
	}
	return nil
}

// Disconnect stops all poll loops. The caller owns the Redis client
// lifecycle.
func (q *Queue) Disconnect(_ context.Context) error {
	q.resultSubs.StopAll()
	q.streamSubs.StopAll()
	return nil
}

// HealthCheck verifies the Redis connection is alive.
func (q *Queue) HealthCheck(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("conveyor/redis: health check: %w", err)
	}
	return nil
}

// PublishTask enqueues a task on the named queue's list. Priority tasks
// LPUSH to the front, plain tasks RPUSH to the back. The queue key's TTL
// is refreshed on every publish.
func (q *Queue) PublishTask(ctx context.Context, name string, t *task.Task) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("conveyor/redis: marshal task: %w", err)
	}

	key := taskQueueKey(name)
	pipe := q.client.TxPipeline()
	if t.Priority > 0 {
		pipe.LPush(ctx, key, payload)
	} else {
		pipe.RPush(ctx, key, payload)
	}
	pipe.Expire(ctx, key, q.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conveyor/redis: publish task: %w", err)
	}
	return nil
}

// GetNextTask pops the front of the named queue, or (nil, nil) when empty.
func (q *Queue) GetNextTask(ctx context.Context, name string) (*task.Task, error) {
	payload, err := q.client.LPop(ctx, taskQueueKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("conveyor/redis: get next task: %w", err)
	}

	var t task.Task
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, fmt.Errorf("conveyor/redis: unmarshal task: %w", err)
	}
	return &t, nil
}

// PublishResult records a result on the handler's result list.
func (q *Queue) PublishResult(ctx context.Context, res *task.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("conveyor/redis: marshal result: %w", err)
	}

	key := resultsKey(res.HandlerID)
	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, q.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conveyor/redis: publish result: %w", err)
	}
	return nil
}

// SubscribeToResults starts a poll loop delivering results for the
// handler to fn.
func (q *Queue) SubscribeToResults(handlerID string, fn queue.ResultFunc) error {
	return q.resultSubs.Start(handlerID, func() {
		ctx := context.Background()
		for {
			payload, err := q.client.LPop(ctx, resultsKey(handlerID)).Bytes()
			if err != nil {
				if !errors.Is(err, goredis.Nil) {
					q.logger.Error("result poll error",
						slog.String("handler_id", handlerID),
						slog.String("error", err.Error()),
					)
				}
				return
			}
			var res task.Result
			if err := json.Unmarshal(payload, &res); err != nil {
				q.logger.Error("result decode error",
					slog.String("handler_id", handlerID),
					slog.String("error", err.Error()),
				)
				continue
			}
			fn(&res)
		}
	})
}

// Unsubscribe stops the result poll loop for the handler.
func (q *Queue) Unsubscribe(handlerID string) error {
	return q.resultSubs.Stop(handlerID)
}

// PublishCancellation sets the cooperative cancellation flag for a task.
// The flag expires with the queue TTL.
func (q *Queue) PublishCancellation(ctx context.Context, taskID string) error {
	if err := q.client.Set(ctx, cancelKey(taskID), "1", q.ttl).Err(); err != nil {
		return fmt.Errorf("conveyor/redis: publish cancellation: %w", err)
	}
	return nil
}

// IsCancelled reports whether a cancellation flag is set for the task.
func (q *Queue) IsCancelled(ctx context.Context, taskID string) (bool, error) {
	n, err := q.client.Exists(ctx, cancelKey(taskID)).Result()
	if err != nil {
		return false, fmt.Errorf("conveyor/redis: is cancelled: %w", err)
	}
	return n > 0, nil
}

// PublishStreamUpdate records a progress event on the task's stream list.
func (q *Queue) PublishStreamUpdate(ctx context.Context, upd *queue.StreamUpdate) error {
	payload, err := json.Marshal(upd)
	if err != nil {
		return fmt.Errorf("conveyor/redis: marshal stream update: %w", err)
	}

	key := streamKey(upd.TaskID)
	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, q.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conveyor/redis: publish stream update: %w", err)
	}
	return nil
}

// SubscribeToStream starts a poll loop delivering progress updates for
// the task to fn.
func (q *Queue) SubscribeToStream(taskID string, fn queue.StreamFunc) error {
	return q.streamSubs.Start(taskID, func() {
		ctx := context.Background()
		for {
			payload, err := q.client.LPop(ctx, streamKey(taskID)).Bytes()
			if err != nil {
				if !errors.Is(err, goredis.Nil) {
					q.logger.Error("stream poll error",
						slog.String("task_id", taskID),
						slog.String("error", err.Error()),
					)
				}
				return
			}
			var upd queue.StreamUpdate
			if err := json.Unmarshal(payload, &upd); err != nil {
				q.logger.Error("stream decode error",
					slog.String("task_id", taskID),
					slog.String("error", err.Error()),
				)
				continue
			}
			fn(&upd)
		}
	})
}

// UnsubscribeFromStream stops the stream poll loop for the task.
func (q *Queue) UnsubscribeFromStream(taskID string) error {
	return q.streamSubs.Stop(taskID)
}
