// Package memory implements queue.Queue with in-process data structures.
// Nothing is persisted and nothing is shared across nodes; it is intended
// for tests and single-process deployments.
//
// Usage:
//
//	q := memory.New()
//	if err := q.Connect(ctx); err != nil { ... }
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/conveyordev/conveyor"
	"github.com/conveyordev/conveyor/queue"
	"github.com/conveyordev/conveyor/task"
)

// Compile-time interface check.
var _ queue.Queue = (*Queue)(nil)

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

// Queue is an in-process queue.Queue implementation. It is safe for
// concurrent use.
type Queue struct {
	logger       *slog.Logger
	pollInterval time.Duration

	mu        sync.Mutex
	connected bool
	tasks     map[string][]*task.Task       // queue name → pending tasks
	results   map[string][]*task.Result     // handler ID → undelivered results
	cancelled map[string]bool               // task ID → cooperative flag
	streams   map[string][]*queue.StreamUpdate // task ID → undelivered updates

	resultSubs *queue.Subscriptions
	streamSubs *queue.Subscriptions
}

// New creates an in-process queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		logger:       slog.Default(),
		pollInterval: queue.DefaultPollInterval,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Connect initializes internal state. It may be called again after
// Disconnect.
func (q *Queue) Connect(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.connected = true
	q.tasks = make(map[string][]*task.Task)
	q.results = make(map[string][]*task.Result)
	q.cancelled = make(map[string]bool)
	q.streams = make(map[string][]*queue.StreamUpdate)
	q.resultSubs = queue.NewSubscriptions(q.pollInterval)
	q.streamSubs = queue.NewSubscriptions(q.pollInterval)
	return nil
}

// Disconnect stops all poll loops and drops all queued data.
func (q *Queue) Disconnect(_ context.Context) error {
	q.mu.Lock()
	if !q.connected {
		q.mu.Unlock()
		return nil
	}
	q.connected = false
	resultSubs, streamSubs := q.resultSubs, q.streamSubs
	q.tasks, q.results, q.cancelled, q.streams = nil, nil, nil, nil
	q.mu.Unlock()

	resultSubs.StopAll()
	streamSubs.StopAll()
	return nil
}

// HealthCheck reports whether Connect has been called.
func (q *Queue) HealthCheck(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.connected {
		return conveyor.ErrNoQueue
	}
	return nil
}

// PublishTask enqueues a task. Priority tasks go to the front of the
// list, plain tasks to the back.
func (q *Queue) PublishTask(_ context.Context, name string, t *task.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.connected {
		return conveyor.ErrNoQueue
	}

	if t.Priority > 0 {
		q.tasks[name] = append([]*task.Task{t}, q.tasks[name]...)
	} else {
		q.tasks[name] = append(q.tasks[name], t)
	}
	return nil
}

// GetNextTask pops the front of the named queue, or (nil, nil) when empty.
func (q *Queue) GetNextTask(_ context.Context, name string) (*task.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.connected {
		return nil, conveyor.ErrNoQueue
	}

	pending := q.tasks[name]
	if len(pending) == 0 {
		return nil, nil
	}
	t := pending[0]
	q.tasks[name] = pending[1:]
	return t, nil
}

// PublishResult records a result for delivery to the handler's
// subscribers.
func (q *Queue) PublishResult(_ context.Context, res *task.Result) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.connected {
		return conveyor.ErrNoQueue
	}

	q.results[res.HandlerID] = append(q.results[res.HandlerID], res)
	return nil
}

// SubscribeToResults starts a poll loop delivering pending results for
// the handler to fn.
func (q *Queue) SubscribeToResults(handlerID string, fn queue.ResultFunc) error {
	q.mu.Lock()
	if !q.connected {
		q.mu.Unlock()
		return conveyor.ErrNoQueue
	}
	subs := q.resultSubs
	q.mu.Unlock()

	return subs.Start(handlerID, func() {
		for _, res := range q.drainResults(handlerID) {
			fn(res)
		}
	})
}

// Unsubscribe stops the result poll loop for the handler.
func (q *Queue) Unsubscribe(handlerID string) error {
	q.mu.Lock()
	subs := q.resultSubs
	q.mu.Unlock()
	if subs == nil {
		return conveyor.ErrNotSubscribed
	}
	return subs.Stop(handlerID)
}

func (q *Queue) drainResults(handlerID string) []*task.Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.connected {
		return nil
	}
	pending := q.results[handlerID]
	delete(q.results, handlerID)
	return pending
}

// PublishCancellation sets the cooperative cancellation flag for a task.
func (q *Queue) PublishCancellation(_ context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.connected {
		return conveyor.ErrNoQueue
	}
	q.cancelled[taskID] = true
	return nil
}

// IsCancelled reports whether a cancellation flag is set for the task.
func (q *Queue) IsCancelled(_ context.Context, taskID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.connected {
		return false, conveyor.ErrNoQueue
	}
	return q.cancelled[taskID], nil
}

// PublishStreamUpdate records a progress event for a running task.
func (q *Queue) PublishStreamUpdate(_ context.Context, upd *queue.StreamUpdate) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.connected {
		return conveyor.ErrNoQueue
	}
	q.streams[upd.TaskID] = append(q.streams[upd.TaskID], upd)
	return nil
}

// SubscribeToStream starts a poll loop delivering progress updates for
// the task to fn.
func (q *Queue) SubscribeToStream(taskID string, fn queue.StreamFunc) error {
	q.mu.Lock()
	if !q.connected {
		q.mu.Unlock()
		return conveyor.ErrNoQueue
	}
	subs := q.streamSubs
	q.mu.Unlock()

	return subs.Start(taskID, func() {
		for _, upd := range q.drainStream(taskID) {
			fn(upd)
		}
	})
}

// UnsubscribeFromStream stops the stream poll loop for the task.
func (q *Queue) UnsubscribeFromStream(taskID string) error {
	q.mu.Lock()
	subs := q.streamSubs
	q.mu.Unlock()
	if subs == nil {
		return conveyor.ErrNotSubscribed
	}
	return subs.Stop(taskID)
}

func (q *Queue) drainStream(taskID string) []*queue.StreamUpdate {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.connected {
		return nil
	}
	pending := q.streams[taskID]
	delete(q.streams, taskID)
	return pending
}

// Depth returns the number of pending tasks on the named queue. Intended
// for tests and introspection.
func (q *Queue) Depth(name string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks[name])
}
