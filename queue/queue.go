package queue

import (
	"context"
	"time"

	"github.com/conveyordev/conveyor/task"
)

// DefaultPollInterval is the subscription poll cadence backends use when
// none is configured.
const DefaultPollInterval = time.Second

// ResultFunc receives task results delivered by a result subscription.
type ResultFunc func(res *task.Result)

// StreamFunc receives progress updates delivered by a stream subscription.
type StreamFunc func(upd *StreamUpdate)

// StreamUpdate is a fine-grained progress event published by a running
// task, delivered to stream subscribers on the poll loop.
type StreamUpdate struct {
	TaskID    string    `json:"task_id"`
	HandlerID string    `json:"handler_id,omitempty"`
	Progress  float64   `json:"progress"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Queue is the task queue contract. Backends are interchangeable; the
// orchestration layers never depend on a concrete implementation.
//
// GetNextTask returns (nil, nil) when the queue is empty so poll loops
// can distinguish "nothing to do" from backend failures.
type Queue interface {
	// Connect establishes the backend connection. It must be called
	// before any other operation.
	Connect(ctx context.Context) error

	// Disconnect stops all poll loops and releases the connection.
	Disconnect(ctx context.Context) error

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// PublishTask enqueues a task on the named queue. Priority tasks
	// enqueue at the front of the list, plain tasks at the back.
	PublishTask(ctx context.Context, queue string, t *task.Task) error

	// GetNextTask pops the task at the front of the named queue, or
	// (nil, nil) when the queue is empty.
	GetNextTask(ctx context.Context, queue string) (*task.Task, error)

	// PublishResult records a completed task's result for delivery to
	// result subscribers of the task's handler.
	PublishResult(ctx context.Context, res *task.Result) error

	// SubscribeToResults starts a poll loop delivering results for the
	// given handler to fn. Returns conveyor.ErrAlreadySubscribed if a
	// subscription for the handler exists.
	SubscribeToResults(handlerID string, fn ResultFunc) error

	// Unsubscribe stops the result poll loop for the given handler.
	Unsubscribe(handlerID string) error

	// PublishCancellation sets the cooperative cancellation flag for a
	// task. Handlers observe it through task.Context.IsCancelled between
	// units of work; cancellation is never preemptive.
	PublishCancellation(ctx context.Context, taskID string) error

	// IsCancelled reports whether a cancellation flag is set for the task.
	IsCancelled(ctx context.Context, taskID string) (bool, error)

	// PublishStreamUpdate records a progress event for a running task.
	PublishStreamUpdate(ctx context.Context, upd *StreamUpdate) error

	// SubscribeToStream starts a poll loop delivering progress updates
	// for the given task to fn.
	SubscribeToStream(taskID string, fn StreamFunc) error

	// UnsubscribeFromStream stops the stream poll loop for the given task.
	UnsubscribeFromStream(taskID string) error
}
