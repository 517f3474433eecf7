// Package worker provides the task execution engine — an Executor that
// runs registered stage handlers through middleware, circuit breaker, and
// retry, and a Pool that manages concurrent worker goroutines polling the
// task queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/conveyordev/conveyor"
	"github.com/conveyordev/conveyor/breaker"
	"github.com/conveyordev/conveyor/ext"
	"github.com/conveyordev/conveyor/middleware"
	"github.com/conveyordev/conveyor/queue"
	"github.com/conveyordev/conveyor/retry"
	"github.com/conveyordev/conveyor/task"
)

// DefaultCancelPollInterval is how often a running task's cooperative
// cancellation flag is refreshed from the queue.
const DefaultCancelPollInterval = 250 * time.Millisecond

// Executor runs a single task through the middleware chain and the
// registered handler, wrapped by the handler's circuit breaker and the
// retry policy. It emits lifecycle events and publishes the result and
// stream updates back to the queue.
type Executor struct {
	registry   *task.Registry
	extensions *ext.Registry
	breakers   *breaker.Registry
	queue      queue.Queue
	retryCfg   retry.Config
	mw         middleware.Middleware
	logger     *slog.Logger

	cancelPollInterval time.Duration
}

// NewExecutor creates an Executor. The queue may be nil for direct
// execution without result delivery or cancellation polling.
func NewExecutor(
	registry *task.Registry,
	extensions *ext.Registry,
	breakers *breaker.Registry,
	q queue.Queue,
	retryCfg retry.Config,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry:           registry,
		extensions:         extensions,
		breakers:           breakers,
		queue:              q,
		retryCfg:           retryCfg,
		mw:                 middleware.Chain(mws...),
		logger:             logger,
		cancelPollInterval: DefaultCancelPollInterval,
	}
}

// Execute runs one task and returns its result. The error is non-nil
// only when the task could not be attempted at all (no handler
// registered); handler failures are captured into the result.
func (e *Executor) Execute(ctx context.Context, t *task.Task) (*task.Result, error) {
	handler, ok := e.registry.Get(t.HandlerID)
	if !ok {
		return nil, fmt.Errorf("worker: task %s: %w: %q", t.ID, conveyor.ErrHandlerNotFound, t.HandlerID)
	}

	e.extensions.EmitTaskStarted(ctx, t)

	cancelled := &atomic.Bool{}
	stopWatch := e.watchCancellation(ctx, t, cancelled)
	defer stopWatch()

	hctx := task.NewContext(ctx, t.ID, t.HandlerID, e.logger,
		task.WithCancelFlag(cancelled),
		task.WithProgress(e.progressSink(ctx, t)),
	)

	var out *task.Output
	var retryRes retry.Result

	start := time.Now()
	err := e.mw(ctx, t, func(ctx context.Context) error {
		br := e.breakers.Get(t.HandlerID)
		retryRes = retry.Do(ctx, e.retryCfg, func(ctx context.Context) error {
			return br.Execute(ctx, func(context.Context) error {
				o, handlerErr := handler(hctx, t.Input)
				if handlerErr != nil {
					return handlerErr
				}
				out = o
				return nil
			})
		})
		return retryRes.Err
	})
	elapsed := time.Since(start)

	res := &task.Result{
		TaskID:    t.ID,
		HandlerID: t.HandlerID,
		Status:    task.StatusSuccess,
		Metrics: &task.Metrics{
			Duration:   elapsed,
			Attempts:   max(retryRes.Attempts, 1),
			RetryDelay: retryRes.TotalDelay,
		},
	}

	switch {
	case err != nil && cancelled.Load():
		res.Status = task.StatusCancelled
		res.Error = err.Error()
	case err != nil:
		res.Status = task.StatusError
		res.Error = err.Error()
	case out != nil:
		res.Output = out.Output
		res.Error = out.Error
		if out.Status != "" {
			res.Status = out.Status
		}
	}

	switch res.Status {
	case task.StatusCancelled:
		e.extensions.EmitTaskCancelled(ctx, t)
	case task.StatusError:
		failure := err
		if failure == nil && res.Error != "" {
			failure = errors.New(res.Error)
		}
		e.extensions.EmitTaskFailed(ctx, t, failure)
	default:
		e.extensions.EmitTaskCompleted(ctx, t, res, elapsed)
	}

	e.publishResult(ctx, res)
	return res, nil
}

// watchCancellation polls the queue's cooperative cancellation flag for
// the task until the returned stop function is called.
func (e *Executor) watchCancellation(ctx context.Context, t *task.Task, flag *atomic.Bool) func() {
	if e.queue == nil {
		return func() {}
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(e.cancelPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				set, err := e.queue.IsCancelled(ctx, t.ID.String())
				if err != nil {
					continue
				}
				if set {
					flag.Store(true)
					return
				}
			}
		}
	}()

	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			close(stop)
		}
	}
}

// progressSink forwards handler progress reports as stream updates.
func (e *Executor) progressSink(ctx context.Context, t *task.Task) task.ProgressFunc {
	return func(fraction float64, message string) {
		if e.queue == nil {
			return
		}
		upd := &queue.StreamUpdate{
			TaskID:    t.ID.String(),
			HandlerID: t.HandlerID,
			Progress:  fraction,
			Message:   message,
			CreatedAt: time.Now().UTC(),
		}
		if err := e.queue.PublishStreamUpdate(ctx, upd); err != nil {
			e.logger.Warn("failed to publish stream update",
				slog.String("task_id", t.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (e *Executor) publishResult(ctx context.Context, res *task.Result) {
	if e.queue == nil {
		return
	}
	if err := e.queue.PublishResult(ctx, res); err != nil {
		e.logger.Warn("failed to publish task result",
			slog.String("task_id", res.TaskID.String()),
			slog.String("error", err.Error()),
		)
	}
}
