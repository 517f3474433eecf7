package task

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/conveyordev/conveyor/id"
)

// Output is what a stage handler returns: a status, an opaque payload,
// and optional error text and metadata. The runtime wraps it into a
// Result with metrics attached.
type Output struct {
	Status   Status            `json:"status"`
	Output   []byte            `json:"output,omitempty"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ProgressFunc receives fine-grained progress reports from a handler:
// a completion fraction in [0,1] and a human-readable message.
type ProgressFunc func(fraction float64, message string)

// Context is the execution context handed to stage handlers. It exposes
// progress reporting, structured logging, and a non-blocking cancellation
// poll. Handlers check IsCancelled between units of work; cancellation is
// cooperative, never preemptive.
type Context struct {
	ctx       context.Context
	taskID    id.TaskID
	handlerID string
	logger    *slog.Logger
	progress  ProgressFunc
	cancelled *atomic.Bool
}

// ContextOption configures a handler Context.
type ContextOption func(*Context)

// WithProgress sets the progress sink.
func WithProgress(fn ProgressFunc) ContextOption {
	return func(c *Context) { c.progress = fn }
}

// WithCancelFlag wires an external cooperative cancellation flag, set by
// queue cancellation messages.
func WithCancelFlag(flag *atomic.Bool) ContextOption {
	return func(c *Context) { c.cancelled = flag }
}

// NewContext creates a handler execution context.
func NewContext(ctx context.Context, taskID id.TaskID, handlerID string, logger *slog.Logger, opts ...ContextOption) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Context{
		ctx:       ctx,
		taskID:    taskID,
		handlerID: handlerID,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Context returns the underlying context.Context for deadline and
// downstream-call propagation.
func (c *Context) Context() context.Context { return c.ctx }

// TaskID returns the id of the task being executed.
func (c *Context) TaskID() id.TaskID { return c.taskID }

// HandlerID returns the id of the handler executing the task.
func (c *Context) HandlerID() string { return c.handlerID }

// ReportProgress reports a completion fraction in [0,1] with a message.
// Out-of-range fractions are clamped.
func (c *Context) ReportProgress(fraction float64, message string) {
	if c.progress == nil {
		return
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	c.progress(fraction, message)
}

// Log writes a structured log line attributed to the task and handler.
func (c *Context) Log(level slog.Level, message string, attrs ...slog.Attr) {
	all := make([]slog.Attr, 0, len(attrs)+2)
	all = append(all,
		slog.String("task_id", c.taskID.String()),
		slog.String("handler_id", c.handlerID),
	)
	all = append(all, attrs...)
	c.logger.LogAttrs(c.ctx, level, message, all...)
}

// IsCancelled is a non-blocking poll of the cooperative cancellation
// flag. It also reports true once the underlying context is done.
func (c *Context) IsCancelled() bool {
	if c.cancelled != nil && c.cancelled.Load() {
		return true
	}
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}
