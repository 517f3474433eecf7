package conveyor

import (
	"context"
	"log/slog"
	"time"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// Storer is the minimal persistence interface held by the Orchestrator.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles. Implementations satisfy store.Store which embeds all
// subsystem stores.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Queuer is the minimal task queue interface held by the Orchestrator.
// The full queue.Queue interface is used in the runtime layer.
type Queuer interface {
	Connect(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// poolRunner is an internal interface for worker pool lifecycle.
type poolRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// hookEmitter is an internal interface for lifecycle hook shutdown events.
type hookEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Orchestrator is the central coordinator for pipeline execution: task
// dispatch, workflow runs, approvals, and checkpointing.
//
// Create one with New() and functional options. The Orchestrator holds
// references to subsystem components via internal interfaces to avoid
// import cycles. Use runtime.Build() to wire everything together.
type Orchestrator struct {
	config Config
	logger *slog.Logger
	store  Storer
	queue  Queuer
	hooks  hookEmitter
	pool   poolRunner

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Orchestrator with the given options.
func New(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Logger returns the orchestrator's logger.
func (o *Orchestrator) Logger() *slog.Logger { return o.logger }

// Store returns the orchestrator's store.
func (o *Orchestrator) Store() Storer { return o.store }

// Queue returns the orchestrator's task queue.
func (o *Orchestrator) Queue() Queuer { return o.queue }

// Config returns a copy of the orchestrator's configuration.
func (o *Orchestrator) Config() Config { return o.config }

// SetPool sets the worker pool (called by the runtime package).
func (o *Orchestrator) SetPool(p poolRunner) { o.pool = p }

// SetHooks sets the lifecycle hook emitter (called by the runtime package).
func (o *Orchestrator) SetHooks(h hookEmitter) { o.hooks = h }

// Start begins task processing.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.pool == nil {
		return ErrNoQueue
	}
	if err := o.pool.Start(ctx); err != nil {
		return err
	}
	o.started = true
	return nil
}

// Stop gracefully shuts down the orchestrator.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if o.pool != nil && o.started {
		if err := o.pool.Stop(ctx); err != nil {
			o.logger.Error("pool stop error", "error", err)
		}
	}
	if o.hooks != nil {
		o.hooks.EmitShutdown(ctx)
	}
	if o.queue != nil {
		if err := o.queue.Disconnect(ctx); err != nil {
			o.logger.Error("queue disconnect error", "error", err)
		}
	}
	if o.store != nil {
		return o.store.Close()
	}
	return nil
}

// WithConfig replaces the entire configuration.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) error {
		o.config = cfg
		return nil
	}
}

// WithConcurrency sets the maximum number of concurrent task processors.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) error {
		o.config.Concurrency = n
		return nil
	}
}

// WithQueues sets the queue keys the worker pool will poll.
func WithQueues(queues ...string) Option {
	return func(o *Orchestrator) error {
		o.config.Queues = queues
		return nil
	}
}

// WithPollInterval sets the queue polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) error {
		o.config.PollInterval = d
		return nil
	}
}

// WithMaxReflectionRounds bounds rework/reflection loops.
func WithMaxReflectionRounds(n int) Option {
	return func(o *Orchestrator) error {
		o.config.MaxReflectionRounds = n
		return nil
	}
}

// WithStore sets the persistence backend.
func WithStore(s Storer) Option {
	return func(o *Orchestrator) error {
		o.store = s
		return nil
	}
}

// WithQueue sets the task queue backend.
func WithQueue(q Queuer) Option {
	return func(o *Orchestrator) error {
		o.queue = q
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) error {
		o.logger = l
		return nil
	}
}
