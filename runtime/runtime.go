// Package runtime wires all Conveyor subsystems together. It creates the
// extension registry, handler registry, breaker registry, middleware
// chain, workflow engine, and worker pool, and provides the lifecycle
// surface: Initialize, HealthCheck, ExecuteTask, Shutdown.
//
// This package exists to break the import cycle: the root conveyor
// package defines Entity and the error taxonomy (imported by task,
// workflow, etc.) and so cannot import those packages back. The runtime
// package sits above all subsystem packages and below the application
// layer.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/conveyordev/conveyor"
	"github.com/conveyordev/conveyor/assess"
	"github.com/conveyordev/conveyor/breaker"
	"github.com/conveyordev/conveyor/engine"
	"github.com/conveyordev/conveyor/event"
	"github.com/conveyordev/conveyor/ext"
	"github.com/conveyordev/conveyor/id"
	mw "github.com/conveyordev/conveyor/middleware"
	"github.com/conveyordev/conveyor/observability"
	"github.com/conveyordev/conveyor/queue"
	"github.com/conveyordev/conveyor/retry"
	"github.com/conveyordev/conveyor/store"
	"github.com/conveyordev/conveyor/task"
	"github.com/conveyordev/conveyor/worker"
)

// Runtime wraps an Orchestrator with fully wired subsystem access.
// Use Build() to create one.
type Runtime struct {
	o          *conveyor.Orchestrator
	store      store.Store
	queue      queue.Queue
	extensions *ext.Registry
	registry   *task.Registry
	breakers   *breaker.Registry
	engine     *engine.Engine
	executor   *worker.Executor
	pool       *worker.Pool
	logger     *slog.Logger

	retryCfg   retry.Config
	breakerCfg breaker.Config
	assessor   assess.Assessor
	mws        []mw.Middleware

	// Queue subsystem.
	queueConfigs []queue.Config
	queueManager *queue.Manager

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithExtension registers an extension with the runtime.
func WithExtension(e ext.Extension) Option {
	return func(rt *Runtime) {
		rt.extensions.Register(e)
	}
}

// WithMiddleware appends middleware after the default chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(rt *Runtime) {
		rt.mws = append(rt.mws, m)
	}
}

// WithRetryConfig sets the retry policy applied to every handler call.
func WithRetryConfig(cfg retry.Config) Option {
	return func(rt *Runtime) {
		rt.retryCfg = cfg
	}
}

// WithBreakerConfig sets the circuit breaker thresholds applied to every
// handler's breaker.
func WithBreakerConfig(cfg breaker.Config) Option {
	return func(rt *Runtime) {
		rt.breakerCfg = cfg
	}
}

// WithAssessor sets the assessor used by reflection stages.
func WithAssessor(a assess.Assessor) Option {
	return func(rt *Runtime) {
		rt.assessor = a
	}
}

// WithQueueConfig registers queue-level rate limiting and concurrency
// configurations. Queues not listed have no limits.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(rt *Runtime) {
		rt.queueConfigs = append(rt.queueConfigs, configs...)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider. When set, the
// tracing middleware uses this provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(rt *Runtime) {
		rt.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider. When set, both the
// metrics middleware and the observability extension use this provider
// instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(rt *Runtime) {
		rt.meterProvider = mp
	}
}

// Build creates a Runtime from an Orchestrator. The Orchestrator's store
// must implement store.Store and its queue must implement queue.Queue.
func Build(o *conveyor.Orchestrator, opts ...Option) (*Runtime, error) {
	logger := o.Logger()

	if o.Store() == nil {
		return nil, conveyor.ErrNoStore
	}
	if o.Queue() == nil {
		return nil, conveyor.ErrNoQueue
	}

	st, ok := o.Store().(store.Store)
	if !ok {
		return nil, fmt.Errorf("conveyor: store does not implement store.Store")
	}
	q, ok := o.Queue().(queue.Queue)
	if !ok {
		return nil, fmt.Errorf("conveyor: queue does not implement queue.Queue")
	}

	rt := &Runtime{
		o:          o,
		store:      st,
		queue:      q,
		extensions: ext.NewRegistry(logger),
		registry:   task.NewRegistry(),
		breakerCfg: breaker.DefaultConfig(),
		logger:     logger,
	}

	for _, opt := range opts {
		opt(rt)
	}

	// One breaker registry shared by the engine and the executor, so a
	// handler tripped by queued tasks also fast-fails synchronous stages.
	rt.breakers = breaker.NewRegistry(rt.breakerCfg,
		breaker.WithRegistryListener(func(change breaker.StateChange) {
			rt.extensions.EmitBreakerStateChanged(context.Background(), change)
		}),
	)

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if rt.meterProvider != nil {
		meter := rt.meterProvider.Meter("github.com/conveyordev/conveyor/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	rt.extensions.Register(obsExt)

	// Register the lifecycle event recorder.
	rt.extensions.Register(event.NewRecorder(st, logger))

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if rt.tracerProvider != nil {
		tracer := rt.tracerProvider.Tracer("github.com/conveyordev/conveyor")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if rt.meterProvider != nil {
		meter := rt.meterProvider.Meter("github.com/conveyordev/conveyor")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Default middleware stack: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(rt.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, rt.mws...)

	config := o.Config()

	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithExtensions(rt.extensions),
		engine.WithBreakers(rt.breakers),
		engine.WithEventStore(st),
		engine.WithRetryConfig(rt.retryCfg),
		engine.WithMaxReflectionRounds(config.MaxReflectionRounds),
	}
	if rt.assessor != nil {
		engineOpts = append(engineOpts, engine.WithAssessor(rt.assessor))
	}
	rt.engine = engine.New(st, st, engineOpts...)

	rt.executor = worker.NewExecutor(
		rt.registry, rt.extensions, rt.breakers, q, rt.retryCfg, logger, allMws...,
	)

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(config.Concurrency),
		worker.WithPoolQueues(config.Queues),
		worker.WithPollInterval(config.PollInterval),
	}

	// Create queue manager if queue configs were provided.
	if len(rt.queueConfigs) > 0 {
		rt.queueManager = queue.NewManager(rt.queueConfigs...)
		poolOpts = append(poolOpts, worker.WithQueueManager(rt.queueManager))
	}

	rt.pool = worker.NewPool(q, rt.executor, rt.extensions, logger, poolOpts...)

	// Wire back into the Orchestrator.
	o.SetPool(rt.pool)
	o.SetHooks(rt.extensions)

	return rt, nil
}

// Register registers a typed stage handler with the runtime.
func Register[T any](rt *Runtime, def *task.Definition[T]) {
	task.RegisterDefinition(rt.registry, def)
}

// RegisterFunc registers a raw stage handler under the given id.
func (rt *Runtime) RegisterFunc(handlerID string, fn task.HandlerFunc) {
	rt.registry.RegisterFunc(handlerID, fn)
}

// Initialize connects the queue and persistence backends and runs schema
// migrations. It must be called before Start or ExecuteTask; a failure
// here is fatal to the runtime.
func (rt *Runtime) Initialize(ctx context.Context) error {
	if err := rt.queue.Connect(ctx); err != nil {
		return fmt.Errorf("runtime: connect queue: %w", err)
	}
	if err := rt.store.Migrate(ctx); err != nil {
		return fmt.Errorf("runtime: migrate store: %w", err)
	}
	if err := rt.store.Ping(ctx); err != nil {
		return fmt.Errorf("runtime: ping store: %w", err)
	}
	return nil
}

// Health is an aggregated health report. Open breakers mark the runtime
// unhealthy without failing it: the affected handlers fast-fail while
// everything else keeps running.
type Health struct {
	Store        error
	Queue        error
	OpenHandlers []string
}

// Healthy reports whether every subsystem is healthy and no handler
// breaker is open.
func (h Health) Healthy() bool {
	return h.Store == nil && h.Queue == nil && len(h.OpenHandlers) == 0
}

// HealthCheck aggregates persistence health, queue health, and
// per-handler circuit state.
func (rt *Runtime) HealthCheck(ctx context.Context) Health {
	h := Health{
		Store: rt.store.Ping(ctx),
		Queue: rt.queue.HealthCheck(ctx),
	}
	for _, s := range rt.breakers.Snapshots() {
		if s.State == breaker.StateOpen {
			h.OpenHandlers = append(h.OpenHandlers, s.HandlerID)
		}
	}
	return h
}

// ExecuteTask runs a single task synchronously through the middleware
// chain, breaker, and retry policy, and returns its result.
func (rt *Runtime) ExecuteTask(ctx context.Context, t *task.Task) (*task.Result, error) {
	return rt.executor.Execute(ctx, t)
}

// Enqueue marshals a typed input, creates a task addressed to the given
// handler, and publishes it on the named queue.
func Enqueue[T any](ctx context.Context, rt *Runtime, queueName, handlerID string, input T) (*task.Task, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("runtime: marshal input for handler %q: %w", handlerID, err)
	}
	return rt.EnqueueRaw(ctx, queueName, handlerID, data)
}

// EnqueueRaw enqueues a task with a pre-serialized input.
func (rt *Runtime) EnqueueRaw(ctx context.Context, queueName, handlerID string, input []byte) (*task.Task, error) {
	t := &task.Task{
		Entity:    conveyor.NewEntity(),
		ID:        id.NewTaskID(),
		HandlerID: handlerID,
		Input:     input,
		Timestamp: time.Now().UTC(),
	}
	if err := rt.queue.PublishTask(ctx, queueName, t); err != nil {
		return nil, fmt.Errorf("runtime: enqueue task for handler %q: %w", handlerID, err)
	}
	rt.extensions.EmitTaskEnqueued(ctx, t)
	return t, nil
}

// Start begins task processing by starting the worker pool.
func (rt *Runtime) Start(ctx context.Context) error {
	return rt.o.Start(ctx)
}

// Shutdown stops the worker pool, cancelling in-flight tasks
// cooperatively once the configured shutdown timeout elapses, then
// disconnects the queue and closes the store.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	if timeout := rt.o.Config().ShutdownTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return rt.o.Stop(ctx)
}

// Engine returns the workflow engine.
func (rt *Runtime) Engine() *engine.Engine { return rt.engine }

// Extensions returns the extension registry.
func (rt *Runtime) Extensions() *ext.Registry { return rt.extensions }

// Registry returns the stage handler registry.
func (rt *Runtime) Registry() *task.Registry { return rt.registry }

// Breakers returns the shared breaker registry.
func (rt *Runtime) Breakers() *breaker.Registry { return rt.breakers }

// Pool returns the worker pool.
func (rt *Runtime) Pool() *worker.Pool { return rt.pool }

// QueueManager returns the queue manager, or nil if no queue configs
// were provided.
func (rt *Runtime) QueueManager() *queue.Manager { return rt.queueManager }

// Orchestrator returns the underlying Orchestrator.
func (rt *Runtime) Orchestrator() *conveyor.Orchestrator { return rt.o }
