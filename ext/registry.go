package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/conveyordev/conveyor/breaker"
	"github.com/conveyordev/conveyor/task"
	"github.com/conveyordev/conveyor/workflow"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type taskEnqueuedEntry struct {
	name string
	hook TaskEnqueued
}

type taskStartedEntry struct {
	name string
	hook TaskStarted
}

type taskCompletedEntry struct {
	name string
	hook TaskCompleted
}

type taskFailedEntry struct {
	name string
	hook TaskFailed
}

type taskCancelledEntry struct {
	name string
	hook TaskCancelled
}

type workflowStartedEntry struct {
	name string
	hook WorkflowStarted
}

type stageCompletedEntry struct {
	name string
	hook StageCompleted
}

type stageFailedEntry struct {
	name string
	hook StageFailed
}

type workflowSuspendedEntry struct {
	name string
	hook WorkflowSuspended
}

type workflowResumedEntry struct {
	name string
	hook WorkflowResumed
}

type workflowCompletedEntry struct {
	name string
	hook WorkflowCompleted
}

type workflowTerminatedEntry struct {
	name string
	hook WorkflowTerminated
}

type workflowFailedEntry struct {
	name string
	hook WorkflowFailed
}

type breakerStateChangedEntry struct {
	name string
	hook BreakerStateChanged
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	taskEnqueued        []taskEnqueuedEntry
	taskStarted         []taskStartedEntry
	taskCompleted       []taskCompletedEntry
	taskFailed          []taskFailedEntry
	taskCancelled       []taskCancelledEntry
	workflowStarted     []workflowStartedEntry
	stageCompleted      []stageCompletedEntry
	stageFailed         []stageFailedEntry
	workflowSuspended   []workflowSuspendedEntry
	workflowResumed     []workflowResumedEntry
	workflowCompleted   []workflowCompletedEntry
	workflowTerminated  []workflowTerminatedEntry
	workflowFailed      []workflowFailedEntry
	breakerStateChanged []breakerStateChangedEntry
	shutdown            []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(TaskEnqueued); ok {
		r.taskEnqueued = append(r.taskEnqueued, taskEnqueuedEntry{name, h})
	}
	if h, ok := e.(TaskStarted); ok {
		r.taskStarted = append(r.taskStarted, taskStartedEntry{name, h})
	}
	if h, ok := e.(TaskCompleted); ok {
		r.taskCompleted = append(r.taskCompleted, taskCompletedEntry{name, h})
	}
	if h, ok := e.(TaskFailed); ok {
		r.taskFailed = append(r.taskFailed, taskFailedEntry{name, h})
	}
	if h, ok := e.(TaskCancelled); ok {
		r.taskCancelled = append(r.taskCancelled, taskCancelledEntry{name, h})
	}
	if h, ok := e.(WorkflowStarted); ok {
		r.workflowStarted = append(r.workflowStarted, workflowStartedEntry{name, h})
	}
	if h, ok := e.(StageCompleted); ok {
		r.stageCompleted = append(r.stageCompleted, stageCompletedEntry{name, h})
	}
	if h, ok := e.(StageFailed); ok {
		r.stageFailed = append(r.stageFailed, stageFailedEntry{name, h})
	}
	if h, ok := e.(WorkflowSuspended); ok {
		r.workflowSuspended = append(r.workflowSuspended, workflowSuspendedEntry{name, h})
	}
	if h, ok := e.(WorkflowResumed); ok {
		r.workflowResumed = append(r.workflowResumed, workflowResumedEntry{name, h})
	}
	if h, ok := e.(WorkflowCompleted); ok {
		r.workflowCompleted = append(r.workflowCompleted, workflowCompletedEntry{name, h})
	}
	if h, ok := e.(WorkflowTerminated); ok {
		r.workflowTerminated = append(r.workflowTerminated, workflowTerminatedEntry{name, h})
	}
	if h, ok := e.(WorkflowFailed); ok {
		r.workflowFailed = append(r.workflowFailed, workflowFailedEntry{name, h})
	}
	if h, ok := e.(BreakerStateChanged); ok {
		r.breakerStateChanged = append(r.breakerStateChanged, breakerStateChangedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Task event emitters
// ──────────────────────────────────────────────────

// EmitTaskEnqueued notifies all extensions that implement TaskEnqueued.
func (r *Registry) EmitTaskEnqueued(ctx context.Context, t *task.Task) {
	for _, e := range r.taskEnqueued {
		if err := e.hook.OnTaskEnqueued(ctx, t); err != nil {
			r.logHookError("OnTaskEnqueued", e.name, err)
		}
	}
}

// EmitTaskStarted notifies all extensions that implement TaskStarted.
func (r *Registry) EmitTaskStarted(ctx context.Context, t *task.Task) {
	for _, e := range r.taskStarted {
		if err := e.hook.OnTaskStarted(ctx, t); err != nil {
			r.logHookError("OnTaskStarted", e.name, err)
		}
	}
}

// EmitTaskCompleted notifies all extensions that implement TaskCompleted.
func (r *Registry) EmitTaskCompleted(ctx context.Context, t *task.Task, res *task.Result, elapsed time.Duration) {
	for _, e := range r.taskCompleted {
		if err := e.hook.OnTaskCompleted(ctx, t, res, elapsed); err != nil {
			r.logHookError("OnTaskCompleted", e.name, err)
		}
	}
}

// EmitTaskFailed notifies all extensions that implement TaskFailed.
func (r *Registry) EmitTaskFailed(ctx context.Context, t *task.Task, taskErr error) {
	for _, e := range r.taskFailed {
		if err := e.hook.OnTaskFailed(ctx, t, taskErr); err != nil {
			r.logHookError("OnTaskFailed", e.name, err)
		}
	}
}

// EmitTaskCancelled notifies all extensions that implement TaskCancelled.
func (r *Registry) EmitTaskCancelled(ctx context.Context, t *task.Task) {
	for _, e := range r.taskCancelled {
		if err := e.hook.OnTaskCancelled(ctx, t); err != nil {
			r.logHookError("OnTaskCancelled", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Workflow event emitters
// ──────────────────────────────────────────────────

// EmitWorkflowStarted notifies all extensions that implement WorkflowStarted.
func (r *Registry) EmitWorkflowStarted(ctx context.Context, st *workflow.State) {
	for _, e := range r.workflowStarted {
		if err := e.hook.OnWorkflowStarted(ctx, st); err != nil {
			r.logHookError("OnWorkflowStarted", e.name, err)
		}
	}
}

// EmitStageCompleted notifies all extensions that implement StageCompleted.
func (r *Registry) EmitStageCompleted(ctx context.Context, st *workflow.State, stage string, elapsed time.Duration) {
	for _, e := range r.stageCompleted {
		if err := e.hook.OnStageCompleted(ctx, st, stage, elapsed); err != nil {
			r.logHookError("OnStageCompleted", e.name, err)
		}
	}
}

// EmitStageFailed notifies all extensions that implement StageFailed.
func (r *Registry) EmitStageFailed(ctx context.Context, st *workflow.State, stage string, stageErr error) {
	for _, e := range r.stageFailed {
		if err := e.hook.OnStageFailed(ctx, st, stage, stageErr); err != nil {
			r.logHookError("OnStageFailed", e.name, err)
		}
	}
}

// EmitWorkflowSuspended notifies all extensions that implement WorkflowSuspended.
func (r *Registry) EmitWorkflowSuspended(ctx context.Context, st *workflow.State, stage string) {
	for _, e := range r.workflowSuspended {
		if err := e.hook.OnWorkflowSuspended(ctx, st, stage); err != nil {
			r.logHookError("OnWorkflowSuspended", e.name, err)
		}
	}
}

// EmitWorkflowResumed notifies all extensions that implement WorkflowResumed.
func (r *Registry) EmitWorkflowResumed(ctx context.Context, st *workflow.State, stage string) {
	for _, e := range r.workflowResumed {
		if err := e.hook.OnWorkflowResumed(ctx, st, stage); err != nil {
			r.logHookError("OnWorkflowResumed", e.name, err)
		}
	}
}

// EmitWorkflowCompleted notifies all extensions that implement WorkflowCompleted.
func (r *Registry) EmitWorkflowCompleted(ctx context.Context, st *workflow.State, elapsed time.Duration) {
	for _, e := range r.workflowCompleted {
		if err := e.hook.OnWorkflowCompleted(ctx, st, elapsed); err != nil {
			r.logHookError("OnWorkflowCompleted", e.name, err)
		}
	}
}

// EmitWorkflowTerminated notifies all extensions that implement WorkflowTerminated.
func (r *Registry) EmitWorkflowTerminated(ctx context.Context, st *workflow.State, reason string) {
	for _, e := range r.workflowTerminated {
		if err := e.hook.OnWorkflowTerminated(ctx, st, reason); err != nil {
			r.logHookError("OnWorkflowTerminated", e.name, err)
		}
	}
}

// EmitWorkflowFailed notifies all extensions that implement WorkflowFailed.
func (r *Registry) EmitWorkflowFailed(ctx context.Context, st *workflow.State, wfErr error) {
	for _, e := range r.workflowFailed {
		if err := e.hook.OnWorkflowFailed(ctx, st, wfErr); err != nil {
			r.logHookError("OnWorkflowFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other emitters
// ──────────────────────────────────────────────────

// EmitBreakerStateChanged notifies all extensions that implement
// BreakerStateChanged.
func (r *Registry) EmitBreakerStateChanged(ctx context.Context, change breaker.StateChange) {
	for _, e := range r.breakerStateChanged {
		if err := e.hook.OnBreakerStateChanged(ctx, change); err != nil {
			r.logHookError("OnBreakerStateChanged", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a hook failure without interrupting the emit loop.
// Extension errors never affect orchestration.
func (r *Registry) logHookError(hook, extension string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extension),
		slog.String("error", err.Error()),
	)
}
