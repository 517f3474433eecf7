// Package ext defines the extension system for Conveyor.
// Extensions are notified of lifecycle events (task started, stage
// completed, workflow suspended, breaker tripped, etc.) and can react to
// them — logging, metrics, event persistence.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/conveyordev/conveyor/breaker"
	"github.com/conveyordev/conveyor/task"
	"github.com/conveyordev/conveyor/workflow"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Task lifecycle hooks
// ──────────────────────────────────────────────────

// TaskEnqueued is called after a task is successfully published.
type TaskEnqueued interface {
	OnTaskEnqueued(ctx context.Context, t *task.Task) error
}

// TaskStarted is called when a worker begins executing a task.
type TaskStarted interface {
	OnTaskStarted(ctx context.Context, t *task.Task) error
}

// TaskCompleted is called after a task finishes successfully.
type TaskCompleted interface {
	OnTaskCompleted(ctx context.Context, t *task.Task, res *task.Result, elapsed time.Duration) error
}

// TaskFailed is called when a task fails after exhausting its retries.
type TaskFailed interface {
	OnTaskFailed(ctx context.Context, t *task.Task, err error) error
}

// TaskCancelled is called when a handler honors the cooperative
// cancellation flag.
type TaskCancelled interface {
	OnTaskCancelled(ctx context.Context, t *task.Task) error
}

// ──────────────────────────────────────────────────
// Workflow lifecycle hooks
// ──────────────────────────────────────────────────

// WorkflowStarted is called when a workflow run begins.
type WorkflowStarted interface {
	OnWorkflowStarted(ctx context.Context, st *workflow.State) error
}

// StageCompleted is called after a workflow stage completes.
type StageCompleted interface {
	OnStageCompleted(ctx context.Context, st *workflow.State, stage string, elapsed time.Duration) error
}

// StageFailed is called when a workflow stage fails.
type StageFailed interface {
	OnStageFailed(ctx context.Context, st *workflow.State, stage string, err error) error
}

// WorkflowSuspended is called when a workflow suspends at an interrupt
// point awaiting approval.
type WorkflowSuspended interface {
	OnWorkflowSuspended(ctx context.Context, st *workflow.State, stage string) error
}

// WorkflowResumed is called when a suspended workflow resumes.
type WorkflowResumed interface {
	OnWorkflowResumed(ctx context.Context, st *workflow.State, stage string) error
}

// WorkflowCompleted is called after a workflow run finishes successfully.
type WorkflowCompleted interface {
	OnWorkflowCompleted(ctx context.Context, st *workflow.State, elapsed time.Duration) error
}

// WorkflowTerminated is called when a routing decision stops a workflow.
type WorkflowTerminated interface {
	OnWorkflowTerminated(ctx context.Context, st *workflow.State, reason string) error
}

// WorkflowFailed is called when a workflow run fails terminally.
type WorkflowFailed interface {
	OnWorkflowFailed(ctx context.Context, st *workflow.State, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// BreakerStateChanged is called when a handler's circuit breaker
// transitions.
type BreakerStateChanged interface {
	OnBreakerStateChanged(ctx context.Context, change breaker.StateChange) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
