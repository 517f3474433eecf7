package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/conveyordev/conveyor/breaker"
	"github.com/conveyordev/conveyor/ext"
	"github.com/conveyordev/conveyor/task"
	"github.com/conveyordev/conveyor/workflow"
)

// Compile-time interface checks.
var (
	_ ext.Extension           = (*Recorder)(nil)
	_ ext.TaskEnqueued        = (*Recorder)(nil)
	_ ext.TaskStarted         = (*Recorder)(nil)
	_ ext.TaskCompleted       = (*Recorder)(nil)
	_ ext.TaskFailed          = (*Recorder)(nil)
	_ ext.TaskCancelled       = (*Recorder)(nil)
	_ ext.WorkflowStarted     = (*Recorder)(nil)
	_ ext.StageCompleted      = (*Recorder)(nil)
	_ ext.StageFailed         = (*Recorder)(nil)
	_ ext.WorkflowSuspended   = (*Recorder)(nil)
	_ ext.WorkflowResumed     = (*Recorder)(nil)
	_ ext.WorkflowCompleted   = (*Recorder)(nil)
	_ ext.WorkflowTerminated  = (*Recorder)(nil)
	_ ext.WorkflowFailed      = (*Recorder)(nil)
	_ ext.BreakerStateChanged = (*Recorder)(nil)
)

// Recorder is an extension that appends every lifecycle transition to
// the event log. Register it to get a persistent, queryable audit trail
// of task executions, stage completions, suspensions, and breaker trips.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder creates a Recorder persisting through the given store.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Name implements ext.Extension.
func (r *Recorder) Name() string { return "event-recorder" }

// append persists one event. A store failure never fails the calling
// lifecycle hook; it is logged and dropped.
func (r *Recorder) append(ctx context.Context, evt *Event) error {
	if err := r.store.AppendEvent(ctx, evt); err != nil {
		r.logger.Warn("event: failed to append lifecycle event",
			"type", evt.Type,
			"workflow_id", evt.WorkflowID,
			"error", err,
		)
	}
	return nil
}

// ── Task lifecycle hooks ─────────────────────────────

// OnTaskEnqueued implements ext.TaskEnqueued.
func (r *Recorder) OnTaskEnqueued(ctx context.Context, t *task.Task) error {
	evt := New(TypeTaskEnqueued)
	evt.TaskID = t.ID
	evt.WorkflowID = t.WorkflowID
	evt.HandlerID = t.HandlerID
	return r.append(ctx, evt)
}

// OnTaskStarted implements ext.TaskStarted.
func (r *Recorder) OnTaskStarted(ctx context.Context, t *task.Task) error {
	evt := New(TypeTaskStarted)
	evt.TaskID = t.ID
	evt.WorkflowID = t.WorkflowID
	evt.HandlerID = t.HandlerID
	return r.append(ctx, evt)
}

// OnTaskCompleted implements ext.TaskCompleted.
func (r *Recorder) OnTaskCompleted(ctx context.Context, t *task.Task, res *task.Result, elapsed time.Duration) error {
	evt := New(TypeTaskCompleted)
	evt.TaskID = t.ID
	evt.WorkflowID = t.WorkflowID
	evt.HandlerID = t.HandlerID
	evt.Duration = elapsed
	if res != nil {
		evt.Message = string(res.Status)
	}
	return r.append(ctx, evt)
}

// OnTaskFailed implements ext.TaskFailed.
func (r *Recorder) OnTaskFailed(ctx context.Context, t *task.Task, taskErr error) error {
	evt := New(TypeTaskFailed)
	evt.TaskID = t.ID
	evt.WorkflowID = t.WorkflowID
	evt.HandlerID = t.HandlerID
	if taskErr != nil {
		evt.Message = taskErr.Error()
	}
	return r.append(ctx, evt)
}

// OnTaskCancelled implements ext.TaskCancelled.
func (r *Recorder) OnTaskCancelled(ctx context.Context, t *task.Task) error {
	evt := New(TypeTaskCancelled)
	evt.TaskID = t.ID
	evt.WorkflowID = t.WorkflowID
	evt.HandlerID = t.HandlerID
	return r.append(ctx, evt)
}

// ── Workflow lifecycle hooks ────────────────────────

// OnWorkflowStarted implements ext.WorkflowStarted.
func (r *Recorder) OnWorkflowStarted(ctx context.Context, st *workflow.State) error {
	evt := New(TypeWorkflowStarted)
	evt.WorkflowID = st.ID
	evt.Message = st.Pipeline
	return r.append(ctx, evt)
}

// OnStageCompleted implements ext.StageCompleted.
func (r *Recorder) OnStageCompleted(ctx context.Context, st *workflow.State, stage string, elapsed time.Duration) error {
	evt := New(TypeStageCompleted)
	evt.WorkflowID = st.ID
	evt.Stage = stage
	evt.Duration = elapsed
	return r.append(ctx, evt)
}

// OnStageFailed implements ext.StageFailed.
func (r *Recorder) OnStageFailed(ctx context.Context, st *workflow.State, stage string, stageErr error) error {
	evt := New(TypeStageFailed)
	evt.WorkflowID = st.ID
	evt.Stage = stage
	if stageErr != nil {
		evt.Message = stageErr.Error()
	}
	return r.append(ctx, evt)
}

// OnWorkflowSuspended implements ext.WorkflowSuspended.
func (r *Recorder) OnWorkflowSuspended(ctx context.Context, st *workflow.State, stage string) error {
	evt := New(TypeWorkflowSuspended)
	evt.WorkflowID = st.ID
	evt.Stage = stage
	return r.append(ctx, evt)
}

// OnWorkflowResumed implements ext.WorkflowResumed.
func (r *Recorder) OnWorkflowResumed(ctx context.Context, st *workflow.State, stage string) error {
	evt := New(TypeWorkflowResumed)
	evt.WorkflowID = st.ID
	evt.Stage = stage
	return r.append(ctx, evt)
}

// OnWorkflowCompleted implements ext.WorkflowCompleted.
func (r *Recorder) OnWorkflowCompleted(ctx context.Context, st *workflow.State, elapsed time.Duration) error {
	evt := New(TypeWorkflowCompleted)
	evt.WorkflowID = st.ID
	evt.Duration = elapsed
	return r.append(ctx, evt)
}

// OnWorkflowTerminated implements ext.WorkflowTerminated.
func (r *Recorder) OnWorkflowTerminated(ctx context.Context, st *workflow.State, reason string) error {
	evt := New(TypeWorkflowTerminated)
	evt.WorkflowID = st.ID
	evt.Stage = st.CurrentStage
	evt.Message = reason
	return r.append(ctx, evt)
}

// OnWorkflowFailed implements ext.WorkflowFailed.
func (r *Recorder) OnWorkflowFailed(ctx context.Context, st *workflow.State, wfErr error) error {
	evt := New(TypeWorkflowFailed)
	evt.WorkflowID = st.ID
	evt.Stage = st.CurrentStage
	if wfErr != nil {
		evt.Message = wfErr.Error()
	}
	return r.append(ctx, evt)
}

// ── Breaker hooks ───────────────────────────────────

// OnBreakerStateChanged implements ext.BreakerStateChanged.
func (r *Recorder) OnBreakerStateChanged(ctx context.Context, change breaker.StateChange) error {
	evt := New(TypeBreakerStateChanged)
	evt.HandlerID = change.HandlerID
	evt.Message = fmt.Sprintf("%s -> %s", change.From, change.To)
	return r.append(ctx, evt)
}
