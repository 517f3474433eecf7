package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/conveyordev/conveyor/breaker"
	"github.com/conveyordev/conveyor/ext"
	"github.com/conveyordev/conveyor/task"
	"github.com/conveyordev/conveyor/workflow"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/conveyordev/conveyor/observability"

// Compile-time interface checks.
var (
	_ ext.Extension           = (*MetricsExtension)(nil)
	_ ext.TaskEnqueued        = (*MetricsExtension)(nil)
	_ ext.TaskCompleted       = (*MetricsExtension)(nil)
	_ ext.TaskFailed          = (*MetricsExtension)(nil)
	_ ext.TaskCancelled       = (*MetricsExtension)(nil)
	_ ext.WorkflowStarted     = (*MetricsExtension)(nil)
	_ ext.StageCompleted      = (*MetricsExtension)(nil)
	_ ext.WorkflowSuspended   = (*MetricsExtension)(nil)
	_ ext.WorkflowCompleted   = (*MetricsExtension)(nil)
	_ ext.WorkflowTerminated  = (*MetricsExtension)(nil)
	_ ext.WorkflowFailed      = (*MetricsExtension)(nil)
	_ ext.BreakerStateChanged = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics via OpenTelemetry.
// Register it as an extension to automatically track enqueue rates,
// completion counts, failure rates, workflow outcomes, suspensions, and
// circuit-breaker transitions.
type MetricsExtension struct {
	taskEnqueued       metric.Int64Counter
	taskCompleted      metric.Int64Counter
	taskFailed         metric.Int64Counter
	taskCancelled      metric.Int64Counter
	taskDuration       metric.Float64Histogram
	workflowStarted    metric.Int64Counter
	stageCompleted     metric.Int64Counter
	workflowSuspended  metric.Int64Counter
	workflowCompleted  metric.Int64Counter
	workflowTerminated metric.Int64Counter
	workflowFailed     metric.Int64Counter
	workflowDuration   metric.Float64Histogram
	breakerTransitions metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider. Without a configured provider the instruments are noops.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. This variant allows injecting a specific MeterProvider
// for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}
	// On error the OTel API returns noop instruments, so errors here
	// degrade gracefully.
	m.taskEnqueued, _ = meter.Int64Counter("conveyor.task.enqueued",
		metric.WithDescription("Total number of tasks enqueued"))
	m.taskCompleted, _ = meter.Int64Counter("conveyor.task.completed",
		metric.WithDescription("Total number of tasks completed"))
	m.taskFailed, _ = meter.Int64Counter("conveyor.task.failed",
		metric.WithDescription("Total number of tasks failed"))
	m.taskCancelled, _ = meter.Int64Counter("conveyor.task.cancelled",
		metric.WithDescription("Total number of tasks cancelled"))
	m.taskDuration, _ = meter.Float64Histogram("conveyor.task.lifecycle.duration",
		metric.WithDescription("Task duration from start to completion in seconds"),
		metric.WithUnit("s"))
	m.workflowStarted, _ = meter.Int64Counter("conveyor.workflow.started",
		metric.WithDescription("Total number of workflows started"))
	m.stageCompleted, _ = meter.Int64Counter("conveyor.workflow.stages",
		metric.WithDescription("Total number of stages completed"))
	m.workflowSuspended, _ = meter.Int64Counter("conveyor.workflow.suspended",
		metric.WithDescription("Total number of workflow suspensions for approval"))
	m.workflowCompleted, _ = meter.Int64Counter("conveyor.workflow.completed",
		metric.WithDescription("Total number of workflows completed"))
	m.workflowTerminated, _ = meter.Int64Counter("conveyor.workflow.terminated",
		metric.WithDescription("Total number of workflows terminated by routing"))
	m.workflowFailed, _ = meter.Int64Counter("conveyor.workflow.failed",
		metric.WithDescription("Total number of workflows failed"))
	m.workflowDuration, _ = meter.Float64Histogram("conveyor.workflow.duration",
		metric.WithDescription("Workflow duration from start to completion in seconds"),
		metric.WithUnit("s"))
	m.breakerTransitions, _ = meter.Int64Counter("conveyor.breaker.transitions",
		metric.WithDescription("Total number of circuit breaker state transitions"))
	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Task lifecycle hooks ─────────────────────────────

// OnTaskEnqueued implements ext.TaskEnqueued.
func (m *MetricsExtension) OnTaskEnqueued(ctx context.Context, t *task.Task) error {
	m.taskEnqueued.Add(ctx, 1, handlerAttr(t.HandlerID))
	return nil
}

// OnTaskCompleted implements ext.TaskCompleted.
func (m *MetricsExtension) OnTaskCompleted(ctx context.Context, t *task.Task, _ *task.Result, elapsed time.Duration) error {
	m.taskCompleted.Add(ctx, 1, handlerAttr(t.HandlerID))
	m.taskDuration.Record(ctx, elapsed.Seconds(), handlerAttr(t.HandlerID))
	return nil
}

// OnTaskFailed implements ext.TaskFailed.
func (m *MetricsExtension) OnTaskFailed(ctx context.Context, t *task.Task, _ error) error {
	m.taskFailed.Add(ctx, 1, handlerAttr(t.HandlerID))
	return nil
}

// OnTaskCancelled implements ext.TaskCancelled.
func (m *MetricsExtension) OnTaskCancelled(ctx context.Context, t *task.Task) error {
	m.taskCancelled.Add(ctx, 1, handlerAttr(t.HandlerID))
	return nil
}

// ── Workflow lifecycle hooks ────────────────────────

// OnWorkflowStarted implements ext.WorkflowStarted.
func (m *MetricsExtension) OnWorkflowStarted(ctx context.Context, st *workflow.State) error {
	m.workflowStarted.Add(ctx, 1, pipelineAttr(st.Pipeline))
	return nil
}

// OnStageCompleted implements ext.StageCompleted.
func (m *MetricsExtension) OnStageCompleted(ctx context.Context, st *workflow.State, stage string, _ time.Duration) error {
	m.stageCompleted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pipeline", st.Pipeline),
		attribute.String("stage", stage),
	))
	return nil
}

// OnWorkflowSuspended implements ext.WorkflowSuspended.
func (m *MetricsExtension) OnWorkflowSuspended(ctx context.Context, st *workflow.State, _ string) error {
	m.workflowSuspended.Add(ctx, 1, pipelineAttr(st.Pipeline))
	return nil
}

// OnWorkflowCompleted implements ext.WorkflowCompleted.
func (m *MetricsExtension) OnWorkflowCompleted(ctx context.Context, st *workflow.State, elapsed time.Duration) error {
	m.workflowCompleted.Add(ctx, 1, pipelineAttr(st.Pipeline))
	m.workflowDuration.Record(ctx, elapsed.Seconds(), pipelineAttr(st.Pipeline))
	return nil
}

// OnWorkflowTerminated implements ext.WorkflowTerminated.
func (m *MetricsExtension) OnWorkflowTerminated(ctx context.Context, st *workflow.State, _ string) error {
	m.workflowTerminated.Add(ctx, 1, pipelineAttr(st.Pipeline))
	return nil
}

// OnWorkflowFailed implements ext.WorkflowFailed.
func (m *MetricsExtension) OnWorkflowFailed(ctx context.Context, st *workflow.State, _ error) error {
	m.workflowFailed.Add(ctx, 1, pipelineAttr(st.Pipeline))
	return nil
}

// ── Breaker hooks ───────────────────────────────────

// OnBreakerStateChanged implements ext.BreakerStateChanged.
func (m *MetricsExtension) OnBreakerStateChanged(ctx context.Context, change breaker.StateChange) error {
	m.breakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("handler_id", change.HandlerID),
		attribute.String("from", string(change.From)),
		attribute.String("to", string(change.To)),
	))
	return nil
}

func handlerAttr(handlerID string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("handler_id", handlerID))
}

func pipelineAttr(pipeline string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("pipeline", pipeline))
}
