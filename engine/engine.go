package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/conveyordev/conveyor"
	"github.com/conveyordev/conveyor/approval"
	"github.com/conveyordev/conveyor/assess"
	"github.com/conveyordev/conveyor/breaker"
	"github.com/conveyordev/conveyor/checkpoint"
	"github.com/conveyordev/conveyor/event"
	"github.com/conveyordev/conveyor/ext"
	"github.com/conveyordev/conveyor/id"
	"github.com/conveyordev/conveyor/retry"
	"github.com/conveyordev/conveyor/workflow"
)

// pipeline is a registered graph plus its interrupt configuration.
type pipeline struct {
	graph      *workflow.Graph
	interrupts map[string]bool
}

// Engine orchestrates workflow runs: traversing stage graphs, persisting
// checkpoints, suspending at interrupt points, and resuming on approval.
type Engine struct {
	checkpoints checkpoint.Store
	approvals   approval.Store
	events      event.Store
	breakers    *breaker.Registry
	extensions  *ext.Registry
	assessor    assess.Assessor
	retryCfg    retry.Config
	logger      *slog.Logger
	maxRounds   int
	failOpen    bool

	mu        sync.RWMutex
	pipelines map[string]*pipeline
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithExtensions sets the extension registry lifecycle events are emitted
// through. If not set, a fresh registry is created.
func WithExtensions(r *ext.Registry) Option {
	return func(e *Engine) { e.extensions = r }
}

// WithBreakers sets the shared circuit-breaker registry. If not set, a
// registry with default thresholds is created and wired to emit state
// changes through the extension registry.
func WithBreakers(r *breaker.Registry) Option {
	return func(e *Engine) { e.breakers = r }
}

// WithRetryConfig sets the retry policy applied by Protect.
func WithRetryConfig(cfg retry.Config) Option {
	return func(e *Engine) { e.retryCfg = cfg }
}

// WithAssessor sets the assessor used by reflection stages. If not set,
// the deterministic rule-based fallback is used.
func WithAssessor(a assess.Assessor) Option {
	return func(e *Engine) { e.assessor = a }
}

// WithEventStore sets the store approval-gate bypasses are recorded to.
// Optional; lifecycle events flow through the extension registry.
func WithEventStore(s event.Store) Option {
	return func(e *Engine) { e.events = s }
}

// WithMaxReflectionRounds sets the rework budget stamped onto every run.
func WithMaxReflectionRounds(n int) Option {
	return func(e *Engine) { e.maxRounds = n }
}

// WithFailOpen controls the approval gate's behavior when persistence is
// unavailable: true (the default) auto-approves and records the bypass,
// false fails the suspension instead.
func WithFailOpen(failOpen bool) Option {
	return func(e *Engine) { e.failOpen = failOpen }
}

// New creates an Engine persisting through the given stores.
func New(checkpoints checkpoint.Store, approvals approval.Store, opts ...Option) *Engine {
	e := &Engine{
		checkpoints: checkpoints,
		approvals:   approvals,
		retryCfg:    retry.Config{},
		maxRounds:   conveyor.DefaultConfig().MaxReflectionRounds,
		failOpen:    true,
		pipelines:   make(map[string]*pipeline),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.extensions == nil {
		e.extensions = ext.NewRegistry(e.logger)
	}
	if e.breakers == nil {
		e.breakers = breaker.NewRegistry(breaker.DefaultConfig(),
			breaker.WithRegistryListener(func(change breaker.StateChange) {
				e.extensions.EmitBreakerStateChanged(context.Background(), change)
			}))
	}
	if e.assessor == nil {
		e.assessor = assess.NewRuleBased()
	}
	return e
}

// Extensions returns the extension registry.
func (e *Engine) Extensions() *ext.Registry { return e.extensions }

// Breakers returns the shared circuit-breaker registry.
func (e *Engine) Breakers() *breaker.Registry { return e.breakers }

// PipelineOption configures a registered pipeline.
type PipelineOption func(*pipeline)

// WithInterruptBefore suspends the workflow for approval before each of
// the named stages.
func WithInterruptBefore(stages ...string) PipelineOption {
	return func(p *pipeline) {
		for _, s := range stages {
			p.interrupts[s] = true
		}
	}
}

// RegisterPipeline registers a stage graph under its name. Registering
// the same name again replaces the earlier pipeline.
func (e *Engine) RegisterPipeline(g *workflow.Graph, opts ...PipelineOption) error {
	if err := g.Validate(); err != nil {
		return err
	}

	p := &pipeline{graph: g, interrupts: make(map[string]bool)}
	for _, opt := range opts {
		opt(p)
	}
	for name := range p.interrupts {
		if _, ok := g.Stage(name); !ok {
			return fmt.Errorf("engine: interrupt stage %q not defined in pipeline %q", name, g.Name)
		}
	}

	e.mu.Lock()
	e.pipelines[g.Name] = p
	e.mu.Unlock()
	return nil
}

func (e *Engine) pipeline(name string) (*pipeline, error) {
	e.mu.RLock()
	p, ok := e.pipelines[name]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: no pipeline registered for %q: %w", name, conveyor.ErrWorkflowNotFound)
	}
	return p, nil
}

// Run starts a new workflow run and traverses the pipeline until it
// completes, terminates, fails, or suspends at an interrupt point. The
// returned state's Status distinguishes the outcomes; a suspended run
// has StatusAwaitingApproval and continues through Resume.
func (e *Engine) Run(ctx context.Context, name string, input json.RawMessage) (*workflow.State, error) {
	p, err := e.pipeline(name)
	if err != nil {
		return nil, err
	}

	st := workflow.NewState(name, input)
	st.MaxReflectionRounds = e.maxRounds
	st.CurrentStage = p.graph.Start

	e.extensions.EmitWorkflowStarted(ctx, st)
	return e.advance(ctx, p, st)
}

// Resume applies a reviewer decision to a suspended workflow and, on
// approval, continues traversal from the interrupted stage. On rejection
// the run is terminated and returned alongside conveyor.ErrApprovalRejected.
// Returns conveyor.ErrNotAwaitingApproval if the workflow has no pending
// approval request.
func (e *Engine) Resume(ctx context.Context, workflowID id.WorkflowID, decision approval.Decision) (*workflow.State, error) {
	req, err := e.approvals.PendingApproval(ctx, workflowID)
	if err != nil {
		if errors.Is(err, conveyor.ErrApprovalNotFound) {
			return nil, fmt.Errorf("engine: resume workflow %s: %w", workflowID, conveyor.ErrNotAwaitingApproval)
		}
		return nil, fmt.Errorf("engine: resume workflow %s: %w", workflowID, err)
	}

	req.Resolve(decision)
	if err := e.approvals.UpdateApproval(ctx, req); err != nil {
		return nil, fmt.Errorf("engine: resolve approval %s: %w", req.ID, err)
	}

	ckpt, err := e.checkpoints.LoadLatestCheckpoint(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("engine: resume workflow %s: %w", workflowID, err)
	}
	st := ckpt.State

	p, err := e.pipeline(st.Pipeline)
	if err != nil {
		return nil, err
	}

	if !decision.Approve {
		reason := "approval rejected"
		if decision.Comment != "" {
			reason = "approval rejected: " + decision.Comment
		}
		now := time.Now().UTC()
		st.Status = workflow.StatusTerminated
		st.ApprovalStatus = workflow.ApprovalRejected
		st.TerminalReason = reason
		st.CompletedAt = &now
		st.Touch()

		e.checkpointQuiet(ctx, st)
		e.extensions.EmitWorkflowTerminated(ctx, st, reason)
		return st, fmt.Errorf("engine: workflow %s: %w", workflowID, conveyor.ErrApprovalRejected)
	}

	st.Status = workflow.StatusRunning
	st.ApprovalStatus = workflow.ApprovalApproved
	st.Touch()

	e.extensions.EmitWorkflowResumed(ctx, st, st.CurrentStage)
	return e.advance(ctx, p, st)
}

// ResumeFromCheckpoint rolls a workflow back to an earlier checkpoint
// version and resumes traversal from the stage captured there. The next
// save appends version max+1; the rolled-back-past history is preserved.
func (e *Engine) ResumeFromCheckpoint(ctx context.Context, workflowID id.WorkflowID, version int) (*workflow.State, error) {
	ckpt, err := e.checkpoints.LoadCheckpointVersion(ctx, workflowID, version)
	if err != nil {
		return nil, fmt.Errorf("engine: rollback workflow %s to version %d: %w", workflowID, version, err)
	}
	st := ckpt.State

	p, err := e.pipeline(st.Pipeline)
	if err != nil {
		return nil, err
	}

	st.Status = workflow.StatusRunning
	st.CompletedAt = nil
	st.Touch()

	e.extensions.EmitWorkflowResumed(ctx, st, st.CurrentStage)
	return e.advance(ctx, p, st)
}

// advance traverses the graph from st.CurrentStage until a router
// terminates, a stage fails terminally, or an interrupt point suspends
// the run. Traversal of one instance is strictly sequential.
func (e *Engine) advance(ctx context.Context, p *pipeline, st *workflow.State) (*workflow.State, error) {
	for {
		if err := ctx.Err(); err != nil {
			return st, fmt.Errorf("engine: workflow %s: %w", st.ID, err)
		}

		stage := st.CurrentStage
		s, ok := p.graph.Stage(stage)
		if !ok {
			err := fmt.Errorf("engine: pipeline %q routed to unknown stage %q: %w", st.Pipeline, stage, conveyor.ErrStageNotFound)
			return e.failRun(ctx, st, err)
		}

		if p.interrupts[stage] && st.ApprovalStatus == workflow.ApprovalNone {
			suspended, err := e.suspend(ctx, st, stage)
			if err != nil {
				return st, err
			}
			if suspended {
				return st, nil
			}
		}
		if st.ApprovalStatus == workflow.ApprovalApproved {
			// Consumed at the gate: a later interrupt suspends fresh.
			st.ApprovalStatus = workflow.ApprovalNone
		}

		start := time.Now()
		patch, stageErr := s.Run(ctx, st)
		if stageErr != nil {
			st.RecordError(stage, stageErr)
			e.extensions.EmitStageFailed(ctx, st, stage, stageErr)
			e.logger.Warn("stage failed",
				slog.String("workflow_id", st.ID.String()),
				slog.String("stage", stage),
				slog.String("error", stageErr.Error()),
			)
		} else {
			e.applyPatch(st, stage, patch)
			e.extensions.EmitStageCompleted(ctx, st, stage, time.Since(start))
		}

		next := s.Router.Route(st)
		if next == workflow.Terminate {
			return e.finish(ctx, st, stage, stageErr)
		}

		st.CurrentStage = next
		st.Touch()
		e.checkpointQuiet(ctx, st)
	}
}

// applyPatch merges a completed stage's patch into the state. Only the
// owning stage writes its output slot.
func (e *Engine) applyPatch(st *workflow.State, stage string, patch *workflow.Patch) {
	st.Verdict = ""
	if patch != nil {
		if len(patch.Output) > 0 {
			st.Outputs[stage] = patch.Output
		}
		st.Verdict = patch.Verdict
		st.Feedback = append(st.Feedback, patch.Feedback...)
	}
	st.CompletedStages = append(st.CompletedStages, stage)
	st.Touch()
}

// finish closes out a run whose router returned Terminate.
func (e *Engine) finish(ctx context.Context, st *workflow.State, stage string, stageErr error) (*workflow.State, error) {
	if stageErr != nil {
		return e.failRun(ctx, st, fmt.Errorf("engine: stage %q: %w", stage, stageErr))
	}

	now := time.Now().UTC()
	st.CompletedAt = &now
	st.Touch()

	if st.TerminalReason != "" {
		st.Status = workflow.StatusTerminated
		e.checkpointQuiet(ctx, st)
		e.extensions.EmitWorkflowTerminated(ctx, st, st.TerminalReason)
		return st, nil
	}

	st.Status = workflow.StatusCompleted
	e.checkpointQuiet(ctx, st)
	e.extensions.EmitWorkflowCompleted(ctx, st, time.Since(st.StartedAt))
	return st, nil
}

// failRun marks a run as terminally failed.
func (e *Engine) failRun(ctx context.Context, st *workflow.State, err error) (*workflow.State, error) {
	now := time.Now().UTC()
	st.Status = workflow.StatusFailed
	st.CompletedAt = &now
	st.Touch()

	e.checkpointQuiet(ctx, st)
	e.extensions.EmitWorkflowFailed(ctx, st, err)
	return st, err
}

// suspend checkpoints the run and creates a pending approval request
// before the given stage. The bool reports whether the run actually
// suspended: a fail-open bypass returns false with the state already
// auto-approved so traversal continues.
func (e *Engine) suspend(ctx context.Context, st *workflow.State, stage string) (bool, error) {
	st.Status = workflow.StatusAwaitingApproval
	st.ApprovalStatus = workflow.ApprovalPending
	st.Touch()

	_, err := e.checkpoints.SaveCheckpoint(ctx, st)
	if err == nil {
		req := approval.NewRequest(st.ID, stage, st)
		err = e.approvals.CreateApproval(ctx, req)
		if errors.Is(err, conveyor.ErrApprovalPending) {
			// Already suspended here once; reuse the open request.
			err = nil
		}
	}

	if err != nil {
		if !e.failOpen {
			st.Status = workflow.StatusRunning
			st.ApprovalStatus = workflow.ApprovalNone
			return false, fmt.Errorf("engine: suspend workflow %s before %q: %w", st.ID, stage, err)
		}

		// Persistence is down: auto-approve and keep the pipeline moving
		// rather than hanging. The bypass is logged and recorded.
		e.logger.Warn("approval gate bypassed",
			slog.String("workflow_id", st.ID.String()),
			slog.String("stage", stage),
			slog.String("error", err.Error()),
		)
		e.recordBypass(ctx, st, stage, err)

		st.Status = workflow.StatusRunning
		st.ApprovalStatus = workflow.ApprovalApproved
		st.Touch()
		return false, nil
	}

	e.extensions.EmitWorkflowSuspended(ctx, st, stage)
	return true, nil
}

// recordBypass appends an approval-bypassed event. Best effort: the same
// outage that forced the bypass may take the event store down too.
func (e *Engine) recordBypass(ctx context.Context, st *workflow.State, stage string, cause error) {
	if e.events == nil {
		return
	}

	evt := event.New(event.TypeApprovalBypassed)
	evt.WorkflowID = st.ID
	evt.Stage = stage
	evt.Message = cause.Error()
	if err := e.events.AppendEvent(ctx, evt); err != nil {
		e.logger.Warn("failed to record approval bypass",
			slog.String("workflow_id", st.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// checkpointQuiet saves a checkpoint, logging failures instead of
// aborting traversal. Durable suspension points save explicitly.
func (e *Engine) checkpointQuiet(ctx context.Context, st *workflow.State) {
	if _, err := e.checkpoints.SaveCheckpoint(ctx, st); err != nil {
		e.logger.Warn("failed to save checkpoint",
			slog.String("workflow_id", st.ID.String()),
			slog.String("stage", st.CurrentStage),
			slog.String("error", err.Error()),
		)
	}
}

// Protect wraps a stage function with the named handler's circuit
// breaker and the engine's retry policy. The breaker is shared with
// every other stage and task targeting the same handler id, so a
// dependency failing anywhere trips it everywhere.
func (e *Engine) Protect(handlerID string, fn workflow.StageFunc) workflow.StageFunc {
	return func(ctx context.Context, st *workflow.State) (*workflow.Patch, error) {
		br := e.breakers.Get(handlerID)

		var patch *workflow.Patch
		res := retry.Do(ctx, e.retryCfg, func(ctx context.Context) error {
			return br.Execute(ctx, func(ctx context.Context) error {
				p, err := fn(ctx, st)
				if err != nil {
					return err
				}
				patch = p
				return nil
			})
		})
		if res.Err != nil {
			return nil, res.Err
		}
		return patch, nil
	}
}

// ReflectStage builds a self-critique stage: it scores the output of the
// subject stage against the criteria using the engine's assessor and
// records an approve or rework verdict plus the assessor's feedback.
// Pair it with a ReworkRouter whose back edge targets the subject stage.
func (e *Engine) ReflectStage(subject string, criteria []string) workflow.StageFunc {
	return func(ctx context.Context, st *workflow.State) (*workflow.Patch, error) {
		a, err := e.assessor.Assess(ctx, st.Output(subject), criteria)
		if err != nil {
			return nil, fmt.Errorf("engine: assess output of stage %q: %w", subject, err)
		}

		verdict := workflow.VerdictRework
		if a.Proceed {
			verdict = workflow.VerdictApprove
		}
		out, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("engine: marshal assessment: %w", err)
		}
		return &workflow.Patch{Output: out, Verdict: verdict, Feedback: a.Feedback}, nil
	}
}
