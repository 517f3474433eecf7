package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Terminate is the routing destination that stops graph traversal.
const Terminate = "_terminate"

// Patch is what a stage function returns: the merge applied to workflow
// state after the stage completes. Only the owning stage writes its
// output slot.
type Patch struct {
	// Output is stored under the stage's name in State.Outputs.
	Output json.RawMessage

	// Verdict, if set, is the review outcome the stage's router keys on.
	Verdict Verdict

	// Feedback lines are appended to State.Feedback (reflection stages
	// attach critique for the stage being reworked).
	Feedback []string
}

// StageFunc executes one stage against the current state and returns the
// state patch to merge. Handler invocation, circuit breaking, and retry
// all happen inside the function; the engine only sees the patch or the
// final exhausted error.
type StageFunc func(ctx context.Context, st *State) (*Patch, error)

// Router decides where the workflow goes after a stage completes. It
// returns the next stage name, or Terminate to stop. Consolidating
// routing into one value per stage keeps each rule unit-testable in
// isolation from the rest of the graph.
type Router interface {
	Route(st *State) string
}

// RouterFunc adapts a function to the Router interface.
type RouterFunc func(st *State) string

// Route implements Router.
func (f RouterFunc) Route(st *State) string { return f(st) }

// LinearRouter always routes to the same next stage (or Terminate).
func LinearRouter(next string) Router {
	return RouterFunc(func(*State) string { return next })
}

// GateRouter proceeds to next only when the predicate holds; otherwise
// it terminates the workflow with the unsatisfied gate recorded as the
// terminal reason.
func GateRouter(next string, predicate func(st *State) bool) Router {
	return RouterFunc(func(st *State) string {
		if predicate(st) {
			return next
		}
		if st.TerminalReason == "" {
			st.TerminalReason = fmt.Sprintf("gate after stage %q not satisfied", st.CurrentStage)
		}
		return Terminate
	})
}

// ReworkRouter routes on the verdict recorded by its stage: approve
// proceeds to next, block terminates, and rework routes back to the
// earlier stage. Rework is bounded by the state's reflection-round
// budget: once ReflectionRound reaches MaxReflectionRounds the router
// forces progression to next with the exhausted budget recorded in the
// error history, so a stage that never approves cannot loop forever.
func ReworkRouter(next, back string) Router {
	return RouterFunc(func(st *State) string {
		switch st.Verdict {
		case VerdictBlock:
			if st.TerminalReason == "" {
				st.TerminalReason = fmt.Sprintf("stage %q blocked the workflow", st.CurrentStage)
			}
			return Terminate
		case VerdictRework:
			if st.ReflectionRound >= st.MaxReflectionRounds {
				st.RecordError(st.CurrentStage, errors.New("max reflection rounds exceeded"))
				if next == Terminate && st.TerminalReason == "" {
					st.TerminalReason = "max reflection rounds exceeded"
				}
				return next
			}
			st.ReflectionRound++
			return back
		default:
			return next
		}
	})
}

// Stage is a named unit of pipeline work plus its outgoing routing rule.
type Stage struct {
	Name   string
	Run    StageFunc
	Router Router
}

// Graph is a directed graph of named stages. Traversal starts at Start
// and follows each stage's Router until Terminate or an unrouted stage.
type Graph struct {
	Name   string
	Start  string
	stages map[string]*Stage
	order  []string
}

// NewGraph creates an empty pipeline graph.
func NewGraph(name, start string) *Graph {
	return &Graph{
		Name:   name,
		Start:  start,
		stages: make(map[string]*Stage),
	}
}

// AddStage adds a stage to the graph. A nil router terminates after the
// stage. Adding a stage twice replaces the earlier definition.
func (g *Graph) AddStage(name string, run StageFunc, router Router) *Graph {
	if _, exists := g.stages[name]; !exists {
		g.order = append(g.order, name)
	}
	if router == nil {
		router = LinearRouter(Terminate)
	}
	g.stages[name] = &Stage{Name: name, Run: run, Router: router}
	return g
}

// Stage returns the named stage, or false.
func (g *Graph) Stage(name string) (*Stage, bool) {
	s, ok := g.stages[name]
	return s, ok
}

// StageNames returns the stage names in insertion order.
func (g *Graph) StageNames() []string {
	return append([]string(nil), g.order...)
}

// Validate checks the graph is runnable: a start stage exists and every
// stage has a run function. Routing targets are dynamic and checked
// during traversal.
func (g *Graph) Validate() error {
	if g.Start == "" {
		return fmt.Errorf("workflow: graph %q has no start stage", g.Name)
	}
	if _, ok := g.stages[g.Start]; !ok {
		return fmt.Errorf("workflow: graph %q start stage %q not defined", g.Name, g.Start)
	}
	for name, s := range g.stages {
		if s.Run == nil {
			return fmt.Errorf("workflow: graph %q stage %q has no run function", g.Name, name)
		}
	}
	return nil
}
