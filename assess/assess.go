// Package assess defines the quality-assessment capability used by
// reflection stages. An Assessor scores an artifact against a set of
// criteria and decides whether the workflow should proceed or loop back
// for rework.
//
// The engine never depends on any particular assessor being reachable:
// RuleBased is a deterministic fallback that works in every environment.
package assess

import (
	"context"
	"encoding/json"
)

// Assessment is the outcome of scoring an artifact.
type Assessment struct {
	// Score is a normalized quality score in [0, 1].
	Score float64 `json:"score"`

	// Proceed reports whether the artifact is good enough to move on.
	Proceed bool `json:"proceed"`

	// Feedback carries actionable notes to attach to workflow state
	// when looping back for rework.
	Feedback []string `json:"feedback,omitempty"`
}

// Assessor scores an artifact against named criteria.
type Assessor interface {
	Assess(ctx context.Context, artifact json.RawMessage, criteria []string) (*Assessment, error)
}

// Func adapts a plain function to the Assessor interface.
type Func func(ctx context.Context, artifact json.RawMessage, criteria []string) (*Assessment, error)

// Assess implements Assessor.
func (f Func) Assess(ctx context.Context, artifact json.RawMessage, criteria []string) (*Assessment, error) {
	return f(ctx, artifact, criteria)
}
