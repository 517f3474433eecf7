package assess

import (
	"context"
	"encoding/json"
	"fmt"
)

// DefaultThreshold is the fraction of criteria that must be satisfied
// for a RuleBased assessment to proceed.
const DefaultThreshold = 1.0

// Rule checks a single named criterion against a decoded artifact.
// The fields map is nil when the artifact is not a JSON object.
type Rule func(fields map[string]any) bool

// RuleBased is a deterministic Assessor: each criterion maps to a rule,
// the score is the fraction of criteria whose rule passes, and the
// assessment proceeds when the score meets the threshold.
//
// Criteria without a registered rule fall back to a presence check: the
// criterion passes when the artifact object contains a non-empty field
// of that name. This makes checks like "tests passed AND plan exists"
// expressible with no rules at all.
type RuleBased struct {
	rules     map[string]Rule
	threshold float64
}

// RuleBasedOption configures a RuleBased assessor.
type RuleBasedOption func(*RuleBased)

// WithRule registers a rule for a named criterion.
func WithRule(criterion string, rule Rule) RuleBasedOption {
	return func(rb *RuleBased) {
		rb.rules[criterion] = rule
	}
}

// WithThreshold overrides the minimum passing score. Values outside
// (0, 1] are ignored.
func WithThreshold(threshold float64) RuleBasedOption {
	return func(rb *RuleBased) {
		if threshold > 0 && threshold <= 1 {
			rb.threshold = threshold
		}
	}
}

// NewRuleBased creates a deterministic rule-based assessor.
func NewRuleBased(opts ...RuleBasedOption) *RuleBased {
	rb := &RuleBased{
		rules:     make(map[string]Rule),
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(rb)
	}
	return rb
}

// Assess scores the artifact: one point per satisfied criterion,
// normalized by the criteria count. With no criteria the artifact
// passes with a full score.
func (rb *RuleBased) Assess(ctx context.Context, artifact json.RawMessage, criteria []string) (*Assessment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(criteria) == 0 {
		return &Assessment{Score: 1, Proceed: true}, nil
	}

	// Best-effort decode; non-object artifacts leave fields nil and
	// presence checks simply fail.
	var fields map[string]any
	if len(artifact) > 0 {
		_ = json.Unmarshal(artifact, &fields)
	}

	passed := 0
	var feedback []string
	for _, criterion := range criteria {
		ok := false
		if rule, found := rb.rules[criterion]; found {
			ok = rule(fields)
		} else {
			ok = fieldPresent(fields, criterion)
		}
		if ok {
			passed++
		} else {
			feedback = append(feedback, fmt.Sprintf("criterion not satisfied: %s", criterion))
		}
	}

	score := float64(passed) / float64(len(criteria))
	return &Assessment{
		Score:    score,
		Proceed:  score >= rb.threshold,
		Feedback: feedback,
	}, nil
}

// fieldPresent reports whether the artifact object has a non-empty,
// non-false field named after the criterion.
func fieldPresent(fields map[string]any, name string) bool {
	v, ok := fields[name]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
