package assess_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/conveyordev/conveyor/assess"
)

func TestRuleBasedNoCriteria(t *testing.T) {
	rb := assess.NewRuleBased()

	got, err := rb.Assess(context.Background(), json.RawMessage(`{}`), nil)
	if err != nil {
		t.Fatalf("Assess() error = %v", err)
	}
	if got.Score != 1 || !got.Proceed {
		t.Errorf("Assess() = score %v proceed %v, want 1 true", got.Score, got.Proceed)
	}
}

func TestRuleBasedPresenceChecks(t *testing.T) {
	rb := assess.NewRuleBased()
	artifact := json.RawMessage(`{"plan": "three steps", "tests_passed": true, "report": ""}`)

	tests := []struct {
		name     string
		criteria []string
		score    float64
		proceed  bool
	}{
		{"all present", []string{"plan", "tests_passed"}, 1, true},
		{"empty string fails", []string{"plan", "report"}, 0.5, false},
		{"missing field fails", []string{"plan", "coverage"}, 0.5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rb.Assess(context.Background(), artifact, tt.criteria)
			if err != nil {
				t.Fatalf("Assess() error = %v", err)
			}
			if got.Score != tt.score {
				t.Errorf("score = %v, want %v", got.Score, tt.score)
			}
			if got.Proceed != tt.proceed {
				t.Errorf("proceed = %v, want %v", got.Proceed, tt.proceed)
			}
		})
	}
}

func TestRuleBasedCustomRules(t *testing.T) {
	rb := assess.NewRuleBased(
		assess.WithRule("coverage", func(fields map[string]any) bool {
			cov, ok := fields["coverage"].(float64)
			return ok && cov >= 0.8
		}),
	)

	good := json.RawMessage(`{"coverage": 0.92}`)
	bad := json.RawMessage(`{"coverage": 0.4}`)

	got, err := rb.Assess(context.Background(), good, []string{"coverage"})
	if err != nil {
		t.Fatalf("Assess() error = %v", err)
	}
	if !got.Proceed {
		t.Error("Assess(good) proceed = false, want true")
	}

	got, err = rb.Assess(context.Background(), bad, []string{"coverage"})
	if err != nil {
		t.Fatalf("Assess() error = %v", err)
	}
	if got.Proceed {
		t.Error("Assess(bad) proceed = true, want false")
	}
	if len(got.Feedback) != 1 {
		t.Fatalf("len(feedback) = %d, want 1", len(got.Feedback))
	}
}

func TestRuleBasedThreshold(t *testing.T) {
	rb := assess.NewRuleBased(assess.WithThreshold(0.5))
	artifact := json.RawMessage(`{"plan": "ok"}`)

	got, err := rb.Assess(context.Background(), artifact, []string{"plan", "report"})
	if err != nil {
		t.Fatalf("Assess() error = %v", err)
	}
	if !got.Proceed {
		t.Errorf("proceed = false with score %v and threshold 0.5, want true", got.Score)
	}
}

func TestRuleBasedNonObjectArtifact(t *testing.T) {
	rb := assess.NewRuleBased()

	got, err := rb.Assess(context.Background(), json.RawMessage(`"just a string"`), []string{"plan"})
	if err != nil {
		t.Fatalf("Assess() error = %v", err)
	}
	if got.Proceed || got.Score != 0 {
		t.Errorf("Assess() = score %v proceed %v, want 0 false", got.Score, got.Proceed)
	}
}

func TestFuncAdapter(t *testing.T) {
	called := false
	f := assess.Func(func(ctx context.Context, artifact json.RawMessage, criteria []string) (*assess.Assessment, error) {
		called = true
		return &assess.Assessment{Score: 0.5, Proceed: false}, nil
	})

	got, err := f.Assess(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Assess() error = %v", err)
	}
	if !called || got.Score != 0.5 {
		t.Errorf("adapter not invoked correctly: called=%v score=%v", called, got.Score)
	}
}
