package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/conveyordev/conveyor"
	"github.com/conveyordev/conveyor/backoff"
	"github.com/conveyordev/conveyor/retry"
)

func fastConfig(maxAttempts int) retry.Config {
	return retry.Config{
		MaxAttempts: maxAttempts,
		Backoff:     backoff.NewConstant(time.Millisecond),
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	res := retry.Do(context.Background(), fastConfig(3), func(context.Context) error {
		calls++
		return nil
	})

	if !res.Success() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
	if res.TotalDelay != 0 {
		t.Errorf("TotalDelay = %v, want 0", res.TotalDelay)
	}
}

func TestDo_RetriesTransientUpToMax(t *testing.T) {
	calls := 0
	transient := conveyor.NewTransientError("timeout", errors.New("read timed out"))

	res := retry.Do(context.Background(), fastConfig(3), func(context.Context) error {
		calls++
		return transient
	})

	if res.Success() {
		t.Fatal("expected failure")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
	if !errors.Is(res.Err, transient) {
		t.Errorf("Err = %v, want last transient error", res.Err)
	}
	if res.TotalDelay <= 0 {
		t.Errorf("TotalDelay = %v, want > 0", res.TotalDelay)
	}
}

func TestDo_PermanentAbortsImmediately(t *testing.T) {
	calls := 0
	permanent := conveyor.NewPermanentError("auth", errors.New("invalid api key"))

	res := retry.Do(context.Background(), fastConfig(5), func(context.Context) error {
		calls++
		return permanent
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1 (permanent errors never retry)", calls)
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
}

func TestDo_TransientThenSuccess(t *testing.T) {
	calls := 0
	res := retry.Do(context.Background(), fastConfig(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return conveyor.NewTransientError("rate_limit", errors.New("too many requests"))
		}
		return nil
	})

	if !res.Success() {
		t.Fatalf("expected eventual success, got %v", res.Err)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
}

func TestDo_OnRetryCallback(t *testing.T) {
	var notified []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error) {
		notified = append(notified, attempt)
	}

	retry.Do(context.Background(), cfg, func(context.Context) error {
		return conveyor.NewTransientError("timeout", errors.New("timed out"))
	})

	if len(notified) != 2 {
		t.Fatalf("OnRetry called %d times, want 2", len(notified))
	}
	if notified[0] != 2 || notified[1] != 3 {
		t.Errorf("OnRetry attempts = %v, want [2 3]", notified)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := retry.Config{
		MaxAttempts: 3,
		Backoff:     backoff.NewConstant(time.Minute),
	}

	done := make(chan retry.Result, 1)
	go func() {
		done <- retry.Do(ctx, cfg, func(context.Context) error {
			return conveyor.NewTransientError("timeout", errors.New("timed out"))
		})
	}()

	cancel()
	select {
	case res := <-done:
		if !errors.Is(res.Err, context.Canceled) {
			t.Errorf("Err = %v, want context.Canceled", res.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
}

func TestDo_DelaysNeverDecrease(t *testing.T) {
	// With pure exponential backoff (no jitter) each delay must be
	// >= the previous one and <= the configured max.
	strategy := backoff.NewExponential(time.Millisecond, 2, 8*time.Millisecond)
	var prev time.Duration
	for attempt := 1; attempt <= 6; attempt++ {
		d := strategy.Delay(attempt)
		if d < prev {
			t.Errorf("Delay(%d) = %v < previous %v", attempt, d, prev)
		}
		if d > 8*time.Millisecond {
			t.Errorf("Delay(%d) = %v exceeds max", attempt, d)
		}
		prev = d
	}
}

type statusErr struct {
	code int
}

func (e *statusErr) Error() string   { return fmt.Sprintf("http status %d", e.code) }
func (e *statusErr) StatusCode() int { return e.code }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want conveyor.ErrorClass
	}{
		{"typed transient", conveyor.NewTransientError("timeout", errors.New("x")), conveyor.ClassTransient},
		{"typed permanent", conveyor.NewPermanentError("auth", errors.New("x")), conveyor.ClassPermanent},
		{"circuit open", &conveyor.CircuitOpenError{HandlerID: "h"}, conveyor.ClassPermanent},
		{"deadline exceeded", context.DeadlineExceeded, conveyor.ClassTransient},
		{"context cancelled", context.Canceled, conveyor.ClassPermanent},
		{"status 429", &statusErr{429}, conveyor.ClassTransient},
		{"status 503", &statusErr{503}, conveyor.ClassTransient},
		{"status 401", &statusErr{401}, conveyor.ClassPermanent},
		{"status 400", &statusErr{400}, conveyor.ClassPermanent},
		{"rate limit text", errors.New("Rate limit exceeded, slow down"), conveyor.ClassTransient},
		{"connection reset text", errors.New("read tcp: connection reset by peer"), conveyor.ClassTransient},
		{"unauthorized text", errors.New("401 Unauthorized"), conveyor.ClassPermanent},
		{"validation text", errors.New("validation failed: missing field"), conveyor.ClassPermanent},
		{"unknown defaults transient", errors.New("something odd happened"), conveyor.ClassTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retry.Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
