package backoff_test

import (
	"testing"
	"time"

	"github.com/conveyordev/conveyor/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestExponential_GrowsByMultiplier(t *testing.T) {
	e := backoff.NewExponential(time.Second, 2, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},  // 1 * 2^0
		{2, 2 * time.Second},  // 1 * 2^1
		{3, 4 * time.Second},  // 1 * 2^2
		{4, 8 * time.Second},  // 1 * 2^3
		{5, 16 * time.Second}, // 1 * 2^4
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CustomMultiplier(t *testing.T) {
	e := backoff.NewExponential(time.Second, 3, time.Hour)

	if got := e.Delay(3); got != 9*time.Second {
		t.Errorf("Delay(3) = %v, want %v", got, 9*time.Second)
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 2, 10*time.Second)

	// Attempt 5 = 16s > 10s max → should return 10s.
	if got := e.Delay(5); got != 10*time.Second {
		t.Errorf("Delay(5) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
	if got := e.Delay(20); got != 10*time.Second {
		t.Errorf("Delay(20) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
}

func TestExponential_InvalidMultiplierDefaultsToTwo(t *testing.T) {
	e := backoff.NewExponential(time.Second, 0.5, time.Hour)

	if got := e.Delay(2); got != 2*time.Second {
		t.Errorf("Delay(2) = %v, want %v", got, 2*time.Second)
	}
}

func TestJitter_WithinBounds(t *testing.T) {
	base := backoff.NewExponential(time.Second, 2, time.Hour)
	j := backoff.NewJitter(base, 0.3, time.Hour)

	for attempt := 1; attempt <= 5; attempt++ {
		lower := base.Delay(attempt)
		upper := lower + time.Duration(float64(lower)*0.3)

		for range 100 {
			got := j.Delay(attempt)
			if got < lower {
				t.Errorf("Delay(%d) = %v, should be >= base %v", attempt, got, lower)
			}
			if got > upper {
				t.Errorf("Delay(%d) = %v, should be <= %v", attempt, got, upper)
			}
		}
	}
}

func TestJitter_CapsAtMax(t *testing.T) {
	base := backoff.NewExponential(time.Second, 2, time.Hour)
	j := backoff.NewJitter(base, 0.3, 3*time.Second)

	for range 100 {
		if got := j.Delay(10); got != 3*time.Second {
			t.Errorf("Delay(10) = %v, want %v (capped at Max)", got, 3*time.Second)
		}
	}
}

func TestJitter_ProducesVariance(t *testing.T) {
	j := backoff.NewJitter(backoff.NewExponential(time.Second, 2, time.Minute), 0.3, time.Minute)

	seen := make(map[time.Duration]bool)
	for range 100 {
		seen[j.Delay(3)] = true
	}

	if len(seen) < 2 {
		t.Errorf("expected variance in jitter, got only %d distinct values", len(seen))
	}
}

func TestDefaultStrategy(t *testing.T) {
	s := backoff.DefaultStrategy()
	if s == nil {
		t.Fatal("DefaultStrategy() returned nil")
	}
	if d := s.Delay(1); d < time.Second {
		t.Errorf("Delay(1) = %v, want >= 1s", d)
	}
}
