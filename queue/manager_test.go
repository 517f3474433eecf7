package queue

import (
	"sync"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Manager basics
// ---------------------------------------------------------------------------

func TestNewManager_Empty(t *testing.T) {
	m := NewManager()
	// No configs; Acquire/Release should always succeed.
	if !m.Acquire("any-queue") {
		t.Fatal("expected Acquire to succeed for unconfigured queue")
	}
	m.Release("any-queue")
}

func TestNewManager_WithConfig(t *testing.T) {
	m := NewManager(Config{
		Name:           "review",
		MaxConcurrency: 2,
	})
	if m.ActiveCount("review") != 0 {
		t.Fatal("expected 0 active tasks initially")
	}
}

// ---------------------------------------------------------------------------
// Concurrency limits
// ---------------------------------------------------------------------------

func TestManager_MaxConcurrency(t *testing.T) {
	m := NewManager(Config{
		Name:           "review",
		MaxConcurrency: 2,
	})

	if !m.Acquire("review") {
		t.Fatal("first Acquire should succeed")
	}
	if !m.Acquire("review") {
		t.Fatal("second Acquire should succeed")
	}
	// Third should be blocked.
	if m.Acquire("review") {
		t.Fatal("third Acquire should fail (max concurrency 2)")
	}

	// Release one slot.
	m.Release("review")
	if !m.Acquire("review") {
		t.Fatal("Acquire should succeed after Release")
	}
}

func TestManager_AcquireRelease_ActiveCount(t *testing.T) {
	m := NewManager(Config{
		Name:           "q",
		MaxConcurrency: 5,
	})

	for i := range 3 {
		if !m.Acquire("q") {
			t.Fatalf("Acquire %d should succeed", i)
		}
	}
	if m.ActiveCount("q") != 3 {
		t.Fatalf("expected 3 active, got %d", m.ActiveCount("q"))
	}

	m.Release("q")
	m.Release("q")
	if m.ActiveCount("q") != 1 {
		t.Fatalf("expected 1 active, got %d", m.ActiveCount("q"))
	}
}

func TestManager_ReleaseNeverGoesNegative(t *testing.T) {
	m := NewManager(Config{Name: "q", MaxConcurrency: 1})
	m.Release("q")
	m.Release("q")
	if m.ActiveCount("q") != 0 {
		t.Fatalf("expected 0 active, got %d", m.ActiveCount("q"))
	}
}

// ---------------------------------------------------------------------------
// Rate limits
// ---------------------------------------------------------------------------

func TestManager_RateLimit(t *testing.T) {
	m := NewManager(Config{
		Name:      "slow",
		RateLimit: 1, // 1 task/s
		RateBurst: 1,
	})

	if !m.Acquire("slow") {
		t.Fatal("first Acquire should consume the only token")
	}
	m.Release("slow")

	// The bucket is empty; an immediate second Acquire fails.
	if m.Acquire("slow") {
		t.Fatal("second Acquire should be rate limited")
	}
}

func TestManager_RateBurstDefaultsToOne(t *testing.T) {
	m := NewManager(Config{Name: "q", RateLimit: 0.001})

	if !m.Acquire("q") {
		t.Fatal("burst of 1 should allow the first Acquire")
	}
	m.Release("q")
	if m.Acquire("q") {
		t.Fatal("second Acquire should be rate limited")
	}
}

// ---------------------------------------------------------------------------
// Dynamic reconfiguration
// ---------------------------------------------------------------------------

func TestManager_SetQueueConfig_PreservesActive(t *testing.T) {
	m := NewManager(Config{Name: "q", MaxConcurrency: 3})

	m.Acquire("q")
	m.Acquire("q")

	m.SetQueueConfig(Config{Name: "q", MaxConcurrency: 2})
	if m.ActiveCount("q") != 2 {
		t.Fatalf("expected 2 active after reconfigure, got %d", m.ActiveCount("q"))
	}
	// At the new limit already.
	if m.Acquire("q") {
		t.Fatal("Acquire should fail at new lower limit")
	}
}

// ---------------------------------------------------------------------------
// Concurrency safety
// ---------------------------------------------------------------------------

func TestManager_ConcurrentAcquireRelease(t *testing.T) {
	m := NewManager(Config{Name: "q", MaxConcurrency: 10})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Acquire("q") {
				time.Sleep(time.Millisecond)
				m.Release("q")
			}
		}()
	}
	wg.Wait()

	if m.ActiveCount("q") != 0 {
		t.Fatalf("expected drained queue, got %d active", m.ActiveCount("q"))
	}
}
