package queue

import (
	"sync"
	"time"

	"github.com/conveyordev/conveyor"
)

// Subscriptions manages poll-loop goroutines keyed by subscription key
// (handler ID for results, task ID for streams). Backends embed one per
// subscription kind. It is safe for concurrent use.
type Subscriptions struct {
	interval time.Duration

	mu    sync.Mutex
	stops map[string]chan struct{}
	wg    sync.WaitGroup
}

// NewSubscriptions creates a subscription manager polling at the given
// interval. A non-positive interval falls back to DefaultPollInterval.
func NewSubscriptions(interval time.Duration) *Subscriptions {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Subscriptions{
		interval: interval,
		stops:    make(map[string]chan struct{}),
	}
}

// Start launches a poll loop invoking poll once per interval until the
// subscription is stopped. Returns conveyor.ErrAlreadySubscribed if a
// loop for the key is already running.
func (s *Subscriptions) Start(key string, poll func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stops[key]; ok {
		return conveyor.ErrAlreadySubscribed
	}

	stop := make(chan struct{})
	s.stops[key] = stop

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				poll()
			}
		}
	}()
	return nil
}

// Stop terminates the poll loop for the key. Returns
// conveyor.ErrNotSubscribed if no loop is running.
func (s *Subscriptions) Stop(key string) error {
	s.mu.Lock()
	stop, ok := s.stops[key]
	if ok {
		delete(s.stops, key)
	}
	s.mu.Unlock()

	if !ok {
		return conveyor.ErrNotSubscribed
	}
	close(stop)
	return nil
}

// StopAll terminates every poll loop and waits for them to exit.
func (s *Subscriptions) StopAll() {
	s.mu.Lock()
	for key, stop := range s.stops {
		close(stop)
		delete(s.stops, key)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
