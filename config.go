package conveyor

import "time"

// Config holds configuration for the Orchestrator.
type Config struct {
	// Concurrency is the maximum number of tasks processed concurrently
	// by the worker pool.
	Concurrency int

	// Queues is the list of queue keys the worker pool will poll.
	Queues []string

	// PollInterval is how often queue subscribers poll for new tasks,
	// results, and stream updates.
	PollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight tasks
	// to finish cooperatively during shutdown.
	ShutdownTimeout time.Duration

	// MaxReflectionRounds bounds rework/reflection loops. A quality
	// review that keeps returning a rework verdict forces progression
	// once a workflow has looped this many times.
	MaxReflectionRounds int

	// QueueTTL is the expiry applied to durable queue keys so abandoned
	// queues are garbage collected by the backend.
	QueueTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:         10,
		Queues:              []string{"default"},
		PollInterval:        time.Second,
		ShutdownTimeout:     30 * time.Second,
		MaxReflectionRounds: 3,
		QueueTTL:            24 * time.Hour,
	}
}
