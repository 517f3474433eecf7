package breaker

import "sync"

// Registry holds exactly one Breaker per handler id, shared across all
// concurrent tasks targeting that handler. It is safe for concurrent use.
type Registry struct {
	config   Config
	listener Listener

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryListener sets the state-change listener applied to every
// breaker the registry creates.
func WithRegistryListener(l Listener) RegistryOption {
	return func(r *Registry) { r.listener = l }
}

// NewRegistry creates a Registry that builds breakers with the given config.
func NewRegistry(config Config, opts ...RegistryOption) *Registry {
	r := &Registry{
		config:   config,
		breakers: make(map[string]*Breaker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the breaker for the given handler id, creating it on first
// use. Every caller sees the same instance.
func (r *Registry) Get(handlerID string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[handlerID]
	if !ok {
		b = New(handlerID, r.config, WithListener(r.listener))
		r.breakers[handlerID] = b
	}
	return b
}

// Snapshots returns a snapshot of every breaker in the registry.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	snaps := make([]Snapshot, 0, len(breakers))
	for _, b := range breakers {
		snaps = append(snaps, b.Snapshot())
	}
	return snaps
}

// AnyOpen reports whether any breaker is currently open. Health checks
// use this to report degraded without failing outright.
func (r *Registry) AnyOpen() bool {
	for _, s := range r.Snapshots() {
		if s.State == StateOpen {
			return true
		}
	}
	return false
}
