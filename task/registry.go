package task

import (
	"encoding/json"
	"fmt"
	"sync"
)

// HandlerFunc is a type-erased stage handler that accepts raw JSON input.
// The typed Definition[T] is converted to a HandlerFunc at registration
// time by closing over JSON unmarshal + the typed handler.
type HandlerFunc func(hctx *Context, input []byte) (*Output, error)

// Definition is a typed stage-handler definition.
// T is the input type (must be JSON-serializable for Task.Input storage).
type Definition[T any] struct {
	// ID is the unique handler identifier tasks are addressed to.
	ID string

	// Handler executes the stage work. It receives the handler Context
	// (progress, logging, cancellation) and the decoded input.
	Handler func(hctx *Context, input T) (*Output, error)
}

// NewDefinition creates a typed handler definition.
func NewDefinition[T any](handlerID string, handler func(hctx *Context, input T) (*Output, error)) *Definition[T] {
	return &Definition[T]{ID: handlerID, Handler: handler}
}

// Registry maps handler ids to type-erased handler functions.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

// RegisterDefinition registers a typed handler definition. The generic
// handler is wrapped in a closure that JSON-unmarshals the input into T
// before calling the typed handler.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	handler := func(hctx *Context, input []byte) (*Output, error) {
		var t T
		if len(input) > 0 {
			if err := json.Unmarshal(input, &t); err != nil {
				return nil, fmt.Errorf("unmarshal input for handler %q: %w", def.ID, err)
			}
		}
		return def.Handler(hctx, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.ID] = handler
}

// RegisterFunc registers a raw handler function under the given id.
func (r *Registry) RegisterFunc(handlerID string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[handlerID] = fn
}

// Get returns the handler for the given id.
// Returns false if no handler is registered.
func (r *Registry) Get(handlerID string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[handlerID]
	return h, ok
}

// IDs returns all registered handler ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.handlers))
	for handlerID := range r.handlers {
		ids = append(ids, handlerID)
	}
	return ids
}
