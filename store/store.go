// Package store defines the aggregate persistence interface. Each
// subsystem (checkpoint, approval, event) defines its own store
// interface; the composite Store composes them all. Backends: Memory,
// Redis, and SQLite.
package store

import (
	"context"

	"github.com/conveyordev/conveyor/approval"
	"github.com/conveyordev/conveyor/checkpoint"
	"github.com/conveyordev/conveyor/event"
)

// Store is the aggregate persistence interface. A single backend
// implements every subsystem store.
type Store interface {
	checkpoint.Store
	approval.Store
	event.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
