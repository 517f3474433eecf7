// Package sqlite implements store.Store on an embedded SQLite database
// (modernc.org/sqlite, no cgo). Checkpoints, approvals, and events are
// stored as JSON payloads beside indexed columns; schema migrations are
// embedded and applied by Migrate.
//
// Usage:
//
//	s, err := sqlite.Open("conveyor.db")
//	if err != nil { ... }
//	if err := s.Migrate(ctx); err != nil { ... }
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/conveyordev/conveyor/approval"
	"github.com/conveyordev/conveyor/checkpoint"
	"github.com/conveyordev/conveyor/event"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Compile-time interface checks.
var (
	_ checkpoint.Store = (*Store)(nil)
	_ approval.Store   = (*Store)(nil)
	_ event.Store      = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMaxOpenConns overrides the connection pool size.
func WithMaxOpenConns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// Store implements the composite store.Store interface backed by SQLite.
type Store struct {
	db           *sql.DB
	logger       *slog.Logger
	maxOpenConns int
}

// Open opens (creating if necessary) the database at path. WAL mode and
// foreign keys are enabled through the DSN.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("conveyor/sqlite: database path is required")
	}

	s := &Store{
		logger:       slog.Default(),
		maxOpenConns: 25,
	}
	for _, o := range opts {
		o(s)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("conveyor/sqlite: open database: %w", err)
	}
	db.SetMaxOpenConns(s.maxOpenConns)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s.db = db
	return s, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate applies all embedded schema migrations.
func (s *Store) Migrate(_ context.Context) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("conveyor/sqlite: migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("conveyor/sqlite: migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("conveyor/sqlite: migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("conveyor/sqlite: migrate up: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
