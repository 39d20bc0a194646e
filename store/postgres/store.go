package postgres

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	videogen "github.com/keerthanap8898/TextToVideoAPI"
	"github.com/keerthanap8898/TextToVideoAPI/dlq"
	"github.com/keerthanap8898/TextToVideoAPI/job"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Compile-time interface checks.
var (
	_ job.Store = (*Store)(nil)
	_ dlq.Store = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements the composite store.Store interface backed by PostgreSQL.
type Store struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	ownsPool bool
}

// New connects to PostgreSQL with the given DSN and returns a store that
// owns the connection pool.
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("videogen/postgres: connect: %w", err)
	}

	s := NewFromPool(pool, opts...)
	s.ownsPool = true
	return s, nil
}

// NewFromPool wraps an existing pool. The caller keeps ownership; Close
// will not tear the pool down.
func NewFromPool(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate applies any pending embedded migrations in lexical order.
// Applied migrations are recorded in videogen_migrations and skipped on
// subsequent calls, so Migrate is safe to run at every startup.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS videogen_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("%w: create tracking table: %w", videogen.ErrMigrationFailed, err)
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("%w: read embedded migrations: %w", videogen.ErrMigrationFailed, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		applied, err := s.migrationApplied(ctx, name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := s.applyMigration(ctx, name); err != nil {
			return err
		}
		s.logger.Info("applied migration", "name", name)
	}
	return nil
}

func (s *Store) migrationApplied(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM videogen_migrations WHERE name = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: check %s: %w", videogen.ErrMigrationFailed, name, err)
	}
	return exists, nil
}

func (s *Store) applyMigration(ctx context.Context, name string) error {
	sql, err := migrationFS.ReadFile("migrations/" + name)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", videogen.ErrMigrationFailed, name, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin %s: %w", videogen.ErrMigrationFailed, name, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("%w: apply %s: %w", videogen.ErrMigrationFailed, name, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO videogen_migrations (name) VALUES ($1)`, name,
	); err != nil {
		return fmt.Errorf("%w: record %s: %w", videogen.ErrMigrationFailed, name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit %s: %w", videogen.ErrMigrationFailed, name, err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool if this store created it.
func (s *Store) Close(_ context.Context) error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}
