package store

import (
	"context"

	"github.com/keerthanap8898/TextToVideoAPI/dlq"
	"github.com/keerthanap8898/TextToVideoAPI/job"
)

// Store is the aggregate persistence interface. Each subsystem store is a
// composable interface; a single backend (postgres, redis, memory)
// implements all of them.
type Store interface {
	job.Store
	dlq.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close(ctx context.Context) error
}
