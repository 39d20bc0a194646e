package videogen

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("videogen: no store configured")
	ErrNoQueue         = errors.New("videogen: no delivery queue configured")
	ErrStoreClosed     = errors.New("videogen: store closed")
	ErrMigrationFailed = errors.New("videogen: migration failed")

	// Not found errors.
	ErrJobNotFound = errors.New("videogen: job not found")
	ErrDLQNotFound = errors.New("videogen: dlq entry not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("videogen: job already exists")
	ErrConflict         = errors.New("videogen: concurrent state change")

	// State errors.
	ErrInvalidState     = errors.New("videogen: invalid state transition")
	ErrTerminal         = errors.New("videogen: job already terminal")
	ErrRetriesExhausted = errors.New("videogen: retries exhausted")
	ErrCancelled        = errors.New("videogen: job cancelled")

	// ErrStaleAttempt marks an event carrying an attempt number older than
	// the job's current attempt. Internal: it never reaches callers of the
	// engine API, events from superseded attempts are simply discarded.
	ErrStaleAttempt = errors.New("videogen: stale attempt")

	// Validation errors.
	ErrInvalidParams = errors.New("videogen: invalid generation parameters")
)
