package job

import (
	"context"
	"time"

	"github.com/keerthanap8898/TextToVideoAPI/id"
)

// Mutation edits a job in place inside a compare-and-set. It runs under
// the store's concurrency control and must not block.
type Mutation func(*Job)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Cursor resumes after the given job ID. Job IDs are K-sortable, so
	// iteration is creation-ordered. Empty starts from the beginning.
	Cursor string
	// State filters by job state. Empty means all states.
	State State
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// State filters by job state. Empty means all states.
	State State
}

// Store defines the persistence contract for jobs. It is the sole
// mutation authority: every transition goes through CompareAndSetState.
type Store interface {
	// CreateJob persists a new queued job. Returns
	// videogen.ErrJobAlreadyExists if the ID is taken.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// CompareAndSetState atomically applies mutate to the job iff it is
	// still in the expected state. Returns the resulting job and whether
	// the swap happened. A lost race returns the current job, false, and
	// no error; the caller decides whether that means "drop the work"
	// (duplicate delivery, stale attempt) or "re-read and retry".
	CompareAndSetState(ctx context.Context, jobID id.JobID, expected State, mutate Mutation) (*Job, bool, error)

	// ListJobs returns jobs in creation order with an opaque next cursor.
	// An empty cursor means the listing is exhausted.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, string, error)

	// ExpiredLeases returns up to limit running jobs whose lease lapsed
	// before now. Zero limit means no limit.
	ExpiredLeases(ctx context.Context, now time.Time, limit int) ([]*Job, error)

	// StaleQueued returns up to limit queued jobs last updated before
	// cutoff, candidates for republishing lost dispatches.
	StaleQueued(ctx context.Context, cutoff time.Time, limit int) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)
}
