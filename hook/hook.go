// Package hook defines the lifecycle extension system. Extensions are
// notified as jobs move through the pipeline — submitted, dispatched,
// progressed, finished — and can react to them: audit logging, metrics,
// notifications.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/keerthanap8898/TextToVideoAPI/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// JobSubmitted is called after a job is created and published for dispatch.
type JobSubmitted interface {
	OnJobSubmitted(ctx context.Context, j *job.Job) error
}

// JobDispatched is called when the dispatcher claims a job and a worker
// attempt begins.
type JobDispatched interface {
	OnJobDispatched(ctx context.Context, j *job.Job) error
}

// JobProgress is called on each accepted progress report.
type JobProgress interface {
	OnJobProgress(ctx context.Context, j *job.Job, percent float64) error
}

// JobSucceeded is called after a job produces its artifact.
type JobSucceeded interface {
	OnJobSucceeded(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job fails terminally.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, jobErr *job.Error) error
}

// JobRequeued is called when an attempt is abandoned and the job goes
// back to the queue.
type JobRequeued interface {
	OnJobRequeued(ctx context.Context, j *job.Job, nextDispatchAt time.Time) error
}

// JobDLQ is called when a job is moved to the dead letter queue.
type JobDLQ interface {
	OnJobDLQ(ctx context.Context, j *job.Job) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
