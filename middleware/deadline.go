package middleware

import (
	"context"
	"log/slog"

	"github.com/keerthanap8898/TextToVideoAPI/job"
)

// Deadline returns middleware that bounds the attempt by the job's lease.
// A running job always carries a lease expiry; the attempt must not
// outlive it, because past that point the reconciler may hand the job to
// another worker. When the deadline lapses the context is cancelled and
// the handler should return context.DeadlineExceeded.
func Deadline(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if j.LeaseExpiresAt != nil {
			logger.Debug("attempt deadline set",
				slog.String("job_id", j.ID.String()),
				slog.Time("lease_expires_at", *j.LeaseExpiresAt),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithDeadline(ctx, *j.LeaseExpiresAt)
			defer cancel()
		}
		return next(ctx)
	}
}
