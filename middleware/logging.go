package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/keerthanap8898/TextToVideoAPI/job"
)

// Logging returns middleware that logs attempt start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		logger.Info("generation started",
			slog.String("job_id", j.ID.String()),
			slog.Int("attempt", j.Attempt),
			slog.Int("partition", j.Partition),
			slog.String("quality", string(j.Params.Quality)),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("generation failed",
				slog.String("job_id", j.ID.String()),
				slog.Int("attempt", j.Attempt),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("generation completed",
				slog.String("job_id", j.ID.String()),
				slog.Int("attempt", j.Attempt),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
