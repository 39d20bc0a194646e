// Package reconciler recovers jobs the normal dispatch path lost track
// of. It periodically sweeps the store for two kinds of strays:
//
//   - running jobs whose lease expired: the worker crashed or the
//     stream broke without a terminal event. The job goes back to
//     queued with backoff, or to failed when its attempt budget is
//     spent.
//   - queued jobs with no live delivery: the dispatch envelope was lost
//     (a publish failed after a state change). The envelope is
//     republished.
//
// Sweeps run on a fixed interval or, when configured, a cron schedule.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	videogen "github.com/keerthanap8898/TextToVideoAPI"
	"github.com/keerthanap8898/TextToVideoAPI/backoff"
	"github.com/keerthanap8898/TextToVideoAPI/dlq"
	"github.com/keerthanap8898/TextToVideoAPI/event"
	"github.com/keerthanap8898/TextToVideoAPI/hook"
	"github.com/keerthanap8898/TextToVideoAPI/job"
	"github.com/keerthanap8898/TextToVideoAPI/queue"
)

// sweepLimit bounds how many strays one sweep processes per category.
// Whatever is left is picked up by the next sweep.
const sweepLimit = 256

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithBackoff sets the requeue delay strategy for expired leases.
func WithBackoff(s backoff.Strategy) Option {
	return func(r *Reconciler) { r.backoff = s }
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// Reconciler sweeps for expired leases and stale queued jobs.
type Reconciler struct {
	store   job.Store
	queue   queue.Queue
	dlq     *dlq.Service
	hooks   *hook.Registry
	config  videogen.Config
	backoff backoff.Strategy
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a reconciler.
func New(
	store job.Store,
	q queue.Queue,
	dlqService *dlq.Service,
	hooks *hook.Registry,
	config videogen.Config,
	opts ...Option,
) *Reconciler {
	r := &Reconciler{
		store:   store,
		queue:   q,
		dlq:     dlqService,
		hooks:   hooks,
		config:  config,
		backoff: backoff.DefaultStrategy(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start launches the sweep loop. Returns an error if the configured
// cron schedule does not parse.
func (r *Reconciler) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	var sched cron.Schedule
	if r.config.ReconcileSchedule != "" {
		parsed, err := cron.ParseStandard(r.config.ReconcileSchedule)
		if err != nil {
			return fmt.Errorf("videogen/reconciler: schedule %q: %w", r.config.ReconcileSchedule, err)
		}
		sched = parsed
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go r.loop(ctx, sched)

	r.logger.Info("reconciler started",
		slog.Duration("interval", r.config.ReconcileInterval),
		slog.String("schedule", r.config.ReconcileSchedule),
	)
	return nil
}

// Stop halts the sweep loop and waits for an in-flight sweep.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("reconciler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) loop(ctx context.Context, sched cron.Schedule) {
	defer r.wg.Done()

	for {
		var wait time.Duration
		if sched != nil {
			wait = time.Until(sched.Next(r.now()))
		} else {
			wait = r.config.ReconcileInterval
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("sweep failed", slog.String("error", err.Error()))
		}
	}
}

// Sweep runs both recovery passes once. Exported so operators can
// trigger recovery out of band.
func (r *Reconciler) Sweep(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.sweepExpiredLeases(gctx) })
	g.Go(func() error { return r.sweepStaleQueued(gctx) })
	return g.Wait()
}

// sweepExpiredLeases recovers running jobs whose lease lapsed.
func (r *Reconciler) sweepExpiredLeases(ctx context.Context) error {
	now := r.now().UTC()
	expired, err := r.store.ExpiredLeases(ctx, now, sweepLimit)
	if err != nil {
		return fmt.Errorf("videogen/reconciler: expired leases: %w", err)
	}

	for _, j := range expired {
		if j.AttemptsExhausted() {
			r.failExpired(ctx, j, now)
		} else {
			r.requeueExpired(ctx, j, now)
		}
	}
	return nil
}

// requeueExpired puts an abandoned attempt back on the queue with
// backoff. The attempt number fences the mutation: if the job moved on
// since our read, the closure leaves it untouched.
func (r *Reconciler) requeueExpired(ctx context.Context, j *job.Job, now time.Time) {
	attempt := j.Attempt
	notBefore := backoff.NextDispatch(now, attempt, r.backoff)

	next, swapped, err := r.store.CompareAndSetState(ctx, j.ID, job.StateRunning, func(j *job.Job) {
		if j.Attempt != attempt || !j.LeaseExpired(now) {
			return
		}
		j.State = job.StateQueued
		j.NotBefore = notBefore
		j.Progress = job.Progress{}
		j.ClearLease()
	})
	if err != nil {
		r.logger.Error("lease requeue failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if !swapped || next.State != job.StateQueued || next.Attempt != attempt {
		return
	}

	r.logger.Info("expired lease requeued",
		slog.String("job_id", j.ID.String()),
		slog.Int("attempt", attempt),
		slog.Time("not_before", notBefore),
	)
	r.hooks.EmitJobRequeued(ctx, next, notBefore)
	r.publish(ctx, next)
}

// failExpired terminally fails a job whose last budgeted attempt died
// with its lease.
func (r *Reconciler) failExpired(ctx context.Context, j *job.Job, now time.Time) {
	attempt := j.Attempt
	jerr := &job.Error{
		Kind:    job.KindRetriesExhausted,
		Message: fmt.Sprintf("lease expired on final attempt %d", attempt),
	}

	next, swapped, err := r.store.CompareAndSetState(ctx, j.ID, job.StateRunning, func(j *job.Job) {
		if j.Attempt != attempt || !j.LeaseExpired(now) {
			return
		}
		j.State = job.StateFailed
		j.Error = jerr
		j.ArtifactRef = ""
		completed := now
		j.CompletedAt = &completed
		j.ClearLease()
	})
	if err != nil {
		r.logger.Error("lease fail failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if !swapped || next.State != job.StateFailed {
		return
	}

	r.logger.Warn("job failed: lease expired with no budget left",
		slog.String("job_id", j.ID.String()),
		slog.Int("attempt", attempt),
	)
	r.hooks.EmitJobFailed(ctx, next, next.Error)
	if err := r.dlq.Push(ctx, next); err != nil {
		r.logger.Error("dlq push failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	r.hooks.EmitJobDLQ(ctx, next)
}

// sweepStaleQueued republishes envelopes for queued jobs that have sat
// past the dispatch grace period, covering lost publishes. The job is
// touched under CAS so one republish per grace period, not per sweep.
func (r *Reconciler) sweepStaleQueued(ctx context.Context) error {
	now := r.now().UTC()
	cutoff := now.Add(-r.config.DispatchGrace)
	stale, err := r.store.StaleQueued(ctx, cutoff, sweepLimit)
	if err != nil {
		return fmt.Errorf("videogen/reconciler: stale queued: %w", err)
	}

	for _, j := range stale {
		// NotBefore in the future means the job is waiting out backoff,
		// not lost.
		if j.NotBefore.After(now) {
			continue
		}

		_, swapped, casErr := r.store.CompareAndSetState(ctx, j.ID, job.StateQueued, func(*job.Job) {})
		if casErr != nil || !swapped {
			continue
		}

		r.logger.Info("republishing stale queued job",
			slog.String("job_id", j.ID.String()),
			slog.Int("partition", j.Partition),
		)
		r.publish(ctx, j)
	}
	return nil
}

func (r *Reconciler) publish(ctx context.Context, j *job.Job) {
	err := r.queue.Publish(ctx, j.Partition, event.Dispatch{
		JobID:      j.ID,
		EnqueuedAt: r.now().UTC(),
	})
	if err != nil {
		// The job stays queued; the stale-queued sweep retries later.
		r.logger.Warn("republish failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}
