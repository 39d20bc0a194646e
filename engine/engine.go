// Package engine wires the videogen subsystems together: store, queue,
// worker client, dispatcher, reconciler, DLQ, and lifecycle hooks. It
// exposes the boundary operations a gateway calls — Submit, GetStatus,
// Cancel, ListJobs, and DLQ inspection.
//
// This package exists to break the import cycle: the root videogen
// package defines Entity (imported by job, dlq, etc.) and so cannot
// import those packages back. The engine sits above all subsystem
// packages and below the application layer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	videogen "github.com/keerthanap8898/TextToVideoAPI"
	"github.com/keerthanap8898/TextToVideoAPI/backoff"
	"github.com/keerthanap8898/TextToVideoAPI/dispatcher"
	"github.com/keerthanap8898/TextToVideoAPI/dlq"
	"github.com/keerthanap8898/TextToVideoAPI/event"
	"github.com/keerthanap8898/TextToVideoAPI/hook"
	"github.com/keerthanap8898/TextToVideoAPI/id"
	"github.com/keerthanap8898/TextToVideoAPI/job"
	"github.com/keerthanap8898/TextToVideoAPI/observability"
	"github.com/keerthanap8898/TextToVideoAPI/projector"
	"github.com/keerthanap8898/TextToVideoAPI/queue"
	"github.com/keerthanap8898/TextToVideoAPI/reconciler"
)

// Status is the projection returned by GetStatus: what a polling client
// needs and nothing more.
type Status struct {
	JobID           id.JobID   `json:"job_id"`
	State           job.State  `json:"state"`
	ProgressPercent float64    `json:"progress_percent"`
	Attempt         int        `json:"attempt"`
	ArtifactRef     string     `json:"artifact_ref,omitempty"`
	Error           *job.Error `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers a lifecycle extension.
func WithExtension(e hook.Extension) Option {
	return func(eng *Engine) { eng.hooks.Register(e) }
}

// WithBackoff sets the requeue delay strategy used by the projector and
// the reconciler. Default is exponential with full jitter.
func WithBackoff(s backoff.Strategy) Option {
	return func(eng *Engine) { eng.backoff = s }
}

// WithDispatchRateLimit caps how many attempts per second the
// dispatcher starts. Default is unlimited.
func WithDispatchRateLimit(limit rate.Limit, burst int) Option {
	return func(eng *Engine) {
		eng.rateLimit = limit
		eng.rateBurst = burst
	}
}

// Engine is the assembled orchestration core.
type Engine struct {
	o      *videogen.Orchestrator
	config videogen.Config
	logger *slog.Logger

	store  job.Store
	queue  queue.Queue
	client dispatcher.WorkerClient
	hooks  *hook.Registry
	dlq    *dlq.Service

	backoff   backoff.Strategy
	rateLimit rate.Limit
	rateBurst int

	disp  *dispatcher.Dispatcher
	recon *reconciler.Reconciler
}

// Build assembles an Engine around an Orchestrator. The orchestrator's
// store must implement job.Store and dlq.Store.
func Build(o *videogen.Orchestrator, q queue.Queue, client dispatcher.WorkerClient, opts ...Option) (*Engine, error) {
	store := o.Store()
	if store == nil {
		return nil, videogen.ErrNoStore
	}
	if q == nil {
		return nil, videogen.ErrNoQueue
	}

	js, ok := store.(job.Store)
	if !ok {
		return nil, fmt.Errorf("videogen: store %T does not implement job.Store", store)
	}
	ds, ok := store.(dlq.Store)
	if !ok {
		return nil, fmt.Errorf("videogen: store %T does not implement dlq.Store", store)
	}

	logger := o.Logger()
	eng := &Engine{
		o:         o,
		config:    o.Config(),
		logger:    logger,
		store:     js,
		queue:     q,
		client:    client,
		hooks:     hook.NewRegistry(logger),
		backoff:   backoff.DefaultStrategy(),
		rateLimit: rate.Inf,
	}
	eng.hooks.Register(observability.NewMetricsExtension())
	for _, opt := range opts {
		opt(eng)
	}

	eng.dlq = dlq.NewService(ds, js)

	proj := projector.New(projector.WithBackoff(eng.backoff))
	workerID := id.NewWorkerID()

	eng.disp = dispatcher.New(js, q, client, eng.dlq, eng.hooks, eng.config,
		dispatcher.WithLogger(logger),
		dispatcher.WithWorkerID(workerID),
		dispatcher.WithProjector(proj),
		dispatcher.WithRateLimit(eng.rateLimit, eng.rateBurst),
	)
	eng.recon = reconciler.New(js, q, eng.dlq, eng.hooks, eng.config,
		reconciler.WithLogger(logger),
		reconciler.WithBackoff(eng.backoff),
	)

	o.AddRunner(eng.disp)
	o.AddRunner(eng.recon)
	o.SetHooks(eng.hooks)

	return eng, nil
}

// Start begins dispatching and reconciling.
func (eng *Engine) Start(ctx context.Context) error { return eng.o.Start(ctx) }

// Stop gracefully shuts the engine down: runners first, then hooks,
// then the store.
func (eng *Engine) Stop(ctx context.Context) error { return eng.o.Stop(ctx) }

// Hooks returns the lifecycle extension registry.
func (eng *Engine) Hooks() *hook.Registry { return eng.hooks }

// DLQService returns the dead letter queue service.
func (eng *Engine) DLQService() *dlq.Service { return eng.dlq }

// ── Submit ──────────────────────────────────────────

// SubmitOption configures one submission.
type SubmitOption func(*submitOpts)

type submitOpts struct {
	jobID string
}

// WithJobID supplies a client-chosen job ID, making the submission
// idempotent across gateway retries. Must be a TypeID string with the
// "job" prefix.
func WithJobID(s string) SubmitOption {
	return func(o *submitOpts) { o.jobID = s }
}

// Submit validates the params, persists a queued job, and publishes its
// dispatch envelope. Resubmitting an existing job ID returns the
// existing job unchanged.
func (eng *Engine) Submit(ctx context.Context, params job.Params, opts ...SubmitOption) (*job.Job, error) {
	var so submitOpts
	for _, o := range opts {
		o(&so)
	}

	jobID := id.NewJobID()
	if so.jobID != "" {
		parsed, err := id.ParseJobID(so.jobID)
		if err != nil {
			return nil, fmt.Errorf("%w: job id: %w", videogen.ErrInvalidParams, err)
		}
		jobID = parsed
	}

	j, err := job.New(jobID, params, eng.config.MaxAttempts)
	if err != nil {
		return nil, err
	}
	j.Partition = queue.PartitionFor(j.ID, eng.queue.Partitions())

	if err := eng.store.CreateJob(ctx, j); err != nil {
		if errors.Is(err, videogen.ErrJobAlreadyExists) {
			return eng.store.GetJob(ctx, jobID)
		}
		return nil, err
	}

	if err := eng.queue.Publish(ctx, j.Partition, event.Dispatch{
		JobID:      j.ID,
		EnqueuedAt: time.Now().UTC(),
	}); err != nil {
		// The record exists; the reconciler's stale-queued sweep will
		// republish the envelope.
		eng.logger.Warn("dispatch publish failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	eng.hooks.EmitJobSubmitted(ctx, j)
	eng.logger.Info("job submitted",
		slog.String("job_id", j.ID.String()),
		slog.Int("partition", j.Partition),
		slog.String("quality", string(params.Quality)),
	)
	return j, nil
}

// ── GetStatus ───────────────────────────────────────

// GetStatus returns the status projection for one job.
func (eng *Engine) GetStatus(ctx context.Context, jobID id.JobID) (Status, error) {
	j, err := eng.store.GetJob(ctx, jobID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		JobID:           j.ID,
		State:           j.State,
		ProgressPercent: j.Progress.Percent(),
		Attempt:         j.Attempt,
		ArtifactRef:     j.ArtifactRef,
		Error:           j.Error,
		CreatedAt:       j.CreatedAt,
		CompletedAt:     j.CompletedAt,
	}, nil
}

// ── Cancel ──────────────────────────────────────────

// Cancel forces a queued or running job to failed with a cancelled
// error. Fire-and-forget toward the worker: a running attempt gets a
// best-effort cancel signal, and any events it still emits are fenced
// off as stale. Cancelling a terminal job returns ErrTerminal.
func (eng *Engine) Cancel(ctx context.Context, jobID id.JobID) error {
	j, err := eng.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.State.Terminal() {
		return videogen.ErrTerminal
	}

	cancelled, wasRunning, err := eng.forceCancel(ctx, j)
	if err != nil {
		return err
	}
	if cancelled == nil {
		// Both CAS attempts lost: the job went terminal concurrently.
		return videogen.ErrTerminal
	}

	if wasRunning {
		// Tell the worker to stop burning GPU time. Outcome irrelevant:
		// the store already holds the terminal state.
		attempt := cancelled.Attempt
		go func() {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if cerr := eng.client.Cancel(cctx, jobID, attempt); cerr != nil {
				eng.logger.Debug("worker cancel signal failed",
					slog.String("job_id", jobID.String()),
					slog.String("error", cerr.Error()),
				)
			}
		}()
	}

	eng.hooks.EmitJobFailed(ctx, cancelled, cancelled.Error)
	eng.logger.Info("job cancelled", slog.String("job_id", jobID.String()))
	return nil
}

// forceCancel tries queued → failed first, then running → failed.
func (eng *Engine) forceCancel(ctx context.Context, j *job.Job) (*job.Job, bool, error) {
	mutate := func(j *job.Job) {
		now := time.Now().UTC()
		j.State = job.StateFailed
		j.Error = &job.Error{Kind: job.KindCancelled, Message: "cancelled by request"}
		j.ArtifactRef = ""
		j.CompletedAt = &now
		j.ClearLease()
	}

	for _, from := range []job.State{job.StateQueued, job.StateRunning} {
		next, swapped, err := eng.store.CompareAndSetState(ctx, j.ID, from, mutate)
		if err != nil {
			return nil, false, err
		}
		if swapped {
			return next, from == job.StateRunning, nil
		}
		if next.State.Terminal() {
			return nil, false, nil
		}
	}
	return nil, false, nil
}

// ── Listing and DLQ ─────────────────────────────────

// ListJobs returns jobs in creation order with a next cursor.
func (eng *Engine) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, string, error) {
	return eng.store.ListJobs(ctx, opts)
}

// CountJobs returns the number of jobs matching opts.
func (eng *Engine) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	return eng.store.CountJobs(ctx, opts)
}

// ListDLQ returns dead letter entries, newest first.
func (eng *Engine) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	return eng.dlq.DLQStore().ListDLQ(ctx, opts)
}

// ReplayDLQ resubmits a dead-lettered job's parameters as a fresh job.
func (eng *Engine) ReplayDLQ(ctx context.Context, entryID id.DLQID) (*job.Job, error) {
	j, err := eng.dlq.Replay(ctx, entryID, eng.queue)
	if err != nil {
		return j, err
	}
	eng.hooks.EmitJobSubmitted(ctx, j)
	return j, nil
}
