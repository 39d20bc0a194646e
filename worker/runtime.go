package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/keerthanap8898/TextToVideoAPI/event"
	"github.com/keerthanap8898/TextToVideoAPI/id"
	"github.com/keerthanap8898/TextToVideoAPI/job"
	"github.com/keerthanap8898/TextToVideoAPI/middleware"
	"github.com/keerthanap8898/TextToVideoAPI/vwp"
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

// WithMarkers sets the completion marker store. Defaults to in-memory.
func WithMarkers(m Markers) Option {
	return func(r *Runtime) { r.markers = m }
}

// WithMiddleware sets the middleware chain wrapped around every attempt.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(r *Runtime) { r.mw = middleware.Chain(mws...) }
}

// WithWorkerID pins the runtime's worker identity.
func WithWorkerID(wid id.WorkerID) Option {
	return func(r *Runtime) { r.workerID = wid }
}

// Runtime serves generate requests on the worker side. It checks the
// completion marker, resolves a generator for the quality tier, runs it
// through the middleware chain, and streams progress plus exactly one
// terminal event back.
type Runtime struct {
	registry *Registry
	markers  Markers
	mw       middleware.Middleware
	logger   *slog.Logger
	workerID id.WorkerID
}

var _ vwp.GenerateHandler = (*Runtime)(nil)

// NewRuntime creates a runtime around a generator registry.
func NewRuntime(registry *Registry, opts ...Option) *Runtime {
	r := &Runtime{
		registry: registry,
		markers:  NewMemoryMarkers(),
		mw:       middleware.Chain(),
		logger:   slog.Default(),
		workerID: id.NewWorkerID(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// WorkerID returns the runtime's worker identity.
func (r *Runtime) WorkerID() id.WorkerID { return r.workerID }

// Generate runs one attempt and emits its events. Always terminal:
// every path emits exactly one Result or Fail.
func (r *Runtime) Generate(ctx context.Context, req vwp.GenerateRequest, emit vwp.Emitter) {
	if err := req.Params.Validate(); err != nil {
		_ = emit.Fail(job.KindValidation, err.Error())
		return
	}

	// Billable work runs at most once per attempt: a redelivered request
	// with a marker replays the stored artifact.
	if a, ok, err := r.markers.Completed(ctx, req.JobID, req.Attempt); err == nil && ok {
		r.logger.Info("duplicate attempt, replaying completion marker",
			slog.String("job_id", req.JobID.String()),
			slog.Int("attempt", req.Attempt),
		)
		_ = emit.Result(*a)
		return
	} else if err != nil {
		r.logger.Warn("completion marker check failed",
			slog.String("job_id", req.JobID.String()),
			slog.String("error", err.Error()),
		)
	}

	gen, ok := r.registry.Get(req.Params.Quality)
	if !ok {
		_ = emit.Fail(job.KindInternal, fmt.Sprintf("no generator for quality %q", req.Params.Quality))
		return
	}

	j := &job.Job{
		ID:      req.JobID,
		Params:  req.Params,
		State:   job.StateRunning,
		Attempt: req.Attempt,
	}
	if !req.LeaseExpiresAt.IsZero() {
		lease := req.LeaseExpiresAt
		j.LeaseExpiresAt = &lease
	}

	var artifact event.Artifact
	run := func(ctx context.Context) error {
		a, genErr := gen.Generate(ctx, req.Params, func(step, totalSteps int) {
			_ = emit.Progress(step, totalSteps)
		})
		if genErr != nil {
			return genErr
		}
		artifact = a
		return nil
	}

	if err := r.mw(ctx, j, run); err != nil {
		kind, msg := classify(err)
		_ = emit.Fail(kind, msg)
		return
	}

	if err := r.markers.MarkCompleted(ctx, req.JobID, req.Attempt, artifact); err != nil {
		r.logger.Warn("completion marker write failed",
			slog.String("job_id", req.JobID.String()),
			slog.Int("attempt", req.Attempt),
			slog.String("error", err.Error()),
		)
	}
	_ = emit.Result(artifact)
}

// classify maps a generation error to the failure taxonomy. Unclassified
// errors are transient: the orchestrator decides whether budget remains.
func classify(err error) (job.ErrorKind, string) {
	var jerr *job.Error
	if errors.As(err, &jerr) {
		return jerr.Kind, jerr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return job.KindTransient, "attempt deadline exceeded"
	}
	if errors.Is(err, context.Canceled) {
		return job.KindCancelled, "attempt cancelled"
	}
	return job.KindTransient, err.Error()
}
