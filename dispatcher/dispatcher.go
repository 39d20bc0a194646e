// Package dispatcher runs the orchestrator-side dispatch loops. One
// loop per queue partition fetches deliveries, claims the job with a
// compare-and-set into running, streams the attempt through a worker
// client, and folds the worker's events back into the store via the
// projector.
//
// Deliveries are at-least-once, so every step tolerates duplicates: a
// delivery for a job that is already running, terminal, or gone is
// acked and dropped. A delivery for a job whose NotBefore is still in
// the future is left unacked so the backend redelivers it after the
// visibility timeout.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	videogen "github.com/keerthanap8898/TextToVideoAPI"
	"github.com/keerthanap8898/TextToVideoAPI/dlq"
	"github.com/keerthanap8898/TextToVideoAPI/event"
	"github.com/keerthanap8898/TextToVideoAPI/hook"
	"github.com/keerthanap8898/TextToVideoAPI/id"
	"github.com/keerthanap8898/TextToVideoAPI/job"
	"github.com/keerthanap8898/TextToVideoAPI/projector"
	"github.com/keerthanap8898/TextToVideoAPI/queue"
	"github.com/keerthanap8898/TextToVideoAPI/vwp"
)

// Group is the consumer group name the dispatcher fetches under. All
// orchestrator processes share it, so each delivery goes to one of them.
const Group = "dispatchers"

// fetchBatch bounds how many deliveries one Fetch claims. Claimed
// deliveries occupy concurrency slots, so keep the batch modest.
const fetchBatch = 8

// WorkerClient streams generation attempts to a worker. Satisfied by
// *vwp.Client.
type WorkerClient interface {
	// Generate sends the request and invokes handle for each streamed
	// event until a terminal event arrives or the stream breaks.
	Generate(ctx context.Context, req vwp.GenerateRequest, handle func(vwp.Event)) error

	// Cancel tells the worker to abandon a running attempt. Best-effort.
	Cancel(ctx context.Context, jobID id.JobID, attempt int) error
}

var _ WorkerClient = (*vwp.Client)(nil)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithWorkerID pins the dispatcher's consumer identity.
func WithWorkerID(wid id.WorkerID) Option {
	return func(d *Dispatcher) { d.workerID = wid }
}

// WithRateLimit caps how many attempts per second the dispatcher starts
// across all partitions. Default is unlimited.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(d *Dispatcher) { d.limiter = rate.NewLimiter(limit, burst) }
}

// WithProjector replaces the default projector.
func WithProjector(p *projector.Projector) Option {
	return func(d *Dispatcher) { d.proj = p }
}

// Dispatcher drives generation attempts from queue deliveries.
type Dispatcher struct {
	store    job.Store
	queue    queue.Queue
	client   WorkerClient
	proj     *projector.Projector
	dlq      *dlq.Service
	hooks    *hook.Registry
	config   videogen.Config
	logger   *slog.Logger
	workerID id.WorkerID
	limiter  *rate.Limiter

	// sem bounds concurrent attempts across all partitions.
	sem chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a dispatcher. The DLQ service and hook registry are
// required; pass an empty registry to disable lifecycle hooks.
func New(
	store job.Store,
	q queue.Queue,
	client WorkerClient,
	dlqService *dlq.Service,
	hooks *hook.Registry,
	config videogen.Config,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		queue:    q,
		client:   client,
		proj:     projector.New(),
		dlq:      dlqService,
		hooks:    hooks,
		config:   config,
		logger:   slog.Default(),
		workerID: id.NewWorkerID(),
		limiter:  rate.NewLimiter(rate.Inf, 0),
		sem:      make(chan struct{}, config.Concurrency),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// WorkerID returns the dispatcher's consumer identity.
func (d *Dispatcher) WorkerID() id.WorkerID { return d.workerID }

// Start launches one fetch loop per partition. Returns immediately.
func (d *Dispatcher) Start(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.running = true

	for p := 0; p < d.queue.Partitions(); p++ {
		d.wg.Add(1)
		go d.partitionLoop(ctx, p)
	}

	d.logger.Info("dispatcher started",
		slog.Int("partitions", d.queue.Partitions()),
		slog.Int("concurrency", d.config.Concurrency),
		slog.String("worker_id", d.workerID.String()),
	)
	return nil
}

// Stop halts the fetch loops and waits for in-flight attempts, up to
// the configured shutdown timeout. Interrupted attempts are recovered
// later by the reconciler when their leases expire.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.cancel()
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	timeout := d.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-done:
		d.logger.Info("dispatcher stopped")
		return nil
	case <-time.After(timeout):
		d.logger.Warn("dispatcher stop timed out with attempts in flight")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) partitionLoop(ctx context.Context, partition int) {
	defer d.wg.Done()
	consumer := d.workerID.String()

	for {
		if ctx.Err() != nil {
			return
		}

		deliveries, err := d.queue.Fetch(ctx, partition, Group, consumer, fetchBatch, d.config.PollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn("fetch failed",
				slog.Int("partition", partition),
				slog.String("error", err.Error()),
			)
			select {
			case <-time.After(d.config.PollInterval):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, del := range deliveries {
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			select {
			case d.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			d.wg.Add(1)
			go func(del queue.Delivery) {
				defer d.wg.Done()
				defer func() { <-d.sem }()
				d.handle(ctx, del)
			}(del)
		}
	}
}

// handle processes one delivery end to end: claim, stream, fold, ack.
func (d *Dispatcher) handle(ctx context.Context, del queue.Delivery) {
	jobID := del.Dispatch.JobID
	log := d.logger.With(slog.String("job_id", jobID.String()), slog.Int("partition", del.Partition))

	j, err := d.store.GetJob(ctx, jobID)
	if err != nil {
		// A delivery without a job record is unfulfillable; drop it.
		log.Warn("delivery for unknown job", slog.String("error", err.Error()))
		d.ack(ctx, del)
		return
	}

	if j.State.Terminal() {
		d.ack(ctx, del)
		return
	}

	if now := time.Now().UTC(); j.NotBefore.After(now) {
		// Backoff window still open. Leave the delivery unacked so the
		// backend redelivers it after the visibility timeout.
		return
	}

	claimed, swapped, err := d.claim(ctx, j)
	if err != nil {
		log.Error("claim failed", slog.String("error", err.Error()))
		return
	}
	if !swapped {
		// Duplicate delivery or a concurrent claimer won. Drop.
		d.ack(ctx, del)
		return
	}

	log = log.With(slog.Int("attempt", claimed.Attempt))
	log.Info("attempt dispatched", slog.String("quality", string(claimed.Params.Quality)))
	d.hooks.EmitJobDispatched(ctx, claimed)

	term := d.stream(ctx, claimed, log)
	d.finish(ctx, claimed, term, log)
	d.ack(ctx, del)
}

// claim transitions queued → running and stamps the lease.
func (d *Dispatcher) claim(ctx context.Context, j *job.Job) (*job.Job, bool, error) {
	now := time.Now().UTC()
	lease := now.Add(d.config.LeaseFor(j.Params.DurationSeconds))
	return d.store.CompareAndSetState(ctx, j.ID, job.StateQueued, func(j *job.Job) {
		j.Attempt++
		j.State = job.StateRunning
		j.LeaseWorker = d.workerID
		j.LeaseExpiresAt = &lease
		j.StartedAt = &now
		j.Progress = job.Progress{}
	})
}

// stream runs one attempt against the worker and returns its terminal
// event. A broken stream or cancelled context is folded into a
// transient failure so the normal requeue path applies.
func (d *Dispatcher) stream(ctx context.Context, j *job.Job, log *slog.Logger) event.Terminal {
	term := event.Terminal{JobID: j.ID, Attempt: j.Attempt}
	cur := j

	req := vwp.GenerateRequest{
		JobID:   j.ID,
		Attempt: j.Attempt,
		Params:  j.Params,
	}
	if j.LeaseExpiresAt != nil {
		req.LeaseExpiresAt = *j.LeaseExpiresAt

		// The lease bounds the attempt. Past it the reconciler owns the
		// job, so waiting on the stream any longer only holds a slot.
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, *j.LeaseExpiresAt)
		defer cancel()
	}

	err := d.client.Generate(ctx, req, func(ev vwp.Event) {
		switch {
		case ev.Progress != nil:
			cur = d.applyProgress(ctx, cur, *ev.Progress, log)
		case ev.Result != nil:
			term.Artifact = ev.Result
		case ev.Failure != nil:
			term.Failure = ev.Failure
		}
	})

	if err != nil && term.Artifact == nil && term.Failure == nil {
		log.Warn("attempt stream broke", slog.String("error", err.Error()))
		term.Failure = &event.Failure{
			Kind:    job.KindTransient,
			Message: "worker stream lost: " + err.Error(),
		}
	}
	return term
}

// applyProgress folds one progress report into the store. Returns the
// freshest job view it has.
func (d *Dispatcher) applyProgress(ctx context.Context, j *job.Job, ev event.Progress, log *slog.Logger) *job.Job {
	mutate, ok := d.proj.Progress(j, ev)
	if !ok {
		return j
	}

	next, swapped, err := d.store.CompareAndSetState(ctx, j.ID, job.StateRunning, mutate)
	if err != nil {
		log.Warn("progress update failed", slog.String("error", err.Error()))
		return j
	}
	if !swapped {
		// The job left running underneath us; keep the store's view.
		return next
	}

	d.hooks.EmitJobProgress(ctx, next, next.Progress.Percent())
	return next
}

// finish folds the attempt's terminal event into the store and fires
// the outcome hooks.
func (d *Dispatcher) finish(ctx context.Context, j *job.Job, term event.Terminal, log *slog.Logger) {
	cur, err := d.store.GetJob(ctx, j.ID)
	if err != nil {
		log.Error("terminal read failed", slog.String("error", err.Error()))
		return
	}

	decision, mutate := d.proj.Terminal(cur, term)
	if decision == projector.Drop {
		return
	}

	next, swapped, err := d.store.CompareAndSetState(ctx, j.ID, job.StateRunning, mutate)
	if err != nil {
		log.Error("terminal update failed", slog.String("error", err.Error()))
		return
	}
	if !swapped {
		// Lost to the reconciler or a cancel. The winner already acted.
		return
	}

	switch decision {
	case projector.Succeed:
		log.Info("job succeeded", slog.String("artifact_ref", next.ArtifactRef))
		d.hooks.EmitJobSucceeded(ctx, next, elapsed(next))

	case projector.Requeue:
		log.Info("attempt failed, requeued",
			slog.String("reason", failureMessage(term)),
			slog.Time("not_before", next.NotBefore),
		)
		d.hooks.EmitJobRequeued(ctx, next, next.NotBefore)
		d.republish(ctx, next, log)

	case projector.Fail:
		log.Warn("job failed terminally",
			slog.String("kind", string(next.Error.Kind)),
			slog.String("error", next.Error.Message),
		)
		d.hooks.EmitJobFailed(ctx, next, next.Error)
		d.deadLetter(ctx, next, log)
	}
}

// republish puts a requeued job back on its partition for another
// attempt. On failure the reconciler's stale-queued sweep recovers it.
func (d *Dispatcher) republish(ctx context.Context, j *job.Job, log *slog.Logger) {
	err := d.queue.Publish(ctx, j.Partition, event.Dispatch{
		JobID:      j.ID,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Warn("republish failed", slog.String("error", err.Error()))
	}
}

// deadLetter pushes a terminally failed job to the DLQ when its error
// kind warrants operator attention.
func (d *Dispatcher) deadLetter(ctx context.Context, j *job.Job, log *slog.Logger) {
	if j.Error == nil || !deadLetterKind(j.Error.Kind) {
		return
	}
	if err := d.dlq.Push(ctx, j); err != nil {
		log.Error("dlq push failed", slog.String("error", err.Error()))
		return
	}
	d.hooks.EmitJobDLQ(ctx, j)
}

func (d *Dispatcher) ack(ctx context.Context, del queue.Delivery) {
	if err := d.queue.Ack(ctx, Group, del); err != nil {
		d.logger.Warn("ack failed",
			slog.Int("partition", del.Partition),
			slog.String("error", err.Error()),
		)
	}
}

// deadLetterKind reports whether jobs failed with this kind are
// dead-lettered. Cancellations are operator-initiated and internal
// faults are bugs; neither benefits from replay.
func deadLetterKind(kind job.ErrorKind) bool {
	return kind == job.KindRetriesExhausted || kind == job.KindValidation
}

func elapsed(j *job.Job) time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

func failureMessage(term event.Terminal) string {
	if term.Failure == nil {
		return ""
	}
	return term.Failure.Message
}
