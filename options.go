package videogen

import (
	"context"
	"log/slog"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// Storer is the minimal store interface held by the Orchestrator.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles. Implementations satisfy store.Store which embeds all
// subsystem stores.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// runner is an internal interface for background loop lifecycle
// (dispatcher, reconciler).
type runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// hookEmitter is an internal interface for lifecycle hook fan-out.
type hookEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Orchestrator is the central coordinator for video generation jobs:
// dispatch, lease recovery, status projection, and dead-lettering.
//
// Create one with New() and functional options. The Orchestrator holds
// references to subsystem components via internal interfaces to avoid
// import cycles. Use engine.Build to wire everything together.
type Orchestrator struct {
	config Config
	logger *slog.Logger
	store  Storer
	hooks  hookEmitter

	runners []runner
	started bool
}

// New creates a new Orchestrator with the given options.
func New(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Logger returns the orchestrator's logger.
func (o *Orchestrator) Logger() *slog.Logger { return o.logger }

// Store returns the orchestrator's store.
func (o *Orchestrator) Store() Storer { return o.store }

// Config returns a copy of the orchestrator's configuration.
func (o *Orchestrator) Config() Config { return o.config }

// AddRunner registers a background loop (called by engine.Build).
func (o *Orchestrator) AddRunner(r runner) { o.runners = append(o.runners, r) }

// SetHooks sets the lifecycle hook emitter (called by engine.Build).
func (o *Orchestrator) SetHooks(h hookEmitter) { o.hooks = h }

// Start begins dispatching and reconciling.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.store == nil {
		return ErrNoStore
	}
	for _, r := range o.runners {
		if err := r.Start(ctx); err != nil {
			return err
		}
	}
	o.started = true
	return nil
}

// Stop gracefully shuts down the orchestrator.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if o.started {
		for i := len(o.runners) - 1; i >= 0; i-- {
			if err := o.runners[i].Stop(ctx); err != nil {
				o.logger.Error("runner stop error", "error", err)
			}
		}
	}
	if o.hooks != nil {
		o.hooks.EmitShutdown(ctx)
	}
	if o.store != nil {
		return o.store.Close(ctx)
	}
	return nil
}

// WithConcurrency sets the maximum number of concurrent generations.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) error {
		o.config.Concurrency = n
		return nil
	}
}

// WithPartitions sets the number of dispatch queue partitions.
func WithPartitions(n int) Option {
	return func(o *Orchestrator) error {
		o.config.Partitions = n
		return nil
	}
}

// WithMaxAttempts sets the per-job attempt budget.
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) error {
		o.config.MaxAttempts = n
		return nil
	}
}

// WithLogger sets the structured logger for the orchestrator.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) error {
		o.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the orchestrator.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(o *Orchestrator) error {
		o.store = s
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(c Config) Option {
	return func(o *Orchestrator) error {
		o.config = c
		return nil
	}
}
