// Package worker provides the worker-side generation runtime: a
// Generator registry keyed by quality tier, per-attempt completion
// markers for billing idempotency, and a Runtime that serves protocol
// requests through the middleware chain.
package worker

import (
	"context"
	"sync"

	"github.com/keerthanap8898/TextToVideoAPI/event"
	"github.com/keerthanap8898/TextToVideoAPI/job"
)

// ProgressFunc reports step progress while a clip is being generated.
type ProgressFunc func(step, totalSteps int)

// Generator produces a video clip for validated params. Implementations
// wrap the actual model backends; a returned *job.Error classifies the
// failure, any other error is treated as transient.
type Generator interface {
	Generate(ctx context.Context, params job.Params, report ProgressFunc) (event.Artifact, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, params job.Params, report ProgressFunc) (event.Artifact, error)

func (f GeneratorFunc) Generate(ctx context.Context, params job.Params, report ProgressFunc) (event.Artifact, error) {
	return f(ctx, params, report)
}

// Registry maps quality tiers to generators. Higher tiers typically run
// bigger models. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	generators map[job.Quality]Generator
	fallback   Generator
}

// NewRegistry creates an empty generator registry.
func NewRegistry() *Registry {
	return &Registry{
		generators: make(map[job.Quality]Generator),
	}
}

// Register binds a generator to a quality tier, replacing any previous
// binding.
func (r *Registry) Register(q job.Quality, g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[q] = g
}

// SetDefault sets the generator used for tiers without an explicit
// binding.
func (r *Registry) SetDefault(g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = g
}

// Get returns the generator for the given quality tier, falling back to
// the default. Returns false if neither is set.
func (r *Registry) Get(q job.Quality) (Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if g, ok := r.generators[q]; ok {
		return g, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}
