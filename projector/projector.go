// Package projector folds worker events into job state transitions.
//
// The projector is pure decision logic: it inspects the current job
// record and an incoming event and produces a [job.Mutation] for the
// store's compare-and-set, or tells the caller to drop the event. All
// fencing rules live here:
//
//   - events carrying an attempt other than the job's current attempt
//     are stale and discarded
//   - progress only moves forward within an attempt
//   - terminal state, once reached, absorbs every later event
//
// The mutations it returns re-check the fences, the job may have moved
// between the caller's read and the store's compare-and-set.
package projector

import (
	"time"

	"github.com/keerthanap8898/TextToVideoAPI/backoff"
	"github.com/keerthanap8898/TextToVideoAPI/event"
	"github.com/keerthanap8898/TextToVideoAPI/job"
)

// Decision tells the caller how to act on a terminal event.
type Decision int

const (
	// Drop means the event is stale or superseded; discard it.
	Drop Decision = iota
	// Succeed means apply the mutation as running → succeeded.
	Succeed
	// Fail means apply the mutation as running → failed. The job should
	// then be dead-lettered if its error kind is retries_exhausted or
	// validation.
	Fail
	// Requeue means apply the mutation as running → queued for another
	// attempt.
	Requeue
)

// Option configures a Projector.
type Option func(*Projector)

// WithBackoff sets the requeue delay strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(p *Projector) { p.backoff = s }
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(p *Projector) { p.now = now }
}

// Projector turns worker events into store mutations.
type Projector struct {
	backoff backoff.Strategy
	now     func() time.Time
}

// New creates a Projector with the default backoff strategy.
func New(opts ...Option) *Projector {
	p := &Projector{
		backoff: backoff.DefaultStrategy(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Progress returns a mutation applying the progress report, or false if
// the event should be dropped (wrong state, stale attempt, or a step
// that doesn't move forward).
func (p *Projector) Progress(j *job.Job, ev event.Progress) (job.Mutation, bool) {
	if j.State != job.StateRunning || j.Attempt != ev.Attempt {
		return nil, false
	}
	if ev.Step <= j.Progress.Step {
		return nil, false
	}

	return func(j *job.Job) {
		if j.Attempt != ev.Attempt || ev.Step <= j.Progress.Step {
			return
		}
		j.Progress = job.Progress{Step: ev.Step, TotalSteps: ev.TotalSteps}
	}, true
}

// Terminal decides the outcome of a terminal event and returns the
// mutation to apply under expected state running. Drop means the event
// lost to a newer attempt or an already-terminal job.
func (p *Projector) Terminal(j *job.Job, ev event.Terminal) (Decision, job.Mutation) {
	if j.State.Terminal() || j.Attempt != ev.Attempt {
		return Drop, nil
	}
	if j.State != job.StateRunning {
		return Drop, nil
	}

	if ev.Succeeded() {
		return Succeed, p.succeedMutation(ev)
	}

	kind := ev.Failure.Kind
	if kind.Retryable() && !j.AttemptsExhausted() {
		return Requeue, p.requeueMutation(ev)
	}

	return Fail, p.failMutation(ev, kind.Retryable())
}

func (p *Projector) succeedMutation(ev event.Terminal) job.Mutation {
	now := p.now().UTC()
	return func(j *job.Job) {
		if j.Attempt != ev.Attempt {
			return
		}
		j.State = job.StateSucceeded
		j.ArtifactRef = ev.Artifact.Ref
		j.ArtifactChecksum = ev.Artifact.Checksum
		j.ArtifactSize = ev.Artifact.Size
		j.Error = nil
		j.CompletedAt = &now
		j.ClearLease()
	}
}

func (p *Projector) requeueMutation(ev event.Terminal) job.Mutation {
	notBefore := backoff.NextDispatch(p.now().UTC(), ev.Attempt, p.backoff)
	return func(j *job.Job) {
		if j.Attempt != ev.Attempt {
			return
		}
		j.State = job.StateQueued
		j.NotBefore = notBefore
		j.Progress = job.Progress{}
		j.ClearLease()
	}
}

func (p *Projector) failMutation(ev event.Terminal, budgetSpent bool) job.Mutation {
	now := p.now().UTC()
	jerr := &job.Error{Kind: ev.Failure.Kind, Message: ev.Failure.Message}
	if budgetSpent {
		jerr = &job.Error{Kind: job.KindRetriesExhausted, Message: ev.Failure.Message}
	}
	return func(j *job.Job) {
		if j.Attempt != ev.Attempt {
			return
		}
		j.State = job.StateFailed
		j.Error = jerr
		j.ArtifactRef = ""
		j.CompletedAt = &now
		j.ClearLease()
	}
}
