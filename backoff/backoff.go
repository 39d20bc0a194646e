// Package backoff provides pluggable requeue delay strategies. When a
// running job loses its attempt to a transient fault or an expired lease,
// the reconciler pushes its NotBefore forward by one of these delays so a
// flapping worker doesn't burn the whole retry budget in seconds.
// All strategies are stateless and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a job's next dispatch.
type Strategy interface {
	// Delay returns how long to hold the job back before attempt n+1,
	// where n is the attempt that just failed (1-indexed).
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// FullJitter
// ──────────────────────────────────────────────────

// FullJitter applies full jitter to an exponential base.
// Delay = random value in [0, min(Initial * 2^(attempt-1), Max)].
// This spreads out the redispatch spike after a worker crash takes a
// batch of leases down together.
type FullJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewFullJitter creates an exponential backoff with full jitter.
func NewFullJitter(initial, maxDelay time.Duration) *FullJitter {
	return &FullJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(attempt-1), Max)].
func (f *FullJitter) Delay(attempt int) time.Duration {
	base := float64(f.Initial) * math.Pow(2, float64(attempt-1))
	if f.Max > 0 && base > float64(f.Max) {
		base = float64(f.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the default backoff used by the reconciler:
// FullJitter with 2s initial and 2m max. Video renders are long, so a
// few seconds of extra queue time is noise.
func DefaultStrategy() Strategy {
	return NewFullJitter(2*time.Second, 2*time.Minute)
}

// NextDispatch returns the earliest next dispatch time for a job whose
// given attempt just failed.
func NextDispatch(now time.Time, attempt int, s Strategy) time.Time {
	return now.Add(s.Delay(attempt))
}
