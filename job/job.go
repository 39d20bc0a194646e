package job

import (
	"time"

	videogen "github.com/keerthanap8898/TextToVideoAPI"
	"github.com/keerthanap8898/TextToVideoAPI/id"
)

// State represents the lifecycle state of a generation job.
type State string

const (
	// StateQueued means the job is waiting for dispatch, either fresh or
	// requeued after a recoverable failure.
	StateQueued State = "queued"
	// StateRunning means a worker holds a lease and is generating.
	StateRunning State = "running"
	// StateSucceeded means the clip was produced and the artifact recorded.
	StateSucceeded State = "succeeded"
	// StateFailed means the job will never produce an artifact.
	StateFailed State = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// CanTransition reports whether the state machine permits from → to.
func CanTransition(from, to State) bool {
	switch from {
	case StateQueued:
		return to == StateRunning || to == StateFailed
	case StateRunning:
		return to == StateQueued || to == StateSucceeded || to == StateFailed
	default:
		return false
	}
}

// Progress tracks generation progress for the current attempt.
// Step only moves forward; out-of-order reports are dropped.
type Progress struct {
	Step       int `json:"step"`
	TotalSteps int `json:"total_steps"`
}

// Percent returns progress as 0–100. Zero TotalSteps means 0.
func (p Progress) Percent() float64 {
	if p.TotalSteps <= 0 {
		return 0
	}
	pct := float64(p.Step) / float64(p.TotalSteps) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// Job represents one requested video clip moving through the pipeline.
type Job struct {
	videogen.Entity

	ID          id.JobID `json:"id"`
	Params      Params   `json:"params"`
	State       State    `json:"state"`
	Partition   int      `json:"partition"`
	Attempt     int      `json:"attempt"`
	MaxAttempts int      `json:"max_attempts"`

	// NotBefore is the earliest time the dispatcher may claim the job.
	// Backoff pushes it forward on each requeue.
	NotBefore time.Time `json:"not_before"`

	// Lease fields are set exactly while the job is running.
	LeaseWorker    id.WorkerID `json:"lease_worker,omitempty"`
	LeaseExpiresAt *time.Time  `json:"lease_expires_at,omitempty"`

	Progress Progress `json:"progress"`

	// Terminal outcome. Exactly one of ArtifactRef / Error is set on a
	// terminal job.
	ArtifactRef      string `json:"artifact_ref,omitempty"`
	ArtifactChecksum string `json:"artifact_checksum,omitempty"`
	ArtifactSize     int64  `json:"artifact_size,omitempty"`
	Error            *Error `json:"error,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New builds a queued job with validated params. The caller assigns the
// partition before publishing.
func New(jobID id.JobID, params Params, maxAttempts int) (*Job, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Job{
		Entity:      videogen.NewEntity(),
		ID:          jobID,
		Params:      params,
		State:       StateQueued,
		MaxAttempts: maxAttempts,
		NotBefore:   time.Now().UTC(),
	}, nil
}

// ClearLease drops the lease fields. Call on every exit from running.
func (j *Job) ClearLease() {
	j.LeaseWorker = id.Nil
	j.LeaseExpiresAt = nil
}

// LeaseExpired reports whether the job holds a lease that lapsed before now.
func (j *Job) LeaseExpired(now time.Time) bool {
	return j.State == StateRunning && j.LeaseExpiresAt != nil && j.LeaseExpiresAt.Before(now)
}

// AttemptsExhausted reports whether another attempt would exceed the budget.
func (j *Job) AttemptsExhausted() bool {
	return j.Attempt >= j.MaxAttempts
}
