package dlq

import (
	"time"

	"github.com/keerthanap8898/TextToVideoAPI/id"
	"github.com/keerthanap8898/TextToVideoAPI/job"
)

// Entry records a job that will never produce an artifact, kept for
// manual inspection or replay.
type Entry struct {
	ID          id.DLQID   `json:"id"`
	JobID       id.JobID   `json:"job_id"`
	Params      job.Params `json:"params"`
	Error       job.Error  `json:"error"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	FailedAt    time.Time  `json:"failed_at"`
	ReplayedAt  *time.Time `json:"replayed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
