// Package event defines the messages that move jobs through the pipeline:
// the dispatch envelope published to the delivery queue and the progress
// and terminal events streamed back by workers.
package event

import (
	"time"

	"github.com/keerthanap8898/TextToVideoAPI/id"
	"github.com/keerthanap8898/TextToVideoAPI/job"
)

// Dispatch is the envelope published to the delivery queue when a job
// needs an attempt. It carries identity only; the job record is the
// source of truth. Redelivery of the same envelope is a duplicate
// attempt at the same job, never a new job.
type Dispatch struct {
	JobID      id.JobID  `json:"job_id" msgpack:"job_id"`
	EnqueuedAt time.Time `json:"enqueued_at" msgpack:"enqueued_at"`
}

// Progress is a worker's progress report for one attempt. Attempt fences
// the event: reports from superseded attempts are discarded.
type Progress struct {
	JobID      id.JobID `json:"job_id" msgpack:"job_id"`
	Attempt    int      `json:"attempt" msgpack:"attempt"`
	Step       int      `json:"step" msgpack:"step"`
	TotalSteps int      `json:"total_steps" msgpack:"total_steps"`
}

// Artifact describes the produced clip.
type Artifact struct {
	Ref      string `json:"ref" msgpack:"ref"`
	Checksum string `json:"checksum,omitempty" msgpack:"checksum,omitempty"`
	Size     int64  `json:"size,omitempty" msgpack:"size,omitempty"`
}

// Failure describes why an attempt did not produce an artifact.
type Failure struct {
	Kind    job.ErrorKind `json:"kind" msgpack:"kind"`
	Message string        `json:"message" msgpack:"message"`
}

// Terminal is the final event of one attempt. Exactly one of Artifact or
// Failure is set.
type Terminal struct {
	JobID    id.JobID  `json:"job_id" msgpack:"job_id"`
	Attempt  int       `json:"attempt" msgpack:"attempt"`
	Artifact *Artifact `json:"artifact,omitempty" msgpack:"artifact,omitempty"`
	Failure  *Failure  `json:"failure,omitempty" msgpack:"failure,omitempty"`
}

// Succeeded reports whether the attempt produced an artifact.
func (t Terminal) Succeeded() bool { return t.Artifact != nil }
