package job

// ErrorKind classifies why a job failed or why an attempt was abandoned.
type ErrorKind string

const (
	// KindValidation marks a malformed request discovered by the worker.
	// Never retried.
	KindValidation ErrorKind = "validation"
	// KindTransient marks a recoverable worker or transport fault. The
	// attempt is abandoned and the job requeued while budget remains.
	KindTransient ErrorKind = "transient"
	// KindRetriesExhausted marks a job that burned its whole attempt budget.
	KindRetriesExhausted ErrorKind = "retries_exhausted"
	// KindCancelled marks a caller-requested cancellation.
	KindCancelled ErrorKind = "cancelled"
	// KindInternal marks an unexpected orchestrator-side fault.
	KindInternal ErrorKind = "internal"
)

// Retryable reports whether another attempt may follow this kind.
func (k ErrorKind) Retryable() bool { return k == KindTransient }

// Error is the terminal error info recorded on a failed job.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }
