package videogen

import "time"

// Config holds configuration for the Orchestrator.
type Config struct {
	// Partitions is the number of dispatch queue partitions. Jobs are
	// routed by job ID hash, so ordering holds within a partition.
	Partitions int

	// Concurrency is the maximum number of jobs generated concurrently.
	Concurrency int

	// MaxAttempts bounds how many times a job may enter RUNNING before
	// it is failed with a retries-exhausted error and dead-lettered.
	MaxAttempts int

	// PollInterval is how often the dispatcher polls an idle partition.
	PollInterval time.Duration

	// LeaseBase is the fixed component of a running job's lease.
	LeaseBase time.Duration

	// LeasePerVideoSecond extends the lease proportionally to the
	// requested clip duration, long renders get long leases.
	LeasePerVideoSecond time.Duration

	// DispatchGrace is how long a job may sit QUEUED without a
	// corresponding queue delivery before the reconciler republishes it.
	DispatchGrace time.Duration

	// ReconcileInterval is how often the reconciler sweeps for expired
	// leases and stale queued jobs.
	ReconcileInterval time.Duration

	// ReconcileSchedule optionally replaces ReconcileInterval with a
	// cron expression (e.g. "*/1 * * * *"). Empty means interval mode.
	ReconcileSchedule string

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Partitions:          4,
		Concurrency:         8,
		MaxAttempts:         3,
		PollInterval:        1 * time.Second,
		LeaseBase:           30 * time.Second,
		LeasePerVideoSecond: 10 * time.Second,
		DispatchGrace:       2 * time.Minute,
		ReconcileInterval:   15 * time.Second,
		ShutdownTimeout:     30 * time.Second,
	}
}

// LeaseFor returns the lease duration for a clip of the given length.
func (c Config) LeaseFor(videoSeconds int) time.Duration {
	return c.LeaseBase + time.Duration(videoSeconds)*c.LeasePerVideoSecond
}
