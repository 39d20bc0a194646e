// Package dlq provides the dead letter queue for jobs that failed
// permanently: retries exhausted or rejected by validation. It supports
// inspection, replay, and purging.
//
// When the projector or reconciler fails a job for good, the engine calls
// [Service.Push] to record it. The generation parameters, error info, and
// attempt counts are preserved for debugging.
//
// # Replay
//
// Replaying an entry submits a fresh job with the same parameters, a new
// ID, and a full attempt budget, then publishes it for dispatch. Replay
// sets ReplayedAt on the entry; the failed original stays terminal.
package dlq
