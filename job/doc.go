// Package job defines the generation job entity, its state machine, the
// error taxonomy, and the store interface.
//
// # Job Entity
//
// A [Job] represents one requested video clip. It embeds [videogen.Entity]
// for timestamps, carries validated generation [Params], and progresses
// through a state machine:
//
//	queued → running → succeeded
//	queued → running → queued → ... (lease expiry or transient error)
//	queued → running → failed
//	queued → failed (cancel, or retry budget exhausted → dlq)
//
// Fields of note:
//   - Attempt: how many times the job has entered running
//   - MaxAttempts: retry budget; exceeding it dead-letters the job
//   - NotBefore: earliest next dispatch, set by backoff on requeue
//   - LeaseWorker / LeaseExpiresAt: non-empty exactly while running
//
// # Mutation
//
// The store is the sole mutation authority. All transitions go through
// [Store.CompareAndSetState], which applies a mutation only if the job is
// still in the expected state. Losing the race is not an error: the caller
// inspects the returned job and drops its work (duplicate delivery, stale
// attempt) or retries.
package job
