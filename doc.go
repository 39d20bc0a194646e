// Package videogen provides the asynchronous orchestration core for a
// text-to-video generation service. It offers durable job identity,
// partitioned at-least-once dispatch, streaming worker calls, lease-based
// failure recovery, and a dead letter queue.
//
// Videogen is designed as a library, not a service. Import it, configure a
// store and a delivery queue, and drive jobs through the engine:
//
//	o, err := videogen.New(
//	    videogen.WithStore(pgStore),
//	    videogen.WithConcurrency(8),
//	)
//
// # Architecture
//
// Videogen follows a composable store pattern where each subsystem (job,
// dlq) defines its own store interface and a single backend implements all
// of them. The store is the sole mutation authority: every state change
// goes through an atomic compare-and-set, so duplicate queue deliveries,
// expired leases, and late worker events resolve deterministically.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package videogen
