// Package queue defines the partitioned delivery queue that carries
// dispatch envelopes from submission to the dispatcher.
//
// Delivery is at-least-once: a fetched envelope that is not acked within
// the visibility timeout becomes fetchable again. Consumers treat every
// delivery as possibly duplicate. Ordering holds within a partition only;
// jobs are routed to partitions by ID hash.
package queue

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/keerthanap8898/TextToVideoAPI/event"
	"github.com/keerthanap8898/TextToVideoAPI/id"
)

// Delivery is one fetched envelope plus the backend's ack handle.
type Delivery struct {
	Dispatch  event.Dispatch
	Partition int

	// Token identifies the delivery for Ack. Backend-specific (stream
	// entry ID, in-memory counter).
	Token string
}

// Queue is the delivery queue contract.
type Queue interface {
	// Publish appends the envelope to the given partition.
	Publish(ctx context.Context, partition int, d event.Dispatch) error

	// Fetch claims up to limit deliveries from the partition on behalf of
	// the named consumer group, blocking up to wait when the partition is
	// empty. Unacked deliveries become fetchable again after the backend's
	// visibility timeout.
	Fetch(ctx context.Context, partition int, group, consumer string, limit int, wait time.Duration) ([]Delivery, error)

	// Ack removes a delivery for the group. Acking an already-acked or
	// expired delivery is a no-op.
	Ack(ctx context.Context, group string, d Delivery) error

	// Partitions returns the partition count the queue was built with.
	Partitions() int

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// PartitionFor routes a job to a partition by FNV-1a hash of its ID.
// Stable across processes so republishes land on the same partition.
func PartitionFor(jobID id.JobID, partitions int) int {
	if partitions <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(jobID.String()))
	return int(h.Sum32() % uint32(partitions))
}
