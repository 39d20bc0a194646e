package dlq

import (
	"context"
	"time"

	"github.com/keerthanap8898/TextToVideoAPI/event"
	"github.com/keerthanap8898/TextToVideoAPI/id"
	"github.com/keerthanap8898/TextToVideoAPI/job"
	"github.com/keerthanap8898/TextToVideoAPI/queue"
)

// Replay submits the entry's parameters as a fresh queued job with a new
// ID and full attempt budget, publishes it for dispatch, and marks the
// entry as replayed. The failed original job is left untouched.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID, pub Publisher) (*job.Job, error) {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return nil, err
	}

	j, err := job.New(id.NewJobID(), entry.Params, entry.MaxAttempts)
	if err != nil {
		return nil, err
	}
	j.Partition = queue.PartitionFor(j.ID, pub.Partitions())

	if err := s.jobStore.CreateJob(ctx, j); err != nil {
		return nil, err
	}
	if err := pub.Publish(ctx, j.Partition, event.Dispatch{
		JobID:      j.ID,
		EnqueuedAt: time.Now().UTC(),
	}); err != nil {
		// The job record exists; the reconciler's stale-queued sweep will
		// republish it.
		return j, err
	}

	if err := s.store.ReplayDLQ(ctx, entryID); err != nil {
		// The job is already dispatched. Surface the bookkeeping error.
		return j, err
	}

	return j, nil
}
