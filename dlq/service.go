package dlq

import (
	"context"
	"time"

	"github.com/keerthanap8898/TextToVideoAPI/event"
	"github.com/keerthanap8898/TextToVideoAPI/id"
	"github.com/keerthanap8898/TextToVideoAPI/job"
)

// Publisher re-dispatches replayed jobs. Satisfied by queue.Queue.
type Publisher interface {
	Publish(ctx context.Context, partition int, d event.Dispatch) error
	Partitions() int
}

// Service provides high-level DLQ operations over a Store.
type Service struct {
	store    Store
	jobStore job.Store
}

// NewService creates a DLQ service.
func NewService(store Store, jobStore job.Store) *Service {
	return &Service{store: store, jobStore: jobStore}
}

// Push builds a DLQ Entry from a permanently failed job and persists it.
func (s *Service) Push(ctx context.Context, j *job.Job) error {
	now := time.Now().UTC()
	entry := &Entry{
		ID:          id.NewDLQID(),
		JobID:       j.ID,
		Params:      j.Params,
		Attempts:    j.Attempt,
		MaxAttempts: j.MaxAttempts,
		FailedAt:    now,
		CreatedAt:   now,
	}
	if j.Error != nil {
		entry.Error = *j.Error
	}
	return s.store.PushDLQ(ctx, entry)
}

// DLQStore returns the underlying DLQ store for direct access
// to List, Get, Purge, and Count operations.
func (s *Service) DLQStore() Store {
	return s.store
}
