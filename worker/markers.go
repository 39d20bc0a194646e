package worker

import (
	"context"
	"strconv"
	"sync"

	"github.com/keerthanap8898/TextToVideoAPI/event"
	"github.com/keerthanap8898/TextToVideoAPI/id"
)

// Markers records completed {job, attempt} pairs so billable work runs
// at most once per attempt. A redelivered request whose marker exists
// replays the stored artifact instead of regenerating.
type Markers interface {
	// Completed returns the stored artifact if this attempt already
	// finished on this worker.
	Completed(ctx context.Context, jobID id.JobID, attempt int) (*event.Artifact, bool, error)

	// MarkCompleted records the attempt's artifact. Idempotent.
	MarkCompleted(ctx context.Context, jobID id.JobID, attempt int, a event.Artifact) error
}

func markerKey(jobID id.JobID, attempt int) string {
	return jobID.String() + ":" + strconv.Itoa(attempt)
}

// MemoryMarkers is an in-process marker store for tests and
// single-process workers.
type MemoryMarkers struct {
	mu      sync.RWMutex
	entries map[string]event.Artifact
}

var _ Markers = (*MemoryMarkers)(nil)

// NewMemoryMarkers creates an empty in-memory marker store.
func NewMemoryMarkers() *MemoryMarkers {
	return &MemoryMarkers{entries: make(map[string]event.Artifact)}
}

func (m *MemoryMarkers) Completed(_ context.Context, jobID id.JobID, attempt int) (*event.Artifact, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.entries[markerKey(jobID, attempt)]
	if !ok {
		return nil, false, nil
	}
	return &a, true, nil
}

func (m *MemoryMarkers) MarkCompleted(_ context.Context, jobID id.JobID, attempt int, a event.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[markerKey(jobID, attempt)] = a
	return nil
}
