package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/keerthanap8898/TextToVideoAPI/event"
)

// Compile-time interface check.
var _ Queue = (*Memory)(nil)

// MemoryOption configures the in-memory queue.
type MemoryOption func(*Memory)

// WithVisibilityTimeout sets how long a fetched delivery stays invisible
// before it is redelivered. Default 30s.
func WithVisibilityTimeout(d time.Duration) MemoryOption {
	return func(m *Memory) { m.visibility = d }
}

// Memory is an in-process Queue for tests and single-node development.
// It supports a single consumer group: the group and consumer names
// passed to Fetch are ignored.
type Memory struct {
	mu         sync.Mutex
	partitions [][]*memEntry
	visibility time.Duration
	seq        uint64
	closed     bool
}

type memEntry struct {
	dispatch  event.Dispatch
	token     string
	visibleAt time.Time
	acked     bool
}

// NewMemory creates an in-memory queue with the given partition count.
func NewMemory(partitions int, opts ...MemoryOption) *Memory {
	if partitions < 1 {
		partitions = 1
	}
	m := &Memory{
		partitions: make([][]*memEntry, partitions),
		visibility: 30 * time.Second,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Memory) Publish(_ context.Context, partition int, d event.Dispatch) error {
	if err := m.checkPartition(partition); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return context.Canceled
	}
	m.seq++
	m.partitions[partition] = append(m.partitions[partition], &memEntry{
		dispatch: d,
		token:    strconv.FormatUint(m.seq, 10),
	})
	return nil
}

func (m *Memory) Fetch(ctx context.Context, partition int, _, _ string, limit int, wait time.Duration) ([]Delivery, error) {
	if err := m.checkPartition(partition); err != nil {
		return nil, err
	}
	deadline := time.Now().Add(wait)
	for {
		out := m.take(partition, limit)
		if len(out) > 0 {
			return out, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func (m *Memory) take(partition, limit int) []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var out []Delivery
	for _, e := range m.partitions[partition] {
		if e.acked || e.visibleAt.After(now) {
			continue
		}
		e.visibleAt = now.Add(m.visibility)
		out = append(out, Delivery{Dispatch: e.dispatch, Partition: partition, Token: e.token})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (m *Memory) Ack(_ context.Context, _ string, d Delivery) error {
	if err := m.checkPartition(d.Partition); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.partitions[d.Partition]
	for i, e := range entries {
		if e.token == d.Token {
			e.acked = true
			m.partitions[d.Partition] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) Partitions() int { return len(m.partitions) }

// checkPartition rejects out-of-range partitions instead of panicking.
// The partition count is fixed at construction, so no lock is needed.
func (m *Memory) checkPartition(partition int) error {
	if partition < 0 || partition >= len(m.partitions) {
		return fmt.Errorf("queue: partition %d out of range [0,%d)", partition, len(m.partitions))
	}
	return nil
}

func (m *Memory) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Depth returns the number of pending (unacked) envelopes on a partition.
// Test helper.
func (m *Memory) Depth(partition int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.partitions[partition])
}
