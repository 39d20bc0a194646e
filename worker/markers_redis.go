package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/keerthanap8898/TextToVideoAPI/event"
	"github.com/keerthanap8898/TextToVideoAPI/id"
)

// completedKeyPrefix namespaces completion markers in Redis.
const completedKeyPrefix = "videogen:completed:"

// defaultMarkerTTL bounds marker lifetime. A marker only needs to
// outlive the delivery retention window.
const defaultMarkerTTL = 24 * time.Hour

// RedisMarkersOption configures RedisMarkers.
type RedisMarkersOption func(*RedisMarkers)

// WithMarkerTTL sets how long completion markers are kept.
func WithMarkerTTL(ttl time.Duration) RedisMarkersOption {
	return func(m *RedisMarkers) { m.ttl = ttl }
}

// RedisMarkers stores completion markers in Redis so idempotency holds
// across worker restarts and across the fleet.
type RedisMarkers struct {
	client goredis.Cmdable
	ttl    time.Duration
}

var _ Markers = (*RedisMarkers)(nil)

// NewRedisMarkers creates a Redis-backed marker store. The caller owns
// the Redis client lifecycle.
func NewRedisMarkers(client goredis.Cmdable, opts ...RedisMarkersOption) *RedisMarkers {
	m := &RedisMarkers{client: client, ttl: defaultMarkerTTL}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *RedisMarkers) Completed(ctx context.Context, jobID id.JobID, attempt int) (*event.Artifact, bool, error) {
	val, err := m.client.Get(ctx, completedKeyPrefix+markerKey(jobID, attempt)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("videogen/worker: marker get: %w", err)
	}

	var a event.Artifact
	if err := json.Unmarshal([]byte(val), &a); err != nil {
		return nil, false, fmt.Errorf("videogen/worker: marker decode: %w", err)
	}
	return &a, true, nil
}

func (m *RedisMarkers) MarkCompleted(ctx context.Context, jobID id.JobID, attempt int, a event.Artifact) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("videogen/worker: marker encode: %w", err)
	}
	if err := m.client.Set(ctx, completedKeyPrefix+markerKey(jobID, attempt), raw, m.ttl).Err(); err != nil {
		return fmt.Errorf("videogen/worker: marker set: %w", err)
	}
	return nil
}
