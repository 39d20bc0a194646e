// Package redisq implements queue.Queue on Redis Streams.
//
// Each partition is one stream. Consumer groups give at-least-once
// delivery: entries read with XREADGROUP stay pending until XACK, and
// XAUTOCLAIM recovers entries whose consumer died mid-flight. Streams are
// trimmed by time watermark (XTRIM MINID) rather than by length, so a
// slow consumer never loses unread envelopes to an eager trim.
package redisq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keerthanap8898/TextToVideoAPI/event"
	"github.com/keerthanap8898/TextToVideoAPI/id"
	"github.com/keerthanap8898/TextToVideoAPI/queue"
)

// Compile-time interface check.
var _ queue.Queue = (*Queue)(nil)

const keyPrefix = "videogen:"

// streamKey returns the stream for a partition: videogen:dispatch:{n}
func streamKey(partition int) string {
	return keyPrefix + "dispatch:" + strconv.Itoa(partition)
}

// Option configures the Queue.
type Option func(*Queue)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithVisibilityTimeout sets how long a fetched delivery may stay
// pending before XAUTOCLAIM hands it to another consumer. Default 30s.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(q *Queue) { q.visibility = d }
}

// WithRetention sets the time watermark for stream trimming. Entries
// older than this are eligible for removal on publish. Default 24h.
func WithRetention(d time.Duration) Option {
	return func(q *Queue) { q.retention = d }
}

// Queue implements queue.Queue backed by Redis Streams.
type Queue struct {
	client     redis.Cmdable
	partitions int
	visibility time.Duration
	retention  time.Duration
	logger     *slog.Logger

	// groups caches which (partition, group) pairs have been created.
	groups sync.Map
}

// New creates a Redis Streams queue. The caller owns the client lifecycle.
func New(client redis.Cmdable, partitions int, opts ...Option) *Queue {
	if partitions < 1 {
		partitions = 1
	}
	q := &Queue{
		client:     client,
		partitions: partitions,
		visibility: 30 * time.Second,
		retention:  24 * time.Hour,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *Queue) Publish(ctx context.Context, partition int, d event.Dispatch) error {
	stream := streamKey(partition)
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"job_id":      d.JobID.String(),
			"enqueued_at": d.EnqueuedAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redisq: publish to %s: %w", stream, err)
	}

	q.trim(ctx, stream)
	return nil
}

// trim drops entries older than the retention watermark. Best effort.
func (q *Queue) trim(ctx context.Context, stream string) {
	minID := strconv.FormatInt(time.Now().Add(-q.retention).UnixMilli(), 10) + "-0"
	if err := q.client.XTrimMinIDApprox(ctx, stream, minID, 0).Err(); err != nil {
		q.logger.Warn("stream trim failed", "stream", stream, "error", err)
	}
}

func (q *Queue) ensureGroup(ctx context.Context, partition int, group string) error {
	key := strconv.Itoa(partition) + "/" + group
	if _, ok := q.groups.Load(key); ok {
		return nil
	}

	err := q.client.XGroupCreateMkStream(ctx, streamKey(partition), group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("redisq: create group %s: %w", group, err)
	}

	q.groups.Store(key, struct{}{})
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

func (q *Queue) Fetch(ctx context.Context, partition int, group, consumer string, limit int, wait time.Duration) ([]queue.Delivery, error) {
	if err := q.ensureGroup(ctx, partition, group); err != nil {
		return nil, err
	}
	stream := streamKey(partition)
	count := int64(limit)
	if count <= 0 {
		count = 10
	}

	// Reclaim deliveries whose consumer went silent past the visibility
	// timeout before reading fresh entries.
	claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  q.visibility,
		Start:    "0",
		Count:    count,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redisq: autoclaim %s: %w", stream, err)
	}

	out := q.decode(partition, claimed)
	if int64(len(out)) >= count {
		return out, nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count - int64(len(out)),
		Block:    wait,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return out, nil
		}
		return nil, fmt.Errorf("redisq: read %s: %w", stream, err)
	}

	for _, s := range streams {
		out = append(out, q.decode(partition, s.Messages)...)
	}
	return out, nil
}

// decode converts stream messages to deliveries. Entries that don't
// parse are logged and skipped; they only arise from manual stream edits.
func (q *Queue) decode(partition int, msgs []redis.XMessage) []queue.Delivery {
	out := make([]queue.Delivery, 0, len(msgs))
	for _, m := range msgs {
		jobRaw, _ := m.Values["job_id"].(string)
		jobID, err := id.ParseJobID(jobRaw)
		if err != nil {
			q.logger.Warn("dropping malformed dispatch entry", "entry_id", m.ID, "error", err)
			continue
		}
		d := event.Dispatch{JobID: jobID}
		if raw, ok := m.Values["enqueued_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				d.EnqueuedAt = t
			}
		}
		out = append(out, queue.Delivery{Dispatch: d, Partition: partition, Token: m.ID})
	}
	return out
}

func (q *Queue) Ack(ctx context.Context, group string, d queue.Delivery) error {
	err := q.client.XAck(ctx, streamKey(d.Partition), group, d.Token).Err()
	if err != nil {
		return fmt.Errorf("redisq: ack %s: %w", d.Token, err)
	}
	return nil
}

func (q *Queue) Partitions() int { return q.partitions }

// Close is a no-op — the caller owns the Redis client lifecycle.
func (q *Queue) Close(_ context.Context) error { return nil }
