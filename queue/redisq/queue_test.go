//go:build integration

package redisq_test

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/keerthanap8898/TextToVideoAPI/event"
	"github.com/keerthanap8898/TextToVideoAPI/id"
	"github.com/keerthanap8898/TextToVideoAPI/queue/redisq"
)

func setupQueue(t *testing.T, partitions int, opts ...redisq.Option) *redisq.Queue {
	t.Helper()
	ctx := context.Background()

	container, err := redismodule.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	addr, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	parsed, err := goredis.ParseURL(addr)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	client := goredis.NewClient(parsed)
	t.Cleanup(func() { _ = client.Close() })

	return redisq.New(client, partitions, opts...)
}

func dispatch() event.Dispatch {
	return event.Dispatch{JobID: id.NewJobID(), EnqueuedAt: time.Now().UTC()}
}

func TestPublishFetchAck(t *testing.T) {
	q := setupQueue(t, 2)
	ctx := context.Background()

	d := dispatch()
	if err := q.Publish(ctx, 1, d); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got, err := q.Fetch(ctx, 1, "dispatchers", "c1", 10, time.Second)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("fetched %d deliveries, want 1", len(got))
	}
	if got[0].Dispatch.JobID != d.JobID {
		t.Errorf("job = %s, want %s", got[0].Dispatch.JobID, d.JobID)
	}
	if got[0].Token == "" {
		t.Error("delivery has no ack token")
	}

	if err := q.Ack(ctx, "dispatchers", got[0]); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	// Acked entries must not come back, even through reclaim.
	again, err := q.Fetch(ctx, 1, "dispatchers", "c2", 10, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("acked delivery refetched: %+v", again)
	}
}

func TestPartitionIsolation(t *testing.T) {
	q := setupQueue(t, 2)
	ctx := context.Background()

	if err := q.Publish(ctx, 0, dispatch()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	got, err := q.Fetch(ctx, 1, "dispatchers", "c1", 10, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("partition 1 saw partition 0 traffic")
	}
}

func TestUnackedReclaimedForAnotherConsumer(t *testing.T) {
	q := setupQueue(t, 1, redisq.WithVisibilityTimeout(100*time.Millisecond))
	ctx := context.Background()

	d := dispatch()
	if err := q.Publish(ctx, 0, d); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// c1 fetches but never acks — it "crashed".
	first, err := q.Fetch(ctx, 0, "dispatchers", "c1", 10, time.Second)
	if err != nil || len(first) != 1 {
		t.Fatalf("first fetch: %v %d", err, len(first))
	}

	time.Sleep(150 * time.Millisecond)

	// c2 must reclaim the pending entry.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		got, err := q.Fetch(ctx, 0, "dispatchers", "c2", 10, 200*time.Millisecond)
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if len(got) == 1 {
			if got[0].Dispatch.JobID != d.JobID {
				t.Errorf("reclaimed job = %s, want %s", got[0].Dispatch.JobID, d.JobID)
			}
			return
		}
	}
	t.Fatal("unacked delivery never reclaimed")
}

func TestOrderWithinPartition(t *testing.T) {
	q := setupQueue(t, 1)
	ctx := context.Background()

	sent := make([]id.JobID, 3)
	for i := range sent {
		d := dispatch()
		sent[i] = d.JobID
		if err := q.Publish(ctx, 0, d); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	got, err := q.Fetch(ctx, 0, "dispatchers", "c1", 10, time.Second)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("fetched %d, want 3", len(got))
	}
	for i, del := range got {
		if del.Dispatch.JobID != sent[i] {
			t.Errorf("position %d: job %s, want %s", i, del.Dispatch.JobID, sent[i])
		}
	}
}
