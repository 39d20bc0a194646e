//go:build integration

package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"

	videogen "github.com/keerthanap8898/TextToVideoAPI"
	"github.com/keerthanap8898/TextToVideoAPI/dlq"
	"github.com/keerthanap8898/TextToVideoAPI/id"
	"github.com/keerthanap8898/TextToVideoAPI/job"
	redisstore "github.com/keerthanap8898/TextToVideoAPI/store/redis"
)

// setupTestStore starts a Redis container and returns a Store on it.
func setupTestStore(t *testing.T) *redisstore.Store {
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
	opts, err := goredis.ParseURL(addr)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	s := redisstore.New(client)
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	return s
}

func testParams() job.Params {
	return job.Params{
		Prompt:          "aurora over a fjord",
		Width:           1024,
		Height:          576,
		FPS:             24,
		DurationSeconds: 4,
		Quality:         job.QualityMedium,
	}
}

func TestCreateAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	j, err := job.New(id.NewJobID(), testParams(), 3)
	if err != nil {
		t.Fatalf("job.New: %v", err)
	}
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(ctx, j); !errors.Is(err, videogen.ErrJobAlreadyExists) {
		t.Errorf("duplicate create err = %v, want ErrJobAlreadyExists", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID != j.ID || got.State != job.StateQueued || got.Params.Prompt != j.Params.Prompt {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, videogen.ErrJobNotFound) {
		t.Errorf("missing job err = %v, want ErrJobNotFound", err)
	}
}

func TestCompareAndSetState(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	j, _ := job.New(id.NewJobID(), testParams(), 3)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	lease := time.Now().UTC().Add(time.Minute)
	next, swapped, err := s.CompareAndSetState(ctx, j.ID, job.StateQueued, func(j *job.Job) {
		j.Attempt++
		j.State = job.StateRunning
		j.LeaseWorker = id.NewWorkerID()
		j.LeaseExpiresAt = &lease
	})
	if err != nil {
		t.Fatalf("CompareAndSetState: %v", err)
	}
	if !swapped || next.State != job.StateRunning || next.Attempt != 1 {
		t.Fatalf("claim failed: swapped=%v job=%+v", swapped, next)
	}

	// Lost race: expected state no longer matches.
	cur, swapped, err := s.CompareAndSetState(ctx, j.ID, job.StateQueued, func(j *job.Job) {
		j.Attempt++
	})
	if err != nil {
		t.Fatalf("CompareAndSetState: %v", err)
	}
	if swapped {
		t.Fatal("swap succeeded against a stale expected state")
	}
	if cur.State != job.StateRunning || cur.Attempt != 1 {
		t.Errorf("lost race returned %+v, want the current job", cur)
	}
}

func TestExpiredLeasesAndStaleQueued(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expired, _ := job.New(id.NewJobID(), testParams(), 3)
	expired.State = job.StateRunning
	expired.Attempt = 1
	past := now.Add(-time.Minute)
	expired.LeaseExpiresAt = &past
	if err := s.CreateJob(ctx, expired); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	live, _ := job.New(id.NewJobID(), testParams(), 3)
	live.State = job.StateRunning
	live.Attempt = 1
	future := now.Add(time.Minute)
	live.LeaseExpiresAt = &future
	if err := s.CreateJob(ctx, live); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, err := s.ExpiredLeases(ctx, now, 10)
	if err != nil {
		t.Fatalf("ExpiredLeases: %v", err)
	}
	if len(got) != 1 || got[0].ID != expired.ID {
		t.Errorf("ExpiredLeases = %+v, want the expired job only", got)
	}

	stale, err := s.StaleQueued(ctx, now.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("StaleQueued: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("running jobs reported as stale queued: %+v", stale)
	}
}

func TestListJobsPagination(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for range 5 {
		j, _ := job.New(id.NewJobID(), testParams(), 3)
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	page1, cursor, err := s.ListJobs(ctx, job.ListOpts{Limit: 3})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(page1) != 3 || cursor == "" {
		t.Fatalf("page1 = %d entries, cursor %q", len(page1), cursor)
	}

	page2, _, err := s.ListJobs(ctx, job.ListOpts{Limit: 3, Cursor: cursor})
	if err != nil {
		t.Fatalf("ListJobs page2: %v", err)
	}
	if len(page2) != 2 {
		t.Fatalf("page2 = %d entries, want 2", len(page2))
	}

	n, err := s.CountJobs(ctx, job.CountOpts{State: job.StateQueued})
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if n != 5 {
		t.Errorf("count = %d, want 5", n)
	}
}

func TestDLQRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	entry := &dlq.Entry{
		ID:          id.NewDLQID(),
		JobID:       id.NewJobID(),
		Params:      testParams(),
		Error:       job.Error{Kind: job.KindRetriesExhausted, Message: "gpu oom"},
		Attempts:    3,
		MaxAttempts: 3,
		FailedAt:    time.Now().UTC(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.PushDLQ(ctx, entry); err != nil {
		t.Fatalf("PushDLQ: %v", err)
	}

	got, err := s.GetDLQ(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetDLQ: %v", err)
	}
	if got.JobID != entry.JobID || got.Error.Kind != job.KindRetriesExhausted {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if err := s.ReplayDLQ(ctx, entry.ID); err != nil {
		t.Fatalf("ReplayDLQ: %v", err)
	}
	replayed, _ := s.GetDLQ(ctx, entry.ID)
	if replayed.ReplayedAt == nil {
		t.Error("ReplayedAt not set")
	}

	n, err := s.CountDLQ(ctx)
	if err != nil {
		t.Fatalf("CountDLQ: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}
