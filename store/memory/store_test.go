package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	videogen "github.com/keerthanap8898/TextToVideoAPI"
	"github.com/keerthanap8898/TextToVideoAPI/dlq"
	"github.com/keerthanap8898/TextToVideoAPI/id"
	"github.com/keerthanap8898/TextToVideoAPI/job"
	"github.com/keerthanap8898/TextToVideoAPI/store/memory"
)

func newJob(t *testing.T) *job.Job {
	t.Helper()
	j, err := job.New(id.NewJobID(), job.Params{
		Prompt:          "city street in the rain",
		Width:           1280,
		Height:          720,
		FPS:             24,
		DurationSeconds: 6,
		Quality:         job.QualityMedium,
	}, 3)
	if err != nil {
		t.Fatalf("job.New: %v", err)
	}
	return j
}

func TestCreateJob_DuplicateID(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	j := newJob(t)

	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(ctx, j); !errors.Is(err, videogen.ErrJobAlreadyExists) {
		t.Errorf("duplicate CreateJob = %v, want ErrJobAlreadyExists", err)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	s := memory.New()
	if _, err := s.GetJob(context.Background(), id.NewJobID()); !errors.Is(err, videogen.ErrJobNotFound) {
		t.Errorf("GetJob = %v, want ErrJobNotFound", err)
	}
}

func TestGetJob_ReturnsCopy(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	j := newJob(t)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	got.State = job.StateFailed

	again, _ := s.GetJob(ctx, j.ID)
	if again.State != job.StateQueued {
		t.Error("mutating a returned job must not affect the store")
	}
}

func TestCompareAndSetState_Swaps(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	j := newJob(t)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	wkr := id.NewWorkerID()
	updated, swapped, err := s.CompareAndSetState(ctx, j.ID, job.StateQueued, func(j *job.Job) {
		j.State = job.StateRunning
		j.Attempt++
		j.LeaseWorker = wkr
	})
	if err != nil {
		t.Fatalf("CompareAndSetState: %v", err)
	}
	if !swapped {
		t.Fatal("expected swap to happen")
	}
	if updated.State != job.StateRunning || updated.Attempt != 1 {
		t.Errorf("updated = %v attempt %d, want running attempt 1", updated.State, updated.Attempt)
	}

	persisted, _ := s.GetJob(ctx, j.ID)
	if persisted.State != job.StateRunning {
		t.Error("swap not persisted")
	}
}

func TestCompareAndSetState_WrongExpectedState(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	j := newJob(t)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	current, swapped, err := s.CompareAndSetState(ctx, j.ID, job.StateRunning, func(j *job.Job) {
		j.State = job.StateSucceeded
	})
	if err != nil {
		t.Fatalf("CompareAndSetState: %v", err)
	}
	if swapped {
		t.Error("swap must not happen when expected state differs")
	}
	if current.State != job.StateQueued {
		t.Errorf("returned job state = %v, want the current queued", current.State)
	}
}

func TestCompareAndSetState_NotFound(t *testing.T) {
	s := memory.New()
	_, _, err := s.CompareAndSetState(context.Background(), id.NewJobID(), job.StateQueued, func(*job.Job) {})
	if !errors.Is(err, videogen.ErrJobNotFound) {
		t.Errorf("CompareAndSetState = %v, want ErrJobNotFound", err)
	}
}

func TestListJobs_CursorPagination(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	for range 5 {
		if err := s.CreateJob(ctx, newJob(t)); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	first, cursor, err := s.ListJobs(ctx, job.ListOpts{Limit: 2})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(first) != 2 || cursor == "" {
		t.Fatalf("first page = %d entries, cursor %q", len(first), cursor)
	}

	seen := map[string]bool{}
	for _, j := range first {
		seen[j.ID.String()] = true
	}

	for cursor != "" {
		var page []*job.Job
		page, cursor, err = s.ListJobs(ctx, job.ListOpts{Limit: 2, Cursor: cursor})
		if err != nil {
			t.Fatalf("ListJobs: %v", err)
		}
		for _, j := range page {
			if seen[j.ID.String()] {
				t.Fatalf("job %s returned twice", j.ID)
			}
			seen[j.ID.String()] = true
		}
	}

	if len(seen) != 5 {
		t.Errorf("paged through %d jobs, want 5", len(seen))
	}
}

func TestListJobs_StateFilter(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	queued := newJob(t)
	running := newJob(t)
	if err := s.CreateJob(ctx, queued); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateJob(ctx, running); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.CompareAndSetState(ctx, running.ID, job.StateQueued, func(j *job.Job) {
		j.State = job.StateRunning
	}); err != nil {
		t.Fatal(err)
	}

	got, _, err := s.ListJobs(ctx, job.ListOpts{State: job.StateRunning})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(got) != 1 || got[0].ID != running.ID {
		t.Errorf("state filter returned %d jobs", len(got))
	}
}

func TestExpiredLeases(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	expired := newJob(t)
	live := newJob(t)
	for _, j := range []*job.Job{expired, live} {
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	mustCAS(t, s, expired.ID, func(j *job.Job) {
		j.State = job.StateRunning
		j.LeaseExpiresAt = &past
	})
	mustCAS(t, s, live.ID, func(j *job.Job) {
		j.State = job.StateRunning
		j.LeaseExpiresAt = &future
	})

	got, err := s.ExpiredLeases(ctx, now, 0)
	if err != nil {
		t.Fatalf("ExpiredLeases: %v", err)
	}
	if len(got) != 1 || got[0].ID != expired.ID {
		t.Errorf("ExpiredLeases returned %d jobs", len(got))
	}
}

func mustCAS(t *testing.T, s *memory.Store, jobID id.JobID, mutate job.Mutation) {
	t.Helper()
	_, swapped, err := s.CompareAndSetState(context.Background(), jobID, job.StateQueued, mutate)
	if err != nil || !swapped {
		t.Fatalf("CAS failed: swapped=%v err=%v", swapped, err)
	}
}

func TestStaleQueued(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	j := newJob(t)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatal(err)
	}

	got, err := s.StaleQueued(ctx, time.Now().UTC().Add(time.Minute), 0)
	if err != nil {
		t.Fatalf("StaleQueued: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("StaleQueued before future cutoff = %d jobs, want 1", len(got))
	}

	got, err = s.StaleQueued(ctx, time.Now().UTC().Add(-time.Minute), 0)
	if err != nil {
		t.Fatalf("StaleQueued: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("StaleQueued before past cutoff = %d jobs, want 0", len(got))
	}
}

func TestDLQ_RoundTrip(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	entry := &dlq.Entry{
		ID:          id.NewDLQID(),
		JobID:       id.NewJobID(),
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
	if got.Error.Kind != job.KindRetriesExhausted {
		t.Errorf("error kind = %v", got.Error.Kind)
	}

	if err := s.ReplayDLQ(ctx, entry.ID); err != nil {
		t.Fatalf("ReplayDLQ: %v", err)
	}
	got, _ = s.GetDLQ(ctx, entry.ID)
	if got.ReplayedAt == nil {
		t.Error("ReplayedAt not set")
	}

	n, err := s.CountDLQ(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountDLQ = %d, %v", n, err)
	}

	purged, err := s.PurgeDLQ(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil || purged != 1 {
		t.Errorf("PurgeDLQ = %d, %v", purged, err)
	}
	if _, err := s.GetDLQ(ctx, entry.ID); !errors.Is(err, videogen.ErrDLQNotFound) {
		t.Errorf("GetDLQ after purge = %v, want ErrDLQNotFound", err)
	}
}
