package projector_test

import (
	"testing"
	"time"

	"github.com/keerthanap8898/TextToVideoAPI/backoff"
	"github.com/keerthanap8898/TextToVideoAPI/event"
	"github.com/keerthanap8898/TextToVideoAPI/id"
	"github.com/keerthanap8898/TextToVideoAPI/job"
	"github.com/keerthanap8898/TextToVideoAPI/projector"
)

func runningJob(t *testing.T, attempt int) *job.Job {
	t.Helper()
	j, err := job.New(id.NewJobID(), job.Params{
		Prompt:          "a red fox in the snow",
		Width:           1280,
		Height:          720,
		FPS:             24,
		DurationSeconds: 5,
		Quality:         job.QualityMedium,
	}, 3)
	if err != nil {
		t.Fatalf("job.New: %v", err)
	}
	j.State = job.StateRunning
	j.Attempt = attempt
	j.LeaseWorker = id.NewWorkerID()
	exp := time.Now().Add(time.Minute)
	j.LeaseExpiresAt = &exp
	return j
}

func TestProgress_AdvancesStep(t *testing.T) {
	p := projector.New()
	j := runningJob(t, 1)

	mut, ok := p.Progress(j, event.Progress{JobID: j.ID, Attempt: 1, Step: 5, TotalSteps: 20})
	if !ok {
		t.Fatal("expected progress to apply")
	}
	mut(j)

	if j.Progress.Step != 5 || j.Progress.TotalSteps != 20 {
		t.Errorf("progress = %+v, want step 5 of 20", j.Progress)
	}
	if got := j.Progress.Percent(); got != 25 {
		t.Errorf("Percent() = %v, want 25", got)
	}
}

func TestProgress_DropsBackwardStep(t *testing.T) {
	p := projector.New()
	j := runningJob(t, 1)
	j.Progress = job.Progress{Step: 10, TotalSteps: 20}

	if _, ok := p.Progress(j, event.Progress{JobID: j.ID, Attempt: 1, Step: 7, TotalSteps: 20}); ok {
		t.Error("backward step should be dropped")
	}
	if _, ok := p.Progress(j, event.Progress{JobID: j.ID, Attempt: 1, Step: 10, TotalSteps: 20}); ok {
		t.Error("repeated step should be dropped")
	}
}

func TestProgress_DropsStaleAttempt(t *testing.T) {
	p := projector.New()
	j := runningJob(t, 2)

	if _, ok := p.Progress(j, event.Progress{JobID: j.ID, Attempt: 1, Step: 5, TotalSteps: 20}); ok {
		t.Error("progress from a superseded attempt should be dropped")
	}
}

func TestTerminal_Success(t *testing.T) {
	p := projector.New()
	j := runningJob(t, 1)

	dec, mut := p.Terminal(j, event.Terminal{
		JobID:    j.ID,
		Attempt:  1,
		Artifact: &event.Artifact{Ref: "s3://clips/out.mp4", Checksum: "abc", Size: 1024},
	})
	if dec != projector.Succeed {
		t.Fatalf("decision = %v, want Succeed", dec)
	}
	mut(j)

	if j.State != job.StateSucceeded {
		t.Errorf("state = %v, want succeeded", j.State)
	}
	if j.ArtifactRef != "s3://clips/out.mp4" {
		t.Errorf("artifact = %q", j.ArtifactRef)
	}
	if j.Error != nil {
		t.Errorf("terminal success must not carry error info, got %v", j.Error)
	}
	if !j.LeaseWorker.IsNil() || j.LeaseExpiresAt != nil {
		t.Error("lease must be cleared on terminal transition")
	}
	if j.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
}

func TestTerminal_TransientFailureRequeues(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := projector.New(
		projector.WithBackoff(backoff.NewConstant(30*time.Second)),
		projector.WithClock(func() time.Time { return now }),
	)
	j := runningJob(t, 1)

	dec, mut := p.Terminal(j, event.Terminal{
		JobID:   j.ID,
		Attempt: 1,
		Failure: &event.Failure{Kind: job.KindTransient, Message: "worker connection lost"},
	})
	if dec != projector.Requeue {
		t.Fatalf("decision = %v, want Requeue", dec)
	}
	mut(j)

	if j.State != job.StateQueued {
		t.Errorf("state = %v, want queued", j.State)
	}
	if want := now.Add(30 * time.Second); !j.NotBefore.Equal(want) {
		t.Errorf("NotBefore = %v, want %v", j.NotBefore, want)
	}
	if j.Progress.Step != 0 {
		t.Error("progress should reset on requeue")
	}
	if !j.LeaseWorker.IsNil() {
		t.Error("lease must be cleared on requeue")
	}
}

func TestTerminal_TransientFailureExhaustsBudget(t *testing.T) {
	p := projector.New()
	j := runningJob(t, 3) // MaxAttempts is 3

	dec, mut := p.Terminal(j, event.Terminal{
		JobID:   j.ID,
		Attempt: 3,
		Failure: &event.Failure{Kind: job.KindTransient, Message: "gpu oom"},
	})
	if dec != projector.Fail {
		t.Fatalf("decision = %v, want Fail", dec)
	}
	mut(j)

	if j.State != job.StateFailed {
		t.Errorf("state = %v, want failed", j.State)
	}
	if j.Error == nil || j.Error.Kind != job.KindRetriesExhausted {
		t.Errorf("error = %v, want retries_exhausted", j.Error)
	}
}

func TestTerminal_ValidationFailureNeverRetries(t *testing.T) {
	p := projector.New()
	j := runningJob(t, 1) // budget left, still must not retry

	dec, mut := p.Terminal(j, event.Terminal{
		JobID:   j.ID,
		Attempt: 1,
		Failure: &event.Failure{Kind: job.KindValidation, Message: "unsupported resolution"},
	})
	if dec != projector.Fail {
		t.Fatalf("decision = %v, want Fail", dec)
	}
	mut(j)

	if j.Error == nil || j.Error.Kind != job.KindValidation {
		t.Errorf("error = %v, want validation", j.Error)
	}
}

func TestTerminal_StaleAttemptDropped(t *testing.T) {
	p := projector.New()
	j := runningJob(t, 2)

	dec, _ := p.Terminal(j, event.Terminal{
		JobID:    j.ID,
		Attempt:  1,
		Artifact: &event.Artifact{Ref: "s3://clips/stale.mp4"},
	})
	if dec != projector.Drop {
		t.Errorf("decision = %v, want Drop for stale attempt", dec)
	}
}

func TestTerminal_AlreadyTerminalDropped(t *testing.T) {
	p := projector.New()
	j := runningJob(t, 1)
	j.State = job.StateFailed
	j.Error = &job.Error{Kind: job.KindCancelled, Message: "cancelled by user"}

	dec, _ := p.Terminal(j, event.Terminal{
		JobID:    j.ID,
		Attempt:  1,
		Artifact: &event.Artifact{Ref: "s3://clips/late.mp4"},
	})
	if dec != projector.Drop {
		t.Errorf("decision = %v, want Drop after cancel", dec)
	}
}

func TestTerminal_MutationGuardsAgainstRaceToNewAttempt(t *testing.T) {
	p := projector.New()
	j := runningJob(t, 1)

	_, mut := p.Terminal(j, event.Terminal{
		JobID:   j.ID,
		Attempt: 1,
		Failure: &event.Failure{Kind: job.KindTransient, Message: "timeout"},
	})

	// Between the read and the compare-and-set the job was requeued and
	// claimed again: the mutation must notice the newer attempt and no-op.
	j.Attempt = 2
	mut(j)

	if j.State != job.StateRunning {
		t.Errorf("state = %v, mutation for attempt 1 must not touch attempt 2", j.State)
	}
}
