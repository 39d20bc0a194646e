package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	videogen "github.com/keerthanap8898/TextToVideoAPI"
	"github.com/keerthanap8898/TextToVideoAPI/id"
	"github.com/keerthanap8898/TextToVideoAPI/job"
)

// casScript guards a hash rewrite on the job's state and version stamp.
// KEYS[1] = job key, ARGV[1] = expected state, ARGV[2] = expected
// updated_at, ARGV[3..] = alternating field/value pairs. Returns 1 on
// swap, 0 on conflict, -1 if the key is gone.
var casScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
if redis.call("HGET", KEYS[1], "state") ~= ARGV[1] then
  return 0
end
if redis.call("HGET", KEYS[1], "updated_at") ~= ARGV[2] then
  return 0
end
for i = 3, #ARGV, 2 do
  redis.call("HSET", KEYS[1], ARGV[i], ARGV[i + 1])
end
return 1
`)

// casMaxRetries bounds the re-read loop when a concurrent writer changed
// the job but its state still matches the expectation.
const casMaxRetries = 5

// CreateJob stores the job as a Hash and adds it to the tracking Set.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("videogen/redis: create check exists: %w", err)
	}
	if exists > 0 {
		return videogen.ErrJobAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, jobToMap(j))
	pipe.SAdd(ctx, jobIDsKey, jID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("videogen/redis: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

// CompareAndSetState applies mutate iff the job is still in the expected
// state. The hash rewrite runs under a Lua script checking both the
// state and the updated_at version stamp; a stamp conflict with a
// still-matching state re-reads and retries.
func (s *Store) CompareAndSetState(ctx context.Context, jobID id.JobID, expected job.State, mutate job.Mutation) (*job.Job, bool, error) {
	key := jobKey(jobID.String())

	for range casMaxRetries {
		cur, err := s.getJobByKey(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if cur.State != expected {
			return cur, false, nil
		}
		version := cur.UpdatedAt.Format(time.RFC3339Nano)

		next := *cur
		mutate(&next)
		next.Touch()

		args := []any{string(expected), version}
		for f, v := range jobToMap(&next) {
			args = append(args, f, v)
		}

		res, err := casScript.Run(ctx, s.client, []string{key}, args...).Int()
		if err != nil {
			return nil, false, fmt.Errorf("videogen/redis: cas: %w", err)
		}
		switch res {
		case 1:
			return &next, true, nil
		case -1:
			return nil, false, videogen.ErrJobNotFound
		}
		// Version conflict: someone else wrote while state still matched.
	}
	return nil, false, videogen.ErrConflict
}

// ListJobs returns jobs in creation order with a next cursor. Job IDs
// are K-sortable, so sorting ID strings is sorting by creation time.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, string, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, "", fmt.Errorf("videogen/redis: list jobs smembers: %w", err)
	}
	sort.Strings(ids)

	var jobs []*job.Job
	next := ""
	for _, jID := range ids {
		if opts.Cursor != "" && jID <= opts.Cursor {
			continue
		}
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // skip missing
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		jobs = append(jobs, j)
		if opts.Limit > 0 && len(jobs) == opts.Limit {
			next = jID
			break
		}
	}
	return jobs, next, nil
}

// ExpiredLeases returns running jobs whose lease lapsed before now.
func (s *Store) ExpiredLeases(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("videogen/redis: expired leases smembers: %w", err)
	}

	var expired []*job.Job
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if !j.LeaseExpired(now) {
			continue
		}
		expired = append(expired, j)
		if limit > 0 && len(expired) >= limit {
			break
		}
	}
	return expired, nil
}

// StaleQueued returns queued jobs last updated before cutoff.
func (s *Store) StaleQueued(ctx context.Context, cutoff time.Time, limit int) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("videogen/redis: stale queued smembers: %w", err)
	}

	var stale []*job.Job
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if j.State != job.StateQueued || !j.UpdatedAt.Before(cutoff) {
			continue
		}
		stale = append(stale, j)
		if limit > 0 && len(stale) >= limit {
			break
		}
	}
	return stale, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	if opts.State == "" {
		return s.client.SCard(ctx, jobIDsKey).Result()
	}

	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("videogen/redis: count smembers: %w", err)
	}
	var count int64
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if j.State == opts.State {
			count++
		}
	}
	return count, nil
}

// ── helpers ──

func jobToMap(j *job.Job) map[string]any {
	m := map[string]any{
		"id":           j.ID.String(),
		"params":       marshalJSON(j.Params),
		"state":        string(j.State),
		"partition":    strconv.Itoa(j.Partition),
		"attempt":      strconv.Itoa(j.Attempt),
		"max_attempts": strconv.Itoa(j.MaxAttempts),
		"not_before":   j.NotBefore.Format(time.RFC3339Nano),
		"lease_worker": j.LeaseWorker.String(),
		"step":         strconv.Itoa(j.Progress.Step),
		"total_steps":  strconv.Itoa(j.Progress.TotalSteps),
		"artifact_ref": j.ArtifactRef,
		"artifact_sum": j.ArtifactChecksum,
		"artifact_len": strconv.FormatInt(j.ArtifactSize, 10),
		"created_at":   j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":   j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if j.Error != nil {
		m["error"] = marshalJSON(j.Error)
	} else {
		m["error"] = ""
	}
	if j.LeaseExpiresAt != nil {
		m["lease_expires_at"] = j.LeaseExpiresAt.Format(time.RFC3339Nano)
	} else {
		m["lease_expires_at"] = ""
	}
	if j.StartedAt != nil {
		m["started_at"] = j.StartedAt.Format(time.RFC3339Nano)
	}
	if j.CompletedAt != nil {
		m["completed_at"] = j.CompletedAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("videogen/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, videogen.ErrJobNotFound
	}
	return mapToJob(vals)
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("videogen/redis: parse job id: %w", err)
	}

	partition, _ := strconv.Atoi(m["partition"])       //nolint:errcheck // best-effort parse from trusted Redis data
	attempt, _ := strconv.Atoi(m["attempt"])           //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"])  //nolint:errcheck // best-effort parse from trusted Redis data
	step, _ := strconv.Atoi(m["step"])                 //nolint:errcheck // best-effort parse from trusted Redis data
	totalSteps, _ := strconv.Atoi(m["total_steps"])    //nolint:errcheck // best-effort parse from trusted Redis data
	size, _ := strconv.ParseInt(m["artifact_len"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data

	notBefore, _ := time.Parse(time.RFC3339Nano, m["not_before"])  //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])  //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])  //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: videogen.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:               jID,
		State:            job.State(m["state"]),
		Partition:        partition,
		Attempt:          attempt,
		MaxAttempts:      maxAttempts,
		NotBefore:        notBefore,
		Progress:         job.Progress{Step: step, TotalSteps: totalSteps},
		ArtifactRef:      m["artifact_ref"],
		ArtifactChecksum: m["artifact_sum"],
		ArtifactSize:     size,
	}

	if v := m["params"]; v != "" {
		_ = json.Unmarshal([]byte(v), &j.Params) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["error"]; v != "" {
		var e job.Error
		if json.Unmarshal([]byte(v), &e) == nil {
			j.Error = &e
		}
	}
	if wid := m["lease_worker"]; wid != "" {
		j.LeaseWorker, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["lease_expires_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.LeaseExpiresAt = &t
	}
	if v := m["started_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.StartedAt = &t
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.CompletedAt = &t
	}

	return j, nil
}

// marshalJSON is a helper to marshal to JSON string.
func marshalJSON(v any) string {
	b, _ := json.Marshal(v) //nolint:errcheck // marshal should not fail for basic types
	return string(b)
}
