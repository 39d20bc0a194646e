package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	videogen "github.com/keerthanap8898/TextToVideoAPI"
	"github.com/keerthanap8898/TextToVideoAPI/id"
	"github.com/keerthanap8898/TextToVideoAPI/job"
)

// jobColumns is the canonical column order shared by every job query and
// by scanJob.
const jobColumns = `id, prompt, width, height, fps, duration_seconds, quality, seed,
	state, partition, attempt, max_attempts, not_before,
	lease_worker, lease_expires_at, step, total_steps,
	artifact_ref, artifact_checksum, artifact_size,
	error_kind, error_message, started_at, completed_at, created_at, updated_at`

// CreateJob inserts a new job row.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO videogen_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17,
			$18, $19, $20,
			$21, $22, $23, $24, $25, $26)`,
		jobArgs(j)...)
	if err != nil {
		if isDuplicateKey(err) {
			return videogen.ErrJobAlreadyExists
		}
		return fmt.Errorf("videogen/postgres: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM videogen_jobs WHERE id = $1`,
		jobID.String())
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, videogen.ErrJobNotFound
		}
		return nil, fmt.Errorf("videogen/postgres: get job: %w", err)
	}
	return j, nil
}

// CompareAndSetState applies mutate iff the job is still in the expected
// state. The row is locked for the duration of the transaction, so the
// mutation sees a stable snapshot and concurrent writers serialize on
// the row lock rather than clobbering each other.
func (s *Store) CompareAndSetState(ctx context.Context, jobID id.JobID, expected job.State, mutate job.Mutation) (*job.Job, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("videogen/postgres: cas begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	row := tx.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM videogen_jobs WHERE id = $1 FOR UPDATE`,
		jobID.String())
	cur, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, false, videogen.ErrJobNotFound
		}
		return nil, false, fmt.Errorf("videogen/postgres: cas read: %w", err)
	}
	if cur.State != expected {
		return cur, false, nil
	}

	next := *cur
	mutate(&next)
	next.Touch()

	if _, err := tx.Exec(ctx, `
		UPDATE videogen_jobs SET
			state = $2, partition = $3, attempt = $4, max_attempts = $5,
			not_before = $6, lease_worker = $7, lease_expires_at = $8,
			step = $9, total_steps = $10,
			artifact_ref = $11, artifact_checksum = $12, artifact_size = $13,
			error_kind = $14, error_message = $15,
			started_at = $16, completed_at = $17, updated_at = $18
		WHERE id = $1`,
		updateArgs(&next)...); err != nil {
		return nil, false, fmt.Errorf("videogen/postgres: cas write: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("videogen/postgres: cas commit: %w", err)
	}
	return &next, true, nil
}

// ListJobs returns jobs in creation order with a next cursor. Job IDs
// are K-sortable, so ordering by ID is ordering by creation time.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, string, error) {
	query := `SELECT ` + jobColumns + ` FROM videogen_jobs`
	var args []any
	var conds []string

	if opts.Cursor != "" {
		args = append(args, opts.Cursor)
		conds = append(conds, fmt.Sprintf("id > $%d", len(args)))
	}
	if opts.State != "" {
		args = append(args, string(opts.State))
		conds = append(conds, fmt.Sprintf("state = $%d", len(args)))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY id"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("videogen/postgres: list jobs: %w", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, "", fmt.Errorf("videogen/postgres: list jobs: %w", err)
	}

	next := ""
	if opts.Limit > 0 && len(jobs) == opts.Limit {
		next = jobs[len(jobs)-1].ID.String()
	}
	return jobs, next, nil
}

// ExpiredLeases returns running jobs whose lease lapsed before now.
func (s *Store) ExpiredLeases(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM videogen_jobs
		WHERE state = 'running' AND lease_expires_at < $1
		ORDER BY lease_expires_at`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("videogen/postgres: expired leases: %w", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, fmt.Errorf("videogen/postgres: expired leases: %w", err)
	}
	return jobs, nil
}

// StaleQueued returns queued jobs last updated before cutoff.
func (s *Store) StaleQueued(ctx context.Context, cutoff time.Time, limit int) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM videogen_jobs
		WHERE state = 'queued' AND updated_at < $1
		ORDER BY updated_at`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("videogen/postgres: stale queued: %w", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, fmt.Errorf("videogen/postgres: stale queued: %w", err)
	}
	return jobs, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM videogen_jobs`
	var args []any
	if opts.State != "" {
		query += ` WHERE state = $1`
		args = append(args, string(opts.State))
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("videogen/postgres: count jobs: %w", err)
	}
	return count, nil
}

// ── helpers ──

// jobArgs flattens a job into the jobColumns order for INSERT.
func jobArgs(j *job.Job) []any {
	var errKind, errMsg *string
	if j.Error != nil {
		k, m := string(j.Error.Kind), j.Error.Message
		errKind, errMsg = &k, &m
	}
	return []any{
		j.ID.String(), j.Params.Prompt, j.Params.Width, j.Params.Height,
		j.Params.FPS, j.Params.DurationSeconds, string(j.Params.Quality), j.Params.Seed,
		string(j.State), j.Partition, j.Attempt, j.MaxAttempts, j.NotBefore,
		nullableID(j.LeaseWorker), j.LeaseExpiresAt, j.Progress.Step, j.Progress.TotalSteps,
		j.ArtifactRef, j.ArtifactChecksum, j.ArtifactSize,
		errKind, errMsg, j.StartedAt, j.CompletedAt, j.CreatedAt, j.UpdatedAt,
	}
}

// updateArgs flattens the mutable fields for the CAS UPDATE, with the
// job ID first.
func updateArgs(j *job.Job) []any {
	var errKind, errMsg *string
	if j.Error != nil {
		k, m := string(j.Error.Kind), j.Error.Message
		errKind, errMsg = &k, &m
	}
	return []any{
		j.ID.String(),
		string(j.State), j.Partition, j.Attempt, j.MaxAttempts,
		j.NotBefore, nullableID(j.LeaseWorker), j.LeaseExpiresAt,
		j.Progress.Step, j.Progress.TotalSteps,
		j.ArtifactRef, j.ArtifactChecksum, j.ArtifactSize,
		errKind, errMsg,
		j.StartedAt, j.CompletedAt, j.UpdatedAt,
	}
}

func nullableID(i id.ID) *string {
	if i.IsNil() {
		return nil
	}
	s := i.String()
	return &s
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j           job.Job
		quality     string
		state       string
		leaseWorker *string
		errKind     *string
		errMsg      *string
	)
	err := row.Scan(
		&j.ID, &j.Params.Prompt, &j.Params.Width, &j.Params.Height,
		&j.Params.FPS, &j.Params.DurationSeconds, &quality, &j.Params.Seed,
		&state, &j.Partition, &j.Attempt, &j.MaxAttempts, &j.NotBefore,
		&leaseWorker, &j.LeaseExpiresAt, &j.Progress.Step, &j.Progress.TotalSteps,
		&j.ArtifactRef, &j.ArtifactChecksum, &j.ArtifactSize,
		&errKind, &errMsg, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Params.Quality = job.Quality(quality)
	j.State = job.State(state)
	if leaseWorker != nil {
		j.LeaseWorker, _ = id.ParseWorkerID(*leaseWorker) //nolint:errcheck // best-effort parse of our own data
	}
	if errKind != nil {
		j.Error = &job.Error{Kind: job.ErrorKind(*errKind)}
		if errMsg != nil {
			j.Error.Message = *errMsg
		}
	}
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
