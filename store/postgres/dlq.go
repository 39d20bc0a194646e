package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	videogen "github.com/keerthanap8898/TextToVideoAPI"
	"github.com/keerthanap8898/TextToVideoAPI/dlq"
	"github.com/keerthanap8898/TextToVideoAPI/id"
	"github.com/keerthanap8898/TextToVideoAPI/job"
)

const dlqColumns = `id, job_id, params, error_kind, error_message,
	attempts, max_attempts, failed_at, replayed_at, created_at`

// PushDLQ adds a permanently failed job entry to the dead letter queue.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	params, err := json.Marshal(entry.Params)
	if err != nil {
		return fmt.Errorf("videogen/postgres: push dlq marshal: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO videogen_dlq (`+dlqColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID.String(), entry.JobID.String(), params,
		string(entry.Error.Kind), entry.Error.Message,
		entry.Attempts, entry.MaxAttempts,
		entry.FailedAt, entry.ReplayedAt, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("videogen/postgres: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns DLQ entries matching the given options, newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := `SELECT ` + dlqColumns + ` FROM videogen_dlq ORDER BY failed_at DESC`
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("videogen/postgres: list dlq: %w", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		e, scanErr := scanDLQ(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("videogen/postgres: list dlq: %w", scanErr)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+dlqColumns+` FROM videogen_dlq WHERE id = $1`,
		entryID.String())
	e, err := scanDLQ(row)
	if err != nil {
		if isNoRows(err) {
			return nil, videogen.ErrDLQNotFound
		}
		return nil, fmt.Errorf("videogen/postgres: get dlq: %w", err)
	}
	return e, nil
}

// ReplayDLQ marks a DLQ entry as replayed.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE videogen_dlq SET replayed_at = now() WHERE id = $1`,
		entryID.String())
	if err != nil {
		return fmt.Errorf("videogen/postgres: replay dlq: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return videogen.ErrDLQNotFound
	}
	return nil
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM videogen_dlq WHERE failed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("videogen/postgres: purge dlq: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountDLQ returns the total number of entries in the dead letter queue.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM videogen_dlq`).Scan(&count); err != nil {
		return 0, fmt.Errorf("videogen/postgres: count dlq: %w", err)
	}
	return count, nil
}

func scanDLQ(row pgx.Row) (*dlq.Entry, error) {
	var (
		e       dlq.Entry
		params  []byte
		errKind string
	)
	err := row.Scan(
		&e.ID, &e.JobID, &params, &errKind, &e.Error.Message,
		&e.Attempts, &e.MaxAttempts, &e.FailedAt, &e.ReplayedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Error.Kind = job.ErrorKind(errKind)
	if err := json.Unmarshal(params, &e.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return &e, nil
}
