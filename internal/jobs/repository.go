package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/heimdex/heimdex-aligner/internal/align"
)

type Repository interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListPendingJobs(ctx context.Context, limit int) ([]*Job, error)
	ClaimJob(ctx context.Context, id string) (bool, error)
	CompleteJob(ctx context.Context, id, outcome, s3Key string, segments []align.MatchedSegment) error
	FailJob(ctx context.Context, id, errorMsg string) error
	GetSegments(ctx context.Context, jobID string) ([]align.MatchedSegment, error)
	CountJobsByStatus(ctx context.Context) (map[string]int, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

const jobColumns = `id, status, source_uri, s3_key, segment_count, outcome, error, created_at, updated_at`

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Status, j.SourceURI, nullString(j.S3Key), j.SegmentCount,
		nullString(j.Outcome), nullString(j.Error),
		j.CreatedAt.UTC().Format(time.RFC3339), j.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)

	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *SQLiteRepository) ListPendingJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs WHERE status = 'pending' ORDER BY created_at ASC, rowid ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ClaimJob moves a pending job to running. It returns false when the job was
// not pending, so two workers never run the same job.
func (r *SQLiteRepository) ClaimJob(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'
	`, now(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CompleteJob stores the matched segments and marks the job completed in one
// transaction.
func (r *SQLiteRepository) CompleteJob(ctx context.Context, id, outcome, s3Key string, segments []align.MatchedSegment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE job_id = ?`, id); err != nil {
		return fmt.Errorf("clear segments: %w", err)
	}

	for i, seg := range segments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO segments (job_id, position, start_time, end_time, start_ms, end_ms, transcript)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, i, seg.StartTime, seg.EndTime, seg.StartMs, seg.EndMs, seg.Transcript)
		if err != nil {
			return fmt.Errorf("insert segment %d: %w", i, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET status = 'completed', outcome = ?, s3_key = ?, segment_count = ?, error = NULL, updated_at = ?
		WHERE id = ?
	`, outcome, nullString(s3Key), len(segments), now(), id)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	return tx.Commit()
}

func (r *SQLiteRepository) FailJob(ctx context.Context, id, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'failed', outcome = 'failed', error = ?, updated_at = ? WHERE id = ?
	`, nullString(errorMsg), now(), id)
	return err
}

func (r *SQLiteRepository) GetSegments(ctx context.Context, jobID string) ([]align.MatchedSegment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT start_time, end_time, start_ms, end_ms, transcript
		FROM segments WHERE job_id = ? ORDER BY position ASC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	segments := []align.MatchedSegment{}
	for rows.Next() {
		var s align.MatchedSegment
		if err := rows.Scan(&s.StartTime, &s.EndTime, &s.StartMs, &s.EndMs, &s.Transcript); err != nil {
			return nil, err
		}
		segments = append(segments, s)
	}
	return segments, rows.Err()
}

func (r *SQLiteRepository) CountJobsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{
		StatusPending:   0,
		StatusRunning:   0,
		StatusCompleted: 0,
		StatusFailed:    0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var j Job
	var s3Key, outcome, errMsg sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&j.ID, &j.Status, &j.SourceURI, &s3Key, &j.SegmentCount, &outcome, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	j.S3Key = s3Key.String
	j.Outcome = outcome.String
	j.Error = errMsg.String
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
