package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/phrazzld/tasktrail-api/internal/job"
	"github.com/phrazzld/tasktrail-api/internal/platform/logger"
	"github.com/phrazzld/tasktrail-api/internal/store"
)

const jobColumns = "id, name, payload, status, attempts, max_attempts, backoff_ms, last_error, run_at, created_at, updated_at"

// PostgresJobStore implements job.Store using PostgreSQL.
type PostgresJobStore struct {
	db store.DBTX
}

// NewPostgresJobStore creates a new PostgresJobStore
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

var _ job.Store = (*PostgresJobStore)(nil)

// Save persists a job to the database
func (s *PostgresJobStore) Save(ctx context.Context, j *job.Job) error {
	log := logger.FromContext(ctx)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		j.ID,
		j.Name,
		string(j.Payload),
		j.Status,
		j.Attempts,
		j.MaxAttempts,
		j.Backoff.Milliseconds(),
		nullString(j.LastError),
		j.RunAt,
		j.CreatedAt,
		j.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to save job",
			"job_id", j.ID,
			"job_name", j.Name,
			"error", err)
		return fmt.Errorf("failed to save job to database: %w", MapError(err))
	}
	return nil
}

// UpdateStatus writes the job's mutable state. A missing row is logged and
// ignored since the runner keeps going with its in-memory copy.
func (s *PostgresJobStore) UpdateStatus(ctx context.Context, j *job.Job) error {
	log := logger.FromContext(ctx)

	j.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, attempts = $2, last_error = $3, run_at = $4, updated_at = $5
		WHERE id = $6`,
		j.Status,
		j.Attempts,
		nullString(j.LastError),
		j.RunAt,
		j.UpdatedAt,
		j.ID,
	)
	if err != nil {
		log.Error("failed to update job status",
			"job_id", j.ID,
			"status", j.Status,
			"error", err)
		return fmt.Errorf("failed to update job status: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		log.Warn("no job found with ID to update status", "job_id", j.ID)
	}
	return nil
}

// GetPending retrieves all jobs with "pending" status
func (s *PostgresJobStore) GetPending(ctx context.Context) ([]*job.Job, error) {
	return s.byStatus(ctx, job.StatusPending, 0)
}

// GetProcessing retrieves jobs with "processing" status
func (s *PostgresJobStore) GetProcessing(ctx context.Context, olderThan time.Duration) ([]*job.Job, error) {
	return s.byStatus(ctx, job.StatusProcessing, olderThan)
}

func (s *PostgresJobStore) byStatus(ctx context.Context, status job.Status, olderThan time.Duration) ([]*job.Job, error) {
	log := logger.FromContext(ctx)

	query := "SELECT " + jobColumns + " FROM jobs WHERE status = $1"
	args := []any{status}
	if olderThan > 0 {
		query += " AND updated_at < $2"
		args = append(args, time.Now().UTC().Add(-olderThan))
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query jobs by status",
			"status", status,
			"error", err)
		return nil, fmt.Errorf("failed to query jobs by status: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var jobs []*job.Job
	for rows.Next() {
		var (
			j         job.Job
			payload   []byte
			backoffMS int64
			lastError sql.NullString
		)
		if err := rows.Scan(
			&j.ID,
			&j.Name,
			&payload,
			&j.Status,
			&j.Attempts,
			&j.MaxAttempts,
			&backoffMS,
			&lastError,
			&j.RunAt,
			&j.CreatedAt,
			&j.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		j.Payload = payload
		j.Backoff = time.Duration(backoffMS) * time.Millisecond
		j.LastError = lastError.String
		jobs = append(jobs, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}
	return jobs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
