package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository. All transitions are
// single-row conditional updates; the database's row-level atomicity is the
// only lock involved.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

const jobColumns = `id, type, payload, status, attempts, result, error_message, created_at, updated_at`

// Create inserts a new pending job row.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, type, payload, status, attempts)
VALUES ($1, $2, $3, $4, 0);
`
	status := job.Status
	if status == "" {
		status = domain.JobStatusPending
	}
	_, err := r.pool.Exec(ctx, query, job.ID, job.Type, job.Payload, status)
	return err
}

// Claim transitions pending -> processing for the given id and increments the
// attempt counter. Claiming a row that is not pending fails with
// ErrAlreadyClaimed so a duplicate wake signal cannot double-process a job.
func (r *JobRepositoryPG) Claim(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
UPDATE jobs
SET status = $2, attempts = attempts + 1, updated_at = NOW()
WHERE id = $1 AND status = $3
RETURNING ` + jobColumns + `;`
	job, err := scanJob(r.pool.QueryRow(ctx, query, jobID, domain.JobStatusProcessing, domain.JobStatusPending))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish an unknown id from one that was already claimed.
			if _, getErr := r.GetByID(ctx, jobID); getErr != nil {
				return nil, getErr
			}
			return nil, domain.ErrAlreadyClaimed
		}
		return nil, err
	}
	return job, nil
}

// ClaimNextPending claims the oldest pending job older than minAge. Used by
// the reconciliation sweep so jobs whose wake signal was lost still run.
func (r *JobRepositoryPG) ClaimNextPending(ctx context.Context, minAge time.Duration) (*domain.Job, error) {
	query := `
WITH next_job AS (
    SELECT id
    FROM jobs
    WHERE status = $1 AND created_at < NOW() - $3::interval
    ORDER BY created_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
)
UPDATE jobs
SET status = $2, attempts = attempts + 1, updated_at = NOW()
WHERE id IN (SELECT id FROM next_job)
RETURNING ` + jobColumns + `;`
	interval := fmt.Sprintf("%d seconds", int(minAge.Seconds()))
	job, err := scanJob(r.pool.QueryRow(ctx, query, domain.JobStatusPending, domain.JobStatusProcessing, interval))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

// Complete records the result and marks the job completed. A no-op when the
// job is already terminal.
func (r *JobRepositoryPG) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	query := `
UPDATE jobs
SET status = $2, result = $3, updated_at = NOW()
WHERE id = $1 AND status IN ($4, $5);
`
	_, err := r.pool.Exec(ctx, query, jobID,
		domain.JobStatusCompleted, nullableBytes(result),
		domain.JobStatusPending, domain.JobStatusProcessing)
	return err
}

// Fail marks the job failed with a diagnosable message. A no-op when the job
// is already terminal.
func (r *JobRepositoryPG) Fail(ctx context.Context, jobID string, errMsg string) error {
	query := `
UPDATE jobs
SET status = $2, error_message = $3, updated_at = NOW()
WHERE id = $1 AND status IN ($4, $5);
`
	_, err := r.pool.Exec(ctx, query, jobID,
		domain.JobStatusFailed, errMsg,
		domain.JobStatusPending, domain.JobStatusProcessing)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1;`
	job, err := scanJob(r.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.Type,
		&job.Payload,
		&job.Status,
		&job.Attempts,
		&job.ResultJSON,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
