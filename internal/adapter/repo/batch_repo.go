package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// BatchRepositoryPG implements domain.BatchRepository.
type BatchRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewBatchRepository creates a new batch repository backed by PostgreSQL.
func NewBatchRepository(pool *pgxpool.Pool) *BatchRepositoryPG {
	return &BatchRepositoryPG{pool: pool}
}

// Create inserts a new batch record in PENDING state.
func (r *BatchRepositoryPG) Create(ctx context.Context, batch *domain.GenerationBatch) error {
	query := `
INSERT INTO generation_batches (id, user_id, profile_id, status)
VALUES ($1, $2, $3, $4);
`
	status := batch.Status
	if status == "" {
		status = domain.BatchStatusPending
	}
	_, err := r.pool.Exec(ctx, query, batch.ID, batch.UserID, batch.ProfileID, status)
	return err
}

// GetByID fetches a batch by its identifier.
func (r *BatchRepositoryPG) GetByID(ctx context.Context, batchID string) (*domain.GenerationBatch, error) {
	query := `
SELECT id, user_id, profile_id, status, error_message, cancel_requested, created_at, updated_at
FROM generation_batches
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, batchID)
	var b domain.GenerationBatch
	if err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.ProfileID,
		&b.Status,
		&b.ErrorMessage,
		&b.CancelRequested,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// MarkProcessing moves a PENDING batch to PROCESSING. A batch that already
// reached a terminal state is left untouched.
func (r *BatchRepositoryPG) MarkProcessing(ctx context.Context, batchID string) error {
	query := `
UPDATE generation_batches
SET status = $2, updated_at = NOW()
WHERE id = $1 AND status = $3;
`
	_, err := r.pool.Exec(ctx, query, batchID, domain.BatchStatusProcessing, domain.BatchStatusPending)
	return err
}

// MarkCompleted is an idempotent terminal transition.
func (r *BatchRepositoryPG) MarkCompleted(ctx context.Context, batchID string) error {
	query := `
UPDATE generation_batches
SET status = $2, updated_at = NOW()
WHERE id = $1 AND status IN ($3, $4);
`
	_, err := r.pool.Exec(ctx, query, batchID,
		domain.BatchStatusCompleted,
		domain.BatchStatusPending, domain.BatchStatusProcessing)
	return err
}

// MarkFailed is an idempotent terminal transition carrying a human-readable
// message for the polling client.
func (r *BatchRepositoryPG) MarkFailed(ctx context.Context, batchID string, errMsg string) error {
	query := `
UPDATE generation_batches
SET status = $2, error_message = $3, updated_at = NOW()
WHERE id = $1 AND status IN ($4, $5);
`
	_, err := r.pool.Exec(ctx, query, batchID,
		domain.BatchStatusFailed, errMsg,
		domain.BatchStatusPending, domain.BatchStatusProcessing)
	return err
}

// RequestCancel sets the cooperative cancellation flag. The handler checks it
// before the expensive provider call; batches already terminal are unaffected.
func (r *BatchRepositoryPG) RequestCancel(ctx context.Context, batchID string) error {
	query := `
UPDATE generation_batches
SET cancel_requested = TRUE, updated_at = NOW()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query, batchID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.BatchRepository = (*BatchRepositoryPG)(nil)
