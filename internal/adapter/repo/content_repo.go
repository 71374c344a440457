package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// ContentRepositoryPG implements domain.ContentRepository.
type ContentRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewContentRepository creates a new content repository backed by PostgreSQL.
func NewContentRepository(pool *pgxpool.Pool) *ContentRepositoryPG {
	return &ContentRepositoryPG{pool: pool}
}

// InsertAll writes all generated rows in one transaction so a successful run
// either lands every accepted item or none.
func (r *ContentRepositoryPG) InsertAll(ctx context.Context, ideas []domain.ContentIdea) error {
	if len(ideas) == 0 {
		return nil
	}

	query := `
INSERT INTO content_ideas (id, user_id, batch_id, title, body, tags, suggested_media, review_status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	batch := &pgx.Batch{}
	for _, idea := range ideas {
		status := idea.ReviewStatus
		if status == "" {
			status = domain.ReviewStatusAwaiting
		}
		batch.Queue(query,
			idea.ID,
			idea.UserID,
			idea.BatchID,
			idea.Title,
			idea.Body,
			idea.Tags,
			idea.SuggestedMedia,
			status,
		)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin content insert: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	results := tx.SendBatch(ctx, batch)
	for range ideas {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("insert content idea: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close content insert batch: %w", err)
	}
	return tx.Commit(ctx)
}

// ListByBatchID returns the generated rows for a batch in insertion order.
func (r *ContentRepositoryPG) ListByBatchID(ctx context.Context, batchID string) ([]domain.ContentIdea, error) {
	query := `
SELECT id, user_id, batch_id, title, body, tags, suggested_media, review_status, created_at
FROM content_ideas
WHERE batch_id = $1
ORDER BY created_at ASC, id ASC;
`
	rows, err := r.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ideas []domain.ContentIdea
	for rows.Next() {
		var idea domain.ContentIdea
		if err := rows.Scan(
			&idea.ID,
			&idea.UserID,
			&idea.BatchID,
			&idea.Title,
			&idea.Body,
			&idea.Tags,
			&idea.SuggestedMedia,
			&idea.ReviewStatus,
			&idea.CreatedAt,
		); err != nil {
			return nil, err
		}
		ideas = append(ideas, idea)
	}
	return ideas, rows.Err()
}

var _ domain.ContentRepository = (*ContentRepositoryPG)(nil)
