package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// ProfileRepositoryPG implements domain.ProfileRepository. Profiles are
// written by the onboarding flows; the pipeline only reads them.
type ProfileRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewProfileRepository creates a new profile repository backed by PostgreSQL.
func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepositoryPG {
	return &ProfileRepositoryPG{pool: pool}
}

// GetByID fetches a profile by its identifier.
func (r *ProfileRepositoryPG) GetByID(ctx context.Context, profileID string) (*domain.Profile, error) {
	query := `
SELECT id, user_id, brand_name, industry, brand_description, voice_description, primary_goal, created_at, updated_at
FROM profiles
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, profileID)
	var p domain.Profile
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.BrandName,
		&p.Industry,
		&p.BrandDescription,
		&p.VoiceDescription,
		&p.PrimaryGoal,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

var _ domain.ProfileRepository = (*ProfileRepositoryPG)(nil)
