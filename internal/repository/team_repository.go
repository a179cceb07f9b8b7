package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/project-service/internal/domain"
)

// TeamRepository manages persistence for teams.
type TeamRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Team, error)
	// GetOrCreateByName returns the team called name, creating it when missing.
	GetOrCreateByName(ctx context.Context, name string) (*domain.Team, error)
}

type teamRepository struct {
	pool *pgxpool.Pool
}

// NewTeamRepository constructs repository.
func NewTeamRepository(pool *pgxpool.Pool) TeamRepository {
	return &teamRepository{pool: pool}
}

func (r *teamRepository) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	const query = `
        SELECT id, name, created_at, updated_at
        FROM teams WHERE id=$1`
	var team domain.Team
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&team.ID,
		&team.Name,
		&team.CreatedAt,
		&team.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &team, nil
}

func (r *teamRepository) GetOrCreateByName(ctx context.Context, name string) (*domain.Team, error) {
	const query = `
        INSERT INTO teams (name) VALUES ($1)
        ON CONFLICT (name) DO UPDATE SET name=EXCLUDED.name
        RETURNING id, name, created_at, updated_at`
	var team domain.Team
	if err := r.pool.QueryRow(ctx, query, name).Scan(
		&team.ID,
		&team.Name,
		&team.CreatedAt,
		&team.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &team, nil
}
