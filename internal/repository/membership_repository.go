package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/project-service/internal/domain"
)

// MembershipRepository exposes the team membership read model.
type MembershipRepository interface {
	GetTeamMemberships(ctx context.Context, userID string) ([]domain.TeamMembership, error)
	// Upsert sets the role of a user in a team; one role per (user, team).
	Upsert(ctx context.Context, membership domain.TeamMembership) error
	Delete(ctx context.Context, userID, teamID string) error
}

type membershipRepository struct {
	pool *pgxpool.Pool
}

// NewMembershipRepository constructs repository.
func NewMembershipRepository(pool *pgxpool.Pool) MembershipRepository {
	return &membershipRepository{pool: pool}
}

func (r *membershipRepository) GetTeamMemberships(ctx context.Context, userID string) ([]domain.TeamMembership, error) {
	const query = `
        SELECT user_id, team_id, role
        FROM team_memberships WHERE user_id=$1
        ORDER BY team_id`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.TeamMembership{}
	for rows.Next() {
		var m domain.TeamMembership
		if err := rows.Scan(&m.UserID, &m.TeamID, &m.Role); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *membershipRepository) Upsert(ctx context.Context, m domain.TeamMembership) error {
	const query = `
        INSERT INTO team_memberships (user_id, team_id, role)
        VALUES ($1,$2,$3)
        ON CONFLICT (user_id, team_id) DO UPDATE SET role=EXCLUDED.role, updated_at=NOW()`
	_, err := r.pool.Exec(ctx, query, m.UserID, m.TeamID, m.Role)
	return err
}

func (r *membershipRepository) Delete(ctx context.Context, userID, teamID string) error {
	const query = `DELETE FROM team_memberships WHERE user_id=$1 AND team_id=$2`
	_, err := r.pool.Exec(ctx, query, userID, teamID)
	return err
}
