package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/project-service/internal/domain"
)

// CredentialRepository manages password hash records.
type CredentialRepository interface {
	// Upsert stores cred, replacing any previous record for the same user.
	Upsert(ctx context.Context, cred *domain.Credential) error
	// GetByUserID returns pgx.ErrNoRows when the user has no credential.
	GetByUserID(ctx context.Context, userID string) (*domain.Credential, error)
}

type credentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository constructs repository.
func NewCredentialRepository(pool *pgxpool.Pool) CredentialRepository {
	return &credentialRepository{pool: pool}
}

func (r *credentialRepository) Upsert(ctx context.Context, cred *domain.Credential) error {
	const query = `
        INSERT INTO user_credentials (user_id, algorithm_id, iterations, salt, hash)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (user_id) DO UPDATE
        SET algorithm_id=EXCLUDED.algorithm_id, iterations=EXCLUDED.iterations,
            salt=EXCLUDED.salt, hash=EXCLUDED.hash, updated_at=NOW()
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		cred.UserID,
		cred.AlgorithmID,
		cred.Iterations,
		cred.Salt,
		cred.Hash,
	).Scan(&cred.CreatedAt, &cred.UpdatedAt)
}

func (r *credentialRepository) GetByUserID(ctx context.Context, userID string) (*domain.Credential, error) {
	const query = `
        SELECT user_id, algorithm_id, iterations, salt, hash, created_at, updated_at
        FROM user_credentials WHERE user_id=$1`
	var cred domain.Credential
	if err := r.pool.QueryRow(ctx, query, userID).Scan(
		&cred.UserID,
		&cred.AlgorithmID,
		&cred.Iterations,
		&cred.Salt,
		&cred.Hash,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &cred, nil
}
