package repository

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups the account repositories used by the services.
type Repositories struct {
	Users       UserRepository
	Credentials CredentialRepository
	Teams       TeamRepository
	Memberships MembershipRepository
}

// NewRepositories returns Postgres-backed repositories, or in-memory ones when
// pool is nil.
func NewRepositories(pool *pgxpool.Pool) Repositories {
	if pool == nil {
		store := NewMemoryStore()
		return Repositories{
			Users:       store.Users(),
			Credentials: store.Credentials(),
			Teams:       store.Teams(),
			Memberships: store.Memberships(),
		}
	}
	return Repositories{
		Users:       NewUserRepository(pool),
		Credentials: NewCredentialRepository(pool),
		Teams:       NewTeamRepository(pool),
		Memberships: NewMembershipRepository(pool),
	}
}
