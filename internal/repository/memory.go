package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/project-service/internal/domain"
)

// ErrDuplicateEmail is returned by the in-memory store on a unique violation.
var ErrDuplicateEmail = errors.New("email already registered")

// MemoryStore keeps users, credentials, teams and memberships in process.
// Misses return pgx.ErrNoRows like the Postgres repositories.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	emails      map[string]string
	credentials map[string]domain.Credential
	teams       map[string]domain.Team
	teamNames   map[string]string
	memberships map[string]map[string]domain.TeamRole
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]domain.User),
		emails:      make(map[string]string),
		credentials: make(map[string]domain.Credential),
		teams:       make(map[string]domain.Team),
		teamNames:   make(map[string]string),
		memberships: make(map[string]map[string]domain.TeamRole),
	}
}

// Users returns a UserRepository view of the store.
func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }

// Credentials returns a CredentialRepository view of the store.
func (s *MemoryStore) Credentials() CredentialRepository { return memoryCredentials{s} }

// Teams returns a TeamRepository view of the store.
func (s *MemoryStore) Teams() TeamRepository { return memoryTeams{s} }

// Memberships returns a MembershipRepository view of the store.
func (s *MemoryStore) Memberships() MembershipRepository { return memoryMemberships{s} }

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, taken := r.s.emails[user.Email]; taken {
		return ErrDuplicateEmail
	}
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt, user.UpdatedAt = now, now
	r.s.users[user.ID] = *user
	r.s.emails[user.Email] = user.ID
	return nil
}

func (r memoryUsers) Update(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.users[user.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if existing.Email != user.Email {
		if _, taken := r.s.emails[user.Email]; taken {
			return ErrDuplicateEmail
		}
		delete(r.s.emails, existing.Email)
		r.s.emails[user.Email] = user.ID
	}
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = time.Now().UTC()
	r.s.users[user.ID] = *user
	return nil
}

func (r memoryUsers) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	delete(r.s.users, id)
	delete(r.s.emails, user.Email)
	delete(r.s.credentials, id)
	delete(r.s.memberships, id)
	return nil
}

func (r memoryUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	user, ok := r.s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &user, nil
}

func (r memoryUsers) GetByNormalizedEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	id, ok := r.s.emails[email]
	r.s.mu.RUnlock()
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return r.GetByID(ctx, id)
}

type memoryCredentials struct{ s *MemoryStore }

func (r memoryCredentials) Upsert(ctx context.Context, cred *domain.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := r.s.credentials[cred.UserID]; ok {
		cred.CreatedAt = existing.CreatedAt
	} else {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now
	stored := *cred
	stored.Salt = append([]byte(nil), cred.Salt...)
	stored.Hash = append([]byte(nil), cred.Hash...)
	r.s.credentials[cred.UserID] = stored
	return nil
}

func (r memoryCredentials) GetByUserID(ctx context.Context, userID string) (*domain.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	cred, ok := r.s.credentials[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cred.Salt = append([]byte(nil), cred.Salt...)
	cred.Hash = append([]byte(nil), cred.Hash...)
	return &cred, nil
}

type memoryTeams struct{ s *MemoryStore }

func (r memoryTeams) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	team, ok := r.s.teams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &team, nil
}

func (r memoryTeams) GetOrCreateByName(ctx context.Context, name string) (*domain.Team, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if id, ok := r.s.teamNames[name]; ok {
		team := r.s.teams[id]
		return &team, nil
	}
	now := time.Now().UTC()
	team := domain.Team{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}
	r.s.teams[team.ID] = team
	r.s.teamNames[name] = team.ID
	return &team, nil
}

type memoryMemberships struct{ s *MemoryStore }

func (r memoryMemberships) GetTeamMemberships(ctx context.Context, userID string) ([]domain.TeamMembership, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	result := []domain.TeamMembership{}
	for teamID, role := range r.s.memberships[userID] {
		result = append(result, domain.TeamMembership{UserID: userID, TeamID: teamID, Role: role})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TeamID < result[j].TeamID })
	return result, nil
}

func (r memoryMemberships) Upsert(ctx context.Context, m domain.TeamMembership) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.memberships[m.UserID] == nil {
		r.s.memberships[m.UserID] = make(map[string]domain.TeamRole)
	}
	r.s.memberships[m.UserID][m.TeamID] = m.Role
	return nil
}

func (r memoryMemberships) Delete(ctx context.Context, userID, teamID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.memberships[userID], teamID)
	return nil
}
