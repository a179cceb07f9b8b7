package service

import (
	"context"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/project-service/internal/auth"
	"github.com/spec-kit/project-service/internal/domain"
	"github.com/spec-kit/project-service/internal/repository"
	apperrors "github.com/spec-kit/project-service/pkg/util/errorutil"
)

// MembershipInvalidator drops cached memberships of a user.
type MembershipInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// TeamAssignment places a new account in a team by team name.
type TeamAssignment struct {
	TeamName string          `json:"team_name"`
	Role     domain.TeamRole `json:"role"`
}

// Validate implements validation.Validatable.
func (a TeamAssignment) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.TeamName, validation.Required, validation.Length(1, 128)),
		validation.Field(&a.Role, validation.Required, validation.In(
			domain.TeamRoleMember, domain.TeamRoleTeamLead, domain.TeamRoleProjectManager)),
	)
}

// ProvisionInput describes a new account.
type ProvisionInput struct {
	Name     string            `json:"name"`
	Email    string            `json:"email"`
	Password string            `json:"password"`
	Role     domain.UserRole   `json:"role"`
	Status   domain.UserStatus `json:"status"`
	Teams    []TeamAssignment  `json:"teams"`
}

// Validate implements validation.Validatable.
func (in ProvisionInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&in.Password, validation.Required, validation.Length(8, 1024)),
		validation.Field(&in.Role, validation.Required, validation.In(
			domain.UserRoleAdmin, domain.UserRoleProjectManager, domain.UserRoleDeveloper, domain.UserRoleViewer)),
		validation.Field(&in.Status, validation.In(
			domain.UserStatusActive, domain.UserStatusInactive, domain.UserStatusSuspended)),
		validation.Field(&in.Teams),
	)
}

// AccountDependencies encapsulates collaborators for the account service.
type AccountDependencies struct {
	UserRepo       repository.UserRepository
	CredentialRepo repository.CredentialRepository
	TeamRepo       repository.TeamRepository
	MembershipRepo repository.MembershipRepository
	Hasher         *auth.PasswordHasher
	Cache          MembershipInvalidator
	Logger         *zap.Logger
}

// AccountService provisions accounts and their credentials.
type AccountService struct {
	users       repository.UserRepository
	credentials repository.CredentialRepository
	teams       repository.TeamRepository
	memberships repository.MembershipRepository
	hasher      *auth.PasswordHasher
	cache       MembershipInvalidator
	logger      *zap.Logger
}

// NewAccountService creates the service.
func NewAccountService(deps AccountDependencies) *AccountService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		users:       deps.UserRepo,
		credentials: deps.CredentialRepo,
		teams:       deps.TeamRepo,
		memberships: deps.MembershipRepo,
		hasher:      deps.Hasher,
		cache:       deps.Cache,
		logger:      logger,
	}
}

// Provision creates a user, stores a hashed credential for it and assigns its
// team memberships.
func (s *AccountService) Provision(ctx context.Context, in ProvisionInput) (*domain.User, error) {
	in.Email = NormalizeEmail(in.Email)
	if in.Status == "" {
		in.Status = domain.UserStatusActive
	}
	if err := in.Validate(); err != nil {
		return nil, apperrors.NewValidationError("invalid account", validationDetails(err))
	}

	_, err := s.users.GetByNormalizedEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, apperrors.NewConflict("email already registered", map[string]any{"email": in.Email})
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	user := &domain.User{
		Name:   in.Name,
		Email:  in.Email,
		Role:   in.Role,
		Status: in.Status,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.completeAccount(ctx, user.ID, in); err != nil {
		if delErr := s.users.Delete(context.WithoutCancel(ctx), user.ID); delErr != nil {
			s.logger.Error("account rollback failed", zap.String("user_id", user.ID), zap.Error(delErr))
		}
		return nil, err
	}

	s.logger.Info("account provisioned",
		zap.String("user_id", user.ID),
		zap.String("email", user.Email),
		zap.String("role", string(user.Role)),
		zap.Int("teams", len(in.Teams)))
	return user, nil
}

// completeAccount stores the credential and team memberships of a freshly
// created user.
func (s *AccountService) completeAccount(ctx context.Context, userID string, in ProvisionInput) error {
	cred, err := s.hasher.NewCredential(userID, in.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.credentials.Upsert(ctx, cred); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	for _, assignment := range in.Teams {
		if err := s.assign(ctx, userID, assignment); err != nil {
			return err
		}
	}
	return nil
}

// AssignTeam sets the role of userID in the named team and drops the user's
// cached memberships.
func (s *AccountService) AssignTeam(ctx context.Context, userID string, assignment TeamAssignment) error {
	if err := assignment.Validate(); err != nil {
		return apperrors.NewValidationError("invalid team assignment", validationDetails(err))
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return err
	}
	return s.assign(ctx, userID, assignment)
}

func (s *AccountService) assign(ctx context.Context, userID string, assignment TeamAssignment) error {
	team, err := s.teams.GetOrCreateByName(ctx, assignment.TeamName)
	if err != nil {
		return fmt.Errorf("resolve team %q: %w", assignment.TeamName, err)
	}
	membership := domain.TeamMembership{UserID: userID, TeamID: team.ID, Role: assignment.Role}
	if err := s.memberships.Upsert(ctx, membership); err != nil {
		return fmt.Errorf("assign team %q: %w", assignment.TeamName, err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, userID); err != nil {
			s.logger.Warn("membership cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return nil
}
