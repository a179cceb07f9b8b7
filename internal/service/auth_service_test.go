package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/project-service/internal/auth"
	"github.com/spec-kit/project-service/internal/cache"
	"github.com/spec-kit/project-service/internal/config"
	"github.com/spec-kit/project-service/internal/domain"
	"github.com/spec-kit/project-service/internal/events"
	"github.com/spec-kit/project-service/internal/observability"
	"github.com/spec-kit/project-service/internal/repository"
	apperrors "github.com/spec-kit/project-service/pkg/util/errorutil"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:                 "test-secret",
		JWTIssuer:                 "project-service",
		AccessTokenTTLMinutes:     60,
		PasswordAlgorithm:         auth.AlgorithmPBKDF2SHA256,
		PasswordIterations:        auth.MinIterations,
		HashConcurrency:           4,
		MembershipCacheTTLSeconds: 300,
		MembershipCacheBackend:    config.CacheBackendMemory,
	}
}

type authFixture struct {
	store      *repository.MemoryStore
	cache      *cache.MembershipCache
	dispatcher events.Dispatcher
	auth       *AuthService
	accounts   *AccountService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	return newAuthFixtureWith(t, nil, nil)
}

// newAuthFixtureWith lets a test swap the user repository or membership source.
func newAuthFixtureWith(t *testing.T, users repository.UserRepository, memberships MembershipSource) *authFixture {
	t.Helper()

	cfg := testAuthConfig()
	store := repository.NewMemoryStore()
	membershipCache := cache.NewMembershipCache(cache.NewMemoryStore(), NewMembershipAggregator(store.Memberships()), cfg.MembershipCacheTTL(), zap.NewNop())
	dispatcher := events.NewInMemoryDispatcher()

	if users == nil {
		users = store.Users()
	}
	if memberships == nil {
		memberships = membershipCache
	}

	authService, err := NewAuthService(cfg, AuthDependencies{
		UserRepo:       users,
		CredentialRepo: store.Credentials(),
		Memberships:    memberships,
		Dispatcher:     dispatcher,
		Logger:         zap.NewNop(),
	})
	require.NoError(t, err)

	accounts := NewAccountService(AccountDependencies{
		UserRepo:       store.Users(),
		CredentialRepo: store.Credentials(),
		TeamRepo:       store.Teams(),
		MembershipRepo: store.Memberships(),
		Hasher:         authService.Hasher(),
		Cache:          membershipCache,
	})

	return &authFixture{
		store:      store,
		cache:      membershipCache,
		dispatcher: dispatcher,
		auth:       authService,
		accounts:   accounts,
	}
}

func (f *authFixture) provision(t *testing.T, email, password string, role domain.UserRole, status domain.UserStatus) *domain.User {
	t.Helper()
	user, err := f.accounts.Provision(context.Background(), ProvisionInput{
		Name:     "Test User",
		Email:    email,
		Password: password,
		Role:     role,
		Status:   status,
	})
	require.NoError(t, err)
	return user
}

func (f *authFixture) join(t *testing.T, userID, teamID string, role domain.TeamRole) {
	t.Helper()
	require.NoError(t, f.store.Memberships().Upsert(context.Background(), domain.TeamMembership{UserID: userID, TeamID: teamID, Role: role}))
}

func TestLogin_SuccessCarriesClaims(t *testing.T) {
	f := newAuthFixture(t)
	alice := f.provision(t, "alice@example.com", "Secret123!", domain.UserRoleDeveloper, domain.UserStatusActive)
	f.join(t, alice.ID, "TeamA", domain.TeamRoleMember)

	before := time.Now()
	result := f.auth.Login(context.Background(), "ALICE@Example.com ", "Secret123!")

	require.Equal(t, OutcomeSuccess, result.Outcome, "reason=%s cause=%v", result.Reason, result.Cause)
	require.NoError(t, result.Err())
	require.NotNil(t, result.Token)
	assert.Equal(t, domain.TokenTypeBearer, result.Token.TokenType)
	assert.Equal(t, alice.ID, result.UserID)
	assert.Equal(t, "alice@example.com", result.Email)
	assert.Equal(t, time.UTC, result.Token.ExpiresAt.Location())
	assert.WithinDuration(t, before.Add(time.Hour), result.Token.ExpiresAt, 5*time.Second)

	claims, err := f.auth.TokenManager().ParseToken(result.Token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, string(domain.UserRoleDeveloper), claims.Role)
	assert.Equal(t, []string{"TeamA"}, claims.TeamMember)
	assert.Equal(t, []string{"TeamA:Member"}, claims.TeamRole)
	assert.Empty(t, claims.TeamLead)
	assert.True(t, claims.HasPermission(auth.PermissionViewAssignedTasks))
	assert.False(t, claims.HasPermission(auth.PermissionManageUsers))
}

func TestLogin_LeadershipGrantsManageTeam(t *testing.T) {
	f := newAuthFixture(t)
	bob := f.provision(t, "bob@example.com", "Secret123!", domain.UserRoleDeveloper, domain.UserStatusActive)
	f.join(t, bob.ID, "TeamA", domain.TeamRoleTeamLead)
	f.join(t, bob.ID, "TeamB", domain.TeamRoleMember)

	result := f.auth.Login(context.Background(), "bob@example.com", "Secret123!")
	require.Equal(t, OutcomeSuccess, result.Outcome)

	claims, err := f.auth.TokenManager().ParseToken(result.Token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"TeamA", "TeamB"}, claims.TeamMember)
	assert.Equal(t, []string{"TeamA"}, claims.TeamLead)
	assert.True(t, claims.HasPermission(auth.ManageTeamPermission("TeamA")))
	assert.False(t, claims.HasPermission(auth.ManageTeamPermission("TeamB")))
}

func TestLogin_NoMembershipsStillSucceeds(t *testing.T) {
	f := newAuthFixture(t)
	f.provision(t, "viewer@example.com", "Secret123!", domain.UserRoleViewer, domain.UserStatusActive)

	result := f.auth.Login(context.Background(), "viewer@example.com", "Secret123!")
	require.Equal(t, OutcomeSuccess, result.Outcome)

	claims, err := f.auth.TokenManager().ParseToken(result.Token.AccessToken)
	require.NoError(t, err)
	assert.Empty(t, claims.TeamMember)
	assert.Empty(t, claims.Permissions)
}

func TestLogin_Rejections(t *testing.T) {
	f := newAuthFixture(t)
	f.provision(t, "alice@example.com", "Secret123!", domain.UserRoleDeveloper, domain.UserStatusActive)
	f.provision(t, "idle@example.com", "Secret123!", domain.UserRoleDeveloper, domain.UserStatusInactive)
	f.provision(t, "banned@example.com", "Secret123!", domain.UserRoleDeveloper, domain.UserStatusSuspended)

	orphan := &domain.User{Name: "No Credential", Email: "orphan@example.com", Role: domain.UserRoleViewer, Status: domain.UserStatusActive}
	require.NoError(t, f.store.Users().Create(context.Background(), orphan))

	corrupt := f.provision(t, "corrupt@example.com", "Secret123!", domain.UserRoleViewer, domain.UserStatusActive)
	require.NoError(t, f.store.Credentials().Upsert(context.Background(), &domain.Credential{
		UserID:      corrupt.ID,
		AlgorithmID: "md5",
		Iterations:  auth.MinIterations,
		Salt:        make([]byte, auth.SaltSize),
		Hash:        make([]byte, 32),
	}))

	tests := []struct {
		name     string
		email    string
		password string
		stage    LoginStage
		reason   string
	}{
		{"unknown email", "nobody@example.com", "Secret123!", StageUserLookup, ReasonUnknownUser},
		{"wrong password", "alice@example.com", "WrongPass!", StagePasswordVerify, ReasonBadPassword},
		{"password case differs", "alice@example.com", "secret123!", StagePasswordVerify, ReasonBadPassword},
		{"inactive", "idle@example.com", "Secret123!", StageStatusCheck, ReasonInactive},
		{"suspended", "banned@example.com", "Secret123!", StageStatusCheck, ReasonSuspended},
		{"missing credential", "orphan@example.com", "Secret123!", StageCredentialLookup, ReasonMissingCredential},
		{"corrupt credential", "corrupt@example.com", "Secret123!", StagePasswordVerify, ReasonCorruptCredential},
	}

	var errs []error
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.auth.Login(context.Background(), tt.email, tt.password)
			assert.Equal(t, OutcomeAuthenticationFailure, result.Outcome)
			assert.Equal(t, tt.stage, result.Stage)
			assert.Equal(t, tt.reason, result.Reason)
			assert.Nil(t, result.Token)
			assert.True(t, result.Rejected())
			errs = append(errs, result.Err())
		})
	}

	// every rejection maps to the same client-visible error
	require.NotEmpty(t, errs)
	for _, err := range errs {
		domainErr := apperrors.ToDomainError(err)
		assert.Equal(t, apperrors.CodeUnauthorized, domainErr.Code)
		assert.Equal(t, apperrors.InvalidCredentialsMessage, domainErr.Message)
		assert.Empty(t, domainErr.Details)
		assert.Equal(t, apperrors.ToDomainError(errs[0]), domainErr)
	}
}

func TestLogin_ValidationErrors(t *testing.T) {
	f := newAuthFixture(t)

	tests := []struct {
		name     string
		email    string
		password string
		field    string
	}{
		{"empty email", "", "Secret123!", "email"},
		{"blank email", "   ", "Secret123!", "email"},
		{"malformed email", "not-an-email", "Secret123!", "email"},
		{"empty password", "alice@example.com", "", "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.auth.Login(context.Background(), tt.email, tt.password)
			assert.Equal(t, OutcomeValidationError, result.Outcome)
			assert.Equal(t, ReasonInvalidInput, result.Reason)
			assert.Contains(t, result.Details, tt.field)

			domainErr := apperrors.ToDomainError(result.Err())
			assert.Equal(t, apperrors.CodeValidationFailed, domainErr.Code)
		})
	}
}

type failingUsers struct {
	repository.UserRepository
	err error
}

func (f failingUsers) GetByNormalizedEmail(context.Context, string) (*domain.User, error) {
	return nil, f.err
}

type failingMemberships struct{ err error }

func (f failingMemberships) GetCachedOrFetch(context.Context, string) ([]domain.TeamMembership, error) {
	return nil, f.err
}

func TestLogin_InternalFailures(t *testing.T) {
	t.Run("user store unavailable", func(t *testing.T) {
		f := newAuthFixtureWith(t, failingUsers{err: errors.New("connection refused")}, nil)

		result := f.auth.Login(context.Background(), "alice@example.com", "Secret123!")
		assert.Equal(t, OutcomeInternalFailure, result.Outcome)
		assert.Equal(t, ReasonLookupFailed, result.Reason)
		assert.Equal(t, apperrors.CodeInternal, apperrors.ToDomainError(result.Err()).Code)
	})

	t.Run("membership source unavailable", func(t *testing.T) {
		f := newAuthFixtureWith(t, nil, failingMemberships{err: errors.New("db down")})
		f.provision(t, "alice@example.com", "Secret123!", domain.UserRoleDeveloper, domain.UserStatusActive)

		result := f.auth.Login(context.Background(), "alice@example.com", "Secret123!")
		assert.Equal(t, OutcomeInternalFailure, result.Outcome)
		assert.Equal(t, ReasonMembershipFailed, result.Reason)
		assert.Nil(t, result.Token, "no partial token without memberships")
	})
}

func TestLogin_Cancellation(t *testing.T) {
	f := newAuthFixture(t)
	f.provision(t, "alice@example.com", "Secret123!", domain.UserRoleDeveloper, domain.UserStatusActive)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := f.auth.Login(ctx, "alice@example.com", "Secret123!")
	assert.Equal(t, OutcomeInternalFailure, result.Outcome)
	assert.Equal(t, ReasonCanceled, result.Reason)
	assert.Nil(t, result.Token)
}

func TestLogin_PublishesEventsInOrder(t *testing.T) {
	f := newAuthFixture(t)
	f.provision(t, "alice@example.com", "Secret123!", domain.UserRoleDeveloper, domain.UserStatusActive)

	var mu sync.Mutex
	var seen []string
	record := func(tag string) events.EventHandler {
		return func(_ context.Context, event events.Event) error {
			payload := event.Payload.(events.LoginPayload)
			mu.Lock()
			seen = append(seen, tag+":"+payload.Reason)
			mu.Unlock()
			return nil
		}
	}
	f.dispatcher.Subscribe(events.EventLoginSucceeded, record("first"))
	f.dispatcher.Subscribe(events.EventLoginSucceeded, func(context.Context, events.Event) error {
		return errors.New("hook failed")
	})
	f.dispatcher.Subscribe(events.EventLoginSucceeded, record("second"))
	f.dispatcher.Subscribe(events.EventLoginFailed, record("failed"))

	ok := f.auth.Login(context.Background(), "alice@example.com", "Secret123!")
	require.Equal(t, OutcomeSuccess, ok.Outcome, "a failing hook does not change the outcome")

	bad := f.auth.Login(context.Background(), "alice@example.com", "WrongPass!")
	require.Equal(t, OutcomeAuthenticationFailure, bad.Outcome)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first:ok", "second:ok", "failed:bad_password"}, seen)
}

func TestLogin_ConcurrentAttempts(t *testing.T) {
	f := newAuthFixture(t)
	alice := f.provision(t, "alice@example.com", "Secret123!", domain.UserRoleDeveloper, domain.UserStatusActive)
	f.join(t, alice.ID, "TeamA", domain.TeamRoleMember)

	const attempts = 8
	var wg sync.WaitGroup
	results := make([]LoginResult, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			password := "Secret123!"
			if i%2 == 1 {
				password = "WrongPass!"
			}
			results[i] = f.auth.Login(context.Background(), "alice@example.com", password)
		}(i)
	}
	wg.Wait()

	for i, result := range results {
		if i%2 == 1 {
			assert.Equal(t, OutcomeAuthenticationFailure, result.Outcome)
			continue
		}
		assert.Equal(t, OutcomeSuccess, result.Outcome)
	}
}

func TestNewAuthService_RefusesBadConfig(t *testing.T) {
	store := repository.NewMemoryStore()
	deps := AuthDependencies{
		UserRepo:       store.Users(),
		CredentialRepo: store.Credentials(),
		Memberships:    failingMemberships{},
	}

	cfg := testAuthConfig()
	cfg.PasswordIterations = 1000
	_, err := NewAuthService(cfg, deps)
	require.Error(t, err)

	_, err = NewAuthService(testAuthConfig(), AuthDependencies{})
	require.Error(t, err)
}

type mockMemberships struct {
	mock.Mock
}

func (m *mockMemberships) GetCachedOrFetch(ctx context.Context, userID string) ([]domain.TeamMembership, error) {
	args := m.Called(ctx, userID)
	memberships, _ := args.Get(0).([]domain.TeamMembership)
	return memberships, args.Error(1)
}

func TestLogin_MembershipsOnlyReadAfterVerification(t *testing.T) {
	memberships := &mockMemberships{}
	f := newAuthFixtureWith(t, nil, memberships)
	alice := f.provision(t, "alice@example.com", "Secret123!", domain.UserRoleDeveloper, domain.UserStatusActive)

	memberships.On("GetCachedOrFetch", mock.Anything, alice.ID).
		Return([]domain.TeamMembership{{UserID: alice.ID, TeamID: "TeamA", Role: domain.TeamRoleMember}}, nil).
		Once()

	bad := f.auth.Login(context.Background(), "alice@example.com", "WrongPass!")
	require.Equal(t, OutcomeAuthenticationFailure, bad.Outcome)
	memberships.AssertNotCalled(t, "GetCachedOrFetch", mock.Anything, mock.Anything)

	ok := f.auth.Login(context.Background(), "alice@example.com", "Secret123!")
	require.Equal(t, OutcomeSuccess, ok.Outcome)
	memberships.AssertExpectations(t)
}

func corruptCredential(t *testing.T, f *authFixture, email string) *domain.User {
	t.Helper()
	user := f.provision(t, email, "Secret123!", domain.UserRoleViewer, domain.UserStatusActive)
	require.NoError(t, f.store.Credentials().Upsert(context.Background(), &domain.Credential{
		UserID:      user.ID,
		AlgorithmID: "md5",
		Iterations:  auth.MinIterations,
		Salt:        make([]byte, auth.SaltSize),
		Hash:        make([]byte, 32),
	}))
	return user
}

func TestLogin_CorruptCredentialCostsAFullHash(t *testing.T) {
	if testing.Short() {
		t.Skip("timing comparison")
	}
	f := newAuthFixture(t)
	f.provision(t, "alice@example.com", "Secret123!", domain.UserRoleDeveloper, domain.UserStatusActive)
	corruptCredential(t, f, "corrupt@example.com")

	fastest := func(email, password, reason string) time.Duration {
		best := time.Duration(1<<63 - 1)
		for i := 0; i < 5; i++ {
			start := time.Now()
			result := f.auth.Login(context.Background(), email, password)
			elapsed := time.Since(start)
			require.Equal(t, reason, result.Reason)
			if elapsed < best {
				best = elapsed
			}
		}
		return best
	}

	wrong := fastest("alice@example.com", "WrongPass!", ReasonBadPassword)
	corrupt := fastest("corrupt@example.com", "Secret123!", ReasonCorruptCredential)
	assert.GreaterOrEqual(t, corrupt, wrong/4, "corrupt=%s wrong=%s", corrupt, wrong)
}

func TestLogin_EachAttemptLoggedOnce(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	store := repository.NewMemoryStore()
	cfg := testAuthConfig()
	membershipCache := cache.NewMembershipCache(cache.NewMemoryStore(), NewMembershipAggregator(store.Memberships()), cfg.MembershipCacheTTL(), zap.NewNop())
	dispatcher := events.NewInMemoryDispatcher()
	NewAuditService(dispatcher, logger, observability.NewMetrics()).RegisterHandlers()

	authService, err := NewAuthService(cfg, AuthDependencies{
		UserRepo:       store.Users(),
		CredentialRepo: store.Credentials(),
		Memberships:    membershipCache,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})
	require.NoError(t, err)
	f := &authFixture{store: store, cache: membershipCache, dispatcher: dispatcher, auth: authService}
	f.accounts = NewAccountService(AccountDependencies{
		UserRepo:       store.Users(),
		CredentialRepo: store.Credentials(),
		TeamRepo:       store.Teams(),
		MembershipRepo: store.Memberships(),
		Hasher:         authService.Hasher(),
		Cache:          membershipCache,
	})
	f.provision(t, "alice@example.com", "Secret123!", domain.UserRoleDeveloper, domain.UserStatusActive)
	corruptCredential(t, f, "corrupt@example.com")

	tests := []struct {
		name     string
		email    string
		password string
		level    zapcore.Level
	}{
		{"success", "alice@example.com", "Secret123!", zapcore.InfoLevel},
		{"wrong password", "alice@example.com", "WrongPass!", zapcore.WarnLevel},
		{"corrupt credential", "corrupt@example.com", "Secret123!", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs.TakeAll()
			authService.Login(context.Background(), tt.email, tt.password)

			entries := logs.TakeAll()
			require.Len(t, entries, 1)
			assert.Equal(t, "audit", entries[0].Message)
			assert.Equal(t, tt.level, entries[0].Level)
		})
	}
}
