package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/spec-kit/project-service/internal/auth"
	"github.com/spec-kit/project-service/internal/config"
	"github.com/spec-kit/project-service/internal/domain"
	"github.com/spec-kit/project-service/internal/events"
	"github.com/spec-kit/project-service/internal/repository"
	apperrors "github.com/spec-kit/project-service/pkg/util/errorutil"
)

// LoginOutcome is the client-visible category of a login attempt.
type LoginOutcome string

const (
	OutcomeSuccess               LoginOutcome = "success"
	OutcomeValidationError       LoginOutcome = "validation_error"
	OutcomeAuthenticationFailure LoginOutcome = "authentication_failure"
	OutcomeInternalFailure       LoginOutcome = "internal_failure"
)

// LoginStage names the step of the login flow an attempt ended in.
type LoginStage string

const (
	StageReceived          LoginStage = "received"
	StageNormalized        LoginStage = "normalized"
	StageUserLookup        LoginStage = "user_lookup"
	StageStatusCheck       LoginStage = "status_check"
	StageCredentialLookup  LoginStage = "credential_lookup"
	StagePasswordVerify    LoginStage = "password_verify"
	StageClaimsComposition LoginStage = "claims_composition"
	StageTokenIssued       LoginStage = "token_issued"
)

// Reasons are internal tags for logs, metrics and hooks. They are never sent
// to the client.
const (
	ReasonOK                = "ok"
	ReasonInvalidInput      = "invalid_input"
	ReasonUnknownUser       = "unknown_user"
	ReasonInactive          = "inactive"
	ReasonSuspended         = "suspended"
	ReasonMissingCredential = "missing_credential"
	ReasonBadPassword       = "bad_password"
	ReasonCorruptCredential = "corrupt_credential"
	ReasonLookupFailed      = "lookup_failed"
	ReasonMembershipFailed  = "membership_failed"
	ReasonSigningFailed     = "signing_failed"
	ReasonCanceled          = "canceled"
)

// LoginResult is the tagged outcome of AuthService.Login.
type LoginResult struct {
	Outcome LoginOutcome
	Stage   LoginStage
	Reason  string
	Token   *domain.IssuedToken
	UserID  string
	Email   string
	Details map[string]any
	Cause   error
}

// Rejected reports whether the attempt ended without a token.
func (r LoginResult) Rejected() bool {
	return r.Outcome != OutcomeSuccess
}

// Err maps the result onto the transport error. Every authentication failure
// maps to the same error regardless of Reason.
func (r LoginResult) Err() error {
	switch r.Outcome {
	case OutcomeSuccess:
		return nil
	case OutcomeValidationError:
		return apperrors.NewValidationError("invalid login request", r.Details)
	case OutcomeAuthenticationFailure:
		return apperrors.NewAuthenticationFailure(nil)
	default:
		return apperrors.NewInternalError(r.Cause)
	}
}

// LoginInput is the normalized login request.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate checks the request format only.
func (in LoginInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&in.Password, validation.Required, validation.Length(1, 1024)),
	)
}

// MembershipSource supplies the team memberships used to build claims.
type MembershipSource interface {
	GetCachedOrFetch(ctx context.Context, userID string) ([]domain.TeamMembership, error)
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo       repository.UserRepository
	CredentialRepo repository.CredentialRepository
	Memberships    MembershipSource
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
}

// AuthService verifies credentials and issues claim-enriched tokens.
type AuthService struct {
	users       repository.UserRepository
	credentials repository.CredentialRepository
	memberships MembershipSource
	hasher      *auth.PasswordHasher
	tokenMgr    *auth.TokenManager
	hashSlots   *semaphore.Weighted
	decoy       domain.Credential
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	now         func() time.Time
}

// NewAuthService builds the service. It fails when the auth configuration is
// unusable so the process can refuse to start.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) (*AuthService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.UserRepo == nil || deps.CredentialRepo == nil || deps.Memberships == nil {
		return nil, errors.New("auth service: user, credential and membership sources are required")
	}

	hasher, err := auth.NewPasswordHasher(cfg.PasswordAlgorithm, cfg.PasswordIterations)
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	// The decoy is verified against when there is no real credential, so that
	// unknown accounts cost as much as known ones.
	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return nil, fmt.Errorf("auth service: decoy password: %w", err)
	}
	decoy, err := hasher.NewCredential("", hex.EncodeToString(random))
	if err != nil {
		return nil, fmt.Errorf("auth service: decoy credential: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}

	return &AuthService{
		users:       deps.UserRepo,
		credentials: deps.CredentialRepo,
		memberships: deps.Memberships,
		hasher:      hasher,
		tokenMgr:    auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL()),
		hashSlots:   semaphore.NewWeighted(int64(cfg.HashConcurrency)),
		decoy:       *decoy,
		dispatcher:  dispatcher,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Login runs the full authentication flow for email/password.
func (s *AuthService) Login(ctx context.Context, email, password string) LoginResult {
	start := s.now()
	result := s.login(ctx, email, password)
	s.report(ctx, result, s.now().Sub(start))
	return result
}

func (s *AuthService) login(ctx context.Context, email, password string) LoginResult {
	in := LoginInput{Email: NormalizeEmail(email), Password: password}
	if err := in.Validate(); err != nil {
		return LoginResult{
			Outcome: OutcomeValidationError,
			Stage:   StageReceived,
			Reason:  ReasonInvalidInput,
			Email:   in.Email,
			Details: validationDetails(err),
		}
	}
	if err := ctx.Err(); err != nil {
		return canceled(StageNormalized, in.Email, err)
	}

	user, err := s.users.GetByNormalizedEmail(ctx, in.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.rejectWithDecoy(ctx, StageUserLookup, ReasonUnknownUser, in, "", nil)
	}
	if err != nil {
		return lookupFailed(ctx, StageUserLookup, in.Email, "", err)
	}

	if !user.CanAuthenticate() {
		reason := ReasonInactive
		if user.Status == domain.UserStatusSuspended {
			reason = ReasonSuspended
		}
		return s.rejectWithDecoy(ctx, StageStatusCheck, reason, in, user.ID, nil)
	}

	cred, err := s.credentials.GetByUserID(ctx, user.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.rejectWithDecoy(ctx, StageCredentialLookup, ReasonMissingCredential, in, user.ID, nil)
	}
	if err != nil {
		return lookupFailed(ctx, StageCredentialLookup, in.Email, user.ID, err)
	}

	ok, err := s.verify(ctx, in.Password, *cred)
	switch {
	case isContextErr(err):
		return canceled(StagePasswordVerify, in.Email, err)
	case err != nil:
		return s.rejectWithDecoy(ctx, StagePasswordVerify, ReasonCorruptCredential, in, user.ID, err)
	case !ok:
		return rejected(StagePasswordVerify, ReasonBadPassword, in.Email, user.ID, nil)
	}

	memberships, err := s.memberships.GetCachedOrFetch(ctx, user.ID)
	if err != nil {
		if isContextErr(err) {
			return canceled(StageClaimsComposition, in.Email, err)
		}
		return internal(StageClaimsComposition, ReasonMembershipFailed, in.Email, user.ID, err)
	}
	claims := auth.ComposeClaims(auth.SubjectFromUser(user), memberships)

	if err := ctx.Err(); err != nil {
		return canceled(StageClaimsComposition, in.Email, err)
	}

	expiresAt := s.tokenMgr.ExpiryFrom(s.now())
	token, err := s.tokenMgr.Issue(claims, expiresAt)
	if err != nil {
		return internal(StageTokenIssued, ReasonSigningFailed, in.Email, user.ID, err)
	}

	return LoginResult{
		Outcome: OutcomeSuccess,
		Stage:   StageTokenIssued,
		Reason:  ReasonOK,
		UserID:  user.ID,
		Email:   in.Email,
		Token: &domain.IssuedToken{
			AccessToken: token,
			ExpiresAt:   expiresAt,
			TokenType:   domain.TokenTypeBearer,
		},
	}
}

// verify runs the hasher on a bounded pool of slots. The caller stops
// waiting when ctx ends; the hash itself finishes in the background.
func (s *AuthService) verify(ctx context.Context, password string, cred domain.Credential) (bool, error) {
	if err := s.hashSlots.Acquire(ctx, 1); err != nil {
		return false, err
	}

	type verdict struct {
		ok  bool
		err error
	}
	done := make(chan verdict, 1)
	go func() {
		defer s.hashSlots.Release(1)
		ok, err := s.hasher.Verify(password, cred)
		done <- verdict{ok: ok, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case v := <-done:
		return v.ok, v.err
	}
}

// rejectWithDecoy pays for one full hash before rejecting, so every
// credential-path rejection costs the same as a wrong password.
func (s *AuthService) rejectWithDecoy(ctx context.Context, stage LoginStage, reason string, in LoginInput, userID string, cause error) LoginResult {
	if _, err := s.verify(ctx, in.Password, s.decoy); isContextErr(err) {
		return canceled(stage, in.Email, err)
	}
	return rejected(stage, reason, in.Email, userID, cause)
}

// report publishes the attempt on the dispatcher. Logging of attempts is
// left to the subscribed audit handler so each login is logged once.
func (s *AuthService) report(ctx context.Context, result LoginResult, elapsed time.Duration) {
	eventType := events.EventLoginFailed
	if result.Outcome == OutcomeSuccess {
		eventType = events.EventLoginSucceeded
	}
	payload := events.LoginPayload{
		UserID:   result.UserID,
		Email:    result.Email,
		Outcome:  string(result.Outcome),
		Reason:   result.Reason,
		Stage:    string(result.Stage),
		Duration: elapsed,
	}
	if result.Cause != nil {
		payload.Error = result.Cause.Error()
	}

	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: s.now().UTC(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("login hook failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

// Hasher exposes the configured password hasher for provisioning.
func (s *AuthService) Hasher() *auth.PasswordHasher {
	return s.hasher
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func rejected(stage LoginStage, reason, email, userID string, cause error) LoginResult {
	return LoginResult{
		Outcome: OutcomeAuthenticationFailure,
		Stage:   stage,
		Reason:  reason,
		Email:   email,
		UserID:  userID,
		Cause:   cause,
	}
}

func internal(stage LoginStage, reason, email, userID string, cause error) LoginResult {
	return LoginResult{
		Outcome: OutcomeInternalFailure,
		Stage:   stage,
		Reason:  reason,
		Email:   email,
		UserID:  userID,
		Cause:   cause,
	}
}

func canceled(stage LoginStage, email string, cause error) LoginResult {
	return internal(stage, ReasonCanceled, email, "", cause)
}

func lookupFailed(ctx context.Context, stage LoginStage, email, userID string, err error) LoginResult {
	if isContextErr(err) || ctx.Err() != nil {
		return canceled(stage, email, err)
	}
	return internal(stage, ReasonLookupFailed, email, userID, err)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func validationDetails(err error) map[string]any {
	details := map[string]any{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			details[field] = ferr.Error()
		}
		return details
	}
	details["request"] = err.Error()
	return details
}
