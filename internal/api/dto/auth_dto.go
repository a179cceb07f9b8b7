package dto

import (
	"time"

	"github.com/spec-kit/project-service/internal/auth"
	"github.com/spec-kit/project-service/internal/domain"
)

// LoginRequest payload for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned on a successful login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
	TokenType   string `json:"token_type"`
}

// NewLoginResponse renders an issued token; expires_at is UTC ISO-8601.
func NewLoginResponse(token *domain.IssuedToken) LoginResponse {
	return LoginResponse{
		AccessToken: token.AccessToken,
		ExpiresAt:   token.ExpiresAt.UTC().Format(time.RFC3339),
		TokenType:   token.TokenType,
	}
}

// PrincipalResponse describes the caller of GET /auth/me.
type PrincipalResponse struct {
	UserID      string   `json:"user_id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Status      string   `json:"status"`
	Teams       []string `json:"teams"`
	TeamRoles   []string `json:"team_roles"`
	LeadTeams   []string `json:"lead_teams"`
	Permissions []string `json:"permissions"`
	ExpiresAt   string   `json:"expires_at,omitempty"`
}

// NewPrincipalResponse renders verified token claims.
func NewPrincipalResponse(claims *auth.TokenClaims) PrincipalResponse {
	resp := PrincipalResponse{
		UserID:      claims.UserID,
		Name:        claims.Name,
		Email:       claims.Email,
		Role:        claims.Role,
		Status:      claims.Status,
		Teams:       nonNil(claims.TeamMember),
		TeamRoles:   nonNil(claims.TeamRole),
		LeadTeams:   nonNil(claims.TeamLead),
		Permissions: nonNil(claims.Permissions),
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
