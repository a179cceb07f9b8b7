package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for tokens that fail parsing or validation.
var ErrInvalidToken = errors.New("invalid token")

// TokenManager handles issuing and validating JWT tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// TokenClaims describes the JWT payload.
type TokenClaims struct {
	UserID      string   `json:"uid"`
	Name        string   `json:"name,omitempty"`
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role"`
	Status      string   `json:"status"`
	TeamMember  []string `json:"team_member,omitempty"`
	TeamRole    []string `json:"team_role,omitempty"`
	TeamLead    []string `json:"team_lead,omitempty"`
	Permissions []string `json:"permission,omitempty"`
	jwt.RegisteredClaims
}

// HasPermission reports whether the token grants perm.
func (c *TokenClaims) HasPermission(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// ClaimSet converts the token payload back into a flat claim set.
func (c *TokenClaims) ClaimSet() ClaimSet {
	set := ClaimSet{
		{Type: ClaimUserID, Value: c.UserID},
		{Type: ClaimName, Value: c.Name},
		{Type: ClaimEmail, Value: c.Email},
		{Type: ClaimRole, Value: c.Role},
		{Type: ClaimStatus, Value: c.Status},
	}
	for _, group := range []struct {
		claimType string
		values    []string
	}{
		{ClaimTeamMember, c.TeamMember},
		{ClaimTeamRole, c.TeamRole},
		{ClaimTeamLead, c.TeamLead},
		{ClaimPermission, c.Permissions},
	} {
		for _, v := range group.values {
			set = append(set, Claim{Type: group.claimType, Value: v})
		}
	}
	return set
}

// ExpiryFrom returns the expiry of a token issued at now.
func (tm *TokenManager) ExpiryFrom(now time.Time) time.Time {
	return now.Add(tm.ttl).UTC()
}

// Issue signs a JWT embedding claims that expires at expiresAt.
func (tm *TokenManager) Issue(claims ClaimSet, expiresAt time.Time) (string, error) {
	userID := claims.First(ClaimUserID)
	if userID == "" {
		return "", errors.New("claim set has no subject")
	}

	now := tm.now()
	payload := &TokenClaims{
		UserID:      userID,
		Name:        claims.First(ClaimName),
		Email:       claims.First(ClaimEmail),
		Role:        claims.First(ClaimRole),
		Status:      claims.First(ClaimStatus),
		TeamMember:  claims.Values(ClaimTeamMember),
		TeamRole:    claims.Values(ClaimTeamRole),
		TeamLead:    claims.Values(ClaimTeamLead),
		Permissions: claims.Values(ClaimPermission),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tm.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tokenString, nil
}

// ParseToken validates and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*TokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	}
	if tm.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tm.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*TokenClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
