package domain

import "time"

// TokenTypeBearer is the only token type issued by the service.
const TokenTypeBearer = "Bearer"

// IssuedToken is the result of a successful login.
type IssuedToken struct {
	AccessToken string
	ExpiresAt   time.Time
	TokenType   string
}
