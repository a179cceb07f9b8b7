package domain

import "time"

// Credential is the stored password hash record of a user (1:1).
type Credential struct {
	UserID      string
	AlgorithmID string
	Iterations  int
	Salt        []byte
	Hash        []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
