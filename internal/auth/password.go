package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/spec-kit/project-service/internal/domain"
)

// Supported key derivation schemes, stored in Credential.AlgorithmID.
const (
	AlgorithmPBKDF2SHA256 = "pbkdf2-sha256"
	AlgorithmPBKDF2SHA512 = "pbkdf2-sha512"
)

const (
	// MinIterations is the lowest work factor accepted in configuration and stored records.
	MinIterations = 100_000
	// DefaultIterations is used for newly provisioned credentials.
	DefaultIterations = 150_000
	// SaltSize is the length in bytes of generated salts (128 bits).
	SaltSize = 16
)

var (
	ErrIterationsBelowMinimum = errors.New("password hash iterations below minimum")
	ErrUnsupportedAlgorithm   = errors.New("unsupported password hash algorithm")
	ErrMalformedCredential    = errors.New("malformed credential record")
	ErrEmptyPassword          = errors.New("password must not be empty")
)

type kdf struct {
	digest func() hash.Hash
	keyLen int
}

var kdfs = map[string]kdf{
	AlgorithmPBKDF2SHA256: {digest: sha256.New, keyLen: sha256.Size},
	AlgorithmPBKDF2SHA512: {digest: sha512.New, keyLen: sha512.Size},
}

// IsSupportedAlgorithm reports whether algorithmID names a known scheme.
func IsSupportedAlgorithm(algorithmID string) bool {
	_, ok := kdfs[algorithmID]
	return ok
}

// PasswordHasher derives and verifies PBKDF2 password hashes.
type PasswordHasher struct {
	algorithmID string
	iterations  int
	random      io.Reader
}

// NewPasswordHasher builds a hasher that creates new credentials with the given
// scheme and work factor. It refuses iteration counts below MinIterations.
func NewPasswordHasher(algorithmID string, iterations int) (*PasswordHasher, error) {
	if !IsSupportedAlgorithm(algorithmID) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithmID)
	}
	if iterations < MinIterations {
		return nil, fmt.Errorf("%w: %d < %d", ErrIterationsBelowMinimum, iterations, MinIterations)
	}
	return &PasswordHasher{algorithmID: algorithmID, iterations: iterations, random: rand.Reader}, nil
}

// AlgorithmID returns the scheme used for new hashes.
func (h *PasswordHasher) AlgorithmID() string { return h.algorithmID }

// Iterations returns the configured work factor.
func (h *PasswordHasher) Iterations() int { return h.iterations }

// Hash derives a hash for password with a fresh random salt.
func (h *PasswordHasher) Hash(password string, iterations int) (salt, sum []byte, err error) {
	if password == "" {
		return nil, nil, ErrEmptyPassword
	}
	if iterations < MinIterations {
		return nil, nil, fmt.Errorf("%w: %d < %d", ErrIterationsBelowMinimum, iterations, MinIterations)
	}

	salt = make([]byte, SaltSize)
	if _, err := io.ReadFull(h.random, salt); err != nil {
		return nil, nil, fmt.Errorf("generate salt: %w", err)
	}

	k := kdfs[h.algorithmID]
	return salt, pbkdf2.Key([]byte(password), salt, iterations, k.keyLen, k.digest), nil
}

// NewCredential hashes password with the configured parameters into a record for userID.
func (h *PasswordHasher) NewCredential(userID, password string) (*domain.Credential, error) {
	salt, sum, err := h.Hash(password, h.iterations)
	if err != nil {
		return nil, err
	}
	return &domain.Credential{
		UserID:      userID,
		AlgorithmID: h.algorithmID,
		Iterations:  h.iterations,
		Salt:        salt,
		Hash:        sum,
	}, nil
}

// Verify recomputes the hash of password with the parameters stored in cred
// and compares it in constant time. An error means the record itself cannot be
// trusted (unknown scheme, short salt, weak work factor, wrong hash length).
func (h *PasswordHasher) Verify(password string, cred domain.Credential) (bool, error) {
	k, ok := kdfs[cred.AlgorithmID]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, cred.AlgorithmID)
	}
	switch {
	case len(cred.Salt) < SaltSize:
		return false, fmt.Errorf("%w: salt is %d bytes", ErrMalformedCredential, len(cred.Salt))
	case cred.Iterations < MinIterations:
		return false, fmt.Errorf("%w: %d iterations", ErrMalformedCredential, cred.Iterations)
	case len(cred.Hash) != k.keyLen:
		return false, fmt.Errorf("%w: hash is %d bytes", ErrMalformedCredential, len(cred.Hash))
	}

	candidate := pbkdf2.Key([]byte(password), cred.Salt, cred.Iterations, k.keyLen, k.digest)
	return subtle.ConstantTimeCompare(candidate, cred.Hash) == 1, nil
}
