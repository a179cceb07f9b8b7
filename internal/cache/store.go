// Package cache holds the short-lived membership snapshots used to enrich
// login tokens, behind a Store abstraction with in-memory and Redis backends.
package cache

import (
	"context"
	"time"

	"github.com/spec-kit/project-service/internal/domain"
)

// Snapshot is the set of team memberships of one user as of FetchedAt.
// Snapshots are values: stores copy them in and out and never mutate one in place.
type Snapshot struct {
	UserID      string                  `json:"user_id"`
	Memberships []domain.TeamMembership `json:"memberships"`
	FetchedAt   time.Time               `json:"fetched_at"`
}

func (s *Snapshot) clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Memberships = append([]domain.TeamMembership(nil), s.Memberships...)
	return &out
}

// Store persists snapshots keyed by user id for a bounded time.
type Store interface {
	// Get returns the snapshot for userID; ok is false on a miss or expired entry.
	Get(ctx context.Context, userID string) (snapshot *Snapshot, ok bool, err error)
	// Set replaces the snapshot for snapshot.UserID, valid for ttl.
	Set(ctx context.Context, snapshot *Snapshot, ttl time.Duration) error
	Delete(ctx context.Context, userID string) error
}
