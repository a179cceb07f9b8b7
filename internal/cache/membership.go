package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/project-service/internal/domain"
)

const defaultFetchTimeout = 5 * time.Second

// MembershipFetcher reads memberships from the authoritative store.
type MembershipFetcher interface {
	GetMemberships(ctx context.Context, userID string) ([]domain.TeamMembership, error)
}

// MembershipCache serves membership snapshots younger than its TTL and
// refreshes them through the fetcher otherwise.
type MembershipCache struct {
	store        Store
	fetcher      MembershipFetcher
	ttl          time.Duration
	fetchTimeout time.Duration
	group        singleflight.Group
	logger       *zap.Logger
	now          func() time.Time

	// gens counts invalidations per user. A refresh only stores its snapshot
	// when no invalidation happened while it was fetching.
	genMu sync.Mutex
	gens  map[string]uint64
}

// NewMembershipCache wires a store and fetcher with the given freshness window.
func NewMembershipCache(store Store, fetcher MembershipFetcher, ttl time.Duration, logger *zap.Logger) *MembershipCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MembershipCache{
		store:        store,
		fetcher:      fetcher,
		ttl:          ttl,
		fetchTimeout: defaultFetchTimeout,
		logger:       logger,
		now:          time.Now,
		gens:         make(map[string]uint64),
	}
}

// GetCachedOrFetch returns the cached memberships of userID when fresh, or
// fetches, stores and returns the current ones. Concurrent misses for the same
// user share one fetch. A failed fetch is returned to the caller and leaves
// the cache untouched.
func (c *MembershipCache) GetCachedOrFetch(ctx context.Context, userID string) ([]domain.TeamMembership, error) {
	snapshot, ok, err := c.store.Get(ctx, userID)
	if err != nil {
		c.logger.Warn("membership cache read failed", zap.String("user_id", userID), zap.Error(err))
	} else if ok && c.fresh(snapshot) {
		return snapshot.Memberships, nil
	}

	// The shared fetch must not die with whichever caller started it; each
	// caller still stops waiting when its own context ends.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(userID, func() (interface{}, error) {
		return c.refresh(fetchCtx, userID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot).clone().Memberships, nil
	}
}

// Invalidate drops the cached snapshot of userID. A refresh already in flight
// still answers its waiters but does not store what it read.
func (c *MembershipCache) Invalidate(ctx context.Context, userID string) error {
	c.genMu.Lock()
	c.gens[userID]++
	c.genMu.Unlock()

	c.group.Forget(userID)
	if err := c.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("invalidate memberships: %w", err)
	}
	return nil
}

func (c *MembershipCache) generation(userID string) uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.gens[userID]
}

func (c *MembershipCache) fresh(s *Snapshot) bool {
	return s != nil && c.now().Sub(s.FetchedAt) < c.ttl
}

func (c *MembershipCache) refresh(ctx context.Context, userID string) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	gen := c.generation(userID)
	memberships, err := c.fetcher.GetMemberships(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch memberships: %w", err)
	}
	if memberships == nil {
		memberships = []domain.TeamMembership{}
	}

	snapshot := &Snapshot{UserID: userID, Memberships: memberships, FetchedAt: c.now()}
	if c.generation(userID) != gen {
		return snapshot, nil
	}
	if err := c.store.Set(ctx, snapshot, c.ttl); err != nil {
		c.logger.Warn("membership cache write failed", zap.String("user_id", userID), zap.Error(err))
		return snapshot, nil
	}
	// an invalidation that landed between the check and the write wins
	if c.generation(userID) != gen {
		if err := c.store.Delete(ctx, userID); err != nil {
			c.logger.Warn("membership cache write rollback failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return snapshot, nil
}
