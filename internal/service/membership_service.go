package service

import (
	"context"
	"fmt"

	"github.com/spec-kit/project-service/internal/domain"
	"github.com/spec-kit/project-service/internal/repository"
)

// MembershipAggregator reads a user's team memberships from the
// authoritative store.
type MembershipAggregator struct {
	repo repository.MembershipRepository
}

// NewMembershipAggregator creates the aggregator.
func NewMembershipAggregator(repo repository.MembershipRepository) *MembershipAggregator {
	return &MembershipAggregator{repo: repo}
}

// GetMemberships returns every membership of userID. A stored role that is not
// a known team role fails the whole read.
func (a *MembershipAggregator) GetMemberships(ctx context.Context, userID string) ([]domain.TeamMembership, error) {
	memberships, err := a.repo.GetTeamMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, m := range memberships {
		if !m.Role.IsValid() {
			return nil, fmt.Errorf("membership %s/%s: unknown team role %q", m.UserID, m.TeamID, m.Role)
		}
	}
	return memberships, nil
}
