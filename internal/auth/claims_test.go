package auth

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/project-service/internal/domain"
)

func developer() Subject {
	return Subject{
		UserID: "user-1",
		Name:   "Alice",
		Email:  "alice@example.com",
		Role:   domain.UserRoleDeveloper,
		Status: domain.UserStatusActive,
	}
}

func TestComposeClaims_DeveloperWithLeadership(t *testing.T) {
	memberships := []domain.TeamMembership{
		{UserID: "user-1", TeamID: "TeamA", Role: domain.TeamRoleTeamLead},
		{UserID: "user-1", TeamID: "TeamB", Role: domain.TeamRoleMember},
	}

	set := ComposeClaims(developer(), memberships)

	assert.Equal(t, "user-1", set.First(ClaimUserID))
	assert.Equal(t, "Alice", set.First(ClaimName))
	assert.Equal(t, "alice@example.com", set.First(ClaimEmail))
	assert.Equal(t, "Developer", set.First(ClaimRole))
	assert.Equal(t, "Active", set.First(ClaimStatus))

	assert.Equal(t, []string{"TeamA"}, set.Values(ClaimTeamLead))
	assert.ElementsMatch(t, []string{"TeamA", "TeamB"}, set.Values(ClaimTeamMember))
	assert.ElementsMatch(t, []string{"TeamA:TeamLead", "TeamB:Member"}, set.Values(ClaimTeamRole))
	assert.ElementsMatch(t, []string{
		PermissionViewAssignedTasks,
		PermissionUpdateTaskStatus,
		"manage_team:TeamA",
	}, set.Values(ClaimPermission))

	assert.Len(t, set, 5+2+2+1+3)
}

func TestComposeClaims_IdentityFirst(t *testing.T) {
	set := ComposeClaims(developer(), []domain.TeamMembership{{TeamID: "TeamA", Role: domain.TeamRoleMember}})

	var leading []string
	for _, c := range set[:5] {
		leading = append(leading, c.Type)
	}
	assert.Equal(t, []string{ClaimUserID, ClaimName, ClaimEmail, ClaimRole, ClaimStatus}, leading)
}

func TestComposeClaims_PermissionTable(t *testing.T) {
	tests := []struct {
		role domain.UserRole
		want []string
	}{
		{
			role: domain.UserRoleAdmin,
			want: []string{
				PermissionAdmin, PermissionManageAllTeams, PermissionManageAllProjects, PermissionManageUsers,
				PermissionManageProjects, PermissionAssignTasks,
			},
		},
		{role: domain.UserRoleProjectManager, want: []string{PermissionManageProjects, PermissionAssignTasks}},
		{role: domain.UserRoleDeveloper, want: []string{PermissionViewAssignedTasks, PermissionUpdateTaskStatus}},
		{role: domain.UserRoleViewer, want: nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			subject := developer()
			subject.Role = tt.role
			set := ComposeClaims(subject, nil)
			assert.Equal(t, tt.want, set.Values(ClaimPermission))
			assert.Empty(t, set.Values(ClaimTeamMember))
		})
	}
}

func TestComposeClaims_ProjectManagerMembershipLeadsTeam(t *testing.T) {
	subject := developer()
	subject.Role = domain.UserRoleViewer
	set := ComposeClaims(subject, []domain.TeamMembership{{TeamID: "TeamC", Role: domain.TeamRoleProjectManager}})

	assert.Equal(t, []string{"TeamC"}, set.Values(ClaimTeamLead))
	assert.Equal(t, []string{"manage_team:TeamC"}, set.Values(ClaimPermission))
}

func TestComposeClaims_Deterministic(t *testing.T) {
	a := []domain.TeamMembership{
		{TeamID: "TeamB", Role: domain.TeamRoleMember},
		{TeamID: "TeamA", Role: domain.TeamRoleTeamLead},
		{TeamID: "TeamC", Role: domain.TeamRoleProjectManager},
	}
	b := []domain.TeamMembership{a[2], a[0], a[1]}

	first := ComposeClaims(developer(), a)
	second := ComposeClaims(developer(), b)
	assert.Equal(t, first, second)
	assert.Equal(t, first, ComposeClaims(developer(), a))

	// inputs are not reordered in place
	assert.Equal(t, "TeamB", a[0].TeamID)
	assert.False(t, sort.SliceIsSorted(a, func(i, j int) bool { return a[i].TeamID < a[j].TeamID }))
}

func TestClaimSetHelpers(t *testing.T) {
	set := ClaimSet{{Type: ClaimPermission, Value: "a"}, {Type: ClaimPermission, Value: "b"}}

	assert.True(t, set.Has(ClaimPermission, "b"))
	assert.False(t, set.Has(ClaimPermission, "c"))
	assert.Equal(t, "a", set.First(ClaimPermission))
	assert.Equal(t, "", set.First(ClaimRole))
	assert.Nil(t, set.Values(ClaimRole))
}
