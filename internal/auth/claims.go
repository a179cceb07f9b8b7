package auth

import (
	"sort"

	"github.com/spec-kit/project-service/internal/domain"
)

// Claim types carried in a ClaimSet and in issued tokens.
const (
	ClaimUserID     = "uid"
	ClaimName       = "name"
	ClaimEmail      = "email"
	ClaimRole       = "role"
	ClaimStatus     = "status"
	ClaimTeamMember = "team_member"
	ClaimTeamRole   = "team_role"
	ClaimTeamLead   = "team_lead"
	ClaimPermission = "permission"
)

// Permissions derived from account roles and team leadership.
const (
	PermissionAdmin             = "admin"
	PermissionManageAllTeams    = "manage_all_teams"
	PermissionManageAllProjects = "manage_all_projects"
	PermissionManageUsers       = "manage_users"
	PermissionManageProjects    = "manage_projects"
	PermissionAssignTasks       = "assign_tasks"
	PermissionViewAssignedTasks = "view_assigned_tasks"
	PermissionUpdateTaskStatus  = "update_task_status"

	manageTeamPrefix = "manage_team:"
)

type permissionRule struct {
	roles       []domain.UserRole
	permissions []string
}

// permissionRules is evaluated in order; the resulting permissions keep that order.
var permissionRules = []permissionRule{
	{
		roles:       []domain.UserRole{domain.UserRoleAdmin},
		permissions: []string{PermissionAdmin, PermissionManageAllTeams, PermissionManageAllProjects, PermissionManageUsers},
	},
	{
		roles:       []domain.UserRole{domain.UserRoleProjectManager, domain.UserRoleAdmin},
		permissions: []string{PermissionManageProjects, PermissionAssignTasks},
	},
	{
		roles:       []domain.UserRole{domain.UserRoleDeveloper},
		permissions: []string{PermissionViewAssignedTasks, PermissionUpdateTaskStatus},
	},
}

// ManageTeamPermission returns the leadership permission for teamID.
func ManageTeamPermission(teamID string) string {
	return manageTeamPrefix + teamID
}

// Claim is a single fact about an authenticated subject.
type Claim struct {
	Type  string
	Value string
}

// ClaimSet is the flat list of claims describing a subject.
type ClaimSet []Claim

// Values returns every value of the given claim type, in order.
func (s ClaimSet) Values(claimType string) []string {
	var out []string
	for _, c := range s {
		if c.Type == claimType {
			out = append(out, c.Value)
		}
	}
	return out
}

// First returns the first value of claimType, or "" if absent.
func (s ClaimSet) First(claimType string) string {
	for _, c := range s {
		if c.Type == claimType {
			return c.Value
		}
	}
	return ""
}

// Has reports whether the set holds the exact claim.
func (s ClaimSet) Has(claimType, value string) bool {
	for _, c := range s {
		if c.Type == claimType && c.Value == value {
			return true
		}
	}
	return false
}

// Subject is the identity part of a claim set.
type Subject struct {
	UserID string
	Name   string
	Email  string
	Role   domain.UserRole
	Status domain.UserStatus
}

// SubjectFromUser copies the identity fields of user.
func SubjectFromUser(user *domain.User) Subject {
	return Subject{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Role:   user.Role,
		Status: user.Status,
	}
}

// ComposeClaims builds the claim set for subject and its memberships.
// The result depends only on the inputs, not on the order of memberships.
func ComposeClaims(subject Subject, memberships []domain.TeamMembership) ClaimSet {
	sorted := make([]domain.TeamMembership, len(memberships))
	copy(sorted, memberships)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TeamID != sorted[j].TeamID {
			return sorted[i].TeamID < sorted[j].TeamID
		}
		return sorted[i].Role < sorted[j].Role
	})

	set := ClaimSet{
		{Type: ClaimUserID, Value: subject.UserID},
		{Type: ClaimName, Value: subject.Name},
		{Type: ClaimEmail, Value: subject.Email},
		{Type: ClaimRole, Value: string(subject.Role)},
		{Type: ClaimStatus, Value: string(subject.Status)},
	}

	var leads []string
	seenLead := make(map[string]struct{})
	for _, m := range sorted {
		set = append(set,
			Claim{Type: ClaimTeamMember, Value: m.TeamID},
			Claim{Type: ClaimTeamRole, Value: m.TeamID + ":" + string(m.Role)},
		)
		if !m.Role.IsLeadership() {
			continue
		}
		if _, dup := seenLead[m.TeamID]; dup {
			continue
		}
		seenLead[m.TeamID] = struct{}{}
		leads = append(leads, m.TeamID)
		set = append(set, Claim{Type: ClaimTeamLead, Value: m.TeamID})
	}

	for _, perm := range permissionsFor(subject.Role, leads) {
		set = append(set, Claim{Type: ClaimPermission, Value: perm})
	}
	return set
}

func permissionsFor(role domain.UserRole, leadTeams []string) []string {
	var perms []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		perms = append(perms, p)
	}

	for _, rule := range permissionRules {
		for _, r := range rule.roles {
			if r == role {
				for _, p := range rule.permissions {
					add(p)
				}
				break
			}
		}
	}
	for _, teamID := range leadTeams {
		add(ManageTeamPermission(teamID))
	}
	return perms
}
