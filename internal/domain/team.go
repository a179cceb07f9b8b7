package domain

import "time"

// TeamRole is the role a user holds inside one team.
type TeamRole string

const (
	TeamRoleMember         TeamRole = "Member"
	TeamRoleTeamLead       TeamRole = "TeamLead"
	TeamRoleProjectManager TeamRole = "ProjectManager"
)

// IsValid reports whether the role is a known team role.
func (r TeamRole) IsValid() bool {
	switch r {
	case TeamRoleMember, TeamRoleTeamLead, TeamRoleProjectManager:
		return true
	default:
		return false
	}
}

// IsLeadership reports whether the role leads the team.
func (r TeamRole) IsLeadership() bool {
	return r == TeamRoleTeamLead || r == TeamRoleProjectManager
}

// Team represents a group of users working on projects.
type Team struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TeamMembership is the read model of a user's role in a team.
type TeamMembership struct {
	UserID string   `json:"user_id"`
	TeamID string   `json:"team_id"`
	Role   TeamRole `json:"role"`
}
