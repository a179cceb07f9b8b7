package domain

import "time"

// UserRole is the account-wide role of a user.
type UserRole string

const (
	UserRoleAdmin          UserRole = "Admin"
	UserRoleProjectManager UserRole = "ProjectManager"
	UserRoleDeveloper      UserRole = "Developer"
	UserRoleViewer         UserRole = "Viewer"
)

// IsValid reports whether the role is one of the known account roles.
func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleAdmin, UserRoleProjectManager, UserRoleDeveloper, UserRoleViewer:
		return true
	default:
		return false
	}
}

// UserStatus represents lifecycle states for an account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "Active"
	UserStatusInactive  UserStatus = "Inactive"
	UserStatusSuspended UserStatus = "Suspended"
)

// User is the domain model for project-management accounts.
// Email is always stored normalized (trimmed, lowercased).
type User struct {
	ID        string
	Name      string
	Email     string
	Role      UserRole
	Status    UserStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanAuthenticate reports whether the account may log in.
func (u *User) CanAuthenticate() bool {
	return u != nil && u.Status == UserStatusActive
}
