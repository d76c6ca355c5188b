package auth

// UserRole is the account's authorization role. The set is closed: there are
// exactly two roles and nothing in the request path compares roles by
// ordering, only by membership.
type UserRole string

const (
	// RoleUser is the default role for self-registered accounts
	RoleUser UserRole = "user"
	// RoleAdmin can manage other accounts and see the admin dashboard
	RoleAdmin UserRole = "admin"
)

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsAdmin reports whether the role grants administrative access.
func (r UserRole) IsAdmin() bool {
	return r == RoleAdmin
}

// HomePath is the landing page accounts with this role are redirected to
// after login.
func (r UserRole) HomePath() string {
	if r.IsAdmin() {
		return "/admin/dashboard"
	}
	return "/dashboard"
}

// GetAllRoles returns all predefined roles
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleUser,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, role.IsValid()
}
