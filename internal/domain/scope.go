package domain

// Role is an enumerated user capability set. The pipeline consumes it only
// through CanQuery; page routing and user administration live outside the
// core.
type Role string

// Known user roles.
const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
)

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent, RoleParent:
		return true
	}
	return false
}

// CanQuery reports whether the role may retrieve from the given scope.
// Admins may query any scope; other roles are limited to the scopes granted
// to them by the caller (the UI layer resolves grants from its user tables).
func (r Role) CanQuery(scope string, granted []string) bool {
	if r == RoleAdmin {
		return true
	}
	for _, g := range granted {
		if g == scope {
			return true
		}
	}
	return false
}
