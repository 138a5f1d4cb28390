package authz

// Role represents the authorization tier assigned to a user
type Role string

const (
	RoleStudent    Role = "student"     // Attend events, bounded channel subscriptions
	RoleAdmin      Role = "admin"       // Manage events and channels within one organization
	RoleSuperAdmin Role = "super_admin" // Global scope, organization management
)

// Level returns the privilege ordering of the role: Student < Admin < SuperAdmin.
func (r Role) Level() int {
	switch r {
	case RoleStudent:
		return 0
	case RoleAdmin:
		return 1
	case RoleSuperAdmin:
		return 2
	default:
		return -1
	}
}

// Valid reports whether the role is one of the closed set.
func (r Role) Valid() bool {
	return r.Level() >= 0
}
