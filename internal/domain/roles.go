// Package domain defines shared domain constants and types.
package domain

const (
	// RoleAdmin represents administrators who approve tickets and manage the fleet.
	RoleAdmin = "admin"
	// RoleMechanic represents mechanics who work on assigned tickets.
	RoleMechanic = "mechanic"
	// RoleUser represents a standard user with no elevated privileges.
	RoleUser = "user"
)

// ValidRole reports whether the given role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleMechanic, RoleUser:
		return true
	default:
		return false
	}
}
