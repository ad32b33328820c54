package rbac

// Role names. Keep these stable; they are embedded in issued tokens.
const (
	RoleAgent      = "agent"
	RoleSupervisor = "supervisor"
)

// IsSupervisor reports whether role bypasses per-route role checks.
func IsSupervisor(role string) bool { return role == RoleSupervisor }

// IsKnownRole reports whether role may be issued.
func IsKnownRole(role string) bool {
	switch role {
	case RoleAgent, RoleSupervisor:
		return true
	default:
		return false
	}
}
