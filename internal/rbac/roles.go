package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleAdmin      = "admin"
	RoleOperator   = "operator"
	RoleSubscriber = "subscriber" // reads own calls and bills only
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsKnownRole(role string) bool {
	switch role {
	case RoleAdmin, RoleOperator, RoleSubscriber:
		return true
	default:
		return false
	}
}

// IsStaff reports roles that act on any subscriber.
func IsStaff(role string) bool { return role == RoleAdmin || role == RoleOperator }
