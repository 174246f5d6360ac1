package domain

// Role represents an API caller's permission level. Tokens are issued by the
// surrounding classroom platform; this engine only verifies them.
type Role string

// Roles in ascending order of privilege.
const (
	RoleObserver   Role = "observer"
	RoleInstructor Role = "instructor"
)

// rank maps roles to comparable privilege levels.
func (r Role) rank() int {
	switch r {
	case RoleInstructor:
		return 2
	case RoleObserver:
		return 1
	}
	return 0
}

// HasPermission checks if the role meets the minimum required role.
func (r Role) HasPermission(minRole Role) bool {
	return r.rank() >= minRole.rank()
}
