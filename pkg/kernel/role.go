package kernel

// Role is the application role stored on a profile.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleStaff
}
