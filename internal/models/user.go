package models

// User roles.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// User represents a registered customer or an administrator.
type User struct {
	BaseModel
	Name         string   `json:"name"`
	Email        string   `gorm:"uniqueIndex" json:"email"`
	Phone        string   `json:"phone"`
	PasswordHash string   `json:"-"`
	Role         string   `gorm:"default:user" json:"role"`
	Tickets      []Ticket `json:"tickets,omitempty"`
}

// IsAdmin reports whether the user may access the admin surface.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Role == RoleSuperAdmin
}
