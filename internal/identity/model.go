package identity

import "time"

// Roles a registered user can hold. HR users fund and manage payroll streams;
// employees receive them.
const (
	RoleHR       = "hr"
	RoleEmployee = "employee"
)

// User represents a registered wallet owner.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         string
	PasswordHash []byte
	TokenVersion int
	LastLogin    time.Time
	CreatedAt    time.Time
}

// Credentials request structure.
type Credentials struct {
	Email    string
	Password string
}
