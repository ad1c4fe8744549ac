package domain

import "time"

// UserRole enumerates the roles known to the user directory.
type UserRole string

const (
	UserRoleCustomer UserRole = "CUSTOMER"
	UserRoleAgent    UserRole = "AGENT"
	UserRoleAdmin    UserRole = "ADMIN"
)

// ValidRole reports whether r is a known role value.
func ValidRole(r UserRole) bool {
	switch r {
	case UserRoleCustomer, UserRoleAgent, UserRoleAdmin:
		return true
	}
	return false
}

// User is the domain model for everyone in the directory: customers who
// file tickets, agents who work them, and administrators.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}
