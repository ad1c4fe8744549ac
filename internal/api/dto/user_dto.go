package dto

import (
	"time"

	"github.com/helpdeskpro/helpdesk-backend/internal/domain"
)

// RegisterRequest payload.
type RegisterRequest struct {
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	Password  string          `json:"password"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Role      domain.UserRole `json:"role"`
}

// LoginRequest payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UpdateProfileRequest payload.
type UpdateProfileRequest struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// AdminUpdateUserRequest payload.
type AdminUpdateUserRequest struct {
	Role      *domain.UserRole `json:"role"`
	Active    *bool            `json:"active"`
	FirstName *string          `json:"first_name"`
	LastName  *string          `json:"last_name"`
}

// AuthResponse carries an issued token.
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// UserResponse is the public user representation.
type UserResponse struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Role      domain.UserRole `json:"role"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}
