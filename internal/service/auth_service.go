package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helpdeskpro/helpdesk-backend/internal/auth"
	"github.com/helpdeskpro/helpdesk-backend/internal/config"
	"github.com/helpdeskpro/helpdesk-backend/internal/domain"
	"github.com/helpdeskpro/helpdesk-backend/internal/repository"
	apperrors "github.com/helpdeskpro/helpdesk-backend/pkg/util"
)

// AuthService handles registration and login against the user directory.
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenManager
	cost   int
}

// RegisterInput describes a registration payload.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      domain.UserRole
}

// AuthResult carries an issued token with its subject.
type AuthResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// NewAuthService constructs the service.
func NewAuthService(cfg config.AuthConfig, users repository.UserRepository) *AuthService {
	return &AuthService{
		users:  users,
		tokens: auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		cost:   cfg.BcryptCost,
	}
}

// TokenManager exposes the manager for middleware wiring.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}

// Register creates a directory entry. Unspecified roles default CUSTOMER.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if username == "" || email == "" || input.Password == "" {
		return nil, apperrors.NewValidationError("username, email, password required", nil)
	}
	role := input.Role
	if role == "" {
		role = domain.UserRoleCustomer
	}
	if !domain.ValidRole(role) {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": role})
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, apperrors.NewConflict("username already exists", map[string]any{"username": username})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already exists", map[string]any{"email": email})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	hashed, err := auth.HashPassword(input.Password, s.cost)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashed,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Role:         role,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return s.issueToken(user)
}

// Login verifies credentials and issues a token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if !user.Active {
		return nil, apperrors.NewUnauthorized("account disabled")
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	return s.issueToken(user)
}

func (s *AuthService) issueToken(user *domain.User) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.GenerateToken(user)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &AuthResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}
