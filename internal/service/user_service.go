package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helpdeskpro/helpdesk-backend/internal/domain"
	"github.com/helpdeskpro/helpdesk-backend/internal/repository"
	apperrors "github.com/helpdeskpro/helpdesk-backend/pkg/util"
)

// UserService manages directory accounts: profile edits by the owner and
// role, activation and removal by admins. Route-level gates decide who
// may call the admin operations.
type UserService struct {
	users repository.UserRepository
}

// ProfileUpdateInput carries the fields an account owner may change.
type ProfileUpdateInput struct {
	Email     *string
	FirstName *string
	LastName  *string
}

// AdminUserUpdateInput carries the fields an admin may change on any
// account. Setting Active false locks the account out of login and of
// every ticket operation.
type AdminUserUpdateInput struct {
	Role      *domain.UserRole
	Active    *bool
	FirstName *string
	LastName  *string
}

// NewUserService constructs the service.
func NewUserService(users repository.UserRepository) *UserService {
	return &UserService{users: users}
}

// GetProfile returns a single non-deleted account.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	return s.loadUser(ctx, userID)
}

// UpdateProfile edits the caller's own contact fields.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, input ProfileUpdateInput) (*domain.User, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if input.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*input.Email))
		if email == "" {
			return nil, apperrors.NewValidationError("email required", nil)
		}
		if email != user.Email {
			if existing, err := s.users.GetByEmail(ctx, email); err == nil && existing.ID != user.ID {
				return nil, apperrors.NewConflict("email already exists", map[string]any{"email": email})
			} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.MapError(err)
			}
			user.Email = email
		}
	}
	if input.FirstName != nil {
		user.FirstName = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		user.LastName = strings.TrimSpace(*input.LastName)
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// ListUsers returns directory accounts, optionally narrowed to one role.
func (s *UserService) ListUsers(ctx context.Context, role *domain.UserRole, limit, offset int) ([]domain.User, error) {
	if role != nil {
		if !domain.ValidRole(*role) {
			return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": *role})
		}
		users, err := s.users.ListByRole(ctx, *role)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		return users, nil
	}
	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return users, nil
}

// ListAgents returns the accounts tickets can be assigned to.
func (s *UserService) ListAgents(ctx context.Context) ([]domain.User, error) {
	agents, err := s.users.ListByRole(ctx, domain.UserRoleAgent)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	active := agents[:0]
	for _, agent := range agents {
		if agent.Active {
			active = append(active, agent)
		}
	}
	return active, nil
}

// AdminUpdateUser changes role, activation or name on any account.
func (s *UserService) AdminUpdateUser(ctx context.Context, targetID string, input AdminUserUpdateInput) (*domain.User, error) {
	user, err := s.loadUser(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if input.Role != nil {
		if !domain.ValidRole(*input.Role) {
			return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": *input.Role})
		}
		user.Role = *input.Role
	}
	if input.Active != nil {
		user.Active = *input.Active
	}
	if input.FirstName != nil {
		user.FirstName = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		user.LastName = strings.TrimSpace(*input.LastName)
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// DeleteUser soft-deletes an account. Admins cannot remove themselves,
// so the directory always keeps at least the acting admin.
func (s *UserService) DeleteUser(ctx context.Context, actorID, targetID string) error {
	if actorID == targetID {
		return apperrors.NewInvalidOperation("cannot delete your own account", nil)
	}
	if err := s.users.SoftDelete(ctx, targetID, time.Now()); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("user", map[string]any{"user_id": targetID})
		}
		return apperrors.MapError(err)
	}
	return nil
}

func (s *UserService) loadUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return nil, apperrors.MapError(err)
	}
	return user, nil
}
