package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/helpdeskpro/helpdesk-backend/internal/api/dto"
	"github.com/helpdeskpro/helpdesk-backend/internal/auth"
	"github.com/helpdeskpro/helpdesk-backend/internal/domain"
	"github.com/helpdeskpro/helpdesk-backend/internal/service"
	apperrors "github.com/helpdeskpro/helpdesk-backend/pkg/util"
)

// UsersHandler exposes registration, login and directory endpoints.
type UsersHandler struct {
	authService *service.AuthService
	userService *service.UserService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService, userService *service.UserService) *UsersHandler {
	return &UsersHandler{authService: authService, userService: userService}
}

// Register POST /auth/register.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.authService.Register(c.Context(), service.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": authResponse(result)})
}

// Login POST /auth/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.authService.Login(c.Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": authResponse(result)})
}

// Me GET /auth/me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	return c.JSON(fiber.Map{"data": userResponse(principal.User)})
}

// UpdateMe PUT /auth/me.
func (h *UsersHandler) UpdateMe(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	user, err := h.userService.UpdateProfile(c.Context(), principal.User.ID, service.ProfileUpdateInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponse(user)})
}

// ListUsers GET /users.
func (h *UsersHandler) ListUsers(c *fiber.Ctx) error {
	var role *domain.UserRole
	if roleStr := c.Query("role"); roleStr != "" {
		r := domain.UserRole(roleStr)
		role = &r
	}
	limit, offset := parsePage(c)
	users, err := h.userService.ListUsers(c.Context(), role, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponses(users)})
}

// ListAgents GET /users/agents.
func (h *UsersHandler) ListAgents(c *fiber.Ctx) error {
	agents, err := h.userService.ListAgents(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponses(agents)})
}

// GetUser GET /users/:id.
func (h *UsersHandler) GetUser(c *fiber.Ctx) error {
	user, err := h.userService.GetProfile(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponse(user)})
}

// UpdateUser PUT /users/:id.
func (h *UsersHandler) UpdateUser(c *fiber.Ctx) error {
	var req dto.AdminUpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	user, err := h.userService.AdminUpdateUser(c.Context(), c.Params("id"), service.AdminUserUpdateInput{
		Role:      req.Role,
		Active:    req.Active,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponse(user)})
}

// DeleteUser DELETE /users/:id.
func (h *UsersHandler) DeleteUser(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.userService.DeleteUser(c.Context(), principal.User.ID, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": true}})
}

func authResponse(result *service.AuthResult) dto.AuthResponse {
	return dto.AuthResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      userResponse(result.User),
	}
}

func userResponse(user *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
		Active:    user.Active,
		CreatedAt: user.CreatedAt,
	}
}

func userResponses(users []domain.User) []dto.UserResponse {
	items := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		items = append(items, userResponse(&users[i]))
	}
	return items
}
