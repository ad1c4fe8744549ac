package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helpdeskpro/helpdesk-backend/internal/api/http/handlers"
	"github.com/helpdeskpro/helpdesk-backend/internal/auth"
	"github.com/helpdeskpro/helpdesk-backend/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Users.Me)
	authGroup.Put("/me", cfg.AuthMiddleware.Handle, cfg.Users.UpdateMe)

	staffOnly := auth.RequireRole(domain.UserRoleAgent, domain.UserRoleAdmin)
	adminOnly := auth.RequireRole(domain.UserRoleAdmin)

	users := app.Group("/users", cfg.AuthMiddleware.Handle)
	users.Get("", adminOnly, cfg.Users.ListUsers)
	users.Get("/agents", staffOnly, cfg.Users.ListAgents)
	users.Get("/:id", adminOnly, cfg.Users.GetUser)
	users.Put("/:id", adminOnly, cfg.Users.UpdateUser)
	users.Delete("/:id", adminOnly, cfg.Users.DeleteUser)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", staffOnly, cfg.Tickets.ListTickets)
	tickets.Get("/my-tickets", cfg.Tickets.ListMyTickets)
	tickets.Get("/assigned-to-me", staffOnly, cfg.Tickets.ListAssignedTickets)
	tickets.Get("/sla-breached", staffOnly, cfg.Tickets.ListSLABreached)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Put("/:id", cfg.Tickets.UpdateTicket)
	tickets.Delete("/:id", adminOnly, cfg.Tickets.DeleteTicket)
	tickets.Put("/:id/status", cfg.Tickets.UpdateStatus)
	tickets.Put("/:id/priority", cfg.Tickets.UpdatePriority)
	tickets.Put("/:id/assign", staffOnly, cfg.Tickets.AssignTicket)
	tickets.Put("/:id/unassign", staffOnly, cfg.Tickets.UnassignTicket)
	tickets.Get("/:id/history", cfg.Tickets.ListHistory)
}
