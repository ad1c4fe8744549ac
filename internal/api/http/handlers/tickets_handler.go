package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/helpdeskpro/helpdesk-backend/internal/api/dto"
	"github.com/helpdeskpro/helpdesk-backend/internal/auth"
	"github.com/helpdeskpro/helpdesk-backend/internal/domain"
	"github.com/helpdeskpro/helpdesk-backend/internal/repository"
	"github.com/helpdeskpro/helpdesk-backend/internal/service"
	"github.com/helpdeskpro/helpdesk-backend/internal/sla"
	apperrors "github.com/helpdeskpro/helpdesk-backend/pkg/util"
)

// TicketsHandler exposes the ticket lifecycle endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.CreateTicket(c.Context(), principal.User.ID, service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.service.GetTicket(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter := parseTicketQuery(c)
	tickets, err := h.service.ListTickets(c.Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponses(tickets)})
}

// ListMyTickets GET /tickets/my-tickets.
func (h *TicketsHandler) ListMyTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	limit, offset := parsePage(c)
	tickets, err := h.service.ListMyTickets(c.Context(), principal.User.ID, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponses(tickets)})
}

// ListAssignedTickets GET /tickets/assigned-to-me.
func (h *TicketsHandler) ListAssignedTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	limit, offset := parsePage(c)
	tickets, err := h.service.ListAssignedTickets(c.Context(), principal.User.ID, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponses(tickets)})
}

// UpdateTicket PUT /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.UpdateTicket(c.Context(), principal.User.ID, c.Params("id"), service.TicketUpdateInput{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// UpdateStatus PUT /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.UpdateStatus(c.Context(), principal.User.ID, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// UpdatePriority PUT /tickets/:id/priority.
func (h *TicketsHandler) UpdatePriority(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdatePriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.UpdatePriority(c.Context(), principal.User.ID, c.Params("id"), req.Priority)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// AssignTicket PUT /tickets/:id/assign.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.AgentID) == "" {
		return apperrors.NewValidationError("agent_id required", nil)
	}
	ticket, err := h.service.AssignTicket(c.Context(), principal.User.ID, c.Params("id"), req.AgentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// UnassignTicket PUT /tickets/:id/unassign.
func (h *TicketsHandler) UnassignTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.service.UnassignTicket(c.Context(), principal.User.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListSLABreached GET /tickets/sla-breached.
func (h *TicketsHandler) ListSLABreached(c *fiber.Ctx) error {
	tickets, err := h.service.ListSLABreached(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponses(tickets)})
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.service.DeleteTicket(c.Context(), principal.User.ID, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": true}})
}

// ListHistory GET /tickets/:id/history.
func (h *TicketsHandler) ListHistory(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	limit, offset := parsePage(c)
	history, err := h.service.ListHistory(c.Context(), principal.User.ID, c.Params("id"), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.TicketHistoryResponse, 0, len(history))
	for _, entry := range history {
		items = append(items, dto.TicketHistoryResponse{
			ID:         entry.ID,
			ChangeType: entry.ChangeType,
			ChangedBy:  entry.ChangedBy,
			OldValue:   entry.OldValue,
			NewValue:   entry.NewValue,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.TrimSpace(part)))
		}
	}
	filter.Limit, filter.Offset = parsePage(c)
	return filter
}

func parsePage(c *fiber.Ctx) (limit, offset int) {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	return pageSize, (page - 1) * pageSize
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:          ticket.ID,
		Title:       ticket.Title,
		Description: ticket.Description,
		Status:      ticket.Status,
		Priority:    ticket.Priority,
		CreatedBy:   ticket.CreatedBy,
		AssignedTo:  ticket.AssignedTo,
		SLADeadline: ticket.SLADeadline,
		SLABreached: sla.Breached(ticket, time.Now()),
		ResolvedAt:  ticket.ResolvedAt,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
	}
}

func ticketResponses(tickets []domain.Ticket) []dto.TicketResponse {
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return items
}
