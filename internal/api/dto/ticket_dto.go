package dto

import (
	"time"

	"github.com/helpdeskpro/helpdesk-backend/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
}

// UpdateTicketRequest payload.
type UpdateTicketRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// UpdatePriorityRequest payload.
type UpdatePriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AgentID string `json:"agent_id"`
}

// TicketResponse is the full ticket representation.
type TicketResponse struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Status       domain.TicketStatus   `json:"status"`
	Priority     domain.TicketPriority `json:"priority"`
	CreatedBy    string                `json:"created_by"`
	AssignedTo   *string               `json:"assigned_to,omitempty"`
	SLADeadline  time.Time             `json:"sla_deadline"`
	SLABreached  bool                  `json:"sla_breached"`
	ResolvedAt   *time.Time            `json:"resolved_at,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID         string                   `json:"id"`
	ChangeType domain.HistoryChangeType `json:"change_type"`
	ChangedBy  string                   `json:"changed_by"`
	OldValue   map[string]any           `json:"old_value"`
	NewValue   map[string]any           `json:"new_value"`
	CreatedAt  time.Time                `json:"created_at"`
}
