package events

import (
	"time"

	"github.com/helpdeskpro/helpdesk-backend/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketUnassigned      EventType = "ticket_unassigned"
	EventTicketSLABreach       EventType = "ticket_sla_breach_detected"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	ActorID   string      `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title       string                `json:"title"`
	Priority    domain.TicketPriority `json:"priority"`
	SLADeadline time.Time             `json:"sla_deadline"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
	SLADeadline time.Time             `json:"sla_deadline"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssignedTo *string `json:"assigned_to,omitempty"`
}

// TicketSLABreachPayload payload.
type TicketSLABreachPayload struct {
	Priority    domain.TicketPriority `json:"priority"`
	SLADeadline time.Time             `json:"sla_deadline"`
	DetectedAt  time.Time             `json:"detected_at"`
}
