// Package sla computes service-level deadlines for tickets.
package sla

import (
	"time"

	"github.com/helpdeskpro/helpdesk-backend/internal/domain"
)

// offsets maps priority to the resolution window granted at creation or
// priority change. The table is fixed and must not be made configurable.
var offsets = map[domain.TicketPriority]time.Duration{
	domain.TicketPriorityCritical: 4 * time.Hour,
	domain.TicketPriorityHigh:     24 * time.Hour,
	domain.TicketPriorityMedium:   3 * 24 * time.Hour,
	domain.TicketPriorityLow:      7 * 24 * time.Hour,
}

// Deadline returns the SLA deadline for a ticket of the given priority
// whose window starts at now. Called at creation and whenever priority
// changes; the window always restarts from the moment of the change.
func Deadline(priority domain.TicketPriority, now time.Time) time.Time {
	offset, ok := offsets[priority]
	if !ok {
		offset = offsets[domain.TicketPriorityMedium]
	}
	return now.Add(offset)
}

// Offset exposes the raw window for a priority.
func Offset(priority domain.TicketPriority) time.Duration {
	return offsets[priority]
}

// Breached reports whether the ticket has blown its SLA deadline. Tickets
// already resolved or closed never count as breached.
func Breached(ticket *domain.Ticket, now time.Time) bool {
	if ticket.Status == domain.TicketStatusResolved || ticket.Status == domain.TicketStatusClosed {
		return false
	}
	return ticket.SLADeadline.Before(now)
}
