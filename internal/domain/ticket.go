package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityCritical TicketPriority = "CRITICAL"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityLow      TicketPriority = "LOW"
)

var priorityRank = map[TicketPriority]int{
	TicketPriorityLow:      0,
	TicketPriorityMedium:   1,
	TicketPriorityHigh:     2,
	TicketPriorityCritical: 3,
}

// PriorityRank returns a sortable urgency rank; higher means more urgent.
func PriorityRank(p TicketPriority) int {
	return priorityRank[p]
}

// ValidPriority reports whether p is a known priority value.
func ValidPriority(p TicketPriority) bool {
	_, ok := priorityRank[p]
	return ok
}

// ValidStatus reports whether s is a known status value.
func ValidStatus(s TicketStatus) bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID          string
	Title       string
	Description string
	Status      TicketStatus
	Priority    TicketPriority
	CreatedBy   string
	AssignedTo  *string
	SLADeadline time.Time
	ResolvedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
	Version     int64
}
