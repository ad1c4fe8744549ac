package domain

// allowedTransitions is the full status workflow. A status missing a
// candidate here is unreachable from that status; CLOSED is terminal.
var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:       {TicketStatusInProgress, TicketStatusClosed},
	TicketStatusInProgress: {TicketStatusResolved, TicketStatusOpen},
	TicketStatusResolved:   {TicketStatusClosed, TicketStatusInProgress},
	TicketStatusClosed:     {},
}

// CanTransition reports whether moving from current to next is permitted
// by the status workflow.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable from current.
func NextStatuses(current TicketStatus) []TicketStatus {
	return append([]TicketStatus{}, allowedTransitions[current]...)
}
