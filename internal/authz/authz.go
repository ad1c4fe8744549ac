// Package authz holds the pure authorization predicates consulted by the
// ticket lifecycle engine before any mutating operation. Predicates never
// mutate state and never fail; the engine maps false results onto
// Forbidden or InvalidOperation outcomes.
package authz

import "github.com/helpdeskpro/helpdesk-backend/internal/domain"

// CanModifyTicket decides whether user may edit the ticket's fields.
// Admins may modify anything; agents may modify unassigned tickets or
// tickets assigned to themselves; customers only their own tickets.
func CanModifyTicket(user *domain.User, ticket *domain.Ticket) bool {
	if user == nil || ticket == nil {
		return false
	}
	switch user.Role {
	case domain.UserRoleAdmin:
		return true
	case domain.UserRoleAgent:
		return ticket.AssignedTo == nil || *ticket.AssignedTo == user.ID
	default:
		return ticket.CreatedBy == user.ID
	}
}

// CanAssignTickets decides whether user may assign or unassign tickets.
func CanAssignTickets(user *domain.User) bool {
	return IsAgentOrAdmin(user)
}

// IsAgentOrAdmin reports whether user holds a staff role.
func IsAgentOrAdmin(user *domain.User) bool {
	if user == nil {
		return false
	}
	return user.Role == domain.UserRoleAgent || user.Role == domain.UserRoleAdmin
}
