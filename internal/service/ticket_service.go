package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helpdeskpro/helpdesk-backend/internal/authz"
	"github.com/helpdeskpro/helpdesk-backend/internal/domain"
	"github.com/helpdeskpro/helpdesk-backend/internal/events"
	"github.com/helpdeskpro/helpdesk-backend/internal/repository"
	"github.com/helpdeskpro/helpdesk-backend/internal/sla"
	apperrors "github.com/helpdeskpro/helpdesk-backend/pkg/util"
)

// TicketService is the ticket lifecycle engine. Every mutating operation
// follows the same shape: load the ticket, resolve the actor, consult the
// authorization gate and the transition table, mutate, persist. A rejected
// operation never reaches the store.
type TicketService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
}

// TicketDependencies bundles collaborators for the lifecycle engine.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	UserRepo    repository.UserRepository
	HistoryRepo repository.TicketHistoryRepository
	Dispatcher  events.Dispatcher
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
}

// TicketUpdateInput carries the mutable free-text fields.
type TicketUpdateInput struct {
	Title       *string
	Description *string
}

// NewTicketService constructs the engine.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
	}
}

// CreateTicket opens a new ticket for the creator. Tickets always start
// OPEN with no assignee; the SLA window starts at the moment of creation.
func (s *TicketService) CreateTicket(ctx context.Context, creatorID string, input TicketCreateInput) (*domain.Ticket, error) {
	creator, err := s.resolveUser(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, apperrors.NewValidationError("title required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !domain.ValidPriority(priority) {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}

	ticket := &domain.Ticket{
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Status:      domain.TicketStatusOpen,
		Priority:    priority,
		CreatedBy:   creator.ID,
		SLADeadline: sla.Deadline(priority, time.Now()),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		ActorID:  creator.ID,
		Payload: events.TicketCreatedPayload{
			Title:       ticket.Title,
			Priority:    ticket.Priority,
			SLADeadline: ticket.SLADeadline,
		},
	})
	return ticket, nil
}

// GetTicket fetches a single non-deleted ticket.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.loadTicket(ctx, ticketID)
}

// ListTickets returns tickets matching the filter.
func (s *TicketService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListMyTickets returns tickets created by the user.
func (s *TicketService) ListMyTickets(ctx context.Context, userID string, limit, offset int) ([]domain.Ticket, error) {
	return s.ListTickets(ctx, repository.TicketFilter{CreatedBy: &userID, Limit: limit, Offset: offset})
}

// ListAssignedTickets returns tickets assigned to the agent.
func (s *TicketService) ListAssignedTickets(ctx context.Context, agentID string, limit, offset int) ([]domain.Ticket, error) {
	return s.ListTickets(ctx, repository.TicketFilter{AssignedTo: &agentID, Limit: limit, Offset: offset})
}

// UpdateTicket edits the free-text fields, guarded by the modify gate.
func (s *TicketService) UpdateTicket(ctx context.Context, actorID, ticketID string, input TicketUpdateInput) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	actor, err := s.resolveUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !authz.CanModifyTicket(actor, ticket) {
		return nil, apperrors.NewForbidden("you do not have permission to modify this ticket")
	}
	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" {
			return nil, apperrors.NewValidationError("title required", nil)
		}
		ticket.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		ticket.Description = strings.TrimSpace(*input.Description)
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// UpdateStatus moves the ticket through the status workflow. Transition
// legality is checked before any role or precondition gate, so an
// unreachable status always reports InvalidTransition.
func (s *TicketService) UpdateStatus(ctx context.Context, actorID, ticketID string, newStatus domain.TicketStatus) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	actor, err := s.resolveUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !domain.ValidStatus(newStatus) {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": newStatus})
	}
	if !domain.CanTransition(ticket.Status, newStatus) {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(newStatus))
	}
	if newStatus == domain.TicketStatusResolved && !authz.IsAgentOrAdmin(actor) {
		return nil, apperrors.NewForbidden("only agents can resolve tickets")
	}
	if newStatus == domain.TicketStatusInProgress && ticket.AssignedTo == nil {
		return nil, apperrors.NewInvalidOperation("ticket must be assigned before moving to IN_PROGRESS", nil)
	}

	oldStatus := ticket.Status
	ticket.Status = newStatus
	if newStatus == domain.TicketStatusResolved && ticket.ResolvedAt == nil {
		now := time.Now()
		ticket.ResolvedAt = &now
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.recordHistory(ctx, actor.ID, ticket.ID, domain.ChangeTypeStatus,
		map[string]any{"status": oldStatus},
		map[string]any{"status": newStatus})
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		ActorID:  actor.ID,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
		},
	})
	return ticket, nil
}

// AssignTicket hands the ticket to an agent. Assigning an OPEN ticket
// also starts progress in the same write, so the assignee precondition of
// IN_PROGRESS can never be observed violated.
func (s *TicketService) AssignTicket(ctx context.Context, requesterID, ticketID, agentID string) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	requester, err := s.resolveUser(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if !authz.CanAssignTickets(requester) {
		return nil, apperrors.NewForbidden("you do not have permission to assign tickets")
	}
	agent, err := s.resolveUser(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !authz.IsAgentOrAdmin(agent) {
		return nil, apperrors.NewInvalidOperation("user is not an agent", map[string]any{"user_id": agent.ID})
	}

	oldAssignee := ticket.AssignedTo
	oldStatus := ticket.Status
	ticket.AssignedTo = &agent.ID
	if ticket.Status == domain.TicketStatusOpen {
		ticket.Status = domain.TicketStatusInProgress
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.recordHistory(ctx, requester.ID, ticket.ID, domain.ChangeTypeAssignee,
		map[string]any{"assigned_to": oldAssignee},
		map[string]any{"assigned_to": ticket.AssignedTo})
	if oldStatus != ticket.Status {
		s.recordHistory(ctx, requester.ID, ticket.ID, domain.ChangeTypeStatus,
			map[string]any{"status": oldStatus},
			map[string]any{"status": ticket.Status})
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		ActorID:  requester.ID,
		Payload:  events.TicketAssignedPayload{AssignedTo: ticket.AssignedTo},
	})
	return ticket, nil
}

// UnassignTicket clears the assignee. A ticket in progress reverts to
// OPEN, keeping the in-progress-implies-assigned invariant.
func (s *TicketService) UnassignTicket(ctx context.Context, requesterID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	requester, err := s.resolveUser(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if !authz.CanAssignTickets(requester) {
		return nil, apperrors.NewForbidden("you do not have permission to unassign tickets")
	}
	if ticket.AssignedTo == nil {
		return nil, apperrors.NewInvalidOperation("ticket is not assigned to anyone", nil)
	}

	oldAssignee := ticket.AssignedTo
	oldStatus := ticket.Status
	ticket.AssignedTo = nil
	if ticket.Status == domain.TicketStatusInProgress {
		ticket.Status = domain.TicketStatusOpen
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.recordHistory(ctx, requester.ID, ticket.ID, domain.ChangeTypeAssignee,
		map[string]any{"assigned_to": oldAssignee},
		map[string]any{"assigned_to": nil})
	if oldStatus != ticket.Status {
		s.recordHistory(ctx, requester.ID, ticket.ID, domain.ChangeTypeStatus,
			map[string]any{"status": oldStatus},
			map[string]any{"status": ticket.Status})
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketUnassigned,
		TicketID: ticket.ID,
		ActorID:  requester.ID,
		Payload:  events.TicketAssignedPayload{AssignedTo: nil},
	})
	return ticket, nil
}

// UpdatePriority changes the priority and restarts the SLA window from
// the moment of the change. The ticket's original creation time plays no
// part in the new deadline.
func (s *TicketService) UpdatePriority(ctx context.Context, requesterID, ticketID string, newPriority domain.TicketPriority) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	requester, err := s.resolveUser(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if !domain.ValidPriority(newPriority) {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": newPriority})
	}
	if !authz.CanModifyTicket(requester, ticket) {
		return nil, apperrors.NewForbidden("you do not have permission to modify this ticket")
	}

	oldPriority := ticket.Priority
	ticket.Priority = newPriority
	ticket.SLADeadline = sla.Deadline(newPriority, time.Now())
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.recordHistory(ctx, requester.ID, ticket.ID, domain.ChangeTypePriority,
		map[string]any{"priority": oldPriority},
		map[string]any{"priority": newPriority})
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketPriorityChanged,
		TicketID: ticket.ID,
		ActorID:  requester.ID,
		Payload: events.TicketPriorityChangedPayload{
			OldPriority: oldPriority,
			NewPriority: newPriority,
			SLADeadline: ticket.SLADeadline,
		},
	})
	return ticket, nil
}

// ListSLABreached returns open work past its deadline, most urgent and
// most overdue first. Read-only.
func (s *TicketService) ListSLABreached(ctx context.Context) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListSLABreached(ctx, time.Now())
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// IsSLABreached reports the derived breach state for display.
func (s *TicketService) IsSLABreached(ticket *domain.Ticket, now time.Time) bool {
	return sla.Breached(ticket, now)
}

// DeleteTicket soft-deletes a ticket. Admin only; terminal.
func (s *TicketService) DeleteTicket(ctx context.Context, requesterID, ticketID string) error {
	requester, err := s.resolveUser(ctx, requesterID)
	if err != nil {
		return err
	}
	if requester.Role != domain.UserRoleAdmin {
		return apperrors.NewForbidden("only admins can delete tickets")
	}
	if err := s.tickets.SoftDelete(ctx, ticketID, time.Now()); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return apperrors.MapError(err)
	}
	return nil
}

// ListHistory returns the audit trail for a ticket, visible to staff and
// to the ticket's creator.
func (s *TicketService) ListHistory(ctx context.Context, requesterID, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	if s.history == nil {
		return []domain.TicketHistory{}, nil
	}
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	requester, err := s.resolveUser(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if !authz.IsAgentOrAdmin(requester) && ticket.CreatedBy != requester.ID {
		return nil, apperrors.NewForbidden("you do not have permission to view this ticket's history")
	}
	entries, err := s.history.ListByTicket(ctx, ticketID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

func (s *TicketService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// resolveUser looks up a directory entry for lifecycle purposes. A
// deactivated account cannot act on tickets or receive assignments, so
// it resolves the same as a missing one.
func (s *TicketService) resolveUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return nil, apperrors.MapError(err)
	}
	if !user.Active {
		return nil, apperrors.NewNotFound("user", map[string]any{"user_id": userID})
	}
	return user, nil
}

func (s *TicketService) recordHistory(ctx context.Context, actorID, ticketID string, changeType domain.HistoryChangeType, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	_ = s.history.Create(ctx, &domain.TicketHistory{
		TicketID:   ticketID,
		ChangedBy:  actorID,
		ChangeType: changeType,
		OldValue:   oldValue,
		NewValue:   newValue,
	})
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
