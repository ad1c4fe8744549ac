package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdeskpro/helpdesk-backend/internal/domain"
	"github.com/helpdeskpro/helpdesk-backend/internal/events"
	apperrors "github.com/helpdeskpro/helpdesk-backend/pkg/util"
)

type engineFixture struct {
	svc     *TicketService
	tickets *memTicketRepo
	users   *memUserRepo
	history *memHistoryRepo
	events  *[]events.Event
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	tickets := newMemTicketRepo()
	users := newMemUserRepo()
	history := newMemHistoryRepo()
	dispatcher := events.NewInMemoryDispatcher()

	var published []events.Event
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventTicketPriorityChanged,
		events.EventTicketAssigned,
		events.EventTicketUnassigned,
		events.EventTicketSLABreach,
	} {
		dispatcher.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
			published = append(published, event)
			return nil
		})
	}

	users.add(&domain.User{ID: "customer-1", Username: "carla", Role: domain.UserRoleCustomer, Active: true})
	users.add(&domain.User{ID: "customer-2", Username: "colin", Role: domain.UserRoleCustomer, Active: true})
	users.add(&domain.User{ID: "agent-1", Username: "amir", Role: domain.UserRoleAgent, Active: true})
	users.add(&domain.User{ID: "agent-2", Username: "ana", Role: domain.UserRoleAgent, Active: true})
	users.add(&domain.User{ID: "admin-1", Username: "root", Role: domain.UserRoleAdmin, Active: true})

	svc := NewTicketService(TicketDependencies{
		TicketRepo:  tickets,
		UserRepo:    users,
		HistoryRepo: history,
		Dispatcher:  dispatcher,
	})
	return &engineFixture{svc: svc, tickets: tickets, users: users, history: history, events: &published}
}

func (f *engineFixture) createTicket(t *testing.T, creatorID string, priority domain.TicketPriority) *domain.Ticket {
	t.Helper()
	ticket, err := f.svc.CreateTicket(context.Background(), creatorID, TicketCreateInput{
		Title:    "printer on fire",
		Priority: priority,
	})
	require.NoError(t, err)
	return ticket
}

func (f *engineFixture) assign(t *testing.T, ticketID, agentID string) *domain.Ticket {
	t.Helper()
	ticket, err := f.svc.AssignTicket(context.Background(), "admin-1", ticketID, agentID)
	require.NoError(t, err)
	return ticket
}

func TestCreateTicketDefaults(t *testing.T) {
	f := newEngineFixture(t)

	ticket, err := f.svc.CreateTicket(context.Background(), "customer-1", TicketCreateInput{
		Title:       "  laptop will not boot  ",
		Description: "black screen after login",
	})
	require.NoError(t, err)

	assert.Equal(t, "laptop will not boot", ticket.Title)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	assert.Equal(t, "customer-1", ticket.CreatedBy)
	assert.Nil(t, ticket.AssignedTo)
	assert.Nil(t, ticket.ResolvedAt)
	assert.EqualValues(t, 1, ticket.Version)
	assert.WithinDuration(t, time.Now().Add(72*time.Hour), ticket.SLADeadline, 2*time.Second)
}

func TestCreateTicketSLADeadlinePerPriority(t *testing.T) {
	f := newEngineFixture(t)

	offsets := map[domain.TicketPriority]time.Duration{
		domain.TicketPriorityCritical: 4 * time.Hour,
		domain.TicketPriorityHigh:     24 * time.Hour,
		domain.TicketPriorityMedium:   72 * time.Hour,
		domain.TicketPriorityLow:      168 * time.Hour,
	}
	for priority, offset := range offsets {
		ticket := f.createTicket(t, "customer-1", priority)
		assert.WithinDuration(t, time.Now().Add(offset), ticket.SLADeadline, 2*time.Second,
			"priority %s", priority)
	}
}

func TestCreateTicketValidation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateTicket(ctx, "customer-1", TicketCreateInput{Title: "   "})
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	_, err = f.svc.CreateTicket(ctx, "customer-1", TicketCreateInput{Title: "x", Priority: "WHENEVER"})
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	_, err = f.svc.CreateTicket(ctx, "ghost", TicketCreateInput{Title: "x"})
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
}

func TestAssignTicketStartsProgress(t *testing.T) {
	f := newEngineFixture(t)
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)

	updated, err := f.svc.AssignTicket(context.Background(), "admin-1", ticket.ID, "agent-1")
	require.NoError(t, err)

	// a single call moves OPEN straight to IN_PROGRESS with the assignee set
	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)
	require.NotNil(t, updated.AssignedTo)
	assert.Equal(t, "agent-1", *updated.AssignedTo)
	assert.EqualValues(t, 2, updated.Version)
}

func TestAssignTicketKeepsStatusWhenNotOpen(t *testing.T) {
	f := newEngineFixture(t)
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)
	f.assign(t, ticket.ID, "agent-1")

	updated, err := f.svc.AssignTicket(context.Background(), "admin-1", ticket.ID, "agent-2")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)
	assert.Equal(t, "agent-2", *updated.AssignedTo)
}

func TestAssignTicketRejectsCustomerTarget(t *testing.T) {
	f := newEngineFixture(t)
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)

	_, err := f.svc.AssignTicket(context.Background(), "agent-1", ticket.ID, "customer-2")
	assert.True(t, apperrors.IsCode(err, "INVALID_OPERATION"))

	stored := f.tickets.stored(ticket.ID)
	assert.Nil(t, stored.AssignedTo)
	assert.Equal(t, domain.TicketStatusOpen, stored.Status)
}

func TestAssignTicketRequesterMustBeStaff(t *testing.T) {
	f := newEngineFixture(t)
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)

	_, err := f.svc.AssignTicket(context.Background(), "customer-1", ticket.ID, "agent-1")
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
}

func TestAssignTicketRejectsInactiveAgent(t *testing.T) {
	f := newEngineFixture(t)
	f.users.add(&domain.User{ID: "agent-off", Username: "offline", Role: domain.UserRoleAgent, Active: false})
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)

	// a deactivated account resolves the same as a missing one
	_, err := f.svc.AssignTicket(context.Background(), "admin-1", ticket.ID, "agent-off")
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))

	stored := f.tickets.stored(ticket.ID)
	assert.Nil(t, stored.AssignedTo)
	assert.Equal(t, domain.TicketStatusOpen, stored.Status)
}

func TestInactiveUsersCannotActOnTickets(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.users.add(&domain.User{ID: "customer-off", Username: "gone", Role: domain.UserRoleCustomer, Active: false})

	_, err := f.svc.CreateTicket(ctx, "customer-off", TicketCreateInput{Title: "x"})
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"), "inactive creator")

	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)
	f.assign(t, ticket.ID, "agent-1")
	f.users.users["agent-1"].Active = false

	_, err = f.svc.UpdateStatus(ctx, "agent-1", ticket.ID, domain.TicketStatusResolved)
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"), "deactivated actor")
}

func TestAssignTicketUnknownAgent(t *testing.T) {
	f := newEngineFixture(t)
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)

	_, err := f.svc.AssignTicket(context.Background(), "admin-1", ticket.ID, "ghost")
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
}

func TestUnassignTicketRevertsToOpen(t *testing.T) {
	f := newEngineFixture(t)
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)
	f.assign(t, ticket.ID, "agent-1")

	updated, err := f.svc.UnassignTicket(context.Background(), "agent-1", ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, updated.AssignedTo)
	assert.Equal(t, domain.TicketStatusOpen, updated.Status)
}

func TestUnassignUnassignedTicket(t *testing.T) {
	f := newEngineFixture(t)
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)

	_, err := f.svc.UnassignTicket(context.Background(), "agent-1", ticket.ID)
	assert.True(t, apperrors.IsCode(err, "INVALID_OPERATION"))
}

func TestUpdateStatusInProgressRequiresAssignee(t *testing.T) {
	f := newEngineFixture(t)
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)

	// precondition applies to every role, including admins
	for _, actor := range []string{"customer-1", "agent-1", "admin-1"} {
		_, err := f.svc.UpdateStatus(context.Background(), actor, ticket.ID, domain.TicketStatusInProgress)
		assert.True(t, apperrors.IsCode(err, "INVALID_OPERATION"), "actor %s", actor)
	}
}

func TestUpdateStatusResolveSetsResolvedAt(t *testing.T) {
	f := newEngineFixture(t)
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)
	f.assign(t, ticket.ID, "agent-1")

	updated, err := f.svc.UpdateStatus(context.Background(), "agent-1", ticket.ID, domain.TicketStatusResolved)
	require.NoError(t, err)
	require.NotNil(t, updated.ResolvedAt)
	assert.False(t, updated.ResolvedAt.Before(ticket.CreatedAt))
}

func TestUpdateStatusResolveRequiresStaff(t *testing.T) {
	f := newEngineFixture(t)
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)
	f.assign(t, ticket.ID, "agent-1")

	// the creator still cannot resolve their own ticket
	_, err := f.svc.UpdateStatus(context.Background(), "customer-1", ticket.ID, domain.TicketStatusResolved)
	require.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	stored := f.tickets.stored(ticket.ID)
	assert.Equal(t, domain.TicketStatusInProgress, stored.Status)
	assert.Nil(t, stored.ResolvedAt)
}

func TestUpdateStatusReopenKeepsResolvedAt(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)
	f.assign(t, ticket.ID, "agent-1")

	resolved, err := f.svc.UpdateStatus(ctx, "agent-1", ticket.ID, domain.TicketStatusResolved)
	require.NoError(t, err)
	firstResolvedAt := *resolved.ResolvedAt

	_, err = f.svc.UpdateStatus(ctx, "agent-1", ticket.ID, domain.TicketStatusInProgress)
	require.NoError(t, err)
	reresolved, err := f.svc.UpdateStatus(ctx, "agent-1", ticket.ID, domain.TicketStatusResolved)
	require.NoError(t, err)

	assert.Equal(t, firstResolvedAt, *reresolved.ResolvedAt)
}

func TestUpdateStatusInvalidTransition(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)

	_, err := f.svc.UpdateStatus(ctx, "admin-1", ticket.ID, domain.TicketStatusClosed)
	require.NoError(t, err)

	// CLOSED is terminal
	_, err = f.svc.UpdateStatus(ctx, "admin-1", ticket.ID, domain.TicketStatusOpen)
	require.True(t, apperrors.IsCode(err, "INVALID_TRANSITION"))

	stored := f.tickets.stored(ticket.ID)
	assert.Equal(t, domain.TicketStatusClosed, stored.Status)
}

func TestUpdateStatusUnknownStatus(t *testing.T) {
	f := newEngineFixture(t)
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)

	_, err := f.svc.UpdateStatus(context.Background(), "admin-1", ticket.ID, "ESCALATED")
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}

func TestUpdatePriorityRestartsSLAWindow(t *testing.T) {
	f := newEngineFixture(t)
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityCritical)

	updated, err := f.svc.UpdatePriority(context.Background(), "admin-1", ticket.ID, domain.TicketPriorityLow)
	require.NoError(t, err)

	// the new window counts from the change, not from creation
	assert.Equal(t, domain.TicketPriorityLow, updated.Priority)
	assert.WithinDuration(t, time.Now().Add(168*time.Hour), updated.SLADeadline, 2*time.Second)
}

func TestUpdatePriorityModifyGate(t *testing.T) {
	f := newEngineFixture(t)
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)

	// a different customer has no claim on the ticket
	_, err := f.svc.UpdatePriority(context.Background(), "customer-2", ticket.ID, domain.TicketPriorityLow)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	// the creator may change their own ticket's priority
	_, err = f.svc.UpdatePriority(context.Background(), "customer-1", ticket.ID, domain.TicketPriorityLow)
	assert.NoError(t, err)
}

func TestUpdateTicketModifyGate(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)
	f.assign(t, ticket.ID, "agent-1")

	title := "updated title"
	_, err := f.svc.UpdateTicket(ctx, "agent-2", ticket.ID, TicketUpdateInput{Title: &title})
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"), "agent not assigned to the ticket")

	updated, err := f.svc.UpdateTicket(ctx, "agent-1", ticket.ID, TicketUpdateInput{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "updated title", updated.Title)
}

func TestConcurrentWriteConflict(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)
	f.assign(t, ticket.ID, "agent-1")

	// sneak a competing write in between the engine's read and its save
	f.tickets.beforeUpdate = func() {
		f.tickets.beforeUpdate = nil
		stored := f.tickets.tickets[ticket.ID]
		stored.Version++
	}

	_, err := f.svc.UpdateStatus(ctx, "agent-1", ticket.ID, domain.TicketStatusResolved)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))
}

func TestSoftDeletedTicketIsGone(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)

	require.NoError(t, f.svc.DeleteTicket(ctx, "admin-1", ticket.ID))

	_, err := f.svc.GetTicket(ctx, ticket.ID)
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))

	_, err = f.svc.UpdateStatus(ctx, "admin-1", ticket.ID, domain.TicketStatusClosed)
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))

	err = f.svc.DeleteTicket(ctx, "admin-1", ticket.ID)
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"), "repeat delete")
}

func TestDeleteTicketAdminOnly(t *testing.T) {
	f := newEngineFixture(t)
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)

	for _, actor := range []string{"customer-1", "agent-1"} {
		err := f.svc.DeleteTicket(context.Background(), actor, ticket.ID)
		assert.True(t, apperrors.IsCode(err, "FORBIDDEN"), "actor %s", actor)
	}
}

func TestListMyTicketsAndAssigned(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	mine := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)
	f.createTicket(t, "customer-2", domain.TicketPriorityHigh)
	f.assign(t, mine.ID, "agent-1")

	created, err := f.svc.ListMyTickets(ctx, "customer-1", 50, 0)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, mine.ID, created[0].ID)

	assigned, err := f.svc.ListAssignedTickets(ctx, "agent-1", 50, 0)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, mine.ID, assigned[0].ID)
}

func TestListSLABreachedOrdering(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	low := f.createTicket(t, "customer-1", domain.TicketPriorityLow)
	critNew := f.createTicket(t, "customer-1", domain.TicketPriorityCritical)
	critOld := f.createTicket(t, "customer-1", domain.TicketPriorityCritical)
	resolved := f.createTicket(t, "customer-1", domain.TicketPriorityCritical)
	fresh := f.createTicket(t, "customer-1", domain.TicketPriorityMedium)

	past := func(id string, ago time.Duration) {
		stored := f.tickets.tickets[id]
		stored.SLADeadline = time.Now().Add(-ago)
	}
	past(low.ID, time.Hour)
	past(critNew.ID, time.Minute)
	past(critOld.ID, 2*time.Hour)
	past(resolved.ID, 3*time.Hour)
	f.tickets.tickets[resolved.ID].Status = domain.TicketStatusResolved
	_ = fresh

	breached, err := f.svc.ListSLABreached(ctx)
	require.NoError(t, err)
	require.Len(t, breached, 3)
	assert.Equal(t, critOld.ID, breached[0].ID, "highest priority, most overdue first")
	assert.Equal(t, critNew.ID, breached[1].ID)
	assert.Equal(t, low.ID, breached[2].ID)
}

func TestListHistoryVisibility(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)
	f.assign(t, ticket.ID, "agent-1")

	// assignment while OPEN records both the assignee and the status change
	entries, err := f.svc.ListHistory(ctx, "customer-1", ticket.ID, 50, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = f.svc.ListHistory(ctx, "agent-2", ticket.ID, 50, 0)
	assert.NoError(t, err, "staff can always read the trail")

	_, err = f.svc.ListHistory(ctx, "customer-2", ticket.ID, 50, 0)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
}

func TestLifecycleEventsPublished(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, "customer-1", domain.TicketPriorityHigh)
	f.assign(t, ticket.ID, "agent-1")
	_, err := f.svc.UpdateStatus(ctx, "agent-1", ticket.ID, domain.TicketStatusResolved)
	require.NoError(t, err)

	var types []events.EventType
	for _, event := range *f.events {
		types = append(types, event.Type)
		assert.NotEmpty(t, event.ID)
		assert.Equal(t, ticket.ID, event.TicketID)
	}
	assert.Equal(t, []events.EventType{
		events.EventTicketCreated,
		events.EventTicketAssigned,
		events.EventTicketStatusChanged,
	}, types)
}
