package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helpdeskpro/helpdesk-backend/internal/domain"
	"github.com/helpdeskpro/helpdesk-backend/internal/repository"
	apperrors "github.com/helpdeskpro/helpdesk-backend/pkg/util"
)

// memTicketRepo mimics the Postgres repository: soft-deleted rows are
// invisible, writes enforce the version check, and the store stamps
// audit timestamps.
type memTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	seq     int

	// beforeUpdate runs inside Update before the version check,
	// letting tests interleave a concurrent write.
	beforeUpdate func()
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{tickets: make(map[string]*domain.Ticket)}
}

func copyTicket(t *domain.Ticket) *domain.Ticket {
	clone := *t
	if t.AssignedTo != nil {
		v := *t.AssignedTo
		clone.AssignedTo = &v
	}
	if t.ResolvedAt != nil {
		v := *t.ResolvedAt
		clone.ResolvedAt = &v
	}
	if t.DeletedAt != nil {
		v := *t.DeletedAt
		clone.DeletedAt = &v
	}
	return &clone
}

func (r *memTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	ticket.ID = fmt.Sprintf("ticket-%d", r.seq)
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	ticket.Version = 1
	r.tickets[ticket.ID] = copyTicket(ticket)
	return nil
}

func (r *memTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	if r.beforeUpdate != nil {
		r.beforeUpdate()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticket.ID]
	if !ok || stored.DeletedAt != nil {
		return pgx.ErrNoRows
	}
	if stored.Version != ticket.Version {
		return apperrors.NewConflict("ticket was modified concurrently", map[string]any{"ticket_id": ticket.ID})
	}
	ticket.Version++
	ticket.UpdatedAt = time.Now()
	r.tickets[ticket.ID] = copyTicket(ticket)
	return nil
}

func (r *memTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[id]
	if !ok || stored.DeletedAt != nil {
		return nil, pgx.ErrNoRows
	}
	return copyTicket(stored), nil
}

func (r *memTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.DeletedAt != nil {
			continue
		}
		if filter.CreatedBy != nil && ticket.CreatedBy != *filter.CreatedBy {
			continue
		}
		if filter.AssignedTo != nil && (ticket.AssignedTo == nil || *ticket.AssignedTo != *filter.AssignedTo) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
			continue
		}
		if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, ticket.Priority) {
			continue
		}
		result = append(result, *copyTicket(ticket))
	}
	return result, nil
}

func (r *memTicketRepo) ListSLABreached(ctx context.Context, now time.Time) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.DeletedAt != nil {
			continue
		}
		if ticket.Status == domain.TicketStatusResolved || ticket.Status == domain.TicketStatusClosed {
			continue
		}
		if !ticket.SLADeadline.Before(now) {
			continue
		}
		result = append(result, *copyTicket(ticket))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return domain.PriorityRank(result[i].Priority) > domain.PriorityRank(result[j].Priority)
		}
		return result[i].SLADeadline.Before(result[j].SLADeadline)
	})
	return result, nil
}

func (r *memTicketRepo) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[id]
	if !ok || stored.DeletedAt != nil {
		return pgx.ErrNoRows
	}
	stored.DeletedAt = &deletedAt
	return nil
}

// stored returns the raw record, bypassing the soft-delete filter.
func (r *memTicketRepo) stored(id string) *domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tickets[id]; ok {
		return copyTicket(t)
	}
	return nil
}

func containsStatus(haystack []domain.TicketStatus, needle domain.TicketStatus) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsPriority(haystack []domain.TicketPriority, needle domain.TicketPriority) bool {
	for _, p := range haystack {
		if p == needle {
			return true
		}
	}
	return false
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*domain.User)}
}

func (r *memUserRepo) add(user *domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
}

func (r *memUserRepo) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == "" {
		user.ID = fmt.Sprintf("user-%d", len(r.users)+1)
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return nil
}

func (r *memUserRepo) Update(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.users[user.ID] = user
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || user.DeletedAt != nil {
		return nil, pgx.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (r *memUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username && user.DeletedAt == nil {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email && user.DeletedAt == nil {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memUserRepo) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.User
	for _, user := range r.users {
		if user.DeletedAt == nil {
			result = append(result, *user)
		}
	}
	return result, nil
}

func (r *memUserRepo) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || user.DeletedAt != nil {
		return pgx.ErrNoRows
	}
	user.DeletedAt = &deletedAt
	user.Active = false
	return nil
}

func (r *memUserRepo) ListByRole(ctx context.Context, role domain.UserRole) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.User
	for _, user := range r.users {
		if user.Role == role && user.DeletedAt == nil {
			result = append(result, *user)
		}
	}
	return result, nil
}

type memHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.TicketHistory
}

func newMemHistoryRepo() *memHistoryRepo {
	return &memHistoryRepo{}
}

func (r *memHistoryRepo) Create(ctx context.Context, entry *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = fmt.Sprintf("history-%d", len(r.entries)+1)
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memHistoryRepo) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketHistory
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}
