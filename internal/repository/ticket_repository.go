package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdeskpro/helpdesk-backend/internal/domain"
	apperrors "github.com/helpdeskpro/helpdesk-backend/pkg/util"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	CreatedBy  *string
	AssignedTo *string
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Limit      int
	Offset     int
}

// TicketRepository encapsulates ticket persistence. Every query excludes
// soft-deleted rows; Update enforces the optimistic version check and
// returns a CONFLICT error on a stale write.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ListSLABreached(ctx context.Context, now time.Time) ([]domain.Ticket, error)
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, title, description, status, priority, created_by_id, assigned_to_id,
               sla_deadline, resolved_at, created_at, updated_at, deleted_at, version`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, status, priority, created_by_id, assigned_to_id, sla_deadline)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at, version`
	return r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.CreatedBy,
		ticket.AssignedTo,
		ticket.SLADeadline,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt, &ticket.Version)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, status=$3, priority=$4, assigned_to_id=$5,
            sla_deadline=$6, resolved_at=$7, updated_at=NOW(), version=version+1
        WHERE id=$8 AND version=$9 AND deleted_at IS NULL
        RETURNING updated_at, version`
	err := r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.AssignedTo,
		ticket.SLADeadline,
		ticket.ResolvedAt,
		ticket.ID,
		ticket.Version,
	).Scan(&ticket.UpdatedAt, &ticket.Version)
	if err == pgx.ErrNoRows {
		return r.classifyStaleWrite(ctx, ticket.ID)
	}
	return err
}

// classifyStaleWrite distinguishes a vanished ticket from a version
// mismatch so the engine can surface NOT_FOUND vs CONFLICT.
func (r *ticketRepository) classifyStaleWrite(ctx context.Context, id string) error {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tickets WHERE id=$1 AND deleted_at IS NULL)`, id,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}
	return apperrors.NewConflict("ticket was modified concurrently", map[string]any{"ticket_id": id})
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1 AND deleted_at IS NULL`, ticketColumns)
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.CreatedBy,
		&ticket.AssignedTo,
		&ticket.SLADeadline,
		&ticket.ResolvedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.DeletedAt,
		&ticket.Version,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"deleted_at IS NULL"}
	args := []any{}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by_id=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListSLABreached(ctx context.Context, now time.Time) ([]domain.Ticket, error) {
	// Most urgent, most overdue first.
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE deleted_at IS NULL
          AND sla_deadline < $1
          AND status NOT IN ('RESOLVED', 'CLOSED')
        ORDER BY CASE priority
            WHEN 'CRITICAL' THEN 0
            WHEN 'HIGH' THEN 1
            WHEN 'MEDIUM' THEN 2
            ELSE 3
        END, sla_deadline ASC`, ticketColumns)

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	const query = `UPDATE tickets SET deleted_at=$1, updated_at=NOW() WHERE id=$2 AND deleted_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, deletedAt, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.Title,
			&ticket.Description,
			&ticket.Status,
			&ticket.Priority,
			&ticket.CreatedBy,
			&ticket.AssignedTo,
			&ticket.SLADeadline,
			&ticket.ResolvedAt,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&ticket.DeletedAt,
			&ticket.Version,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
