package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdeskpro/helpdesk-backend/internal/domain"
)

// TicketHistoryRepository persists lifecycle audit entries.
type TicketHistoryRepository interface {
	Create(ctx context.Context, entry *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository instantiates repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

func (r *ticketHistoryRepository) Create(ctx context.Context, entry *domain.TicketHistory) error {
	oldJSON, err := json.Marshal(entry.OldValue)
	if err != nil {
		return err
	}
	newJSON, err := json.Marshal(entry.NewValue)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO ticket_history (ticket_id, changed_by_id, change_type, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.TicketID,
		entry.ChangedBy,
		entry.ChangeType,
		oldJSON,
		newJSON,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, ticket_id, changed_by_id, change_type, old_value, new_value, created_at
        FROM ticket_history
        WHERE ticket_id=$1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, ticketID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var entry domain.TicketHistory
		var oldJSON, newJSON []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.ChangedBy,
			&entry.ChangeType,
			&oldJSON,
			&newJSON,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(oldJSON, &entry.OldValue); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(newJSON, &entry.NewValue); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
