package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdeskpro/helpdesk-backend/internal/cache"
	"github.com/helpdeskpro/helpdesk-backend/internal/events"
	"github.com/helpdeskpro/helpdesk-backend/internal/service"
)

// SLAMonitor periodically scans for tickets past their deadline,
// publishes breach events and refreshes the cached snapshot. The scan is
// read-only; it never mutates tickets.
type SLAMonitor struct {
	tickets    *service.TicketService
	snapshot   *cache.BreachCache
	dispatcher events.Dispatcher
	logger     *zap.Logger
	interval   time.Duration
}

// NewSLAMonitor constructs the monitor.
func NewSLAMonitor(tickets *service.TicketService, snapshot *cache.BreachCache, dispatcher events.Dispatcher, logger *zap.Logger, interval time.Duration) *SLAMonitor {
	return &SLAMonitor{
		tickets:    tickets,
		snapshot:   snapshot,
		dispatcher: dispatcher,
		logger:     logger,
		interval:   interval,
	}
}

// Run blocks until ctx is cancelled, scanning once per interval.
func (m *SLAMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scan(ctx)
		}
	}
}

func (m *SLAMonitor) scan(ctx context.Context) {
	now := time.Now()
	breached, err := m.tickets.ListSLABreached(ctx)
	if err != nil {
		m.logger.Error("sla breach scan failed", zap.Error(err))
		return
	}

	ids := make([]string, 0, len(breached))
	for i := range breached {
		ticket := &breached[i]
		ids = append(ids, ticket.ID)
		if m.dispatcher != nil {
			_ = m.dispatcher.Publish(ctx, events.Event{
				ID:        uuid.NewString(),
				Type:      events.EventTicketSLABreach,
				TicketID:  ticket.ID,
				Timestamp: now,
				Payload: events.TicketSLABreachPayload{
					Priority:    ticket.Priority,
					SLADeadline: ticket.SLADeadline,
					DetectedAt:  now,
				},
			})
		}
	}

	if m.snapshot != nil {
		if err := m.snapshot.Store(ctx, cache.BreachSnapshot{TicketIDs: ids, ScannedAt: now}); err != nil {
			m.logger.Warn("failed to cache breach snapshot", zap.Error(err))
		}
	}
	m.logger.Info("sla breach scan complete", zap.Int("breached", len(ids)))
}
