package domain

import "time"

// HistoryChangeType identifies what a history entry records.
type HistoryChangeType string

const (
	ChangeTypeStatus   HistoryChangeType = "STATUS"
	ChangeTypePriority HistoryChangeType = "PRIORITY"
	ChangeTypeAssignee HistoryChangeType = "ASSIGNEE"
)

// TicketHistory is an audit record of a lifecycle change.
type TicketHistory struct {
	ID         string
	TicketID   string
	ChangedBy  string
	ChangeType HistoryChangeType
	OldValue   map[string]any
	NewValue   map[string]any
	CreatedAt  time.Time
}
