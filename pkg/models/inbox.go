package models

import (
	"time"
)

// InboxItemKind distinguishes plain notifications from actionable requests.
type InboxItemKind string

const (
	InboxItemKindNotification InboxItemKind = "Notification"
	InboxItemKindRequest      InboxItemKind = "Request"
)

// InboxStatus is the read state of an inbox item. Fan-out never changes
// status; only MarkRead/Archive do.
type InboxStatus string

const (
	InboxStatusUnread   InboxStatus = "Unread"
	InboxStatusRead     InboxStatus = "Read"
	InboxStatusArchived InboxStatus = "Archived"
)

// IsValid reports whether the status is one of the known statuses.
func (s InboxStatus) IsValid() bool {
	switch s {
	case InboxStatusUnread, InboxStatusRead, InboxStatusArchived:
		return true
	}
	return false
}

// InboxEvent references the triggering event of an inbox item. On a thread
// merge it is replaced with the latest event.
type InboxEvent struct {
	Kind       string    `json:"kind"`
	ID         string    `json:"id"`
	TypeKey    string    `json:"type_key,omitempty"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

// InboxItem is one entry in a recipient's inbox. DedupKey guarantees at most
// one item per (tenant, recipient, triggering event); ThreadKey groups
// repeated events into one growing entry.
type InboxItem struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"tenant_id"`
	Recipient   EntityRef     `json:"recipient"`
	Kind        InboxItemKind `json:"kind"`
	Status      InboxStatus   `json:"status"`
	Event       InboxEvent    `json:"event"`
	DedupKey    string        `json:"dedup_key,omitempty"`
	ThreadKey   string        `json:"thread_key,omitempty"`
	ThreadCount int           `json:"thread_count"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   *time.Time    `json:"updated_at,omitempty"`
}

// InboxQuery filters an inbox page. Recipients is required; the remaining
// fields are optional narrowing filters.
type InboxQuery struct {
	Recipients []EntityRef    `json:"recipients" validate:"required,min=1"`
	Status     *InboxStatus   `json:"status,omitempty"`
	Kind       *InboxItemKind `json:"kind,omitempty"`
	From       *time.Time     `json:"from,omitempty"`
	To         *time.Time     `json:"to,omitempty"`
	Limit      int            `json:"limit,omitempty"`
	Cursor     string         `json:"cursor,omitempty"`
}

// InboxPage is one page of inbox items ordered by created_at desc, id desc.
// NextCursor is opaque and only valid for the query that produced it.
type InboxPage struct {
	Items      []InboxItem `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}
