package inbox

import (
	"database/sql"
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

const tableName = "inbox_items"

var itemColumns = []string{
	"id", "tenant_id", "recipient", "recipient_key", "kind", "status",
	"event", "dedup_key", "thread_key", "thread_count", "created_at", "updated_at",
}

type itemRow struct {
	ID           string                            `db:"id"`
	TenantID     string                            `db:"tenant_id"`
	Recipient    database.JSONB[models.EntityRef]  `db:"recipient"`
	RecipientKey string                            `db:"recipient_key"`
	Kind         string                            `db:"kind"`
	Status       string                            `db:"status"`
	Event        database.JSONB[models.InboxEvent] `db:"event"`
	DedupKey     sql.NullString                    `db:"dedup_key"`
	ThreadKey    sql.NullString                    `db:"thread_key"`
	ThreadCount  int                               `db:"thread_count"`
	CreatedAt    time.Time                         `db:"created_at"`
	UpdatedAt    *time.Time                        `db:"updated_at"`
}

func (r *itemRow) toModel() *models.InboxItem {
	return &models.InboxItem{
		ID:          r.ID,
		TenantID:    r.TenantID,
		Recipient:   r.Recipient.GetValue(),
		Kind:        models.InboxItemKind(r.Kind),
		Status:      models.InboxStatus(r.Status),
		Event:       r.Event.GetValue(),
		DedupKey:    r.DedupKey.String,
		ThreadKey:   r.ThreadKey.String,
		ThreadCount: r.ThreadCount,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toRow(item *models.InboxItem) *itemRow {
	return &itemRow{
		ID:           item.ID,
		TenantID:     item.TenantID,
		Recipient:    database.JSONB[models.EntityRef]{Data: item.Recipient},
		RecipientKey: item.Recipient.Key(),
		Kind:         string(item.Kind),
		Status:       string(item.Status),
		Event:        database.JSONB[models.InboxEvent]{Data: item.Event},
		DedupKey:     sql.NullString{String: item.DedupKey, Valid: item.DedupKey != ""},
		ThreadKey:    sql.NullString{String: item.ThreadKey, Valid: item.ThreadKey != ""},
		ThreadCount:  item.ThreadCount,
		CreatedAt:    item.CreatedAt,
		UpdatedAt:    item.UpdatedAt,
	}
}
