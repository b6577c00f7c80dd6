// Package inbox persists per-recipient inbox items with dedup and thread
// semantics. Dedup keys guarantee at most one item per (tenant, recipient,
// triggering event); thread keys group repeated events into one entry whose
// status is preserved across merges.
package inbox

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/paging"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// InboxRepository defines the inbox store contract. Fan-out never changes an
// item's status; only SetStatus does.
type InboxRepository interface {
	Get(ctx context.Context, tenantID string, itemID string) (*models.InboxItem, error)
	GetByDedupKey(ctx context.Context, tenantID string, recipient models.EntityRef, dedupKey string) (*models.InboxItem, error)
	GetByThreadKey(ctx context.Context, tenantID string, recipient models.EntityRef, threadKey string) (*models.InboxItem, error)
	Insert(ctx context.Context, item models.InboxItem) (*models.InboxItem, error)
	// ApplyThreadEvent increments thread_count, replaces the event and sets
	// updated_at, preserving the item's status.
	ApplyThreadEvent(ctx context.Context, tenantID string, itemID string, event models.InboxEvent) (*models.InboxItem, error)
	SetStatus(ctx context.Context, tenantID string, itemID string, status models.InboxStatus) (*models.InboxItem, error)
	Query(ctx context.Context, tenantID string, q models.InboxQuery) (*models.InboxPage, error)
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Repository implements InboxRepository on Postgres.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new inbox repository.
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get gets an item by id.
func (r *Repository) Get(ctx context.Context, tenantID string, itemID string) (*models.InboxItem, error) {
	ctx, span := tracing.StartSpan(ctx, "inbox.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(itemColumns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("id", itemID),
	)

	query, args := sb.Build()

	var row itemRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"id":        itemID,
			"tenant_id": tenantID,
		}).Error("failed to get inbox item")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get inbox item: %s", err.Error())
	}

	return row.toModel(), nil
}

// GetByDedupKey looks up the item holding the dedup key for the recipient.
func (r *Repository) GetByDedupKey(ctx context.Context, tenantID string, recipient models.EntityRef, dedupKey string) (*models.InboxItem, error) {
	ctx, span := tracing.StartSpan(ctx, "inbox.Repository.GetByDedupKey")
	defer span.End()

	return r.getByKey(ctx, tenantID, recipient.Key(), "dedup_key", dedupKey)
}

// GetByThreadKey looks up the item holding the thread key for the recipient.
func (r *Repository) GetByThreadKey(ctx context.Context, tenantID string, recipient models.EntityRef, threadKey string) (*models.InboxItem, error) {
	ctx, span := tracing.StartSpan(ctx, "inbox.Repository.GetByThreadKey")
	defer span.End()

	return r.getByKey(ctx, tenantID, recipient.Key(), "thread_key", threadKey)
}

func (r *Repository) getByKey(ctx context.Context, tenantID string, recipientKey string, column string, value string) (*models.InboxItem, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(itemColumns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("recipient_key", recipientKey),
		sb.Equal(column, value),
	)

	query, args := sb.Build()

	var row itemRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":     tenantID,
			"recipient_key": recipientKey,
			column:          value,
		}).Error("failed to look up inbox item by key")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to look up inbox item: %s", err.Error())
	}

	return row.toModel(), nil
}

// Insert creates a new inbox item. A concurrent insert racing on the same
// dedup key resolves to the already-committed item instead of erroring, so
// retries are always safe.
func (r *Repository) Insert(ctx context.Context, item models.InboxItem) (*models.InboxItem, error) {
	ctx, span := tracing.StartSpan(ctx, "inbox.Repository.Insert")
	defer span.End()

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.ThreadCount < 1 {
		item.ThreadCount = 1
	}

	row := toRow(&item)

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols(itemColumns...)
	sb.Values(
		row.ID, row.TenantID, row.Recipient, row.RecipientKey, row.Kind, row.Status,
		row.Event, row.DedupKey, row.ThreadKey, row.ThreadCount, row.CreatedAt, row.UpdatedAt,
	)

	query, args := sb.Build()
	query += ` ON CONFLICT (tenant_id, recipient_key, dedup_key) WHERE dedup_key IS NOT NULL DO NOTHING
	RETURNING id, tenant_id, recipient, recipient_key, kind, status, event, dedup_key, thread_key, thread_count, created_at, updated_at`

	var out itemRow
	err := r.db.GetContext(ctx, &out, query, args...)
	if err == sql.ErrNoRows {
		// Lost the dedup race; the existing item wins.
		return r.getByKey(ctx, item.TenantID, row.RecipientKey, "dedup_key", item.DedupKey)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": item.TenantID,
			"dedup_key": item.DedupKey,
		}).Error("failed to insert inbox item")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to insert inbox item: %s", err.Error())
	}

	return out.toModel(), nil
}

// ApplyThreadEvent merges a new triggering event into an existing thread item.
// The increment happens in the database so concurrent merges cannot lose it.
func (r *Repository) ApplyThreadEvent(ctx context.Context, tenantID string, itemID string, event models.InboxEvent) (*models.InboxItem, error) {
	ctx, span := tracing.StartSpan(ctx, "inbox.Repository.ApplyThreadEvent")
	defer span.End()

	query := `UPDATE ` + tableName + `
	SET thread_count = thread_count + 1, event = $1, updated_at = $2
	WHERE tenant_id = $3 AND id = $4
	RETURNING id, tenant_id, recipient, recipient_key, kind, status, event, dedup_key, thread_key, thread_count, created_at, updated_at`

	var out itemRow
	err := r.db.GetContext(ctx, &out, query, database.JSONB[models.InboxEvent]{Data: event}, time.Now().UTC(), tenantID, itemID)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundErrorf("inbox item %s not found", itemID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"id":        itemID,
			"tenant_id": tenantID,
		}).Error("failed to apply thread event")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to apply thread event: %s", err.Error())
	}

	return out.toModel(), nil
}

// SetStatus transitions an item's read status (MarkRead / Archive).
func (r *Repository) SetStatus(ctx context.Context, tenantID string, itemID string, status models.InboxStatus) (*models.InboxItem, error) {
	ctx, span := tracing.StartSpan(ctx, "inbox.Repository.SetStatus")
	defer span.End()

	if !status.IsValid() {
		return nil, apperrors.NewValidationErrorf("unknown inbox status %q", status)
	}

	query := `UPDATE ` + tableName + `
	SET status = $1, updated_at = $2
	WHERE tenant_id = $3 AND id = $4
	RETURNING id, tenant_id, recipient, recipient_key, kind, status, event, dedup_key, thread_key, thread_count, created_at, updated_at`

	var out itemRow
	err := r.db.GetContext(ctx, &out, query, string(status), time.Now().UTC(), tenantID, itemID)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundErrorf("inbox item %s not found", itemID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"id":        itemID,
			"tenant_id": tenantID,
			"status":    status,
		}).Error("failed to set inbox item status")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to set inbox item status: %s", err.Error())
	}

	return out.toModel(), nil
}

// Query returns a page of inbox items ordered created_at desc, id desc with
// an opaque keyset cursor.
func (r *Repository) Query(ctx context.Context, tenantID string, q models.InboxQuery) (*models.InboxPage, error) {
	ctx, span := tracing.StartSpan(ctx, "inbox.Repository.Query")
	defer span.End()

	if len(q.Recipients) == 0 {
		return nil, apperrors.NewValidationErrorf("inbox query requires at least one recipient")
	}
	limit := q.Limit
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(itemColumns...)
	sb.From(tableName)
	sb.Where(sb.Equal("tenant_id", tenantID))

	keys := make([]any, len(q.Recipients))
	for i, recipient := range q.Recipients {
		keys[i] = recipient.Key()
	}
	sb.Where(sb.In("recipient_key", keys...))

	if q.Status != nil {
		sb.Where(sb.Equal("status", string(*q.Status)))
	}
	if q.Kind != nil {
		sb.Where(sb.Equal("kind", string(*q.Kind)))
	}
	if q.From != nil {
		sb.Where(sb.GreaterEqualThan("created_at", *q.From))
	}
	if q.To != nil {
		sb.Where(sb.LessEqualThan("created_at", *q.To))
	}
	if q.Cursor != "" {
		cursor, err := paging.Decode(q.Cursor)
		if err != nil {
			return nil, apperrors.NewValidationErrorf("%s", err.Error())
		}
		sb.Where(sb.Or(
			sb.LessThan("created_at", cursor.CreatedAt),
			sb.And(sb.Equal("created_at", cursor.CreatedAt), sb.LessThan("id", cursor.ID)),
		))
	}
	sb.OrderBy("created_at DESC", "id DESC")
	sb.Limit(limit + 1)

	query, args := sb.Build()

	var rows []itemRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
		}).Error("failed to query inbox items")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to query inbox items: %s", err.Error())
	}

	page := &models.InboxPage{}
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	page.Items = make([]models.InboxItem, 0, len(rows))
	for i := range rows {
		page.Items = append(page.Items, *rows[i].toModel())
	}
	if hasMore && len(page.Items) > 0 {
		last := page.Items[len(page.Items)-1]
		page.NextCursor = paging.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	return page, nil
}
