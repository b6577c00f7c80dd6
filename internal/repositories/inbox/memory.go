package inbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/paging"
)

// MemoryRepository is a concurrency-safe in-memory InboxRepository. The
// dedup and thread indexes are mutated under the same tenant shard lock as
// the primary map.
type MemoryRepository struct {
	mu      sync.RWMutex
	tenants map[string]*itemShard
}

type itemShard struct {
	mu   sync.RWMutex
	byID map[string]*models.InboxItem
	// byDedup and byThread map "recipientKey|key" to an item id.
	byDedup  map[string]string
	byThread map[string]string
}

// NewMemoryRepository creates an empty in-memory inbox store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tenants: make(map[string]*itemShard),
	}
}

func (m *MemoryRepository) shard(tenantID string, create bool) *itemShard {
	m.mu.RLock()
	shard, ok := m.tenants[tenantID]
	m.mu.RUnlock()
	if ok || !create {
		return shard
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if shard, ok = m.tenants[tenantID]; ok {
		return shard
	}
	shard = &itemShard{
		byID:     make(map[string]*models.InboxItem),
		byDedup:  make(map[string]string),
		byThread: make(map[string]string),
	}
	m.tenants[tenantID] = shard
	return shard
}

func (m *MemoryRepository) Get(ctx context.Context, tenantID string, itemID string) (*models.InboxItem, error) {
	shard := m.shard(tenantID, false)
	if shard == nil {
		return nil, nil
	}
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	item, ok := shard.byID[itemID]
	if !ok {
		return nil, nil
	}
	return copyItem(item), nil
}

func (m *MemoryRepository) GetByDedupKey(ctx context.Context, tenantID string, recipient models.EntityRef, dedupKey string) (*models.InboxItem, error) {
	return m.getByIndex(tenantID, recipient.Key()+"|"+dedupKey, func(s *itemShard) map[string]string { return s.byDedup })
}

func (m *MemoryRepository) GetByThreadKey(ctx context.Context, tenantID string, recipient models.EntityRef, threadKey string) (*models.InboxItem, error) {
	return m.getByIndex(tenantID, recipient.Key()+"|"+threadKey, func(s *itemShard) map[string]string { return s.byThread })
}

func (m *MemoryRepository) getByIndex(tenantID string, key string, index func(*itemShard) map[string]string) (*models.InboxItem, error) {
	shard := m.shard(tenantID, false)
	if shard == nil {
		return nil, nil
	}
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	id, ok := index(shard)[key]
	if !ok {
		return nil, nil
	}
	return copyItem(shard.byID[id]), nil
}

func (m *MemoryRepository) Insert(ctx context.Context, item models.InboxItem) (*models.InboxItem, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.ThreadCount < 1 {
		item.ThreadCount = 1
	}

	shard := m.shard(item.TenantID, true)
	recipientKey := item.Recipient.Key()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if item.DedupKey != "" {
		if existingID, ok := shard.byDedup[recipientKey+"|"+item.DedupKey]; ok {
			// Lost the dedup race; the existing item wins.
			return copyItem(shard.byID[existingID]), nil
		}
	}

	stored := copyItem(&item)
	shard.byID[item.ID] = stored
	if item.DedupKey != "" {
		shard.byDedup[recipientKey+"|"+item.DedupKey] = item.ID
	}
	if item.ThreadKey != "" {
		shard.byThread[recipientKey+"|"+item.ThreadKey] = item.ID
	}
	return copyItem(stored), nil
}

func (m *MemoryRepository) ApplyThreadEvent(ctx context.Context, tenantID string, itemID string, event models.InboxEvent) (*models.InboxItem, error) {
	shard := m.shard(tenantID, false)
	if shard == nil {
		return nil, apperrors.NewNotFoundErrorf("inbox item %s not found", itemID)
	}
	shard.mu.Lock()
	defer shard.mu.Unlock()
	item, ok := shard.byID[itemID]
	if !ok {
		return nil, apperrors.NewNotFoundErrorf("inbox item %s not found", itemID)
	}
	now := time.Now().UTC()
	item.ThreadCount++
	item.Event = event
	item.UpdatedAt = &now
	return copyItem(item), nil
}

func (m *MemoryRepository) SetStatus(ctx context.Context, tenantID string, itemID string, status models.InboxStatus) (*models.InboxItem, error) {
	if !status.IsValid() {
		return nil, apperrors.NewValidationErrorf("unknown inbox status %q", status)
	}
	shard := m.shard(tenantID, false)
	if shard == nil {
		return nil, apperrors.NewNotFoundErrorf("inbox item %s not found", itemID)
	}
	shard.mu.Lock()
	defer shard.mu.Unlock()
	item, ok := shard.byID[itemID]
	if !ok {
		return nil, apperrors.NewNotFoundErrorf("inbox item %s not found", itemID)
	}
	now := time.Now().UTC()
	item.Status = status
	item.UpdatedAt = &now
	return copyItem(item), nil
}

func (m *MemoryRepository) Query(ctx context.Context, tenantID string, q models.InboxQuery) (*models.InboxPage, error) {
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

	var cursor *paging.Cursor
	if q.Cursor != "" {
		var err error
		cursor, err = paging.Decode(q.Cursor)
		if err != nil {
			return nil, apperrors.NewValidationErrorf("%s", err.Error())
		}
	}

	recipientKeys := make(map[string]struct{}, len(q.Recipients))
	for _, recipient := range q.Recipients {
		recipientKeys[recipient.Key()] = struct{}{}
	}

	shard := m.shard(tenantID, false)
	if shard == nil {
		return &models.InboxPage{}, nil
	}

	shard.mu.RLock()
	var matched []models.InboxItem
	for _, item := range shard.byID {
		if _, ok := recipientKeys[item.Recipient.Key()]; !ok {
			continue
		}
		if q.Status != nil && item.Status != *q.Status {
			continue
		}
		if q.Kind != nil && item.Kind != *q.Kind {
			continue
		}
		if q.From != nil && item.CreatedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && item.CreatedAt.After(*q.To) {
			continue
		}
		if cursor != nil && !beforeCursor(item, cursor) {
			continue
		}
		matched = append(matched, *copyItem(item))
	}
	shard.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	page := &models.InboxPage{}
	hasMore := len(matched) > limit
	if hasMore {
		matched = matched[:limit]
	}
	page.Items = matched
	if hasMore && len(matched) > 0 {
		last := matched[len(matched)-1]
		page.NextCursor = paging.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	return page, nil
}

// beforeCursor reports whether the item sorts strictly after the cursor
// position in (created_at desc, id desc) order.
func beforeCursor(item *models.InboxItem, cursor *paging.Cursor) bool {
	if item.CreatedAt.Before(cursor.CreatedAt) {
		return true
	}
	return item.CreatedAt.Equal(cursor.CreatedAt) && item.ID < cursor.ID
}

func copyItem(item *models.InboxItem) *models.InboxItem {
	out := *item
	if item.UpdatedAt != nil {
		updated := *item.UpdatedAt
		out.UpdatedAt = &updated
	}
	return &out
}
