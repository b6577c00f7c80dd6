package relationship

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

// MemoryRepository is a concurrency-safe in-memory RelationshipRepository.
// Each tenant has its own shard; the primary map and the composite uniqueness
// index are always mutated under the same shard lock, so a reader can never
// observe one without the other.
type MemoryRepository struct {
	mu      sync.RWMutex
	tenants map[string]*edgeShard
}

type edgeShard struct {
	mu   sync.RWMutex
	byID map[string]*models.RelationshipEdge
	// byKey maps a composite key to the id of the edge holding it.
	byKey map[string]string
}

// NewMemoryRepository creates an empty in-memory relationship store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tenants: make(map[string]*edgeShard),
	}
}

func (m *MemoryRepository) shard(tenantID string, create bool) *edgeShard {
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
	shard = &edgeShard{
		byID:  make(map[string]*models.RelationshipEdge),
		byKey: make(map[string]string),
	}
	m.tenants[tenantID] = shard
	return shard
}

func (m *MemoryRepository) Get(ctx context.Context, tenantID string, edgeID string) (*models.RelationshipEdge, error) {
	shard := m.shard(tenantID, false)
	if shard == nil {
		return nil, nil
	}
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	edge, ok := shard.byID[edgeID]
	if !ok {
		return nil, nil
	}
	return copyEdge(edge), nil
}

func (m *MemoryRepository) Find(ctx context.Context, tenantID string, from, to models.EntityRef, kind models.EdgeKind, scope models.EdgeScope) (*models.RelationshipEdge, error) {
	shard := m.shard(tenantID, false)
	if shard == nil {
		return nil, nil
	}
	probe := models.RelationshipEdge{TenantID: tenantID, From: from, To: to, Kind: kind, Scope: scope}
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	id, ok := shard.byKey[probe.CompositeKey()]
	if !ok {
		return nil, nil
	}
	return copyEdge(shard.byID[id]), nil
}

func (m *MemoryRepository) Upsert(ctx context.Context, edge models.RelationshipEdge) (*models.RelationshipEdge, error) {
	if err := edge.Validate(); err != nil {
		return nil, apperrors.NewValidationErrorf("invalid relationship edge: %s", err.Error())
	}
	if edge.ID == "" {
		edge.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = now
	}
	edge.UpdatedAt = now

	shard := m.shard(edge.TenantID, true)
	key := edge.CompositeKey()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	// Replace the prior edge holding this composite key, whatever its id.
	if priorID, ok := shard.byKey[key]; ok && priorID != edge.ID {
		delete(shard.byID, priorID)
	} else if prior, ok := shard.byID[edge.ID]; ok {
		edge.CreatedAt = prior.CreatedAt
	}
	shard.byID[edge.ID] = copyEdge(&edge)
	shard.byKey[key] = edge.ID

	return copyEdge(&edge), nil
}

func (m *MemoryRepository) Remove(ctx context.Context, tenantID string, edgeID string) error {
	shard := m.shard(tenantID, false)
	if shard == nil {
		return apperrors.NewNotFoundErrorf("relationship edge %s not found", edgeID)
	}
	shard.mu.Lock()
	defer shard.mu.Unlock()
	edge, ok := shard.byID[edgeID]
	if !ok {
		return apperrors.NewNotFoundErrorf("relationship edge %s not found", edgeID)
	}
	delete(shard.byID, edgeID)
	delete(shard.byKey, edge.CompositeKey())
	return nil
}

func (m *MemoryRepository) RemoveByKey(ctx context.Context, tenantID string, from, to models.EntityRef, kind models.EdgeKind, scope models.EdgeScope) error {
	shard := m.shard(tenantID, false)
	probe := models.RelationshipEdge{TenantID: tenantID, From: from, To: to, Kind: kind, Scope: scope}
	if shard == nil {
		return apperrors.NewNotFoundErrorf("relationship edge %s not found", probe.CompositeKey())
	}
	shard.mu.Lock()
	defer shard.mu.Unlock()
	id, ok := shard.byKey[probe.CompositeKey()]
	if !ok {
		return apperrors.NewNotFoundErrorf("relationship edge %s not found", probe.CompositeKey())
	}
	delete(shard.byID, id)
	delete(shard.byKey, probe.CompositeKey())
	return nil
}

func (m *MemoryRepository) Query(ctx context.Context, tenantID string, q models.EdgeQuery, limit int) ([]models.RelationshipEdge, error) {
	if limit < 1 {
		limit = 100
	}
	shard := m.shard(tenantID, false)
	if shard == nil {
		return nil, nil
	}
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	var out []models.RelationshipEdge
	for _, edge := range shard.byID {
		if q.From != nil && edge.From.Key() != q.From.Key() {
			continue
		}
		if q.To != nil && edge.To.Key() != q.To.Key() {
			continue
		}
		if q.Kind != nil && edge.Kind != *q.Kind {
			continue
		}
		if q.Scope != nil && edge.Scope != *q.Scope {
			continue
		}
		if q.IsActive != nil && edge.IsActive != *q.IsActive {
			continue
		}
		out = append(out, *copyEdge(edge))
	}
	sortEdges(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) GetRelatedEntities(ctx context.Context, tenantID string, from models.EntityRef, kinds ...models.EdgeKind) ([]models.EntityRef, error) {
	edges := m.listActive(tenantID, func(e *models.RelationshipEdge) string { return e.From.Key() }, from.Key(), kinds)
	refs := make([]models.EntityRef, 0, len(edges))
	for i := range edges {
		refs = append(refs, edges[i].To)
	}
	return models.DedupRefs(refs), nil
}

func (m *MemoryRepository) GetRelatingEntities(ctx context.Context, tenantID string, to models.EntityRef, kinds ...models.EdgeKind) ([]models.EntityRef, error) {
	edges := m.listActive(tenantID, func(e *models.RelationshipEdge) string { return e.To.Key() }, to.Key(), kinds)
	refs := make([]models.EntityRef, 0, len(edges))
	for i := range edges {
		refs = append(refs, edges[i].From)
	}
	return models.DedupRefs(refs), nil
}

func (m *MemoryRepository) ListActiveByFrom(ctx context.Context, tenantID string, from models.EntityRef, kinds ...models.EdgeKind) ([]models.RelationshipEdge, error) {
	return m.listActive(tenantID, func(e *models.RelationshipEdge) string { return e.From.Key() }, from.Key(), kinds), nil
}

func (m *MemoryRepository) listActive(tenantID string, keyOf func(*models.RelationshipEdge) string, key string, kinds []models.EdgeKind) []models.RelationshipEdge {
	shard := m.shard(tenantID, false)
	if shard == nil {
		return nil
	}
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	var out []models.RelationshipEdge
	for _, edge := range shard.byID {
		if !edge.IsActive || keyOf(edge) != key {
			continue
		}
		if len(kinds) > 0 && !containsKind(kinds, edge.Kind) {
			continue
		}
		out = append(out, *copyEdge(edge))
	}
	sortEdges(out)
	return out
}

func containsKind(kinds []models.EdgeKind, kind models.EdgeKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func sortEdges(edges []models.RelationshipEdge) {
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].CreatedAt.Equal(edges[j].CreatedAt) {
			return edges[i].CreatedAt.Before(edges[j].CreatedAt)
		}
		return edges[i].ID < edges[j].ID
	})
}

func copyEdge(edge *models.RelationshipEdge) *models.RelationshipEdge {
	out := *edge
	if edge.Filter != nil {
		filter := *edge.Filter
		out.Filter = &filter
	}
	return &out
}
