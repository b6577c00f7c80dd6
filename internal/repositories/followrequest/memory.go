package followrequest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

// MemoryRepository is a concurrency-safe in-memory FollowRequestRepository.
type MemoryRepository struct {
	mu      sync.RWMutex
	tenants map[string]*requestShard
}

type requestShard struct {
	mu    sync.RWMutex
	byID  map[string]*models.FollowRequest
	byKey map[string]string // idempotency key -> request id
}

// NewMemoryRepository creates an empty in-memory request store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tenants: make(map[string]*requestShard),
	}
}

func (m *MemoryRepository) shard(tenantID string, create bool) *requestShard {
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
	shard = &requestShard{
		byID:  make(map[string]*models.FollowRequest),
		byKey: make(map[string]string),
	}
	m.tenants[tenantID] = shard
	return shard
}

func (m *MemoryRepository) Get(ctx context.Context, tenantID string, requestID string) (*models.FollowRequest, error) {
	shard := m.shard(tenantID, false)
	if shard == nil {
		return nil, nil
	}
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	request, ok := shard.byID[requestID]
	if !ok {
		return nil, nil
	}
	return copyRequest(request), nil
}

func (m *MemoryRepository) GetByIdempotencyKey(ctx context.Context, tenantID string, idempotencyKey string) (*models.FollowRequest, error) {
	shard := m.shard(tenantID, false)
	if shard == nil {
		return nil, nil
	}
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	id, ok := shard.byKey[idempotencyKey]
	if !ok {
		return nil, nil
	}
	return copyRequest(shard.byID[id]), nil
}

func (m *MemoryRepository) Create(ctx context.Context, request models.FollowRequest) (*models.FollowRequest, error) {
	if request.ID == "" {
		request.ID = uuid.New().String()
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}

	shard := m.shard(request.TenantID, true)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if request.IdempotencyKey != "" {
		if existingID, ok := shard.byKey[request.IdempotencyKey]; ok {
			return copyRequest(shard.byID[existingID]), nil
		}
	}

	shard.byID[request.ID] = copyRequest(&request)
	if request.IdempotencyKey != "" {
		shard.byKey[request.IdempotencyKey] = request.ID
	}
	return copyRequest(&request), nil
}

func (m *MemoryRepository) Decide(ctx context.Context, tenantID string, requestID string, decision Decision) (*models.FollowRequest, error) {
	if !decision.Status.IsTerminal() {
		return nil, apperrors.NewValidationErrorf("decision status must be terminal, got %q", decision.Status)
	}
	shard := m.shard(tenantID, false)
	if shard == nil {
		return nil, apperrors.NewNotFoundErrorf("follow request %s not found", requestID)
	}
	shard.mu.Lock()
	defer shard.mu.Unlock()
	request, ok := shard.byID[requestID]
	if !ok {
		return nil, apperrors.NewNotFoundErrorf("follow request %s not found", requestID)
	}
	if request.Status != models.RequestStatusPending {
		return nil, apperrors.NewConflictErrorf("follow request %s is already %s", requestID, request.Status)
	}
	now := time.Now().UTC()
	request.Status = decision.Status
	request.DecidedBy = decision.DecidedBy
	request.DecidedAt = &now
	request.DecisionReason = decision.Reason
	return copyRequest(request), nil
}

func (m *MemoryRepository) ListPending(ctx context.Context, tenantID string, target models.EntityRef) ([]models.FollowRequest, error) {
	shard := m.shard(tenantID, false)
	if shard == nil {
		return nil, nil
	}
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	var out []models.FollowRequest
	for _, request := range shard.byID {
		if request.Status != models.RequestStatusPending {
			continue
		}
		if request.Target.Key() != target.Key() {
			continue
		}
		out = append(out, *copyRequest(request))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func copyRequest(request *models.FollowRequest) *models.FollowRequest {
	out := *request
	if request.DecidedAt != nil {
		decided := *request.DecidedAt
		out.DecidedAt = &decided
	}
	return &out
}
