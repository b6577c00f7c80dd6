package followrequest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

func pendingRequest(tenantID, requester, target, idempotencyKey string) models.FollowRequest {
	return models.FollowRequest{
		TenantID:       tenantID,
		Requester:      models.EntityRef{Kind: "user", Type: "person", ID: requester},
		Target:         models.EntityRef{Kind: "user", Type: "person", ID: target},
		RequestedKind:  models.EdgeKindFollow,
		Scope:          models.EdgeScopeAny,
		Status:         models.RequestStatusPending,
		IdempotencyKey: idempotencyKey,
	}
}

func TestMemoryCreate_IdempotencyKeyReturnsOriginal(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	first, err := repo.Create(ctx, pendingRequest("t1", "alice", "bob", "ik1"))
	require.NoError(t, err)

	// Same key, different target: the original wins untouched.
	second, err := repo.Create(ctx, pendingRequest("t1", "alice", "carol", "ik1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "bob", second.Target.ID)
}

func TestMemoryCreate_EmptyKeyNeverDedupes(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	first, err := repo.Create(ctx, pendingRequest("t1", "alice", "bob", ""))
	require.NoError(t, err)
	second, err := repo.Create(ctx, pendingRequest("t1", "alice", "bob", ""))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestMemoryDecide_PendingToApproved(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, pendingRequest("t1", "alice", "bob", ""))
	require.NoError(t, err)

	decided, err := repo.Decide(ctx, "t1", created.ID, Decision{
		Status:    models.RequestStatusApproved,
		DecidedBy: "bob",
		Reason:    "ok",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, decided.Status)
	assert.Equal(t, "bob", decided.DecidedBy)
	require.NotNil(t, decided.DecidedAt)
}

func TestMemoryDecide_TerminalIsImmutable(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, pendingRequest("t1", "alice", "bob", ""))
	require.NoError(t, err)

	_, err = repo.Decide(ctx, "t1", created.ID, Decision{Status: models.RequestStatusDenied, DecidedBy: "bob"})
	require.NoError(t, err)

	_, err = repo.Decide(ctx, "t1", created.ID, Decision{Status: models.RequestStatusApproved, DecidedBy: "bob"})
	assert.True(t, apperrors.IsConflict(err))
}

func TestMemoryDecide_RejectsNonTerminalStatus(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.Decide(context.Background(), "t1", "any", Decision{Status: models.RequestStatusPending})
	assert.True(t, apperrors.IsValidation(err))
}

func TestMemoryDecide_NotFound(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.Decide(context.Background(), "t1", "missing", Decision{Status: models.RequestStatusApproved})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMemoryListPending(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Create(ctx, pendingRequest("t1", "alice", "bob", ""))
	require.NoError(t, err)
	decided, err := repo.Create(ctx, pendingRequest("t1", "carol", "bob", ""))
	require.NoError(t, err)
	_, err = repo.Decide(ctx, "t1", decided.ID, Decision{Status: models.RequestStatusDenied, DecidedBy: "bob"})
	require.NoError(t, err)

	pending, err := repo.ListPending(ctx, "t1", models.EntityRef{Kind: "user", Type: "person", ID: "BOB"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "alice", pending[0].Requester.ID)
}
