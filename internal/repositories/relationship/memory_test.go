package relationship

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

func ref(id string) models.EntityRef {
	return models.EntityRef{Kind: "user", Type: "person", ID: id}
}

func followEdge(tenantID, from, to string) models.RelationshipEdge {
	return models.RelationshipEdge{
		TenantID: tenantID,
		From:     ref(from),
		To:       ref(to),
		Kind:     models.EdgeKindFollow,
		Scope:    models.EdgeScopeAny,
		IsActive: true,
	}
}

func TestMemoryUpsert_CompositeKeyReplacesPriorEdge(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	first, err := repo.Upsert(ctx, followEdge("t1", "alice", "bob"))
	require.NoError(t, err)

	// Same composite key, different id: the new edge wins.
	second := followEdge("t1", "alice", "bob")
	second.ID = "explicit-id"
	stored, err := repo.Upsert(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "explicit-id", stored.ID)

	edges, err := repo.Query(ctx, "t1", models.EdgeQuery{}, 10)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "explicit-id", edges[0].ID)

	gone, err := repo.Get(ctx, "t1", first.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestMemoryUpsert_CaseInsensitiveUniqueness(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, followEdge("t1", "alice", "bob"))
	require.NoError(t, err)

	shouted := models.RelationshipEdge{
		TenantID: "t1",
		From:     models.EntityRef{Kind: "USER", Type: "Person", ID: "Alice "},
		To:       models.EntityRef{Kind: "user", Type: "person", ID: "BOB"},
		Kind:     models.EdgeKindFollow,
		Scope:    models.EdgeScopeAny,
		IsActive: true,
	}
	_, err = repo.Upsert(ctx, shouted)
	require.NoError(t, err)

	edges, err := repo.Query(ctx, "t1", models.EdgeQuery{}, 10)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestMemoryUpsert_DifferentScopesCoexist(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	edge := followEdge("t1", "alice", "bob")
	edge.Kind = models.EdgeKindMute
	edge.Scope = models.EdgeScopeActorOnly
	_, err := repo.Upsert(ctx, edge)
	require.NoError(t, err)

	edge = followEdge("t1", "alice", "bob")
	edge.Kind = models.EdgeKindMute
	edge.Scope = models.EdgeScopeAny
	_, err = repo.Upsert(ctx, edge)
	require.NoError(t, err)

	edges, err := repo.Query(ctx, "t1", models.EdgeQuery{}, 10)
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestMemory_TenantIsolation(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, followEdge("t1", "alice", "bob"))
	require.NoError(t, err)

	edges, err := repo.Query(ctx, "t2", models.EdgeQuery{}, 10)
	require.NoError(t, err)
	assert.Empty(t, edges)

	refs, err := repo.GetRelatingEntities(ctx, "t2", ref("bob"), models.EdgeKindFollow)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestMemoryFind_ExactCompositeLookup(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, followEdge("t1", "alice", "bob"))
	require.NoError(t, err)

	found, err := repo.Find(ctx, "t1", ref("ALICE"), ref("bob"), models.EdgeKindFollow, models.EdgeScopeAny)
	require.NoError(t, err)
	require.NotNil(t, found)

	missing, err := repo.Find(ctx, "t1", ref("alice"), ref("bob"), models.EdgeKindMute, models.EdgeScopeAny)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryRemove(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	stored, err := repo.Upsert(ctx, followEdge("t1", "alice", "bob"))
	require.NoError(t, err)

	require.NoError(t, repo.Remove(ctx, "t1", stored.ID))

	err = repo.Remove(ctx, "t1", stored.ID)
	assert.True(t, apperrors.IsNotFound(err))

	// Composite key is freed for reuse.
	_, err = repo.Upsert(ctx, followEdge("t1", "alice", "bob"))
	require.NoError(t, err)
}

func TestMemoryRemoveByKey(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, followEdge("t1", "alice", "bob"))
	require.NoError(t, err)

	require.NoError(t, repo.RemoveByKey(ctx, "t1", ref("alice"), ref("bob"), models.EdgeKindFollow, models.EdgeScopeAny))

	err = repo.RemoveByKey(ctx, "t1", ref("alice"), ref("bob"), models.EdgeKindFollow, models.EdgeScopeAny)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMemoryGetRelatingEntities_ReverseLookup(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, followEdge("t1", "bob", "alice"))
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, followEdge("t1", "carol", "alice"))
	require.NoError(t, err)

	inactive := followEdge("t1", "dave", "alice")
	inactive.IsActive = false
	_, err = repo.Upsert(ctx, inactive)
	require.NoError(t, err)

	subscribe := followEdge("t1", "erin", "alice")
	subscribe.Kind = models.EdgeKindSubscribe
	_, err = repo.Upsert(ctx, subscribe)
	require.NoError(t, err)

	followers, err := repo.GetRelatingEntities(ctx, "t1", ref("alice"), models.EdgeKindFollow, models.EdgeKindSubscribe)
	require.NoError(t, err)
	require.Len(t, followers, 3)

	ids := []string{followers[0].ID, followers[1].ID, followers[2].ID}
	assert.NotContains(t, ids, "dave")
}

func TestMemoryGetRelatedEntities_Forward(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, followEdge("t1", "alice", "bob"))
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, followEdge("t1", "alice", "carol"))
	require.NoError(t, err)

	refs, err := repo.GetRelatedEntities(ctx, "t1", ref("alice"), models.EdgeKindFollow)
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func TestMemoryQuery_Filters(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, followEdge("t1", "alice", "bob"))
	require.NoError(t, err)

	mute := followEdge("t1", "alice", "bob")
	mute.Kind = models.EdgeKindMute
	_, err = repo.Upsert(ctx, mute)
	require.NoError(t, err)

	kind := models.EdgeKindMute
	edges, err := repo.Query(ctx, "t1", models.EdgeQuery{Kind: &kind}, 10)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, models.EdgeKindMute, edges[0].Kind)

	from := ref("nobody")
	edges, err = repo.Query(ctx, "t1", models.EdgeQuery{From: &from}, 10)
	require.NoError(t, err)
	assert.Empty(t, edges)
}
