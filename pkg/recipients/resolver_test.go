package recipients

import (
	"context"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/relationship"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/expansion"
	"github.com/Ramsey-B/fern/pkg/governance"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/visibility"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func ref(id string) models.EntityRef {
	return models.EntityRef{Kind: "user", Type: "person", ID: id}
}

// denyPolicy marks a single entity untargetable.
type denyPolicy struct {
	governance.OpenPolicy
	denied models.EntityRef
}

func (p *denyPolicy) IsTargetable(ctx context.Context, tenantID string, entity models.EntityRef) (bool, error) {
	return !entity.Equals(p.denied), nil
}

// teamExpander expands one logical recipient into its members.
type teamExpander struct {
	team    models.EntityRef
	members []models.EntityRef
}

func (e *teamExpander) Expand(ctx context.Context, tenantID string, recipient models.EntityRef) ([]models.EntityRef, error) {
	if recipient.Equals(e.team) {
		return e.members, nil
	}
	return []models.EntityRef{recipient}, nil
}

func newResolver(repo *relationship.MemoryRepository, policy governance.Policy, expander expansion.Expander) *Resolver {
	logger := testLogger()
	if policy == nil {
		policy = governance.NewOpenPolicy()
	}
	if expander == nil {
		expander = expansion.NewIdentityExpander()
	}
	return NewResolver(repo, policy, expander, visibility.NewEngine(repo, logger), logger)
}

func follow(t *testing.T, repo *relationship.MemoryRepository, from, to models.EntityRef) {
	t.Helper()
	_, err := repo.Upsert(context.Background(), models.RelationshipEdge{
		TenantID: "t1",
		From:     from,
		To:       to,
		Kind:     models.EdgeKindFollow,
		Scope:    models.EdgeScopeAny,
		IsActive: true,
	})
	require.NoError(t, err)
}

func activity(actor string, targets ...models.EntityRef) *models.Activity {
	return &models.Activity{
		ID:       "a1",
		TenantID: "t1",
		TypeKey:  "post.created",
		Actor:    ref(actor),
		Targets:  targets,
	}
}

func TestResolve_FollowersOfActor(t *testing.T) {
	repo := relationship.NewMemoryRepository()
	follow(t, repo, ref("bob"), ref("alice"))
	follow(t, repo, ref("carol"), ref("alice"))

	resolver := newResolver(repo, nil, nil)
	recipients, err := resolver.Resolve(context.Background(), "t1", activity("alice"))
	require.NoError(t, err)
	assert.Len(t, recipients, 2)
}

func TestResolve_UnionsTargetSubscribers(t *testing.T) {
	repo := relationship.NewMemoryRepository()
	post := models.EntityRef{Kind: "content", Type: "post", ID: "p1"}
	follow(t, repo, ref("bob"), ref("alice"))
	// carol subscribes to the post, and also follows alice: dedup must
	// collapse her to one entry.
	follow(t, repo, ref("carol"), post)
	follow(t, repo, ref("carol"), ref("alice"))

	resolver := newResolver(repo, nil, nil)
	recipients, err := resolver.Resolve(context.Background(), "t1", activity("alice", post))
	require.NoError(t, err)
	assert.Len(t, recipients, 2)
}

func TestResolve_GovernanceGateFailsClosed(t *testing.T) {
	repo := relationship.NewMemoryRepository()
	follow(t, repo, ref("bob"), ref("alice"))

	resolver := newResolver(repo, &denyPolicy{denied: ref("alice")}, nil)
	_, err := resolver.Resolve(context.Background(), "t1", activity("alice"))
	require.Error(t, err)
	assert.True(t, apperrors.IsPolicyViolation(err))
}

func TestResolve_GovernanceGateChecksTargets(t *testing.T) {
	repo := relationship.NewMemoryRepository()
	post := models.EntityRef{Kind: "content", Type: "post", ID: "p1"}

	resolver := newResolver(repo, &denyPolicy{denied: post}, nil)
	_, err := resolver.Resolve(context.Background(), "t1", activity("alice", post))
	assert.True(t, apperrors.IsPolicyViolation(err))
}

func TestResolve_MutedRecipientSilentlyExcluded(t *testing.T) {
	repo := relationship.NewMemoryRepository()
	follow(t, repo, ref("bob"), ref("alice"))
	follow(t, repo, ref("carol"), ref("alice"))

	// bob muted alice: still follows, but must not receive.
	_, err := repo.Upsert(context.Background(), models.RelationshipEdge{
		TenantID: "t1",
		From:     ref("bob"),
		To:       ref("alice"),
		Kind:     models.EdgeKindMute,
		Scope:    models.EdgeScopeActorOnly,
		IsActive: true,
	})
	require.NoError(t, err)

	resolver := newResolver(repo, nil, nil)
	recipients, err := resolver.Resolve(context.Background(), "t1", activity("alice"))
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	assert.Equal(t, "carol", recipients[0].ID)
}

func TestResolve_ExpansionFansOutTeams(t *testing.T) {
	repo := relationship.NewMemoryRepository()
	team := models.EntityRef{Kind: "group", Type: "team", ID: "platform"}
	follow(t, repo, team, ref("alice"))

	expander := &teamExpander{
		team:    team,
		members: []models.EntityRef{ref("m1"), ref("m2"), ref("m3")},
	}
	resolver := newResolver(repo, nil, expander)
	recipients, err := resolver.Resolve(context.Background(), "t1", activity("alice"))
	require.NoError(t, err)
	assert.Len(t, recipients, 3)
}

func TestResolve_DedupAcrossExpansion(t *testing.T) {
	repo := relationship.NewMemoryRepository()
	team := models.EntityRef{Kind: "group", Type: "team", ID: "platform"}
	follow(t, repo, team, ref("alice"))
	follow(t, repo, ref("m1"), ref("alice"))

	expander := &teamExpander{
		team:    team,
		members: []models.EntityRef{ref("m1"), ref("m2")},
	}
	resolver := newResolver(repo, nil, expander)
	recipients, err := resolver.Resolve(context.Background(), "t1", activity("alice"))
	require.NoError(t, err)
	assert.Len(t, recipients, 2)
}

func TestResolve_NoFollowersIsEmptyNotError(t *testing.T) {
	repo := relationship.NewMemoryRepository()
	resolver := newResolver(repo, nil, nil)
	recipients, err := resolver.Resolve(context.Background(), "t1", activity("alice"))
	require.NoError(t, err)
	assert.Empty(t, recipients)
}

func TestResolve_ManyFollowers(t *testing.T) {
	repo := relationship.NewMemoryRepository()
	for i := 0; i < 100; i++ {
		follow(t, repo, ref(fmt.Sprintf("user%d", i)), ref("alice"))
	}
	resolver := newResolver(repo, nil, nil)
	recipients, err := resolver.Resolve(context.Background(), "t1", activity("alice"))
	require.NoError(t, err)
	assert.Len(t, recipients, 100)
}
