// Package visibility decides whether a viewer can see an activity, based on
// the viewer's active Mute/Block edges. The engine is read-only.
package visibility

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/relationship"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Decision is the outcome of a CanSee evaluation. Reason is the kind of the
// first matching edge ("Mute" or "Block") when Allowed is false.
type Decision struct {
	Allowed       bool   `json:"allowed"`
	Reason        string `json:"reason,omitempty"`
	MatchedEdgeID string `json:"matched_edge_id,omitempty"`
}

// Engine evaluates viewer visibility against the relationship graph.
type Engine struct {
	relationships relationship.RelationshipRepository
	logger        ectologger.Logger
}

// NewEngine creates a visibility engine.
func NewEngine(relationships relationship.RelationshipRepository, logger ectologger.Logger) *Engine {
	return &Engine{
		relationships: relationships,
		logger:        logger,
	}
}

// CanSee evaluates all of the viewer's active Mute/Block edges against the
// activity. The first matching edge short-circuits with allowed=false and
// the edge kind as reason; no matching edge means the viewer can see.
func (e *Engine) CanSee(ctx context.Context, tenantID string, viewer models.EntityRef, activity *models.Activity) (*Decision, error) {
	ctx, span := tracing.StartSpan(ctx, "visibility.Engine.CanSee")
	defer span.End()

	edges, err := e.relationships.ListActiveByFrom(ctx, tenantID, viewer, models.EdgeKindMute, models.EdgeKindBlock)
	if err != nil {
		return nil, err
	}

	for i := range edges {
		edge := &edges[i]
		if !edgeMatchesScope(edge, activity) {
			continue
		}
		if !edgeFilterMatches(edge.Filter, activity) {
			continue
		}
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"tenant_id": tenantID,
			"viewer":    viewer.Key(),
			"edge_id":   edge.ID,
			"kind":      edge.Kind,
		}).Debug("viewer blocked from activity")
		return &Decision{
			Allowed:       false,
			Reason:        string(edge.Kind),
			MatchedEdgeID: edge.ID,
		}, nil
	}

	return &Decision{Allowed: true}, nil
}

func edgeMatchesScope(edge *models.RelationshipEdge, activity *models.Activity) bool {
	switch edge.Scope {
	case models.EdgeScopeActorOnly:
		return matchesActor(edge, activity)
	case models.EdgeScopeTargetOnly:
		return matchesAnyTarget(edge, activity)
	case models.EdgeScopeOwnerOnly:
		return matchesOwner(edge, activity)
	case models.EdgeScopeAny:
		return matchesActor(edge, activity) || matchesAnyTarget(edge, activity) || matchesOwner(edge, activity)
	}
	return false
}

func matchesActor(edge *models.RelationshipEdge, activity *models.Activity) bool {
	return edge.To.Key() == activity.Actor.Key()
}

func matchesAnyTarget(edge *models.RelationshipEdge, activity *models.Activity) bool {
	toKey := edge.To.Key()
	for i := range activity.Targets {
		if activity.Targets[i].Key() == toKey {
			return true
		}
	}
	return false
}

func matchesOwner(edge *models.RelationshipEdge, activity *models.Activity) bool {
	return activity.Owner != nil && edge.To.Key() == activity.Owner.Key()
}

// edgeFilterMatches applies an edge's optional narrowing filter: every
// non-empty dimension must match the activity. A nil filter matches all.
func edgeFilterMatches(filter *models.EdgeFilter, activity *models.Activity) bool {
	if filter.IsEmpty() {
		return true
	}
	if !models.ContainsFold(filter.TypeKeys, activity.TypeKey) {
		return false
	}
	if !models.ContainsFold(filter.Visibilities, activity.Visibility) {
		return false
	}
	if len(filter.Tags) > 0 {
		matched := false
		for _, tag := range activity.Tags {
			if models.ContainsFold(filter.Tags, tag) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
