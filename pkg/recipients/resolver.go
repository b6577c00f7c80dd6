// Package recipients computes who should receive an inbox item for a
// published activity: governance gate, follower/subscriber candidates,
// expansion, then per-recipient visibility filtering.
package recipients

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/relationship"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/expansion"
	"github.com/Ramsey-B/fern/pkg/governance"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/visibility"
)

// VisibilityEngine is the visibility check the resolver filters through.
type VisibilityEngine interface {
	CanSee(ctx context.Context, tenantID string, viewer models.EntityRef, activity *models.Activity) (*visibility.Decision, error)
}

// Resolver computes the recipient set for an activity.
type Resolver struct {
	relationships relationship.RelationshipRepository
	policy        governance.Policy
	expander      expansion.Expander
	visibility    VisibilityEngine
	logger        ectologger.Logger
}

// NewResolver creates a recipient resolver.
func NewResolver(
	relationships relationship.RelationshipRepository,
	policy governance.Policy,
	expander expansion.Expander,
	visibilityEngine VisibilityEngine,
	logger ectologger.Logger,
) *Resolver {
	return &Resolver{
		relationships: relationships,
		policy:        policy,
		expander:      expander,
		visibility:    visibilityEngine,
		logger:        logger,
	}
}

// Resolve returns the deduplicated recipients that should receive an inbox
// item for the activity. The governance gate is fail-closed: any untargetable
// participant (or a policy error) aborts the whole resolution, so there is
// never a partial fan-out for a forbidden activity.
func (r *Resolver) Resolve(ctx context.Context, tenantID string, activity *models.Activity) ([]models.EntityRef, error) {
	ctx, span := tracing.StartSpan(ctx, "recipients.Resolver.Resolve")
	defer span.End()

	if err := r.gate(ctx, tenantID, activity); err != nil {
		return nil, err
	}

	candidates, err := r.candidates(ctx, tenantID, activity)
	if err != nil {
		return nil, err
	}

	var recipients []models.EntityRef
	for _, candidate := range candidates {
		expanded, err := r.expander.Expand(ctx, tenantID, candidate)
		if err != nil {
			return nil, err
		}
		for _, recipient := range expanded {
			decision, err := r.visibility.CanSee(ctx, tenantID, recipient, activity)
			if err != nil {
				return nil, err
			}
			if !decision.Allowed {
				// Silent exclusion, not an error.
				r.logger.WithContext(ctx).WithFields(map[string]any{
					"tenant_id":   tenantID,
					"activity_id": activity.ID,
					"recipient":   recipient.Key(),
					"reason":      decision.Reason,
				}).Debug("recipient excluded by visibility")
				continue
			}
			recipients = append(recipients, recipient)
		}
	}

	return models.DedupRefs(recipients), nil
}

// gate checks every participant of the activity against the governance
// policy before any graph work happens.
func (r *Resolver) gate(ctx context.Context, tenantID string, activity *models.Activity) error {
	participants := make([]models.EntityRef, 0, len(activity.Targets)+2)
	participants = append(participants, activity.Actor)
	participants = append(participants, activity.Targets...)
	if activity.Owner != nil {
		participants = append(participants, *activity.Owner)
	}

	for _, participant := range participants {
		ok, err := r.policy.IsTargetable(ctx, tenantID, participant)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewPolicyViolation(participant, "entity is not targetable")
		}
	}
	return nil
}

// candidates unions the followers of the actor with the subscribers and
// followers of each target.
func (r *Resolver) candidates(ctx context.Context, tenantID string, activity *models.Activity) ([]models.EntityRef, error) {
	candidates, err := r.relationships.GetRelatingEntities(ctx, tenantID, activity.Actor, models.EdgeKindFollow, models.EdgeKindSubscribe)
	if err != nil {
		return nil, err
	}
	for _, target := range activity.Targets {
		related, err := r.relationships.GetRelatingEntities(ctx, tenantID, target, models.EdgeKindFollow, models.EdgeKindSubscribe)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, related...)
	}
	return models.DedupRefs(candidates), nil
}
