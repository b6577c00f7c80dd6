// Package governance defines the external policy boundary: whether an entity
// may be targeted at all, whether a follow/subscribe request needs approval,
// and who is allowed to approve it.
package governance

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Policy is the outbound governance contract. Callers treat errors as
// fail-closed: an error from any check aborts the whole operation rather
// than fanning out partially.
type Policy interface {
	// IsTargetable reports whether the entity may appear as an actor, target
	// or owner of a fanned-out activity, or as the target of a follow request.
	IsTargetable(ctx context.Context, tenantID string, entity models.EntityRef) (bool, error)
	// RequiresApproval reports whether a request for the given edge kind must
	// be approved before the edge is created.
	RequiresApproval(ctx context.Context, tenantID string, requester, target models.EntityRef, kind models.EdgeKind) (bool, error)
	// GetApprovers returns the entities allowed to decide a request aimed at
	// the target. The target itself is a common answer.
	GetApprovers(ctx context.Context, tenantID string, target models.EntityRef) ([]models.EntityRef, error)
}

// OpenPolicy allows everything and requires no approval. It is the default
// when a deployment has no governance service wired in.
type OpenPolicy struct{}

// NewOpenPolicy creates the allow-all policy.
func NewOpenPolicy() *OpenPolicy {
	return &OpenPolicy{}
}

func (p *OpenPolicy) IsTargetable(ctx context.Context, tenantID string, entity models.EntityRef) (bool, error) {
	return true, nil
}

func (p *OpenPolicy) RequiresApproval(ctx context.Context, tenantID string, requester, target models.EntityRef, kind models.EdgeKind) (bool, error) {
	return false, nil
}

func (p *OpenPolicy) GetApprovers(ctx context.Context, tenantID string, target models.EntityRef) ([]models.EntityRef, error) {
	return []models.EntityRef{target}, nil
}
