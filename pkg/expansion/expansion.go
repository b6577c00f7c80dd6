// Package expansion lets one logical recipient (a team, a group) fan out to
// several concrete inbox owners.
package expansion

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Expander is the outbound recipient-expansion contract.
type Expander interface {
	Expand(ctx context.Context, tenantID string, recipient models.EntityRef) ([]models.EntityRef, error)
}

// IdentityExpander returns each recipient unchanged. It is the default
// expansion policy.
type IdentityExpander struct{}

// NewIdentityExpander creates the identity expansion policy.
func NewIdentityExpander() *IdentityExpander {
	return &IdentityExpander{}
}

func (e *IdentityExpander) Expand(ctx context.Context, tenantID string, recipient models.EntityRef) ([]models.EntityRef, error) {
	return []models.EntityRef{recipient}, nil
}
