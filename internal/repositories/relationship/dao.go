package relationship

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

const tableName = "relationship_edges"

var edgeColumns = []string{
	"id", "tenant_id", "from_entity", "from_key", "to_entity", "to_key",
	"kind", "scope", "composite_key", "filter", "is_active", "created_at", "updated_at",
}

type edgeRow struct {
	ID           string                             `db:"id"`
	TenantID     string                             `db:"tenant_id"`
	From         database.JSONB[models.EntityRef]   `db:"from_entity"`
	FromKey      string                             `db:"from_key"`
	To           database.JSONB[models.EntityRef]   `db:"to_entity"`
	ToKey        string                             `db:"to_key"`
	Kind         string                             `db:"kind"`
	Scope        string                             `db:"scope"`
	CompositeKey string                             `db:"composite_key"`
	Filter       database.JSONB[*models.EdgeFilter] `db:"filter"`
	IsActive     bool                               `db:"is_active"`
	CreatedAt    time.Time                          `db:"created_at"`
	UpdatedAt    time.Time                          `db:"updated_at"`
}

func (r *edgeRow) toModel() *models.RelationshipEdge {
	return &models.RelationshipEdge{
		ID:        r.ID,
		TenantID:  r.TenantID,
		From:      r.From.GetValue(),
		To:        r.To.GetValue(),
		Kind:      models.EdgeKind(r.Kind),
		Scope:     models.EdgeScope(r.Scope),
		Filter:    r.Filter.GetValue(),
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func toRow(e *models.RelationshipEdge) *edgeRow {
	return &edgeRow{
		ID:           e.ID,
		TenantID:     e.TenantID,
		From:         database.JSONB[models.EntityRef]{Data: e.From},
		FromKey:      e.From.Key(),
		To:           database.JSONB[models.EntityRef]{Data: e.To},
		ToKey:        e.To.Key(),
		Kind:         string(e.Kind),
		Scope:        string(e.Scope),
		CompositeKey: e.CompositeKey(),
		Filter:       database.JSONB[*models.EdgeFilter]{Data: e.Filter},
		IsActive:     e.IsActive,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}
