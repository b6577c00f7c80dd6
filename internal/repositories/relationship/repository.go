// Package relationship persists the tenant-partitioned relationship graph:
// directed, scoped Follow/Mute/Block/Subscribe edges with a composite
// uniqueness constraint on (tenant, from, to, kind, scope).
package relationship

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// RelationshipRepository defines the graph store contract. All lookups are
// tenant-partitioned and use the canonical entity key for from/to equality,
// so case or whitespace differences never cause missed matches.
type RelationshipRepository interface {
	Get(ctx context.Context, tenantID string, edgeID string) (*models.RelationshipEdge, error)
	Find(ctx context.Context, tenantID string, from, to models.EntityRef, kind models.EdgeKind, scope models.EdgeScope) (*models.RelationshipEdge, error)
	Upsert(ctx context.Context, edge models.RelationshipEdge) (*models.RelationshipEdge, error)
	Remove(ctx context.Context, tenantID string, edgeID string) error
	RemoveByKey(ctx context.Context, tenantID string, from, to models.EntityRef, kind models.EdgeKind, scope models.EdgeScope) error
	Query(ctx context.Context, tenantID string, q models.EdgeQuery, limit int) ([]models.RelationshipEdge, error)
	// GetRelatedEntities returns the active 'to' refs of edges of the given
	// kinds leaving 'from'.
	GetRelatedEntities(ctx context.Context, tenantID string, from models.EntityRef, kinds ...models.EdgeKind) ([]models.EntityRef, error)
	// GetRelatingEntities is the reverse lookup: the active 'from' refs of
	// edges of the given kinds pointing at 'to' (e.g. "who follows the actor").
	GetRelatingEntities(ctx context.Context, tenantID string, to models.EntityRef, kinds ...models.EdgeKind) ([]models.EntityRef, error)
	// ListActiveByFrom returns the active edges of the given kinds leaving
	// 'from', including scope and filter, for visibility evaluation.
	ListActiveByFrom(ctx context.Context, tenantID string, from models.EntityRef, kinds ...models.EdgeKind) ([]models.RelationshipEdge, error)
}

// Repository implements RelationshipRepository on Postgres.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new relationship edge repository.
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get gets an edge by id.
func (r *Repository) Get(ctx context.Context, tenantID string, edgeID string) (*models.RelationshipEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(edgeColumns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("id", edgeID),
	)

	query, args := sb.Build()

	var row edgeRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"id":        edgeID,
			"tenant_id": tenantID,
		}).Error("failed to get relationship edge")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get relationship edge: %s", err.Error())
	}

	return row.toModel(), nil
}

// Find performs the exact composite lookup.
func (r *Repository) Find(ctx context.Context, tenantID string, from, to models.EntityRef, kind models.EdgeKind, scope models.EdgeScope) (*models.RelationshipEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.Find")
	defer span.End()

	probe := models.RelationshipEdge{TenantID: tenantID, From: from, To: to, Kind: kind, Scope: scope}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(edgeColumns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("composite_key", probe.CompositeKey()),
	)

	query, args := sb.Build()

	var row edgeRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to find relationship edge")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to find relationship edge: %s", err.Error())
	}

	return row.toModel(), nil
}

// Upsert inserts the edge, replacing any edge sharing its composite key
// regardless of differing id. The uniqueness index and the row are updated in
// the same statement so readers never observe one without the other.
func (r *Repository) Upsert(ctx context.Context, edge models.RelationshipEdge) (*models.RelationshipEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.Upsert")
	defer span.End()

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

	row := toRow(&edge)

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols(edgeColumns...)
	sb.Values(
		row.ID, row.TenantID, row.From, row.FromKey, row.To, row.ToKey,
		row.Kind, row.Scope, row.CompositeKey, row.Filter, row.IsActive, row.CreatedAt, row.UpdatedAt,
	)

	query, args := sb.Build()
	query += ` ON CONFLICT (tenant_id, composite_key)
	DO UPDATE SET
		id = EXCLUDED.id,
		from_entity = EXCLUDED.from_entity,
		to_entity = EXCLUDED.to_entity,
		filter = EXCLUDED.filter,
		is_active = EXCLUDED.is_active,
		updated_at = EXCLUDED.updated_at
	RETURNING id, tenant_id, from_entity, from_key, to_entity, to_key, kind, scope, composite_key, filter, is_active, created_at, updated_at`

	var out edgeRow
	if err := r.db.GetContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":     edge.TenantID,
			"composite_key": row.CompositeKey,
		}).Error("failed to upsert relationship edge")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to upsert relationship edge: %s", err.Error())
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":        out.ID,
		"tenant_id": out.TenantID,
		"kind":      out.Kind,
		"scope":     out.Scope,
	}).Info("upserted relationship edge")

	return out.toModel(), nil
}

// Remove hard deletes an edge by id.
func (r *Repository) Remove(ctx context.Context, tenantID string, edgeID string) error {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.Remove")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("id", edgeID),
	)

	query, args := sb.Build()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"id":        edgeID,
			"tenant_id": tenantID,
		}).Error("failed to remove relationship edge")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to remove relationship edge: %s", err.Error())
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NewNotFoundErrorf("relationship edge %s not found", edgeID)
	}
	return nil
}

// RemoveByKey hard deletes the edge identified by its composite key.
func (r *Repository) RemoveByKey(ctx context.Context, tenantID string, from, to models.EntityRef, kind models.EdgeKind, scope models.EdgeScope) error {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.RemoveByKey")
	defer span.End()

	probe := models.RelationshipEdge{TenantID: tenantID, From: from, To: to, Kind: kind, Scope: scope}

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("composite_key", probe.CompositeKey()),
	)

	query, args := sb.Build()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to remove relationship edge by key")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to remove relationship edge: %s", err.Error())
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NewNotFoundErrorf("relationship edge %s not found", probe.CompositeKey())
	}
	return nil
}

// Query lists edges matching the filters, capped at limit.
func (r *Repository) Query(ctx context.Context, tenantID string, q models.EdgeQuery, limit int) ([]models.RelationshipEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.Query")
	defer span.End()

	if limit < 1 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(edgeColumns...)
	sb.From(tableName)
	sb.Where(sb.Equal("tenant_id", tenantID))

	if q.From != nil {
		sb.Where(sb.Equal("from_key", q.From.Key()))
	}
	if q.To != nil {
		sb.Where(sb.Equal("to_key", q.To.Key()))
	}
	if q.Kind != nil {
		sb.Where(sb.Equal("kind", string(*q.Kind)))
	}
	if q.Scope != nil {
		sb.Where(sb.Equal("scope", string(*q.Scope)))
	}
	if q.IsActive != nil {
		sb.Where(sb.Equal("is_active", *q.IsActive))
	}
	sb.OrderBy("created_at ASC", "id ASC")
	sb.Limit(limit)

	query, args := sb.Build()

	var rows []edgeRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
		}).Error("failed to query relationship edges")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to query relationship edges: %s", err.Error())
	}

	edges := make([]models.RelationshipEdge, 0, len(rows))
	for i := range rows {
		edges = append(edges, *rows[i].toModel())
	}
	return edges, nil
}

// GetRelatedEntities returns all active 'to' refs for edges of the given
// kinds from the source entity.
func (r *Repository) GetRelatedEntities(ctx context.Context, tenantID string, from models.EntityRef, kinds ...models.EdgeKind) ([]models.EntityRef, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.GetRelatedEntities")
	defer span.End()

	edges, err := r.listActive(ctx, tenantID, "from_key", from.Key(), kinds)
	if err != nil {
		return nil, err
	}
	refs := make([]models.EntityRef, 0, len(edges))
	for i := range edges {
		refs = append(refs, edges[i].To)
	}
	return models.DedupRefs(refs), nil
}

// GetRelatingEntities returns all active 'from' refs for edges of the given
// kinds pointing at the target entity.
func (r *Repository) GetRelatingEntities(ctx context.Context, tenantID string, to models.EntityRef, kinds ...models.EdgeKind) ([]models.EntityRef, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.GetRelatingEntities")
	defer span.End()

	edges, err := r.listActive(ctx, tenantID, "to_key", to.Key(), kinds)
	if err != nil {
		return nil, err
	}
	refs := make([]models.EntityRef, 0, len(edges))
	for i := range edges {
		refs = append(refs, edges[i].From)
	}
	return models.DedupRefs(refs), nil
}

// ListActiveByFrom returns active edges of the given kinds leaving 'from'.
func (r *Repository) ListActiveByFrom(ctx context.Context, tenantID string, from models.EntityRef, kinds ...models.EdgeKind) ([]models.RelationshipEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.ListActiveByFrom")
	defer span.End()

	return r.listActive(ctx, tenantID, "from_key", from.Key(), kinds)
}

func (r *Repository) listActive(ctx context.Context, tenantID string, keyColumn string, key string, kinds []models.EdgeKind) ([]models.RelationshipEdge, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(edgeColumns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal(keyColumn, key),
		sb.Equal("is_active", true),
	)
	if len(kinds) > 0 {
		values := make([]any, len(kinds))
		for i, kind := range kinds {
			values[i] = string(kind)
		}
		sb.Where(sb.In("kind", values...))
	}
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()

	var rows []edgeRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			keyColumn:   key,
		}).Error("failed to list relationship edges")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list relationship edges: %s", err.Error())
	}

	edges := make([]models.RelationshipEdge, 0, len(rows))
	for i := range rows {
		edges = append(edges, *rows[i].toModel())
	}
	return edges, nil
}
