package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Projector mirrors relationship edge writes into the graph database.
// Projection is best-effort: the relational store is the source of truth and
// a projection failure never fails the edge write.
type Projector interface {
	ProjectEdge(ctx context.Context, edge *models.RelationshipEdge)
	RemoveEdge(ctx context.Context, tenantID string, edgeID string, kind models.EdgeKind)
}

// Mirror projects edges into Neo4j.
type Mirror struct {
	client *Client
	logger ectologger.Logger
}

// NewMirror creates a graph projector.
func NewMirror(client *Client, logger ectologger.Logger) *Mirror {
	return &Mirror{
		client: client,
		logger: logger,
	}
}

// ProjectEdge MERGEs both entity nodes and the edge relationship.
func (m *Mirror) ProjectEdge(ctx context.Context, edge *models.RelationshipEdge) {
	ctx, span := tracing.StartSpan(ctx, "graph.Mirror.ProjectEdge")
	defer span.End()

	cypher := fmt.Sprintf(`
		MERGE (from:Entity {key: $from_key, tenant_id: $tenant_id})
		SET from.kind = $from_kind, from.type = $from_type, from.entity_id = $from_id
		MERGE (to:Entity {key: $to_key, tenant_id: $tenant_id})
		SET to.kind = $to_kind, to.type = $to_type, to.entity_id = $to_id
		MERGE (from)-[r:%s {tenant_id: $tenant_id, scope: $scope}]->(to)
		SET r.id = $edge_id, r.is_active = $is_active
	`, relType(edge.Kind))

	_, err := m.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"tenant_id": edge.TenantID,
			"from_key":  edge.From.Key(),
			"from_kind": edge.From.Kind,
			"from_type": edge.From.Type,
			"from_id":   edge.From.ID,
			"to_key":    edge.To.Key(),
			"to_kind":   edge.To.Kind,
			"to_type":   edge.To.Type,
			"to_id":     edge.To.ID,
			"scope":     string(edge.Scope),
			"edge_id":   edge.ID,
			"is_active": edge.IsActive,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"edge_id":   edge.ID,
			"tenant_id": edge.TenantID,
		}).Warn("failed to project edge to graph")
	}
}

// RemoveEdge deletes the mirrored relationship.
func (m *Mirror) RemoveEdge(ctx context.Context, tenantID string, edgeID string, kind models.EdgeKind) {
	ctx, span := tracing.StartSpan(ctx, "graph.Mirror.RemoveEdge")
	defer span.End()

	cypher := fmt.Sprintf(`
		MATCH ()-[r:%s {id: $id, tenant_id: $tenant_id}]->()
		DELETE r
	`, relType(kind))

	_, err := m.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"id":        edgeID,
			"tenant_id": tenantID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"edge_id":   edgeID,
			"tenant_id": tenantID,
		}).Warn("failed to remove edge from graph")
	}
}

// NoopProjector does nothing. Used when no graph database is configured.
type NoopProjector struct{}

// NewNoopProjector creates a projector that does nothing.
func NewNoopProjector() *NoopProjector {
	return &NoopProjector{}
}

func (p *NoopProjector) ProjectEdge(ctx context.Context, edge *models.RelationshipEdge) {}

func (p *NoopProjector) RemoveEdge(ctx context.Context, tenantID string, edgeID string, kind models.EdgeKind) {
}

// relType maps an edge kind to an uppercase relationship type, stripping
// anything that is not a letter so labels are always safe to interpolate.
func relType(kind models.EdgeKind) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(string(kind)) {
		if r >= 'A' && r <= 'Z' {
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return "RELATED"
	}
	return sb.String()
}
