package followrequest

import (
	"database/sql"
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

const tableName = "follow_requests"

var requestColumns = []string{
	"id", "tenant_id", "requester", "requester_key", "target", "target_key",
	"requested_kind", "scope", "status", "decided_by", "decided_at",
	"decision_reason", "idempotency_key", "created_at",
}

type requestRow struct {
	ID             string                           `db:"id"`
	TenantID       string                           `db:"tenant_id"`
	Requester      database.JSONB[models.EntityRef] `db:"requester"`
	RequesterKey   string                           `db:"requester_key"`
	Target         database.JSONB[models.EntityRef] `db:"target"`
	TargetKey      string                           `db:"target_key"`
	RequestedKind  string                           `db:"requested_kind"`
	Scope          string                           `db:"scope"`
	Status         string                           `db:"status"`
	DecidedBy      sql.NullString                   `db:"decided_by"`
	DecidedAt      *time.Time                       `db:"decided_at"`
	DecisionReason sql.NullString                   `db:"decision_reason"`
	IdempotencyKey sql.NullString                   `db:"idempotency_key"`
	CreatedAt      time.Time                        `db:"created_at"`
}

func (r *requestRow) toModel() *models.FollowRequest {
	return &models.FollowRequest{
		ID:             r.ID,
		TenantID:       r.TenantID,
		Requester:      r.Requester.GetValue(),
		Target:         r.Target.GetValue(),
		RequestedKind:  models.EdgeKind(r.RequestedKind),
		Scope:          models.EdgeScope(r.Scope),
		Status:         models.RequestStatus(r.Status),
		DecidedBy:      r.DecidedBy.String,
		DecidedAt:      r.DecidedAt,
		DecisionReason: r.DecisionReason.String,
		IdempotencyKey: r.IdempotencyKey.String,
		CreatedAt:      r.CreatedAt,
	}
}

func toRow(request *models.FollowRequest) *requestRow {
	return &requestRow{
		ID:             request.ID,
		TenantID:       request.TenantID,
		Requester:      database.JSONB[models.EntityRef]{Data: request.Requester},
		RequesterKey:   request.Requester.Key(),
		Target:         database.JSONB[models.EntityRef]{Data: request.Target},
		TargetKey:      request.Target.Key(),
		RequestedKind:  string(request.RequestedKind),
		Scope:          string(request.Scope),
		Status:         string(request.Status),
		DecidedBy:      sql.NullString{String: request.DecidedBy, Valid: request.DecidedBy != ""},
		DecidedAt:      request.DecidedAt,
		DecisionReason: sql.NullString{String: request.DecisionReason, Valid: request.DecisionReason != ""},
		IdempotencyKey: sql.NullString{String: request.IdempotencyKey, Valid: request.IdempotencyKey != ""},
		CreatedAt:      request.CreatedAt,
	}
}
