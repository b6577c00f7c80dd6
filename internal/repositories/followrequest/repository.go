// Package followrequest persists follow/subscribe requests and their
// decision lifecycle. Pending is the only mutable status; decisions are
// applied with a conditional update so two concurrent deciders cannot both
// win.
package followrequest

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

// Decision carries the fields applied when a pending request is decided.
type Decision struct {
	Status    models.RequestStatus
	DecidedBy string
	Reason    string
}

// FollowRequestRepository defines the request store contract.
type FollowRequestRepository interface {
	Get(ctx context.Context, tenantID string, requestID string) (*models.FollowRequest, error)
	GetByIdempotencyKey(ctx context.Context, tenantID string, idempotencyKey string) (*models.FollowRequest, error)
	Create(ctx context.Context, request models.FollowRequest) (*models.FollowRequest, error)
	// Decide transitions a Pending request to a terminal status. It returns a
	// conflict error if the request is already decided.
	Decide(ctx context.Context, tenantID string, requestID string, decision Decision) (*models.FollowRequest, error)
	ListPending(ctx context.Context, tenantID string, target models.EntityRef) ([]models.FollowRequest, error)
}

// Repository implements FollowRequestRepository on Postgres.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new follow request repository.
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get gets a request by id.
func (r *Repository) Get(ctx context.Context, tenantID string, requestID string) (*models.FollowRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "followrequest.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(requestColumns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("id", requestID),
	)

	query, args := sb.Build()

	var row requestRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"id":        requestID,
			"tenant_id": tenantID,
		}).Error("failed to get follow request")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get follow request: %s", err.Error())
	}

	return row.toModel(), nil
}

// GetByIdempotencyKey returns the request previously created with the key,
// whatever its current status.
func (r *Repository) GetByIdempotencyKey(ctx context.Context, tenantID string, idempotencyKey string) (*models.FollowRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "followrequest.Repository.GetByIdempotencyKey")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(requestColumns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("idempotency_key", idempotencyKey),
	)

	query, args := sb.Build()

	var row requestRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get follow request by idempotency key")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get follow request: %s", err.Error())
	}

	return row.toModel(), nil
}

// Create inserts a new request. When the idempotency key is already taken the
// insert is skipped and the original request is returned instead.
func (r *Repository) Create(ctx context.Context, request models.FollowRequest) (*models.FollowRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "followrequest.Repository.Create")
	defer span.End()

	if request.ID == "" {
		request.ID = uuid.New().String()
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}

	row := toRow(&request)

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols(requestColumns...)
	sb.Values(
		row.ID, row.TenantID, row.Requester, row.RequesterKey, row.Target, row.TargetKey,
		row.RequestedKind, row.Scope, row.Status, row.DecidedBy, row.DecidedAt,
		row.DecisionReason, row.IdempotencyKey, row.CreatedAt,
	)

	query, args := sb.Build()
	query += ` ON CONFLICT (tenant_id, idempotency_key) WHERE idempotency_key IS NOT NULL
	DO NOTHING
	RETURNING id, tenant_id, requester, requester_key, target, target_key, requested_kind, scope, status, decided_by, decided_at, decision_reason, idempotency_key, created_at`

	var out requestRow
	if err := r.db.GetContext(ctx, &out, query, args...); err != nil {
		if err == sql.ErrNoRows {
			// Lost the idempotency race; return the original.
			return r.GetByIdempotencyKey(ctx, request.TenantID, request.IdempotencyKey)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": request.TenantID,
		}).Error("failed to create follow request")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create follow request: %s", err.Error())
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":        out.ID,
		"tenant_id": out.TenantID,
		"kind":      out.RequestedKind,
	}).Info("created follow request")

	return out.toModel(), nil
}

// Decide applies a terminal decision to a Pending request. The status guard
// is part of the update predicate, so a request that was already decided is
// never overwritten.
func (r *Repository) Decide(ctx context.Context, tenantID string, requestID string, decision Decision) (*models.FollowRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "followrequest.Repository.Decide")
	defer span.End()

	if !decision.Status.IsTerminal() {
		return nil, apperrors.NewValidationErrorf("decision status must be terminal, got %q", decision.Status)
	}

	now := time.Now().UTC()
	query := `UPDATE ` + tableName + `
	SET status = $1, decided_by = $2, decided_at = $3, decision_reason = $4
	WHERE tenant_id = $5 AND id = $6 AND status = $7
	RETURNING id, tenant_id, requester, requester_key, target, target_key, requested_kind, scope, status, decided_by, decided_at, decision_reason, idempotency_key, created_at`

	var out requestRow
	err := r.db.GetContext(ctx, &out, query,
		string(decision.Status), decision.DecidedBy, now, decision.Reason,
		tenantID, requestID, string(models.RequestStatusPending),
	)
	if err == nil {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"id":        out.ID,
			"tenant_id": out.TenantID,
			"status":    out.Status,
		}).Info("decided follow request")
		return out.toModel(), nil
	}
	if err != sql.ErrNoRows {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"id":        requestID,
			"tenant_id": tenantID,
		}).Error("failed to decide follow request")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to decide follow request: %s", err.Error())
	}

	// No Pending row matched: distinguish missing from already decided.
	current, getErr := r.Get(ctx, tenantID, requestID)
	if getErr != nil {
		return nil, getErr
	}
	if current == nil {
		return nil, apperrors.NewNotFoundErrorf("follow request %s not found", requestID)
	}
	return nil, apperrors.NewConflictErrorf("follow request %s is already %s", requestID, current.Status)
}

// ListPending returns the pending requests aimed at a target.
func (r *Repository) ListPending(ctx context.Context, tenantID string, target models.EntityRef) ([]models.FollowRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "followrequest.Repository.ListPending")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(requestColumns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("target_key", target.Key()),
		sb.Equal("status", string(models.RequestStatusPending)),
	)
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()

	var rows []requestRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
		}).Error("failed to list pending follow requests")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list pending follow requests: %s", err.Error())
	}

	requests := make([]models.FollowRequest, 0, len(rows))
	for i := range rows {
		requests = append(requests, *rows[i].toModel())
	}
	return requests, nil
}
