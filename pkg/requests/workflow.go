// Package requests runs the follow/subscribe request state machine:
// Pending -> Approved | Denied | Cancelled, with idempotent creation,
// governance-driven auto-approval and approver notification.
package requests

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/followrequest"
	"github.com/Ramsey-B/fern/internal/repositories/inbox"
	"github.com/Ramsey-B/fern/internal/repositories/relationship"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/governance"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Workflow coordinates follow request creation and decisions.
type Workflow struct {
	requests      followrequest.FollowRequestRepository
	relationships relationship.RelationshipRepository
	inbox         inbox.InboxRepository
	policy        governance.Policy
	logger        ectologger.Logger
}

// NewWorkflow creates a follow request workflow.
func NewWorkflow(
	requests followrequest.FollowRequestRepository,
	relationships relationship.RelationshipRepository,
	inboxRepo inbox.InboxRepository,
	policy governance.Policy,
	logger ectologger.Logger,
) *Workflow {
	return &Workflow{
		requests:      requests,
		relationships: relationships,
		inbox:         inboxRepo,
		policy:        policy,
		logger:        logger,
	}
}

// Create creates a follow/subscribe request. A repeated idempotency key
// returns the original request as-is, with no governance re-evaluation and
// no duplicate edge. Without a required approval the edge is written
// immediately and the request lands Approved; otherwise it stays Pending
// and every approver gets an inbox item.
func (w *Workflow) Create(ctx context.Context, request *models.CreateFollowRequestRequest) (*models.FollowRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "requests.Workflow.Create")
	defer span.End()

	if err := request.Validate(); err != nil {
		return nil, apperrors.NewValidationErrorf("invalid follow request: %s", err.Error())
	}

	if request.IdempotencyKey != "" {
		existing, err := w.requests.GetByIdempotencyKey(ctx, request.TenantID, request.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	targetable, err := w.policy.IsTargetable(ctx, request.TenantID, request.Target)
	if err != nil {
		return nil, err
	}
	if !targetable {
		return nil, apperrors.NewPolicyViolation(request.Target, "entity is not targetable")
	}

	required, err := w.policy.RequiresApproval(ctx, request.TenantID, request.Requester, request.Target, request.RequestedKind)
	if err != nil {
		return nil, err
	}

	followRequest := models.FollowRequest{
		TenantID:       request.TenantID,
		Requester:      request.Requester,
		Target:         request.Target,
		RequestedKind:  request.RequestedKind,
		Scope:          request.Scope,
		Status:         models.RequestStatusPending,
		IdempotencyKey: request.IdempotencyKey,
	}

	if !required {
		if _, err := w.upsertEdge(ctx, &followRequest); err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		followRequest.Status = models.RequestStatusApproved
		followRequest.DecidedAt = &now
	}

	created, err := w.requests.Create(ctx, followRequest)
	if err != nil {
		return nil, err
	}
	metrics.FollowRequestsTotal.WithLabelValues(created.TenantID, string(created.Status)).Inc()

	if created.Status == models.RequestStatusPending {
		if err := w.notifyApprovers(ctx, created); err != nil {
			return nil, err
		}
	}

	w.logger.WithContext(ctx).WithFields(map[string]any{
		"id":        created.ID,
		"tenant_id": created.TenantID,
		"kind":      created.RequestedKind,
		"status":    created.Status,
	}).Info("created follow request")

	return created, nil
}

// Approve transitions a Pending request to Approved and writes the edge.
// A terminal request is never re-decided.
func (w *Workflow) Approve(ctx context.Context, tenantID string, requestID string, decidedBy string, reason string) (*models.FollowRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "requests.Workflow.Approve")
	defer span.End()

	decided, err := w.requests.Decide(ctx, tenantID, requestID, followrequest.Decision{
		Status:    models.RequestStatusApproved,
		DecidedBy: decidedBy,
		Reason:    reason,
	})
	if err != nil {
		return nil, err
	}

	if _, err := w.upsertEdge(ctx, decided); err != nil {
		return nil, err
	}
	metrics.FollowRequestsTotal.WithLabelValues(tenantID, string(models.RequestStatusApproved)).Inc()

	return decided, nil
}

// Deny transitions a Pending request to Denied. No edge is created.
func (w *Workflow) Deny(ctx context.Context, tenantID string, requestID string, decidedBy string, reason string) (*models.FollowRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "requests.Workflow.Deny")
	defer span.End()

	decided, err := w.requests.Decide(ctx, tenantID, requestID, followrequest.Decision{
		Status:    models.RequestStatusDenied,
		DecidedBy: decidedBy,
		Reason:    reason,
	})
	if err != nil {
		return nil, err
	}
	metrics.FollowRequestsTotal.WithLabelValues(tenantID, string(models.RequestStatusDenied)).Inc()

	return decided, nil
}

// Cancel lets the requester withdraw a Pending request.
func (w *Workflow) Cancel(ctx context.Context, tenantID string, requestID string, decidedBy string, reason string) (*models.FollowRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "requests.Workflow.Cancel")
	defer span.End()

	decided, err := w.requests.Decide(ctx, tenantID, requestID, followrequest.Decision{
		Status:    models.RequestStatusCancelled,
		DecidedBy: decidedBy,
		Reason:    reason,
	})
	if err != nil {
		return nil, err
	}
	metrics.FollowRequestsTotal.WithLabelValues(tenantID, string(models.RequestStatusCancelled)).Inc()

	return decided, nil
}

func (w *Workflow) upsertEdge(ctx context.Context, request *models.FollowRequest) (*models.RelationshipEdge, error) {
	return w.relationships.Upsert(ctx, models.RelationshipEdge{
		TenantID: request.TenantID,
		From:     request.Requester,
		To:       request.Target,
		Kind:     request.RequestedKind,
		Scope:    request.Scope,
		IsActive: true,
	})
}

// notifyApprovers writes a Request inbox item for each approver. The dedup
// key is per (request, approver), so a retried create never double-notifies.
func (w *Workflow) notifyApprovers(ctx context.Context, request *models.FollowRequest) error {
	approvers, err := w.policy.GetApprovers(ctx, request.TenantID, request.Target)
	if err != nil {
		return err
	}

	event := models.InboxEvent{
		Kind:       "follow_request",
		ID:         request.ID,
		OccurredAt: request.CreatedAt,
	}
	for _, approver := range approvers {
		_, err := w.inbox.Insert(ctx, models.InboxItem{
			TenantID:    request.TenantID,
			Recipient:   approver,
			Kind:        models.InboxItemKindRequest,
			Status:      models.InboxStatusUnread,
			Event:       event,
			DedupKey:    "request:" + request.ID + ":approver:" + approver.Key(),
			ThreadCount: 1,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
