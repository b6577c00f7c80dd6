// Package notify is fern's service facade: activity fan-out, relationship
// edge management, follow request lifecycle and inbox reads behind one type.
package notify

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/inbox"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/internal/repositories/relationship"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/fanout"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/recipients"
	"github.com/Ramsey-B/fern/pkg/requests"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Service coordinates the notification core.
type Service struct {
	relationships relationship.RelationshipRepository
	inbox         inbox.InboxRepository
	resolver      *recipients.Resolver
	pipeline      *fanout.Pipeline
	workflow      *requests.Workflow
	projector     graph.Projector
	emitter       events.Emitter
	logger        ectologger.Logger
}

// NewService creates the notification service.
func NewService(
	relationships relationship.RelationshipRepository,
	inboxRepo inbox.InboxRepository,
	resolver *recipients.Resolver,
	pipeline *fanout.Pipeline,
	workflow *requests.Workflow,
	projector graph.Projector,
	emitter events.Emitter,
	logger ectologger.Logger,
) *Service {
	return &Service{
		relationships: relationships,
		inbox:         inboxRepo,
		resolver:      resolver,
		pipeline:      pipeline,
		workflow:      workflow,
		projector:     projector,
		emitter:       emitter,
		logger:        logger,
	}
}

// OnActivityPublished resolves recipients and fans the activity out. A
// governance rejection aborts before any recipient work; per-recipient
// failures are reported in the result, not as an error.
func (s *Service) OnActivityPublished(ctx context.Context, activity *models.Activity) (*fanout.Result, error) {
	ctx, span := tracing.StartSpan(ctx, "notify.Service.OnActivityPublished")
	defer span.End()

	if err := activity.Validate(); err != nil {
		return nil, apperrors.NewValidationErrorf("invalid activity: %s", err.Error())
	}

	resolved, err := s.resolver.Resolve(ctx, activity.TenantID, activity)
	if err != nil {
		metrics.ActivitiesProcessedTotal.WithLabelValues(activity.TenantID, "rejected").Inc()
		return nil, err
	}
	metrics.RecipientsResolved.WithLabelValues(activity.TenantID).Observe(float64(len(resolved)))

	result, err := s.pipeline.FanOut(ctx, activity.TenantID, activity, resolved)
	if err != nil {
		metrics.ActivitiesProcessedTotal.WithLabelValues(activity.TenantID, "failed").Inc()
		return nil, err
	}
	metrics.ActivitiesProcessedTotal.WithLabelValues(activity.TenantID, "processed").Inc()

	for i := range result.Recipients {
		r := &result.Recipients[i]
		if r.Err != nil || r.Item == nil {
			continue
		}
		eventType := ""
		switch {
		case r.Created:
			eventType = events.TypeInboxItemCreated
		case r.Threaded:
			eventType = events.TypeInboxItemThreaded
		default:
			continue // deduped, nothing new happened
		}
		recipient := r.Recipient
		s.emitter.Emit(ctx, events.Event{
			Type:       eventType,
			TenantID:   activity.TenantID,
			Recipient:  &recipient,
			ItemID:     r.Item.ID,
			ActivityID: activity.ID,
		})
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"request_id":  appctx.GetRequestID(ctx),
		"tenant_id":   activity.TenantID,
		"activity_id": activity.ID,
		"created":     result.Created,
		"threaded":    result.Threaded,
		"deduped":     result.Deduped,
		"failed":      result.Failed,
	}).Info("activity fanned out")

	return result, nil
}

// UpsertEdge writes a relationship edge and mirrors it into the graph
// projection.
func (s *Service) UpsertEdge(ctx context.Context, edge models.RelationshipEdge) (*models.RelationshipEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "notify.Service.UpsertEdge")
	defer span.End()

	stored, err := s.relationships.Upsert(ctx, edge)
	if err != nil {
		return nil, err
	}
	s.projector.ProjectEdge(ctx, stored)
	return stored, nil
}

// RemoveEdge deletes a relationship edge by id and removes its projection.
func (s *Service) RemoveEdge(ctx context.Context, tenantID string, edgeID string) error {
	ctx, span := tracing.StartSpan(ctx, "notify.Service.RemoveEdge")
	defer span.End()

	edge, err := s.relationships.Get(ctx, tenantID, edgeID)
	if err != nil {
		return err
	}
	if edge == nil {
		return apperrors.NewNotFoundErrorf("relationship edge %s not found", edgeID)
	}
	if err := s.relationships.Remove(ctx, tenantID, edgeID); err != nil {
		return err
	}
	s.projector.RemoveEdge(ctx, tenantID, edgeID, edge.Kind)
	return nil
}

// QueryEdges lists relationship edges matching the filters.
func (s *Service) QueryEdges(ctx context.Context, tenantID string, q models.EdgeQuery, limit int) ([]models.RelationshipEdge, error) {
	return s.relationships.Query(ctx, tenantID, q, limit)
}

// CreateFollowRequest runs the request creation workflow.
func (s *Service) CreateFollowRequest(ctx context.Context, request *models.CreateFollowRequestRequest) (*models.FollowRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "notify.Service.CreateFollowRequest")
	defer span.End()

	created, err := s.workflow.Create(ctx, request)
	if err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, events.Event{
		Type:      events.TypeFollowRequestCreated,
		TenantID:  created.TenantID,
		RequestID: created.ID,
	})
	if created.Status == models.RequestStatusApproved {
		s.projectRequestEdge(ctx, created)
	}
	return created, nil
}

// ApproveRequest approves a pending request and writes the edge.
func (s *Service) ApproveRequest(ctx context.Context, tenantID string, requestID string, decidedBy string, reason string) (*models.FollowRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "notify.Service.ApproveRequest")
	defer span.End()

	decided, err := s.workflow.Approve(ctx, tenantID, requestID, decidedBy, reason)
	if err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, events.Event{
		Type:      events.TypeFollowRequestApproved,
		TenantID:  tenantID,
		RequestID: requestID,
	})
	s.projectRequestEdge(ctx, decided)
	return decided, nil
}

// DenyRequest denies a pending request.
func (s *Service) DenyRequest(ctx context.Context, tenantID string, requestID string, decidedBy string, reason string) (*models.FollowRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "notify.Service.DenyRequest")
	defer span.End()

	decided, err := s.workflow.Deny(ctx, tenantID, requestID, decidedBy, reason)
	if err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, events.Event{
		Type:      events.TypeFollowRequestDenied,
		TenantID:  tenantID,
		RequestID: requestID,
	})
	return decided, nil
}

// CancelRequest lets the requester withdraw a pending request.
func (s *Service) CancelRequest(ctx context.Context, tenantID string, requestID string, decidedBy string, reason string) (*models.FollowRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "notify.Service.CancelRequest")
	defer span.End()

	decided, err := s.workflow.Cancel(ctx, tenantID, requestID, decidedBy, reason)
	if err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, events.Event{
		Type:      events.TypeFollowRequestCancelled,
		TenantID:  tenantID,
		RequestID: requestID,
	})
	return decided, nil
}

// QueryInbox returns one page of inbox items for the recipients.
func (s *Service) QueryInbox(ctx context.Context, tenantID string, q models.InboxQuery) (*models.InboxPage, error) {
	ctx, span := tracing.StartSpan(ctx, "notify.Service.QueryInbox")
	defer span.End()

	start := time.Now()
	page, err := s.inbox.Query(ctx, tenantID, q)
	if err != nil {
		return nil, err
	}
	metrics.InboxQueryDuration.Observe(time.Since(start).Seconds())
	return page, nil
}

// MarkRead marks an inbox item read.
func (s *Service) MarkRead(ctx context.Context, tenantID string, itemID string) (*models.InboxItem, error) {
	ctx, span := tracing.StartSpan(ctx, "notify.Service.MarkRead")
	defer span.End()

	return s.inbox.SetStatus(ctx, tenantID, itemID, models.InboxStatusRead)
}

// Archive archives an inbox item.
func (s *Service) Archive(ctx context.Context, tenantID string, itemID string) (*models.InboxItem, error) {
	ctx, span := tracing.StartSpan(ctx, "notify.Service.Archive")
	defer span.End()

	return s.inbox.SetStatus(ctx, tenantID, itemID, models.InboxStatusArchived)
}

// projectRequestEdge mirrors the edge created by an approval. The edge is
// re-read by composite key because the workflow owns the write.
func (s *Service) projectRequestEdge(ctx context.Context, request *models.FollowRequest) {
	edge, err := s.relationships.Find(ctx, request.TenantID, request.Requester, request.Target, request.RequestedKind, request.Scope)
	if err != nil || edge == nil {
		return
	}
	s.projector.ProjectEdge(ctx, edge)
}
