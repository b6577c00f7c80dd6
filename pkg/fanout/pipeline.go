// Package fanout delivers a published activity into recipient inboxes with
// dedup and thread-merge semantics. Recipients are processed concurrently
// and failures are isolated per recipient.
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/inbox"
	"github.com/Ramsey-B/fern/pkg/locks"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const defaultConcurrency = 8

// RecipientResult is the outcome of one recipient's delivery.
type RecipientResult struct {
	Recipient models.EntityRef
	Item      *models.InboxItem
	Created   bool
	Threaded  bool
	Deduped   bool
	Err       error
}

// Result summarizes one fan-out run. A partial failure is reported here, not
// as an error: committed items for other recipients stay committed, and a
// retry is safe because deliveries are idempotent via dedup keys.
type Result struct {
	ActivityID string
	Recipients []RecipientResult
	Created    int
	Threaded   int
	Deduped    int
	Failed     int
}

// Pipeline fans an activity out to a recipient set.
type Pipeline struct {
	inbox       inbox.InboxRepository
	locker      locks.Locker
	logger      ectologger.Logger
	concurrency int
}

// NewPipeline creates a fan-out pipeline. The locker serializes deliveries
// per (tenant, recipient) so concurrent activities cannot double-create a
// thread entry.
func NewPipeline(inboxRepo inbox.InboxRepository, locker locks.Locker, logger ectologger.Logger) *Pipeline {
	return &Pipeline{
		inbox:       inboxRepo,
		locker:      locker,
		logger:      logger,
		concurrency: defaultConcurrency,
	}
}

// WithConcurrency overrides the number of parallel recipient deliveries.
func (p *Pipeline) WithConcurrency(n int) *Pipeline {
	if n > 0 {
		p.concurrency = n
	}
	return p
}

// FanOut delivers the activity to every recipient. Each recipient is
// processed independently; one recipient's failure never blocks the others.
func (p *Pipeline) FanOut(ctx context.Context, tenantID string, activity *models.Activity, recipients []models.EntityRef) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "fanout.Pipeline.FanOut")
	defer span.End()

	start := time.Now()
	results := make([]RecipientResult, len(recipients))

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.concurrency)
	for i := range recipients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = p.deliver(ctx, tenantID, activity, recipients[i])
		}(i)
	}
	wg.Wait()

	result := &Result{ActivityID: activity.ID, Recipients: results}
	for i := range results {
		switch {
		case results[i].Err != nil:
			result.Failed++
			metrics.RecipientDeliveriesTotal.WithLabelValues(tenantID, "failed").Inc()
		case results[i].Created:
			result.Created++
			metrics.RecipientDeliveriesTotal.WithLabelValues(tenantID, "created").Inc()
		case results[i].Threaded:
			result.Threaded++
			metrics.RecipientDeliveriesTotal.WithLabelValues(tenantID, "threaded").Inc()
		default:
			result.Deduped++
			metrics.RecipientDeliveriesTotal.WithLabelValues(tenantID, "deduped").Inc()
		}
	}
	metrics.FanoutDuration.WithLabelValues(tenantID).Observe(time.Since(start).Seconds())

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"activity_id": activity.ID,
		"recipients":  len(recipients),
		"created":     result.Created,
		"threaded":    result.Threaded,
		"deduped":     result.Deduped,
		"failed":      result.Failed,
	}).Info("fanned out activity")

	return result, nil
}

// deliver runs the dedup/thread/create decision for one recipient under the
// recipient's lock.
func (p *Pipeline) deliver(ctx context.Context, tenantID string, activity *models.Activity, recipient models.EntityRef) RecipientResult {
	result := RecipientResult{Recipient: recipient}

	lockKey := "fanout:" + tenantID + ":" + recipient.Key()
	err := p.locker.WithLock(ctx, lockKey, func() error {
		item, created, threaded, err := p.upsertItem(ctx, tenantID, activity, recipient)
		if err != nil {
			return err
		}
		result.Item = item
		result.Created = created
		result.Threaded = threaded
		result.Deduped = !created && !threaded
		return nil
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":   tenantID,
			"activity_id": activity.ID,
			"recipient":   recipient.Key(),
		}).Error("failed to deliver inbox item")
		result.Err = err
	}
	return result
}

func (p *Pipeline) upsertItem(ctx context.Context, tenantID string, activity *models.Activity, recipient models.EntityRef) (*models.InboxItem, bool, bool, error) {
	dedupKey := DedupKey(activity, recipient)
	threadKey := ThreadKey(activity)
	event := models.InboxEvent{
		Kind:       "activity",
		ID:         activity.ID,
		TypeKey:    activity.TypeKey,
		OccurredAt: activity.OccurredAt,
	}

	// Idempotent no-op: this exact activity already reached this recipient.
	existing, err := p.inbox.GetByDedupKey(ctx, tenantID, recipient, dedupKey)
	if err != nil {
		return nil, false, false, err
	}
	if existing != nil {
		return existing, false, false, nil
	}

	// Thread merge: a different activity about the same subject exists.
	// Status is preserved so a read thread stays read.
	threaded, err := p.inbox.GetByThreadKey(ctx, tenantID, recipient, threadKey)
	if err != nil {
		return nil, false, false, err
	}
	if threaded != nil {
		updated, err := p.inbox.ApplyThreadEvent(ctx, tenantID, threaded.ID, event)
		if err != nil {
			return nil, false, false, err
		}
		return updated, false, true, nil
	}

	created, err := p.inbox.Insert(ctx, models.InboxItem{
		TenantID:    tenantID,
		Recipient:   recipient,
		Kind:        models.InboxItemKindNotification,
		Status:      models.InboxStatusUnread,
		Event:       event,
		DedupKey:    dedupKey,
		ThreadKey:   threadKey,
		ThreadCount: 1,
	})
	if err != nil {
		return nil, false, false, err
	}
	return created, true, false, nil
}
