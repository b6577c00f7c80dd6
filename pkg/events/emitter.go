// Package events emits fern's outcome events so downstream consumers (push
// gateways, badges, analytics) can react to inbox changes without polling.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	fernkafka "github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Event types emitted by the service.
const (
	TypeInboxItemCreated       = "inbox.item.created"
	TypeInboxItemThreaded      = "inbox.item.threaded"
	TypeFollowRequestCreated   = "follow_request.created"
	TypeFollowRequestApproved  = "follow_request.approved"
	TypeFollowRequestDenied    = "follow_request.denied"
	TypeFollowRequestCancelled = "follow_request.cancelled"
)

// Event is one outcome event.
type Event struct {
	Type       string            `json:"type"`
	TenantID   string            `json:"tenant_id"`
	Recipient  *models.EntityRef `json:"recipient,omitempty"`
	ItemID     string            `json:"item_id,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	ActivityID string            `json:"activity_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Emitter publishes outcome events. Emission failures are logged and
// swallowed by implementations; events are best-effort and never roll back
// the inbox write that triggered them.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// KafkaEmitter publishes events to the event topic.
type KafkaEmitter struct {
	producer *fernkafka.Producer
	logger   ectologger.Logger
}

// NewKafkaEmitter creates a Kafka-backed emitter.
func NewKafkaEmitter(producer *fernkafka.Producer, logger ectologger.Logger) *KafkaEmitter {
	return &KafkaEmitter{
		producer: producer,
		logger:   logger,
	}
}

func (e *KafkaEmitter) Emit(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("failed to serialize event")
		return
	}

	key := event.TenantID
	if event.Recipient != nil {
		key += ":" + event.Recipient.Key()
	}
	headers := map[string]string{
		"event_type": event.Type,
		"tenant_id":  event.TenantID,
	}

	if err := e.producer.Publish(ctx, key, headers, data); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": event.Type,
			"tenant_id":  event.TenantID,
		}).Error("failed to publish event")
	}
}

// NoopEmitter drops all events. Used when no broker is configured.
type NoopEmitter struct{}

// NewNoopEmitter creates an emitter that does nothing.
func NewNoopEmitter() *NoopEmitter {
	return &NoopEmitter{}
}

func (e *NoopEmitter) Emit(ctx context.Context, event Event) {}
