package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
)

// ConsumerConfig configures the activity consumer.
type ConsumerConfig struct {
	Brokers           []string      `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	Topic             string        `env:"KAFKA_ACTIVITY_TOPIC" env-default:"fern.activities"`
	GroupID           string        `env:"KAFKA_GROUP_ID" env-default:"fern"`
	MinBytes          int           `env:"KAFKA_MIN_BYTES" env-default:"1"`
	MaxBytes          int           `env:"KAFKA_MAX_BYTES" env-default:"10485760"`
	MaxWait           time.Duration `env:"KAFKA_MAX_WAIT" env-default:"1s"`
	CommitInterval    time.Duration `env:"KAFKA_COMMIT_INTERVAL" env-default:"1s"`
	SessionTimeout    time.Duration `env:"KAFKA_SESSION_TIMEOUT" env-default:"30s"`
	HeartbeatInterval time.Duration `env:"KAFKA_HEARTBEAT_INTERVAL" env-default:"3s"`
	RebalanceTimeout  time.Duration `env:"KAFKA_REBALANCE_TIMEOUT" env-default:"30s"`
}

// ProducerConfig configures the outcome event producer.
type ProducerConfig struct {
	Brokers      []string      `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	Topic        string        `env:"KAFKA_EVENT_TOPIC" env-default:"fern.events"`
	BatchSize    int           `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	BatchTimeout time.Duration `env:"KAFKA_BATCH_TIMEOUT" env-default:"100ms"`
	MaxAttempts  int           `env:"KAFKA_MAX_ATTEMPTS" env-default:"3"`
	WriteTimeout time.Duration `env:"KAFKA_WRITE_TIMEOUT" env-default:"10s"`
	RequiredAcks int           `env:"KAFKA_REQUIRED_ACKS" env-default:"-1"`
	Compression  string        `env:"KAFKA_COMPRESSION" env-default:""`
	Async        bool          `env:"KAFKA_ASYNC" env-default:"false"`
}

// Header is a key/value message header.
type Header struct {
	Key   string
	Value []byte
}

// ReceivedMessage wraps a consumed Kafka message with its parsed activity.
type ReceivedMessage struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   []Header

	Activity *models.Activity
}

// MessageContext stamps the message's identity onto the handler context:
// tenant and activity ids from the parsed activity, and the request id from
// the x-request-id header when the producer forwarded one, otherwise a fresh
// one. Everything downstream logs and traces with these.
func MessageContext(ctx context.Context, msg *ReceivedMessage) context.Context {
	requestID := ""
	for _, header := range msg.Headers {
		if strings.EqualFold(header.Key, "x-request-id") {
			requestID = string(header.Value)
			break
		}
	}
	if requestID == "" {
		requestID = uuid.New().String()
	}
	ctx = appctx.SetRequestID(ctx, requestID)

	if msg.Activity != nil {
		ctx = appctx.SetTenantID(ctx, msg.Activity.TenantID)
		ctx = appctx.SetActivityID(ctx, msg.Activity.ID)
	}
	return ctx
}

// ParseActivity decodes and validates the message value as an activity.
func ParseActivity(value []byte) (*models.Activity, error) {
	var activity models.Activity
	if err := json.Unmarshal(value, &activity); err != nil {
		return nil, fmt.Errorf("failed to parse activity: %w", err)
	}
	if err := activity.Validate(); err != nil {
		return nil, fmt.Errorf("invalid activity: %w", err)
	}
	return &activity, nil
}
