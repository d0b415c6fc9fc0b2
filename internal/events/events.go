// Package events publishes merged activity records to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/segmentio/kafka-go"

	"github.com/sells-group/activity-cli/internal/config"
	"github.com/sells-group/activity-cli/internal/model"
	"github.com/sells-group/activity-cli/internal/resilience"
)

// TypeActivityMerged is the event type header value.
const TypeActivityMerged = "activity.merged"

// Publisher emits one event per merged record.
type Publisher interface {
	Publish(ctx context.Context, records []model.ActivityRecord) error
	Close() error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, []model.ActivityRecord) error { return nil }
func (Noop) Close() error { return nil }

// ActivityMerged is the JSON payload of a merge event.
type ActivityMerged struct {
	Type      string               `json:"type"`
	Record    model.ActivityRecord `json:"record"`
	EmittedAt time.Time            `json:"emitted_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic keyed by record ID, so every
// event for a record lands on the same partition.
type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
	retry  resilience.RetryConfig
}

// NewKafkaPublisher creates a synchronous publisher for cfg.Topic.
func NewKafkaPublisher(cfg config.EventsConfig) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			Async:        false,
		},
		now:   time.Now,
		retry: resilience.DefaultRetryConfig(),
	}
}

// New returns a KafkaPublisher when brokers are configured and Noop otherwise.
func New(cfg config.EventsConfig) Publisher {
	if len(cfg.Brokers) == 0 {
		return Noop{}
	}
	return NewKafkaPublisher(cfg)
}

func (p *KafkaPublisher) Publish(ctx context.Context, records []model.ActivityRecord) error {
	if len(records) == 0 {
		return nil
	}

	now := p.now().UTC()
	msgs := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		payload, err := json.Marshal(ActivityMerged{Type: TypeActivityMerged, Record: rec, EmittedAt: now})
		if err != nil {
			return eris.Wrapf(err, "events: marshal record %s", rec.ID)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(rec.ID),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(TypeActivityMerged)},
			},
		})
	}

	retry := p.retry
	retry.ShouldRetry = retryableWrite
	retry.OnRetry = resilience.RetryLogger("events.publish")
	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		return p.writer.WriteMessages(ctx, msgs...)
	})
	if err != nil {
		return eris.Wrapf(err, "events: write %d messages", len(msgs))
	}
	return nil
}

// retryableWrite reports whether a failed write may succeed later, such as
// during a leader election.
func retryableWrite(err error) bool {
	var kerr kafka.Error
	if errors.As(err, &kerr) && kerr.Temporary() {
		return true
	}
	return resilience.IsTransient(err)
}

func (p *KafkaPublisher) Close() error {
	return eris.Wrap(p.writer.Close(), "events: close writer")
}
