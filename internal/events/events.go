// Package events publishes domain events to Kafka so downstream services
// (analytics, billing) can follow quiz activity and purchases.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"opomelilla_bot/internal/logging"
)

// Topic suffixes appended to the configured prefix.
const (
	TopicQuizResponses     = "quiz.responses"
	TopicPaymentsCompleted = "payments.completed"
)

// ResponseRecorded is emitted after a quiz answer has been scored.
type ResponseRecorded struct {
	UserID          int64     `json:"user_id"`
	QuestionID      string    `json:"question_id"`
	Source          string    `json:"source"`
	Correct         bool      `json:"correct"`
	ResponseSeconds int       `json:"response_seconds"`
	TotalPoints     int       `json:"total_points"`
	Level           int       `json:"level"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// PaymentCompleted is emitted after a successful payment activates a plan.
type PaymentCompleted struct {
	UserID                  int64     `json:"user_id"`
	Plan                    string    `json:"plan"`
	AmountCents             int       `json:"amount_cents"`
	Currency                string    `json:"currency"`
	TelegramPaymentChargeID string    `json:"telegram_payment_charge_id"`
	SubscriptionID          string    `json:"subscription_id,omitempty"`
	OccurredAt              time.Time `json:"occurred_at"`
}

// Publisher emits domain events. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishResponse(ctx context.Context, event ResponseRecorded) error
	PublishPayment(ctx context.Context, event PaymentCompleted) error
	Close() error
}

// Nop discards every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) PublishResponse(context.Context, ResponseRecorded) error { return nil }
func (Nop) PublishPayment(context.Context, PaymentCompleted) error  { return nil }
func (Nop) Close() error                                            { return nil }

var newSyncProducer = func(brokers []string, cfg *sarama.Config) (sarama.SyncProducer, error) {
	return sarama.NewSyncProducer(brokers, cfg)
}

// Kafka publishes JSON events with a synchronous sarama producer, keyed by
// user id so a user's events stay ordered within a partition.
type Kafka struct {
	producer sarama.SyncProducer
	prefix   string
	logger   *logrus.Entry
}

// NewKafka connects a producer to the given brokers.
func NewKafka(brokers []string, topicPrefix string, logger *logrus.Entry) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers specified")
	}

	cfg := sarama.NewConfig()
	cfg.ClientID = "opomelilla-webhook"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy

	producer, err := newSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	logger = logging.OrDefault(logger)
	logger.WithFields(logging.Fields{
		"event":   "kafka_producer_ready",
		"brokers": brokers,
	}).Info("kafka producer initialized")

	return newKafkaWithProducer(producer, topicPrefix, logger), nil
}

func newKafkaWithProducer(producer sarama.SyncProducer, topicPrefix string, logger *logrus.Entry) *Kafka {
	return &Kafka{
		producer: producer,
		prefix:   strings.Trim(strings.TrimSpace(topicPrefix), "."),
		logger:   logging.OrDefault(logger),
	}
}

// Topic returns the fully-qualified topic name for a suffix.
func (k *Kafka) Topic(suffix string) string {
	if k.prefix == "" {
		return suffix
	}
	return k.prefix + "." + suffix
}

// PublishResponse emits a ResponseRecorded event.
func (k *Kafka) PublishResponse(ctx context.Context, event ResponseRecorded) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return k.send(ctx, TopicQuizResponses, event.UserID, event)
}

// PublishPayment emits a PaymentCompleted event.
func (k *Kafka) PublishPayment(ctx context.Context, event PaymentCompleted) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return k.send(ctx, TopicPaymentsCompleted, event.UserID, event)
}

func (k *Kafka) send(ctx context.Context, suffix string, userID int64, event interface{}) error {
	if k == nil || k.producer == nil {
		return errors.New("kafka publisher is not initialized")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	topic := k.Topic(suffix)
	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(fmt.Sprintf("%d", userID)),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("send %s: %w", topic, err)
	}

	k.logger.WithFields(logging.Fields{
		"event":     "kafka_event_published",
		"topic":     topic,
		"partition": partition,
		"offset":    offset,
	}).Debug("event published")

	return nil
}

// Close flushes and closes the producer.
func (k *Kafka) Close() error {
	if k == nil || k.producer == nil {
		return nil
	}
	if err := k.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
