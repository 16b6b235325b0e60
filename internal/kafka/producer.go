package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/elpekaan/eventgram-api/internal/services"
)

// Producer publishes lifecycle notifications, one topic per notification family.
type Producer struct {
	producer sarama.SyncProducer
	mockMode bool
}

func NewProducer(brokers []string, mockMode bool) (*Producer, error) {
	if mockMode {
		slog.Info("Kafka producer running in mock mode")
		return &Producer{mockMode: true}, nil
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("kafka: create producer: %w", err)
	}

	slog.Info("Connected to Kafka brokers", "brokers", brokers)
	return NewProducerWith(producer), nil
}

// NewProducerWith wraps an existing sync producer.
func NewProducerWith(p sarama.SyncProducer) *Producer {
	return &Producer{producer: p}
}

type message struct {
	Type       string         `json:"type"`
	UserID     string         `json:"user_id,omitempty"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt int64          `json:"occurred_at"`
}

func (p *Producer) Notify(_ context.Context, n services.Notification) error {
	data, err := json.Marshal(message{
		Type:       string(n.Type),
		UserID:     n.UserID,
		EntityID:   n.EntityID,
		Payload:    n.Payload,
		OccurredAt: n.OccurredAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("kafka: marshal notification: %w", err)
	}

	topic := TopicFor(n.Type)
	if p.mockMode {
		slog.Debug("Mock publish", "topic", topic, "type", n.Type, "entity_id", n.EntityID)
		return nil
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(n.EntityID),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("kafka: send to %s: %w", topic, err)
	}

	slog.Debug("Published notification", "topic", topic, "partition", partition, "offset", offset, "type", n.Type)
	return nil
}

// TopicFor routes a notification type to its topic.
func TopicFor(t services.NotificationType) string {
	switch t {
	case services.NotifyOrderCompleted, services.NotifyOrderReleased:
		return "ticketing-orders"
	case services.NotifyTransferCreated, services.NotifyTransferApproved, services.NotifyTransferRejected,
		services.NotifyTransferAccepted, services.NotifyTransferCompleted, services.NotifyTransferCancelled,
		services.NotifyTransferExpired:
		return "ticketing-transfers"
	case services.NotifyCheckedIn:
		return "ticketing-checkins"
	case services.NotifyRefundCompleted, services.NotifyRefundRejected,
		services.NotifyChargeback, services.NotifyChargebackClosed:
		return "ticketing-payments"
	default:
		return "ticketing-events"
	}
}

func (p *Producer) Close() error {
	if p.mockMode || p.producer == nil {
		return nil
	}
	slog.Info("Closing Kafka producer")
	return p.producer.Close()
}
