package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/elpekaan/eventgram-api/internal/status"
	"github.com/elpekaan/eventgram-api/models"
)

// PaymentHandler applies a payment callback read from the topic.
type PaymentHandler interface {
	HandleNotification(ctx context.Context, n *models.PaymentNotification) error
}

// Consumer reads payment callbacks from a consumer group.
type Consumer struct {
	group  sarama.ConsumerGroup
	topics []string
}

func NewConsumer(brokers []string, groupID string, topics ...string) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("kafka: create consumer group: %w", err)
	}
	if len(topics) == 0 {
		topics = []string{"payment-callbacks"}
	}
	return &Consumer{group: group, topics: topics}, nil
}

// Run consumes until ctx is cancelled; Consume returns on every rebalance so it is looped.
func (c *Consumer) Run(ctx context.Context, handler PaymentHandler) error {
	h := &paymentClaimHandler{handler: handler}
	for {
		if err := c.group.Consume(ctx, c.topics, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("kafka: consume: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

const (
	applyAttempts  = 3
	applyBaseDelay = 200 * time.Millisecond
)

type paymentClaimHandler struct {
	handler   PaymentHandler
	baseDelay time.Duration
}

func (h *paymentClaimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *paymentClaimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks a message once it is applied or permanently rejected.
// Offsets commit cumulatively, so a message that keeps failing on
// infrastructure errors ends the session unmarked instead of being skipped;
// the group rejoins and redelivers it from the last committed offset.
func (h *paymentClaimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var n models.PaymentNotification
		if err := json.Unmarshal(msg.Value, &n); err != nil {
			slog.Error("Dropping undecodable payment callback", "error", err, "topic", msg.Topic, "offset", msg.Offset)
			session.MarkMessage(msg, "")
			continue
		}

		err := h.apply(session.Context(), &n)
		switch {
		case err == nil:
			session.MarkMessage(msg, "")
		case status.CodeOf(err) != "":
			slog.Warn("Payment callback rejected", "error", err, "key", n.Key(), "code", status.CodeOf(err))
			session.MarkMessage(msg, "")
		default:
			slog.Error("Failed to apply payment callback, stopping claim for redelivery",
				"error", err, "key", n.Key(), "partition", msg.Partition, "offset", msg.Offset)
			return fmt.Errorf("kafka: apply offset %d: %w", msg.Offset, err)
		}
	}
	return nil
}

// apply retries infrastructure failures with a linear backoff. Domain
// rejections are returned at once.
func (h *paymentClaimHandler) apply(ctx context.Context, n *models.PaymentNotification) error {
	base := h.baseDelay
	if base <= 0 {
		base = applyBaseDelay
	}

	var err error
	for attempt := 0; attempt < applyAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(err, ctx.Err())
			case <-time.After(time.Duration(attempt) * base):
			}
		}
		err = h.handler.HandleNotification(ctx, n)
		if err == nil || status.CodeOf(err) != "" {
			return err
		}
	}
	return err
}
