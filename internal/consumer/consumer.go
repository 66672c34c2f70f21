// Package consumer subscribes to the task events topic and drives the
// notification fan-out.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"notification-service/pkg/events"
)

type Consumer struct {
	group      sarama.ConsumerGroup
	dispatcher *Dispatcher
	dedup      Deduper
	logger     *zap.Logger
}

// NewConsumer builds the consumer group client. A broker that cannot be
// reached here is fatal to startup: the service must not report ready
// without its event source.
func NewConsumer(
	brokers []string,
	groupID string,
	dispatcher *Dispatcher,
	dedup Deduper,
	logger *zap.Logger,
) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V3_0_0_0
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Group.Session.Timeout = 20 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 6 * time.Second
	config.Consumer.MaxProcessingTime = 30 * time.Second

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Consumer{
		group:      group,
		dispatcher: dispatcher,
		dedup:      dedup,
		logger:     logger,
	}, nil
}

// Start consumes until ctx is cancelled. Claims for distinct partitions
// run concurrently; within a claim, events are handled in enqueue order.
func (c *Consumer) Start(ctx context.Context) error {
	topics := []string{events.TopicTaskEvents}
	handler := &groupHandler{consumer: c}

	for {
		if err := c.group.Consume(ctx, topics, handler); err != nil {
			c.logger.Error("consumer group error", zap.Error(err))
		}
		if ctx.Err() != nil {
			c.logger.Info("context cancelled, consumer shutting down")
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

// groupHandler implements sarama.ConsumerGroupHandler.
type groupHandler struct {
	consumer *Consumer
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.consumer.logger.Info("consumer group session started")
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.consumer.logger.Info("consumer group session ended")
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	c := h.consumer
	for message := range claim.Messages() {
		var evt events.Envelope
		if err := json.Unmarshal(message.Value, &evt); err != nil {
			c.logger.Error("failed to unmarshal event, dropping",
				zap.Int64("offset", message.Offset),
				zap.Error(err))
			session.MarkMessage(message, "")
			continue
		}

		seen, err := c.dedup.Seen(session.Context(), evt.ID)
		if err != nil {
			c.logger.Warn("dedup check failed, processing anyway",
				zap.String("event_id", evt.ID),
				zap.Error(err))
		}
		if seen {
			c.logger.Info("duplicate event, skipping",
				zap.String("event_id", evt.ID),
				zap.String("type", string(evt.Type)))
			session.MarkMessage(message, "")
			continue
		}

		created, err := c.dispatcher.Dispatch(session.Context(), &evt)
		if err != nil {
			// Stop the claim without committing this offset. Offset
			// commits are high-water marks, so marking any later message
			// would commit past the failed one; ending the claim makes
			// the group resume from here and redeliver the event.
			c.logger.Error("event handling failed",
				zap.String("event_id", evt.ID),
				zap.String("type", string(evt.Type)),
				zap.Error(err))
			return fmt.Errorf("handle event %s: %w", evt.ID, err)
		}

		// Mark the id only after the handler succeeded; a redelivered
		// event that failed last time must not look like a duplicate.
		if err := c.dedup.Mark(session.Context(), evt.ID); err != nil {
			c.logger.Warn("dedup mark failed",
				zap.String("event_id", evt.ID),
				zap.Error(err))
		}

		c.logger.Info("event handled",
			zap.String("event_id", evt.ID),
			zap.String("type", string(evt.Type)),
			zap.Int("notifications", created))
		session.MarkMessage(message, "")
	}
	return nil
}
