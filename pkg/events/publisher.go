package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

const TopicTaskEvents = "task.events"

// Publisher enqueues task-lifecycle events onto the durable task events
// topic. Publishing is one-way: a failure is logged and swallowed so that a
// committed mutation is never rolled back because the broker was unreachable.
// Transport-level retries are the sarama client's concern.
type Publisher struct {
	producer sarama.SyncProducer
	logger   *zap.Logger
}

func NewPublisher(brokers []string, logger *zap.Logger) (*Publisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	return &Publisher{producer: producer, logger: logger}, nil
}

// NewPublisherFromSarama wraps an existing sarama producer. Used by tests.
func NewPublisherFromSarama(producer sarama.SyncProducer, logger *zap.Logger) *Publisher {
	return &Publisher{producer: producer, logger: logger}
}

// Publish enqueues one event. The returned error is informational only;
// callers on the mutation path should use Fire instead.
func (p *Publisher) Publish(ctx context.Context, evt *Envelope) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", evt.ID, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: TopicTaskEvents,
		Key:   sarama.StringEncoder(evt.Type),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send event %s: %w", evt.ID, err)
	}

	p.logger.Debug("event published",
		zap.String("event_id", evt.ID),
		zap.String("type", string(evt.Type)),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Fire publishes without reporting back to the caller. Broker errors are
// logged; the mutation that produced the event stands regardless.
func (p *Publisher) Fire(ctx context.Context, evt *Envelope) {
	if err := p.Publish(ctx, evt); err != nil {
		p.logger.Warn("event publish failed",
			zap.String("event_id", evt.ID),
			zap.String("type", string(evt.Type)),
			zap.Error(err))
	}
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
