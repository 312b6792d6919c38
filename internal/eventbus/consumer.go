package eventbus

import (
	"context"
	"log"

	"github.com/segmentio/kafka-go"
)

// Consumer reads JSON-encoded events off a Kafka topic. Delivery is at-least-once;
// handlers passed to Run must be idempotent by event_id, per spec.md §4.5.
type Consumer struct {
	reader *kafka.Reader
	topic  Topic
}

// NewConsumer returns a Consumer reading topic on the given brokers as part of
// consumer group groupID. A nil Consumer is returned (not an error) when brokers is
// empty, so callers can construct one unconditionally and have Run/Close degrade to
// no-ops, the same nil-safety Producer offers.
func NewConsumer(brokers []string, topic Topic, groupID string) *Consumer {
	if len(brokers) == 0 {
		return nil
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   string(topic),
			GroupID: groupID,
		}),
		topic: topic,
	}
}

// Run reads messages until ctx is cancelled, invoking handle with each message's
// routing key and JSON payload. A handler error is logged and never stops the loop —
// one bad message must not wedge the consumer.
func (c *Consumer) Run(ctx context.Context, handle func(routingKey string, payload []byte) error) {
	if c == nil || c.reader == nil {
		return
	}
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("eventbus: consumer read from %s failed: %v", c.topic, err)
			continue
		}
		if err := handle(string(msg.Key), msg.Value); err != nil {
			log.Printf("eventbus: consumer handler for %s failed: %v", c.topic, err)
		}
	}
}

// Close closes the underlying Kafka reader. Safe to call on a nil Consumer.
func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
