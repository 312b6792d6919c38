package eventbus

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// publishTimeout bounds a single broker write so the request-handling goroutine is never
// starved by a TCP stall to the broker (spec.md §5: broker publish <= 1s, best-effort).
const publishTimeout = time.Second

// Producer publishes JSON-encoded events to a Kafka topic. Callers use it best-effort:
// PublishAsync logs and swallows errors rather than propagating them to the request path.
type Producer struct {
	writer *kafka.Writer
	topic  Topic
}

// NewProducer returns a Producer writing to topic on the given brokers. A nil Producer
// is returned (not an error) when brokers is empty, so callers can construct one
// unconditionally and have Publish/PublishAsync degrade to no-ops.
func NewProducer(brokers []string, topic Topic) *Producer {
	if len(brokers) == 0 {
		return nil
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        string(topic),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
		},
		topic: topic,
	}
}

// Publish serializes event as JSON and writes it with routingKey as the message key, so
// consumers partition/filter by routing key the way a topic-exchange binding would.
func (p *Producer) Publish(ctx context.Context, routingKey string, event interface{}) error {
	if p == nil || p.writer == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(routingKey),
		Value: payload,
	})
}

// PublishAsync runs Publish in a goroutine so the caller's request path is never blocked
// by a broker stall. Errors are logged, never returned; a broker outage must degrade to
// "no audit events", not "no logins".
func (p *Producer) PublishAsync(routingKey string, event interface{}) {
	if p == nil || p.writer == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.Publish(ctx, routingKey, event); err != nil {
			log.Printf("eventbus: async publish to %s failed: %v", p.topic, err)
		}
	}()
}

// Close closes the underlying Kafka writer. Safe to call on a nil Producer.
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
