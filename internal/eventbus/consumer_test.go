package eventbus

import (
	"context"
	"testing"
)

func TestNewConsumer_EmptyBrokersReturnsNil(t *testing.T) {
	c := NewConsumer(nil, TopicAuthEvents, "group")
	if c != nil {
		t.Fatal("NewConsumer with no brokers should return nil")
	}
}

func TestConsumer_RunOnNilIsNoop(t *testing.T) {
	var c *Consumer
	called := false
	c.Run(context.Background(), func(routingKey string, payload []byte) error {
		called = true
		return nil
	})
	if called {
		t.Error("Run on nil consumer should never invoke the handler")
	}
}

func TestConsumer_CloseOnNilIsNoop(t *testing.T) {
	var c *Consumer
	if err := c.Close(); err != nil {
		t.Fatalf("Close on nil consumer should be a no-op, got %v", err)
	}
}

func TestConsumer_RunStopsWhenContextCancelled(t *testing.T) {
	c := NewConsumer([]string{"127.0.0.1:1"}, TopicAuthEvents, "group")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		c.Run(ctx, func(routingKey string, payload []byte) error { return nil })
		close(done)
	}()
	<-done
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
