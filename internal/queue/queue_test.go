package queue

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewInMemory(4)
	if err := q.Publish(ctx, Message{Type: "join.audit", Body: []byte(`{"session_id":"s1"}`)}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	select {
	case msg := <-messages:
		if msg.Type != "join.audit" {
			t.Fatalf("unexpected message type %q", msg.Type)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for message")
	}
}

func TestInMemoryPublishRespectsContext(t *testing.T) {
	q := NewInMemory(1)
	ctx := context.Background()
	if err := q.Publish(ctx, Message{Type: "a"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	// Queue is full; a cancelled context must unblock the publisher.
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Publish(cancelled, Message{Type: "b"}); err == nil {
		t.Fatalf("expected context error on full queue")
	}
}
