package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryQueue_PublishReceiveAck(t *testing.T) {
	q := NewMemoryQueue(time.Minute)
	defer q.Close()
	ctx := context.Background()

	id, err := q.Publish(ctx, []byte(`{"k":"v"}`), map[string]string{AttrChannelType: "slack"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if id == "" {
		t.Fatal("empty message id")
	}

	msg, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(msg.Body) != `{"k":"v"}` {
		t.Errorf("Body = %q", msg.Body)
	}
	if msg.Attributes[AttrChannelType] != "slack" {
		t.Errorf("attributes not carried: %v", msg.Attributes)
	}
	if msg.DeliveryCount != 1 {
		t.Errorf("DeliveryCount = %d, want 1", msg.DeliveryCount)
	}

	if err := q.Ack(ctx, msg.ID); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	ready, pending := q.Depth()
	if ready != 0 || pending != 0 {
		t.Errorf("Depth after ack = (%d, %d), want (0, 0)", ready, pending)
	}
}

func TestMemoryQueue_RedeliveryBumpsCount(t *testing.T) {
	q := NewMemoryQueue(time.Minute)
	defer q.Close()
	ctx := context.Background()

	if _, err := q.Publish(ctx, []byte("x"), nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	first, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	q.Redeliver(first.ID)

	second, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive redelivery: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("redelivered id = %q, want %q", second.ID, first.ID)
	}
	if second.DeliveryCount != 2 {
		t.Errorf("DeliveryCount = %d, want 2", second.DeliveryCount)
	}
}

func TestMemoryQueue_UnackedExpiresBack(t *testing.T) {
	q := NewMemoryQueue(20 * time.Millisecond)
	defer q.Close()
	ctx := context.Background()

	if _, err := q.Publish(ctx, []byte("x"), nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := q.Receive(ctx); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	recvCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	msg, err := q.Receive(recvCtx)
	if err != nil {
		t.Fatalf("Receive after expiry: %v", err)
	}
	if msg.DeliveryCount != 2 {
		t.Errorf("DeliveryCount = %d, want 2", msg.DeliveryCount)
	}
}

func TestMemoryQueue_ReceiveHonorsContext(t *testing.T) {
	q := NewMemoryQueue(time.Minute)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := q.Receive(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
