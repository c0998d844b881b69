package chat

import (
	"context"
	"errors"
	"testing"
)

// capturePublisher records delivered messages and optionally fails.
type capturePublisher struct {
	delivered []*ChatMessage
	err       error
}

func (p *capturePublisher) SendToUser(username string, m *ChatMessage) error {
	if p.err != nil {
		return p.err
	}
	p.delivered = append(p.delivered, m)
	return nil
}

func TestHandleInboundDelivers(t *testing.T) {
	svc, _ := newTestService()
	pub := &capturePublisher{}
	d := NewDispatcher(svc, pub)

	d.HandleInbound(context.Background(), "alice", "bob", "hello")

	if len(pub.delivered) != 1 {
		t.Fatalf("expected 1 delivered message, got %d", len(pub.delivered))
	}
	m := pub.delivered[0]
	if m.ID == 0 {
		t.Error("delivered message has no assigned identifier")
	}
	if m.Sender.Name != "alice" || m.Recipient.Name != "bob" {
		t.Errorf("wrong participants: %s -> %s", m.Sender.Name, m.Recipient.Name)
	}
	if m.SeenAt != nil {
		t.Error("delivered message should be unseen")
	}
}

// Failed sends are dropped: nothing is delivered, nothing persisted, and no
// error surfaces to the connection.
func TestHandleInboundDropsFailures(t *testing.T) {
	svc, store := newTestService()
	pub := &capturePublisher{}
	d := NewDispatcher(svc, pub)
	ctx := context.Background()

	d.HandleInbound(ctx, "alice", "alice", "self")    // invalid recipient
	d.HandleInbound(ctx, "alice", "nobody", "ghost")  // unknown recipient
	d.HandleInbound(ctx, "nobody", "bob", "ghost")    // unknown sender
	d.HandleInbound(ctx, "alice", "bob", "")          // invalid text

	if len(pub.delivered) != 0 {
		t.Errorf("expected no deliveries, got %d", len(pub.delivered))
	}
	if len(store.messages) != 0 {
		t.Errorf("expected no persisted messages, got %d", len(store.messages))
	}
}

// A publish failure after a successful store is swallowed: the message stays
// durable and shows up in history regardless.
func TestHandleInboundPublishFailureIsBestEffort(t *testing.T) {
	svc, store := newTestService()
	pub := &capturePublisher{err: errors.New("no route")}
	d := NewDispatcher(svc, pub)

	d.HandleInbound(context.Background(), "alice", "bob", "hello")

	if len(store.messages) != 1 {
		t.Fatalf("expected message persisted despite delivery failure, got %d", len(store.messages))
	}

	history, err := svc.History(context.Background(), &bob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 || history[0].Unread != 1 {
		t.Errorf("expected the message in bob's history with 1 unread, got %+v", history)
	}
}
