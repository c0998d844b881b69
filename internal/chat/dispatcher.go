package chat

import (
	"context"
	"log"

	"github.com/courier/direct-chat/internal/metrics"
)

// Dispatcher is the real-time delivery path: it runs an inbound send event
// through the persistence gateway and, only on success, forwards the stored
// message to the recipient's private channel.
//
// Failed sends are dropped without an acknowledgment to the sender. A
// malformed or unauthorized send must not kill the connection or leak why
// it failed.
type Dispatcher struct {
	svc *Service
	pub Publisher
}

// NewDispatcher creates a Dispatcher around the given service and publisher.
func NewDispatcher(svc *Service, pub Publisher) *Dispatcher {
	return &Dispatcher{svc: svc, pub: pub}
}

// HandleInbound processes one send event from an authenticated connection.
// Events from a single connection are handed to it in arrival order by the
// transport layer; no ordering holds across connections.
func (d *Dispatcher) HandleInbound(ctx context.Context, callerName, recipientName, text string) {
	msg, err := d.svc.Submit(ctx, callerName, recipientName, text)
	if err != nil {
		// Fire-and-forget: drop the event, nothing goes back to the sender.
		log.Printf("[dispatch] dropped send from=%s to=%s: %v", callerName, recipientName, err)
		metrics.MessagesTotal.WithLabelValues("dropped").Inc()
		return
	}
	metrics.MessagesTotal.WithLabelValues("stored").Inc()

	// Delivery is best-effort; the message is already durable and will show
	// up in the recipient's next history fetch regardless.
	if err := d.pub.SendToUser(msg.Recipient.Name, msg); err != nil {
		log.Printf("[dispatch] delivery to %s failed for message %d: %v",
			msg.Recipient.Name, msg.ID, err)
		return
	}
	metrics.DeliveriesTotal.Inc()
}
