package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/courier/direct-chat/internal/chat"
)

// Delivery publishes stored chat messages to the recipient's private NATS
// subject. It implements chat.Publisher.
type Delivery struct {
	nats *NATSClient
}

// NewDelivery creates a Delivery over the given NATS client.
func NewDelivery(nats *NATSClient) *Delivery {
	return &Delivery{nats: nats}
}

// SendToUser marshals the message and publishes it to dm.user.<username>.
// Publishing does not wait for any subscriber; a user with no live
// connection anywhere simply sees the message on their next history fetch.
func (d *Delivery) SendToUser(username string, m *chat.ChatMessage) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("messaging: marshal message %d: %w", m.ID, err)
	}
	if err := d.nats.PublishToUser(username, data); err != nil {
		return fmt.Errorf("messaging: publish to %s: %w", username, err)
	}
	return nil
}
