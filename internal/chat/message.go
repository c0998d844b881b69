// Package chat implements the core of the direct-messaging feature: the
// persistence gateway that validates and stores messages, the real-time
// dispatcher that forwards stored messages to the recipient's delivery
// channel, and the inbox view (one row per conversation partner with an
// unread count).
package chat

import (
	"time"

	"github.com/courier/direct-chat/internal/user"
)

// ChatMessage is the durable unit of a 1:1 conversation. ID is assigned by
// the message store on insert and is monotonically increasing, so it doubles
// as the "most recent" ordering for conversations. SeenAt is nil until the
// recipient marks the conversation read; once set it is never cleared.
type ChatMessage struct {
	ID        int64      `json:"id"`
	Sender    user.User  `json:"sender"`
	Recipient user.User  `json:"recipient"`
	Text      string     `json:"text"`
	SentAt    time.Time  `json:"sent_at"`
	SeenAt    *time.Time `json:"seen_at,omitempty"`
}

// Partner returns the participant of the message that is not u, plus true
// when u is actually one of the two sides. The false return signals a
// corrupt row: a message fetched for u that references neither side as u.
func (m *ChatMessage) Partner(u *user.User) (user.User, bool) {
	switch u.ID {
	case m.Sender.ID:
		return m.Recipient, true
	case m.Recipient.ID:
		return m.Sender, true
	}
	return user.User{}, false
}

// ChatHistoryData is one row of the inbox view: the most recent message
// exchanged with a partner (in either direction) and the number of that
// partner's messages the caller has not yet seen. It is recomputed on every
// history request and never persisted.
type ChatHistoryData struct {
	Message ChatMessage `json:"message"`
	Unread  int64       `json:"unread"`
}
