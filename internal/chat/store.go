package chat

import (
	"context"
	"time"

	"github.com/courier/direct-chat/internal/user"
)

// PartnerMaxID is one row of a grouped-maximum query: the highest message ID
// exchanged with the named partner in one direction.
type PartnerMaxID struct {
	Name  string
	MaxID int64
}

// SenderUnread is one row of the grouped unseen-count query: how many unseen
// messages the identified sender has addressed to the queried recipient.
type SenderUnread struct {
	SenderID int64
	Count    int64
}

// MessageStore is the durable storage contract the chat core depends on.
// Identifier uniqueness and read-after-write visibility are the store's
// responsibility; the core adds no locking of its own.
type MessageStore interface {
	// Insert persists a new message and returns the stored row with its
	// assigned identifier.
	Insert(ctx context.Context, m *ChatMessage) (*ChatMessage, error)

	// Page returns messages exchanged between a and b (both directions)
	// ordered by identifier, for offset/limit scroll-back pagination.
	Page(ctx context.Context, a, b user.User, offset, limit int) ([]ChatMessage, error)

	// MaxIDBySender returns, per distinct sender name, the maximum ID among
	// messages the recipient received from that sender.
	MaxIDBySender(ctx context.Context, recipient user.User) ([]PartnerMaxID, error)

	// MaxIDByRecipient returns, per distinct recipient name, the maximum ID
	// among messages the sender sent to that recipient.
	MaxIDByRecipient(ctx context.Context, sender user.User) ([]PartnerMaxID, error)

	// FindByIDs fetches the full rows for the given identifiers.
	FindByIDs(ctx context.Context, ids []int64) ([]ChatMessage, error)

	// UnseenFromSender returns the unseen messages sender has addressed to
	// recipient, ordered by identifier.
	UnseenFromSender(ctx context.Context, sender, recipient user.User) ([]ChatMessage, error)

	// CountUnseenBySender returns per-sender counts of unseen messages
	// addressed to recipient. Senders with nothing unseen are absent.
	CountUnseenBySender(ctx context.Context, recipient user.User) ([]SenderUnread, error)

	// CountUnseen returns the total number of unseen messages addressed to
	// recipient, across all senders.
	CountUnseen(ctx context.Context, recipient user.User) (int64, error)

	// UpdateSeenAt stamps a single message as seen. The mark-read operation
	// applies it per row; it is not a bulk update.
	UpdateSeenAt(ctx context.Context, id int64, seenAt time.Time) error
}

// Publisher delivers a stored message to a user's private real-time channel.
// Delivery is best-effort: implementations must not block on recipient
// connectivity, and a recipient with no live connection simply receives
// nothing until the next history fetch.
type Publisher interface {
	SendToUser(username string, m *ChatMessage) error
}
