package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/courier/direct-chat/internal/user"
)

// Service implements the message persistence gateway, the conversation
// history aggregation, and unread-state tracking. It is stateless between
// invocations; the message store is the only shared mutable resource, and
// the current caller is always passed in explicitly.
type Service struct {
	users user.Directory
	store MessageStore
}

// NewService creates a Service backed by the given directory and store.
func NewService(users user.Directory, store MessageStore) *Service {
	return &Service{users: users, store: store}
}

// Submit validates and persists an incoming message from senderName to
// recipientName. It returns ErrNotFound when either name is unresolvable,
// ErrInvalidRecipient for self-messages, and ErrInvalidMessage for text that
// fails content validation. On success the returned message carries the
// store-assigned identifier, a fresh sent timestamp, and a nil seen
// timestamp. Persistence is single-attempt; store failures propagate.
func (s *Service) Submit(ctx context.Context, senderName, recipientName, text string) (*ChatMessage, error) {
	if err := ValidateText(text); err != nil {
		return nil, err
	}

	sender, err := s.resolve(ctx, senderName)
	if err != nil {
		return nil, err
	}
	recipient, err := s.resolve(ctx, recipientName)
	if err != nil {
		return nil, err
	}

	// Identity equality, not name equality.
	if recipient.ID == sender.ID {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRecipient, senderName)
	}

	msg := &ChatMessage{
		Sender:    *sender,
		Recipient: *recipient,
		Text:      text,
		SentAt:    time.Now().UTC(),
	}

	stored, err := s.store.Insert(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("chat: insert message: %w", err)
	}
	return stored, nil
}

// History builds the caller's inbox view: one entry per distinct
// conversation partner, carrying the most recent message exchanged with that
// partner (in either direction) and the partner's unread count.
//
// The representative message per partner is found by merging two grouped
// maxima: the highest ID received from each sender and the highest ID sent
// to each recipient. A partner present in only one direction is still
// included; for a partner in both, the larger ID wins.
func (s *Service) History(ctx context.Context, caller *user.User) ([]ChatHistoryData, error) {
	received, err := s.store.MaxIDBySender(ctx, *caller)
	if err != nil {
		return nil, fmt.Errorf("chat: history received maxima: %w", err)
	}
	sent, err := s.store.MaxIDByRecipient(ctx, *caller)
	if err != nil {
		return nil, fmt.Errorf("chat: history sent maxima: %w", err)
	}

	ids := mergeMaxIDs(received, sent)
	// Guard against edge cases where a grouped key is the caller itself.
	delete(ids, caller.Name)

	if len(ids) == 0 {
		return []ChatHistoryData{}, nil
	}

	idSet := make([]int64, 0, len(ids))
	for _, id := range ids {
		idSet = append(idSet, id)
	}

	messages, err := s.store.FindByIDs(ctx, idSet)
	if err != nil {
		return nil, fmt.Errorf("chat: history fetch: %w", err)
	}

	unread, err := s.UnreadCountsBySender(ctx, caller)
	if err != nil {
		return nil, err
	}

	history := make([]ChatHistoryData, 0, len(messages))
	for i := range messages {
		partner, ok := messages[i].Partner(caller)
		if !ok {
			return nil, fmt.Errorf("%w: message %d references neither side as %q",
				ErrNotFound, messages[i].ID, caller.Name)
		}
		history = append(history, ChatHistoryData{
			Message: messages[i],
			Unread:  unread[partner.ID], // zero when the partner has nothing unseen
		})
	}
	return history, nil
}

// mergeMaxIDs merges the two per-partner maxima maps, keeping the larger ID
// for partners present in both directions. An absent direction does not
// contribute and never suppresses the other.
func mergeMaxIDs(a, b []PartnerMaxID) map[string]int64 {
	merged := make(map[string]int64, len(a)+len(b))
	for _, row := range a {
		merged[row.Name] = row.MaxID
	}
	for _, row := range b {
		if prev, ok := merged[row.Name]; !ok || row.MaxID > prev {
			merged[row.Name] = row.MaxID
		}
	}
	return merged
}

// ConversationPage returns one page of the conversation between the caller
// and the named partner, ordered by message identifier, for scroll-back.
func (s *Service) ConversationPage(ctx context.Context, caller *user.User, partnerName string, offset, limit int) ([]ChatMessage, error) {
	partner, err := s.resolve(ctx, partnerName)
	if err != nil {
		return nil, err
	}
	page, err := s.store.Page(ctx, *caller, *partner, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("chat: conversation page: %w", err)
	}
	return page, nil
}

// UnreadCountsBySender returns the number of unseen messages addressed to
// the caller, grouped by sender ID. Senders with nothing unseen are absent
// from the map.
func (s *Service) UnreadCountsBySender(ctx context.Context, caller *user.User) (map[int64]int64, error) {
	rows, err := s.store.CountUnseenBySender(ctx, *caller)
	if err != nil {
		return nil, fmt.Errorf("chat: unread counts: %w", err)
	}
	counts := make(map[int64]int64, len(rows))
	for _, row := range rows {
		counts[row.SenderID] = row.Count
	}
	return counts, nil
}

// UnreadTotal returns the total number of unseen messages addressed to the
// caller across all senders, for the global inbox badge.
func (s *Service) UnreadTotal(ctx context.Context, caller *user.User) (int64, error) {
	total, err := s.store.CountUnseen(ctx, *caller)
	if err != nil {
		return 0, fmt.Errorf("chat: unread total: %w", err)
	}
	return total, nil
}

// MarkConversationRead stamps every unseen message from partnerName to the
// caller with a single shared seen timestamp. The update is applied per row,
// not as one bulk write, so a mid-batch failure leaves earlier rows marked;
// concurrent new messages from the same sender may or may not be included.
// When nothing is unseen this performs no writes.
func (s *Service) MarkConversationRead(ctx context.Context, caller *user.User, partnerName string) error {
	partner, err := s.resolve(ctx, partnerName)
	if err != nil {
		return err
	}

	messages, err := s.store.UnseenFromSender(ctx, *partner, *caller)
	if err != nil {
		return fmt.Errorf("chat: fetch unseen: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	seenAt := time.Now().UTC()
	for i := range messages {
		if err := s.store.UpdateSeenAt(ctx, messages[i].ID, seenAt); err != nil {
			return fmt.Errorf("chat: mark seen message %d: %w", messages[i].ID, err)
		}
	}
	return nil
}

// resolve looks a name up in the directory, mapping both lookup failures and
// missing users onto the core error taxonomy.
func (s *Service) resolve(ctx context.Context, name string) (*user.User, error) {
	u, err := s.users.ByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("chat: resolve %q: %w", name, err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return u, nil
}
