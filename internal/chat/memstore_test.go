package chat

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/courier/direct-chat/internal/user"
)

// memDirectory is an in-memory user.Directory for tests.
type memDirectory struct {
	users map[string]user.User
}

func newMemDirectory(users ...user.User) *memDirectory {
	d := &memDirectory{users: make(map[string]user.User, len(users))}
	for _, u := range users {
		d.users[u.Name] = u
	}
	return d
}

func (d *memDirectory) ByName(_ context.Context, name string) (*user.User, error) {
	u, ok := d.users[name]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// memStore is an in-memory MessageStore with the same observable semantics
// as the SQL implementation: monotonically increasing IDs and grouped
// queries keyed the same way.
type memStore struct {
	nextID   int64
	messages []ChatMessage
}

func newMemStore() *memStore {
	return &memStore{nextID: 1}
}

func (s *memStore) Insert(_ context.Context, m *ChatMessage) (*ChatMessage, error) {
	stored := *m
	stored.ID = s.nextID
	s.nextID++
	s.messages = append(s.messages, stored)
	return &stored, nil
}

func (s *memStore) Page(_ context.Context, a, b user.User, offset, limit int) ([]ChatMessage, error) {
	var page []ChatMessage
	for _, m := range s.messages {
		if (m.Sender.ID == a.ID && m.Recipient.ID == b.ID) ||
			(m.Sender.ID == b.ID && m.Recipient.ID == a.ID) {
			page = append(page, m)
		}
	}
	if offset >= len(page) {
		return []ChatMessage{}, nil
	}
	page = page[offset:]
	if limit > 0 && limit < len(page) {
		page = page[:limit]
	}
	return page, nil
}

func (s *memStore) MaxIDBySender(_ context.Context, recipient user.User) ([]PartnerMaxID, error) {
	maxima := make(map[string]int64)
	for _, m := range s.messages {
		if m.Recipient.ID == recipient.ID && m.ID > maxima[m.Sender.Name] {
			maxima[m.Sender.Name] = m.ID
		}
	}
	return toPartnerRows(maxima), nil
}

func (s *memStore) MaxIDByRecipient(_ context.Context, sender user.User) ([]PartnerMaxID, error) {
	maxima := make(map[string]int64)
	for _, m := range s.messages {
		if m.Sender.ID == sender.ID && m.ID > maxima[m.Recipient.Name] {
			maxima[m.Recipient.Name] = m.ID
		}
	}
	return toPartnerRows(maxima), nil
}

func toPartnerRows(maxima map[string]int64) []PartnerMaxID {
	rows := make([]PartnerMaxID, 0, len(maxima))
	for name, id := range maxima {
		rows = append(rows, PartnerMaxID{Name: name, MaxID: id})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}

func (s *memStore) FindByIDs(_ context.Context, ids []int64) ([]ChatMessage, error) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var found []ChatMessage
	for _, m := range s.messages {
		if want[m.ID] {
			found = append(found, m)
		}
	}
	return found, nil
}

func (s *memStore) UnseenFromSender(_ context.Context, sender, recipient user.User) ([]ChatMessage, error) {
	var unseen []ChatMessage
	for _, m := range s.messages {
		if m.Sender.ID == sender.ID && m.Recipient.ID == recipient.ID && m.SeenAt == nil {
			unseen = append(unseen, m)
		}
	}
	return unseen, nil
}

func (s *memStore) CountUnseenBySender(_ context.Context, recipient user.User) ([]SenderUnread, error) {
	counts := make(map[int64]int64)
	for _, m := range s.messages {
		if m.Recipient.ID == recipient.ID && m.SeenAt == nil {
			counts[m.Sender.ID]++
		}
	}
	rows := make([]SenderUnread, 0, len(counts))
	for id, n := range counts {
		rows = append(rows, SenderUnread{SenderID: id, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SenderID < rows[j].SenderID })
	return rows, nil
}

func (s *memStore) CountUnseen(_ context.Context, recipient user.User) (int64, error) {
	var total int64
	for _, m := range s.messages {
		if m.Recipient.ID == recipient.ID && m.SeenAt == nil {
			total++
		}
	}
	return total, nil
}

func (s *memStore) UpdateSeenAt(_ context.Context, id int64, seenAt time.Time) error {
	for i := range s.messages {
		if s.messages[i].ID == id {
			ts := seenAt
			s.messages[i].SeenAt = &ts
			return nil
		}
	}
	return fmt.Errorf("memstore: message %d not found", id)
}

// inject places a pre-built message into the store with an explicit ID,
// bypassing Insert, for tests that need corrupt or hand-crafted rows.
func (s *memStore) inject(m ChatMessage) {
	s.messages = append(s.messages, m)
	if m.ID >= s.nextID {
		s.nextID = m.ID + 1
	}
}
