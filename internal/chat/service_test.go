package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/courier/direct-chat/internal/user"
)

var (
	alice = user.User{ID: 1, Name: "alice"}
	bob   = user.User{ID: 2, Name: "bob"}
	carol = user.User{ID: 3, Name: "carol"}
)

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	svc := NewService(newMemDirectory(alice, bob, carol), store)
	return svc, store
}

func TestSubmit(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	before := time.Now().UTC()
	msg, err := svc.Submit(ctx, "alice", "bob", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.ID == 0 {
		t.Error("expected assigned identifier, got 0")
	}
	if msg.Sender != alice || msg.Recipient != bob {
		t.Errorf("wrong participants: sender=%+v recipient=%+v", msg.Sender, msg.Recipient)
	}
	if msg.SeenAt != nil {
		t.Errorf("expected nil SeenAt on fresh message, got %v", msg.SeenAt)
	}
	if msg.SentAt.Before(before) || msg.SentAt.After(time.Now().UTC()) {
		t.Errorf("SentAt %v not assigned at submission time", msg.SentAt)
	}

	// IDs are fresh and increasing.
	msg2, err := svc.Submit(ctx, "bob", "alice", "hi back")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg2.ID <= msg.ID {
		t.Errorf("expected id %d > %d", msg2.ID, msg.ID)
	}
}

func TestSubmitSelfMessage(t *testing.T) {
	svc, _ := newTestService()

	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := svc.Submit(context.Background(), name, name, "note to self")
		if !errors.Is(err, ErrInvalidRecipient) {
			t.Errorf("Submit(%s, %s): expected ErrInvalidRecipient, got %v", name, name, err)
		}
	}
}

func TestSubmitUnknownUsers(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "alice", "nobody", "hello"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown recipient: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Submit(ctx, "ghost", "bob", "hello"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown sender: expected ErrNotFound, got %v", err)
	}
}

func TestSubmitInvalidText(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"too many bytes", strings.Repeat("x", MaxMessageBytes+1)},
		{"too many chars", strings.Repeat("ü", MaxTextChars+1)},
		{"invalid utf8", "bad\xff"},
	}
	for _, tc := range cases {
		if _, err := svc.Submit(ctx, "alice", "bob", tc.text); !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("%s: expected ErrInvalidMessage, got %v", tc.name, err)
		}
	}
}

func TestMergeMaxIDs(t *testing.T) {
	// Sender-side maxima {A:5, B:2}, recipient-side maxima {B:7, C:3}:
	// the merge keeps the larger value per partner.
	received := []PartnerMaxID{{Name: "A", MaxID: 5}, {Name: "B", MaxID: 2}}
	sent := []PartnerMaxID{{Name: "B", MaxID: 7}, {Name: "C", MaxID: 3}}

	merged := mergeMaxIDs(received, sent)

	want := map[string]int64{"A": 5, "B": 7, "C": 3}
	if len(merged) != len(want) {
		t.Fatalf("expected %d partners, got %d (%v)", len(want), len(merged), merged)
	}
	for name, id := range want {
		if merged[name] != id {
			t.Errorf("partner %s: expected max id %d, got %d", name, id, merged[name])
		}
	}
}

func TestHistory(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	// alice <-> bob in both directions, alice <- carol one direction.
	mustSubmit(t, svc, "alice", "bob", "m1")   // id 1
	mustSubmit(t, svc, "bob", "alice", "m2")   // id 2
	mustSubmit(t, svc, "alice", "bob", "m3")   // id 3
	mustSubmit(t, svc, "carol", "alice", "m4") // id 4

	history, err := svc.History(ctx, &alice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(history))
	}

	byPartner := historyByPartner(t, history, &alice)

	if got := byPartner["bob"].Message.ID; got != 3 {
		t.Errorf("bob: expected representative id 3, got %d", got)
	}
	if got := byPartner["bob"].Unread; got != 1 {
		t.Errorf("bob: expected 1 unread (m2), got %d", got)
	}
	if got := byPartner["carol"].Message.ID; got != 4 {
		t.Errorf("carol: expected representative id 4, got %d", got)
	}
	if got := byPartner["carol"].Unread; got != 1 {
		t.Errorf("carol: expected 1 unread (m4), got %d", got)
	}
}

func TestHistorySingleDirectionPartner(t *testing.T) {
	svc, _ := newTestService()

	// Only one message in one direction still yields a history row.
	mustSubmit(t, svc, "alice", "bob", "one-way")

	for _, tc := range []struct {
		caller  *user.User
		partner string
		unread  int64
	}{
		{&alice, "bob", 0},
		{&bob, "alice", 1},
	} {
		history, err := svc.History(context.Background(), tc.caller)
		if err != nil {
			t.Fatalf("history(%s): %v", tc.caller.Name, err)
		}
		if len(history) != 1 {
			t.Fatalf("history(%s): expected 1 row, got %d", tc.caller.Name, len(history))
		}
		partner, _ := history[0].Message.Partner(tc.caller)
		if partner.Name != tc.partner {
			t.Errorf("history(%s): expected partner %s, got %s", tc.caller.Name, tc.partner, partner.Name)
		}
		if history[0].Unread != tc.unread {
			t.Errorf("history(%s): expected unread %d, got %d", tc.caller.Name, tc.unread, history[0].Unread)
		}
	}
}

func TestHistoryIdempotent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	mustSubmit(t, svc, "alice", "bob", "m1")
	mustSubmit(t, svc, "bob", "alice", "m2")
	mustSubmit(t, svc, "carol", "alice", "m3")

	first, err := svc.History(ctx, &alice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.History(ctx, &alice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a := historyByPartner(t, first, &alice)
	b := historyByPartner(t, second, &alice)
	if len(a) != len(b) {
		t.Fatalf("row counts differ: %d vs %d", len(a), len(b))
	}
	for name, row := range a {
		other, ok := b[name]
		if !ok {
			t.Errorf("partner %s missing from second call", name)
			continue
		}
		if row.Message.ID != other.Message.ID || row.Unread != other.Unread {
			t.Errorf("partner %s: rows differ: (%d,%d) vs (%d,%d)",
				name, row.Message.ID, row.Unread, other.Message.ID, other.Unread)
		}
	}
}

// corruptStore returns a foreign row from FindByIDs to simulate a message
// store whose grouped maxima point at a row that belongs to other users.
type corruptStore struct {
	*memStore
}

func (s *corruptStore) FindByIDs(ctx context.Context, ids []int64) ([]ChatMessage, error) {
	return []ChatMessage{
		{ID: ids[0], Sender: bob, Recipient: carol, Text: "stray", SentAt: time.Now().UTC()},
	}, nil
}

func TestHistoryCorruptRow(t *testing.T) {
	store := &corruptStore{memStore: newMemStore()}
	svc := NewService(newMemDirectory(alice, bob, carol), store)

	mustSubmit(t, svc, "bob", "alice", "hello")

	// The fetched row references neither side as alice: a data-integrity
	// violation reported as NotFound.
	if _, err := svc.History(context.Background(), &alice); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for corrupt row, got %v", err)
	}
}

func TestUnreadCounts(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	// bob sends 3 to alice; alice marks read; bob sends 1 more.
	mustSubmit(t, svc, "bob", "alice", "one")
	mustSubmit(t, svc, "bob", "alice", "two")
	mustSubmit(t, svc, "bob", "alice", "three")

	if err := svc.MarkConversationRead(ctx, &alice, "bob"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mustSubmit(t, svc, "bob", "alice", "four")

	counts, err := svc.UnreadCountsBySender(ctx, &alice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(counts) != 1 || counts[bob.ID] != 1 {
		t.Errorf("expected exactly {bob: 1}, got %v", counts)
	}
}

func TestUnreadTotalMatchesPerSenderSum(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	mustSubmit(t, svc, "bob", "alice", "b1")
	mustSubmit(t, svc, "bob", "alice", "b2")
	mustSubmit(t, svc, "carol", "alice", "c1")
	mustSubmit(t, svc, "alice", "bob", "outbound") // not addressed to alice

	counts, err := svc.UnreadCountsBySender(ctx, &alice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sum int64
	for _, n := range counts {
		sum += n
	}

	total, err := svc.UnreadTotal(ctx, &alice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != sum {
		t.Errorf("total %d != per-sender sum %d", total, sum)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
}

func TestMarkConversationRead(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	mustSubmit(t, svc, "bob", "alice", "one")
	mustSubmit(t, svc, "bob", "alice", "two")

	if err := svc.MarkConversationRead(ctx, &alice, "bob"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Every previously-unseen bob->alice message carries the same timestamp.
	var seen []time.Time
	for _, m := range store.messages {
		if m.Sender.ID == bob.ID && m.Recipient.ID == alice.ID {
			if m.SeenAt == nil {
				t.Fatalf("message %d still unseen", m.ID)
			}
			seen = append(seen, *m.SeenAt)
		}
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 marked messages, got %d", len(seen))
	}
	if !seen[0].Equal(seen[1]) {
		t.Errorf("expected one shared seen timestamp, got %v and %v", seen[0], seen[1])
	}
}

func TestMarkConversationReadNoop(t *testing.T) {
	svc, store := newTestService()

	// Nothing unseen from carol: no writes at all.
	mustSubmit(t, svc, "bob", "alice", "unrelated")
	beforeLen := len(store.messages)

	if err := svc.MarkConversationRead(context.Background(), &alice, "carol"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.messages) != beforeLen {
		t.Error("mark-read performed unexpected writes")
	}
	for _, m := range store.messages {
		if m.SeenAt != nil {
			t.Errorf("message %d unexpectedly marked seen", m.ID)
		}
	}
}

func TestMarkConversationReadUnknownPartner(t *testing.T) {
	svc, _ := newTestService()
	if err := svc.MarkConversationRead(context.Background(), &alice, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestExchangeScenario walks the m1/m2/m3 exchange end to end: history for
// bob shows one row for alice with m3 as representative and 2 unread, then
// mark-read drops the unread count and the global badge to zero.
func TestExchangeScenario(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	m1 := mustSubmit(t, svc, "alice", "bob", "m1")
	m2 := mustSubmit(t, svc, "bob", "alice", "m2")
	m3 := mustSubmit(t, svc, "alice", "bob", "m3")
	if m1.ID != 1 || m2.ID != 2 || m3.ID != 3 {
		t.Fatalf("unexpected ids: %d, %d, %d", m1.ID, m2.ID, m3.ID)
	}

	history, err := svc.History(ctx, &bob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 history row for bob, got %d", len(history))
	}
	if history[0].Message.ID != m3.ID {
		t.Errorf("expected representative message %d, got %d", m3.ID, history[0].Message.ID)
	}
	if history[0].Unread != 2 {
		t.Errorf("expected 2 unread (m1, m3), got %d", history[0].Unread)
	}

	if err := svc.MarkConversationRead(ctx, &bob, "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	counts, err := svc.UnreadCountsBySender(ctx, &bob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts[alice.ID] != 0 {
		t.Errorf("expected 0 unread from alice after mark-read, got %d", counts[alice.ID])
	}

	total, err := svc.UnreadTotal(ctx, &bob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 {
		t.Errorf("expected unread total 0 after mark-read, got %d", total)
	}
}

func TestConversationPage(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		mustSubmit(t, svc, "alice", "bob", "a")
		mustSubmit(t, svc, "bob", "alice", "b")
	}
	mustSubmit(t, svc, "carol", "alice", "noise")

	page, err := svc.ConversationPage(ctx, &alice, "bob", 2, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(page))
	}
	// Ordered by identifier; the carol message never appears.
	for i, m := range page {
		if i > 0 && page[i-1].ID >= m.ID {
			t.Errorf("page not ordered by id: %d then %d", page[i-1].ID, m.ID)
		}
		if m.Sender.ID == carol.ID || m.Recipient.ID == carol.ID {
			t.Errorf("message %d leaked from another conversation", m.ID)
		}
	}

	if _, err := svc.ConversationPage(ctx, &alice, "nobody", 0, 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown partner, got %v", err)
	}
}

func mustSubmit(t *testing.T, svc *Service, from, to, text string) *ChatMessage {
	t.Helper()
	msg, err := svc.Submit(context.Background(), from, to, text)
	if err != nil {
		t.Fatalf("Submit(%s, %s): %v", from, to, err)
	}
	return msg
}

func historyByPartner(t *testing.T, history []ChatHistoryData, caller *user.User) map[string]ChatHistoryData {
	t.Helper()
	byPartner := make(map[string]ChatHistoryData, len(history))
	for _, row := range history {
		partner, ok := row.Message.Partner(caller)
		if !ok {
			t.Fatalf("message %d references neither side as %s", row.Message.ID, caller.Name)
		}
		if _, dup := byPartner[partner.Name]; dup {
			t.Fatalf("duplicate history row for partner %s", partner.Name)
		}
		byPartner[partner.Name] = row
	}
	return byPartner
}
