package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/courier/direct-chat/internal/chat"
	"github.com/courier/direct-chat/internal/user"
)

// MessageStore is the PostgreSQL implementation of chat.MessageStore.
// Messages reference users by id; queries join the users table twice so
// every returned row carries full sender and recipient records.
type MessageStore struct {
	db *sql.DB
}

// NewMessageStore creates a message store backed by the given database handle.
func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

// selectMessage is the shared projection for full-row queries.
const selectMessage = `
	SELECT m.id,
	       s.id, s.name,
	       r.id, r.name,
	       m.body, m.sent_at, m.seen_at
	FROM chat_messages m
	JOIN users s ON s.id = m.sender_id
	JOIN users r ON r.id = m.recipient_id`

// Insert persists a message and returns the stored row with its assigned id.
func (s *MessageStore) Insert(ctx context.Context, m *chat.ChatMessage) (*chat.ChatMessage, error) {
	const query = `
		INSERT INTO chat_messages (sender_id, recipient_id, body, sent_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	stored := *m
	err := s.db.QueryRowContext(ctx, query,
		m.Sender.ID, m.Recipient.ID, m.Text, m.SentAt,
	).Scan(&stored.ID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: insert message: %w", err)
	}
	return &stored, nil
}

// Page returns one offset/limit page of the conversation between a and b,
// both directions, ordered by id.
func (s *MessageStore) Page(ctx context.Context, a, b user.User, offset, limit int) ([]chat.ChatMessage, error) {
	query := selectMessage + `
	WHERE (m.sender_id = $1 AND m.recipient_id = $2)
	   OR (m.sender_id = $2 AND m.recipient_id = $1)
	ORDER BY m.id
	OFFSET $3 LIMIT $4`

	rows, err := s.db.QueryContext(ctx, query, a.ID, b.ID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("pgstore: page: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MaxIDBySender returns, per sender name, the highest message id the
// recipient has received from that sender.
func (s *MessageStore) MaxIDBySender(ctx context.Context, recipient user.User) ([]chat.PartnerMaxID, error) {
	const query = `
		SELECT u.name, MAX(m.id)
		FROM chat_messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.recipient_id = $1
		GROUP BY u.name`

	return s.queryMaxIDs(ctx, query, recipient.ID)
}

// MaxIDByRecipient returns, per recipient name, the highest message id the
// sender has sent to that recipient.
func (s *MessageStore) MaxIDByRecipient(ctx context.Context, sender user.User) ([]chat.PartnerMaxID, error) {
	const query = `
		SELECT u.name, MAX(m.id)
		FROM chat_messages m
		JOIN users u ON u.id = m.recipient_id
		WHERE m.sender_id = $1
		GROUP BY u.name`

	return s.queryMaxIDs(ctx, query, sender.ID)
}

func (s *MessageStore) queryMaxIDs(ctx context.Context, query string, userID int64) ([]chat.PartnerMaxID, error) {
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: grouped max ids: %w", err)
	}
	defer rows.Close()

	var maxima []chat.PartnerMaxID
	for rows.Next() {
		var row chat.PartnerMaxID
		if err := rows.Scan(&row.Name, &row.MaxID); err != nil {
			return nil, fmt.Errorf("pgstore: scan grouped max id: %w", err)
		}
		maxima = append(maxima, row)
	}
	return maxima, rows.Err()
}

// FindByIDs fetches the full rows for the given identifiers.
func (s *MessageStore) FindByIDs(ctx context.Context, ids []int64) ([]chat.ChatMessage, error) {
	query := selectMessage + `
	WHERE m.id = ANY($1)
	ORDER BY m.id`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("pgstore: find by ids: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// UnseenFromSender returns sender's unseen messages to recipient, by id.
func (s *MessageStore) UnseenFromSender(ctx context.Context, sender, recipient user.User) ([]chat.ChatMessage, error) {
	query := selectMessage + `
	WHERE m.sender_id = $1 AND m.recipient_id = $2 AND m.seen_at IS NULL
	ORDER BY m.id`

	rows, err := s.db.QueryContext(ctx, query, sender.ID, recipient.ID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: unseen from sender: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// CountUnseenBySender returns per-sender unseen counts for the recipient.
func (s *MessageStore) CountUnseenBySender(ctx context.Context, recipient user.User) ([]chat.SenderUnread, error) {
	const query = `
		SELECT m.sender_id, COUNT(*)
		FROM chat_messages m
		WHERE m.recipient_id = $1 AND m.seen_at IS NULL
		GROUP BY m.sender_id`

	rows, err := s.db.QueryContext(ctx, query, recipient.ID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: count unseen by sender: %w", err)
	}
	defer rows.Close()

	var counts []chat.SenderUnread
	for rows.Next() {
		var row chat.SenderUnread
		if err := rows.Scan(&row.SenderID, &row.Count); err != nil {
			return nil, fmt.Errorf("pgstore: scan unseen count: %w", err)
		}
		counts = append(counts, row)
	}
	return counts, rows.Err()
}

// CountUnseen returns the recipient's total unseen message count.
func (s *MessageStore) CountUnseen(ctx context.Context, recipient user.User) (int64, error) {
	const query = `
		SELECT COUNT(*)
		FROM chat_messages
		WHERE recipient_id = $1 AND seen_at IS NULL`

	var count int64
	if err := s.db.QueryRowContext(ctx, query, recipient.ID).Scan(&count); err != nil {
		return 0, fmt.Errorf("pgstore: count unseen: %w", err)
	}
	return count, nil
}

// UpdateSeenAt stamps one message as seen. Rows already stamped are left
// untouched so a seen timestamp is never moved.
func (s *MessageStore) UpdateSeenAt(ctx context.Context, id int64, seenAt time.Time) error {
	const query = `
		UPDATE chat_messages
		SET seen_at = $2
		WHERE id = $1 AND seen_at IS NULL`

	if _, err := s.db.ExecContext(ctx, query, id, seenAt); err != nil {
		return fmt.Errorf("pgstore: update seen_at: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]chat.ChatMessage, error) {
	var messages []chat.ChatMessage
	for rows.Next() {
		var (
			m      chat.ChatMessage
			seenAt sql.NullTime
		)
		err := rows.Scan(
			&m.ID,
			&m.Sender.ID, &m.Sender.Name,
			&m.Recipient.ID, &m.Recipient.Name,
			&m.Text, &m.SentAt, &seenAt,
		)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan message: %w", err)
		}
		if seenAt.Valid {
			ts := seenAt.Time
			m.SeenAt = &ts
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
