// Package protocol defines the WebSocket message types and structures used
// for communication between the client and the chat server. All messages
// are serialized as JSON and follow a consistent envelope format with a
// type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/courier/direct-chat/internal/chat"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeAuth        = "auth"
	TypeSendMessage = "send_message"
	TypeGetHistory  = "get_history"
	TypeGetUnread   = "get_unread"
	TypeMarkRead    = "mark_read"
	TypeGetPage     = "get_page"
	TypePing        = "ping"
)

// Server -> Client message types.
const (
	TypeAuthed      = "authed"
	TypeMessage     = "message"
	TypeHistory     = "history"
	TypeUnread      = "unread"
	TypeReadMarked  = "read_marked"
	TypePage        = "page"
	TypeRateLimited = "rate_limited"
	TypeError       = "error"
	TypePong        = "pong"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// AuthMsg binds the connection to an authenticated user. The surrounding
// session layer is expected to have verified the credential; this core only
// resolves the name against the user directory.
type AuthMsg struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

// SendMessageMsg is an inbound direct message addressed to a recipient by name.
type SendMessageMsg struct {
	Type      string `json:"type"`
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
}

// GetHistoryMsg requests the caller's inbox view: one row per conversation
// partner with the latest message and unread count.
type GetHistoryMsg struct {
	Type string `json:"type"`
}

// GetUnreadMsg requests the caller's unread counts and global badge total.
type GetUnreadMsg struct {
	Type string `json:"type"`
}

// MarkReadMsg marks the conversation with the named partner as read.
type MarkReadMsg struct {
	Type    string `json:"type"`
	Partner string `json:"partner"`
}

// GetPageMsg requests one scroll-back page of the conversation with Partner.
type GetPageMsg struct {
	Type    string `json:"type"`
	Partner string `json:"partner"`
	Offset  int    `json:"offset"`
	Limit   int    `json:"limit"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// AuthedMsg confirms the connection is bound to a user.
type AuthedMsg struct {
	Type     string `json:"type"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// DeliveredMsg carries a stored message delivered in real time to the
// recipient's connection.
type DeliveredMsg struct {
	Type    string           `json:"type"`
	Message chat.ChatMessage `json:"message"`
}

// HistoryMsg carries the inbox view.
type HistoryMsg struct {
	Type    string                 `json:"type"`
	Entries []chat.ChatHistoryData `json:"entries"`
}

// UnreadMsg carries per-sender unread counts and the global badge total.
type UnreadMsg struct {
	Type   string          `json:"type"`
	Counts map[int64]int64 `json:"counts"`
	Total  int64           `json:"total"`
}

// ReadMarkedMsg confirms a mark-read command was applied.
type ReadMarkedMsg struct {
	Type    string `json:"type"`
	Partner string `json:"partner"`
}

// PageMsg carries one scroll-back page of a conversation.
type PageMsg struct {
	Type     string             `json:"type"`
	Partner  string             `json:"partner"`
	Offset   int                `json:"offset"`
	Messages []chat.ChatMessage `json:"messages"`
}

// RateLimitedMsg is sent by the server when the client has been rate-limited.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeAuth:
		var m AuthMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendMessage:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeGetHistory:
		var m GetHistoryMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeGetUnread:
		var m GetUnreadMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMarkRead:
		var m MarkReadMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeGetPage:
		var m GetPageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the Server*Msg structs; this function marshals it to JSON,
// injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return data, nil
}
