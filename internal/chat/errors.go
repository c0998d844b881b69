package chat

import "errors"

// Sentinel errors surfaced by the chat core. Callers classify failures with
// errors.Is; everything else is a store or transport failure.
var (
	// ErrNotFound means the sender or recipient could not be resolved, or a
	// stored message references neither side of the requesting user (which
	// signals data corruption in the message store).
	ErrNotFound = errors.New("chat: user not found")

	// ErrInvalidRecipient means a user attempted to message themselves.
	ErrInvalidRecipient = errors.New("chat: recipient is the sender")

	// ErrInvalidMessage means the message text failed content validation.
	ErrInvalidMessage = errors.New("chat: invalid message")
)
