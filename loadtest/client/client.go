// Package client provides a reusable WebSocket load test client for the
// Courier chat server. It connects using gobwas/ws (the same library the
// server uses), handles the auth handshake, and tracks per-connection
// performance metrics.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ---------------------------------------------------------------------------
// Protocol message types (local equivalents of internal/protocol constants)
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
// Metrics
// ---------------------------------------------------------------------------

// Metrics tracks per-connection performance data.
type Metrics struct {
	ConnectLatency   time.Duration
	AuthLatency      time.Duration
	MessagesReceived int
	MessagesSent     int
	Errors           int
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Client represents a single simulated user connection to the Courier server.
// It manages the WebSocket lifecycle and dispatches incoming messages to
// registered handlers.
type Client struct {
	conn      net.Conn
	username  string
	userID    int64
	mu        sync.Mutex
	metrics   Metrics
	handlers  map[string]func(json.RawMessage)
	done      chan struct{}
	closeOnce sync.Once
	authSent  time.Time
	authed    chan struct{}
	authOnce  sync.Once
}

// New creates a new load test client connected to the given WebSocket URL.
// The connection is established immediately and a background goroutine begins
// reading messages. The connection stays unauthenticated until Authenticate
// is called.
func New(ctx context.Context, url string) (*Client, error) {
	start := time.Now()
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Client{
		conn:     conn,
		handlers: make(map[string]func(json.RawMessage)),
		done:     make(chan struct{}),
		authed:   make(chan struct{}),
	}
	c.metrics.ConnectLatency = time.Since(start)

	// Start reading messages in background.
	go c.readLoop()

	return c, nil
}

// Send sends a JSON message to the server. It is goroutine-safe.
func (c *Client) Send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.MessagesSent++
	return wsutil.WriteClientMessage(c.conn, ws.OpText, data)
}

// Authenticate sends an auth frame binding this connection to the given user.
// The user must exist in the server's directory (see SEED_USERS).
func (c *Client) Authenticate(username string) error {
	c.authSent = time.Now()
	return c.Send(map[string]string{
		"type":     TypeAuth,
		"username": username,
	})
}

// SendMessage sends a direct message to the named recipient.
func (c *Client) SendMessage(recipient, text string) error {
	return c.Send(map[string]string{
		"type":      TypeSendMessage,
		"recipient": recipient,
		"text":      text,
	})
}

// On registers a handler for a specific server message type. The handler
// receives the full raw JSON of the message for flexible decoding.
// Handlers are invoked from the read loop goroutine so they should not block
// for extended periods. Only one handler per message type is supported;
// registering a second handler for the same type replaces the first.
func (c *Client) On(msgType string, handler func(json.RawMessage)) {
	c.handlers[msgType] = handler
}

// WaitForAuth blocks until the server has confirmed the auth binding or the
// context is cancelled.
func (c *Client) WaitForAuth(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("connection closed before auth completed")
	case <-c.authed:
		return nil
	}
}

// Close closes the connection and stops the read loop. It is safe to call
// multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Username returns the name confirmed by the server, or an empty string if
// the auth handshake has not completed yet.
func (c *Client) Username() string {
	return c.username
}

// UserID returns the user ID confirmed by the server, or zero before auth.
func (c *Client) UserID() int64 {
	return c.userID
}

// GetMetrics returns a copy of the client's metrics.
func (c *Client) GetMetrics() Metrics {
	return c.metrics
}

// readLoop continuously reads WebSocket frames from the server and dispatches
// them to registered handlers. It runs until the connection is closed or an
// unrecoverable error occurs.
func (c *Client) readLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			select {
			case <-c.done:
				// Connection was intentionally closed; do not count as error.
				return
			default:
			}
			c.metrics.Errors++
			return
		}

		c.metrics.MessagesReceived++

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			continue
		}

		// Handle authed internally: record the binding and auth latency.
		if envelope.Type == TypeAuthed {
			var msg struct {
				Type     string `json:"type"`
				UserID   int64  `json:"user_id"`
				Username string `json:"username"`
			}
			if err := json.Unmarshal(data, &msg); err == nil && msg.Username != "" {
				c.username = msg.Username
				c.userID = msg.UserID
				c.metrics.AuthLatency = time.Since(c.authSent)
				c.authOnce.Do(func() { close(c.authed) })
			}
		}

		// Dispatch to registered handler if one exists.
		if handler, ok := c.handlers[envelope.Type]; ok {
			handler(json.RawMessage(data))
		}
	}
}
