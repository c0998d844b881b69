// Package messaging provides the NATS client wrapper used to route direct
// messages between chat servers. Every user has a private delivery subject;
// whichever server hosts a live connection for that user subscribes to it,
// so delivery fans out to all of the user's devices across the fleet.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectUserPrefix is the per-user private delivery subject prefix. The
// full subject is dm.user.<username>.
const SubjectUserPrefix = "dm.user."

// NATSClient wraps the NATS connection with helpers for per-user delivery
// subjects. Subscriptions are tracked per (user, connection) key so multiple
// local connections of the same user can each hold their own subscription.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "courier",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// UserSubject returns the private delivery subject for a username.
func UserSubject(username string) string {
	return SubjectUserPrefix + username
}

// PublishToUser publishes data to a user's private delivery subject.
func (c *NATSClient) PublishToUser(username string, data []byte) error {
	return c.conn.Publish(UserSubject(username), data)
}

// SubscribeUser subscribes to a user's private delivery subject on behalf of
// one local connection. The subscription is keyed by connID so several
// connections of the same user do not overwrite each other.
func (c *NATSClient) SubscribeUser(username, connID string, handler func(data []byte)) error {
	subject := UserSubject(username)
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs["usersub:"+connID] = sub
	c.mu.Unlock()
	return nil
}

// UnsubscribeUser drops the delivery subscription held for a connection.
func (c *NATSClient) UnsubscribeUser(connID string) error {
	return c.unsubscribe("usersub:" + connID)
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", key, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}

// unsubscribe removes and unsubscribes a tracked subscription by key.
func (c *NATSClient) unsubscribe(key string) error {
	c.mu.Lock()
	sub, ok := c.subs[key]
	if ok {
		delete(c.subs, key)
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("nats: no subscription for %s", key)
	}
	return sub.Unsubscribe()
}
