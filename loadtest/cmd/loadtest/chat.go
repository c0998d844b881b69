package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/courier/direct-chat/loadtest/client"
	"github.com/courier/direct-chat/loadtest/stats"
)

// runChat implements the direct-message exchange load test. It connects pairs
// of users, authenticates both sides, and has each pair exchange messages at a
// configurable rate. Delivery latency is measured end to end by embedding the
// send timestamp in the message text and comparing it against the receive
// time on the partner's connection. After the exchange each receiver fetches
// its history, marks the conversation read, and verifies the unread total
// drops to zero.
//
// The test users must exist in the server's directory. Start the server with
// e.g. SEED_USERS=load1,load2,...,loadN or seed them out of band.
func runChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	pairs := fs.Int("pairs", 50, "Number of user pairs exchanging messages")
	messages := fs.Int("messages", 20, "Messages each sender sends to its partner")
	interval := fs.Duration("interval", 1200*time.Millisecond, "Delay between messages from one sender (keep under the per-user send limit)")
	prefix := fs.String("prefix", "load", "Username prefix; pair i uses <prefix><2i+1> and <prefix><2i+2>")
	metricsURL := fs.String("metrics", "", "Server metrics URL to scrape during the test (optional)")
	fs.Parse(args)

	fmt.Printf("Chat test: %d pairs, %d messages each, interval=%s, server=%s\n",
		*pairs, *messages, *interval, *url)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()

	if *metricsURL != "" {
		scraper := stats.NewScraper(*metricsURL, 2*time.Second)
		scraper.Start(ctx)
		collector.SetScraper(scraper)
		defer scraper.Stop()
	}

	var wg sync.WaitGroup
	for i := 0; i < *pairs; i++ {
		a := fmt.Sprintf("%s%d", *prefix, 2*i+1)
		b := fmt.Sprintf("%s%d", *prefix, 2*i+2)

		wg.Add(1)
		go func() {
			defer wg.Done()
			runPair(ctx, collector, *url, a, b, *messages, *interval)
		}()
	}

	wg.Wait()
	collector.Report()
}

// runPair drives one pair of users through a full exchange: both sides
// connect and authenticate, A sends to B while B sends to A, each side
// measures delivery latency of incoming messages, then both mark the
// conversation read and check the unread badge.
func runPair(ctx context.Context, collector *stats.Collector, url, a, b string, messages int, interval time.Duration) {
	ca, err := connectUser(ctx, collector, url, a)
	if err != nil {
		collector.AddError()
		return
	}
	defer ca.Close()

	cb, err := connectUser(ctx, collector, url, b)
	if err != nil {
		collector.AddError()
		return
	}
	defer cb.Close()

	var recvWg sync.WaitGroup
	recvWg.Add(2)
	watchDeliveries(ca, collector, messages, &recvWg)
	watchDeliveries(cb, collector, messages, &recvWg)

	var sendWg sync.WaitGroup
	sendWg.Add(2)
	go sendMessages(ctx, ca, b, messages, interval, collector, &sendWg)
	go sendMessages(ctx, cb, a, messages, interval, collector, &sendWg)
	sendWg.Wait()

	// Give deliveries a bounded window to arrive after the last send.
	recvDone := make(chan struct{})
	go func() {
		recvWg.Wait()
		close(recvDone)
	}()
	select {
	case <-recvDone:
	case <-ctx.Done():
		return
	case <-time.After(10 * time.Second):
		collector.AddError()
	}

	// Wind down: mark the conversation read and verify the badge clears.
	if !settleUnread(ctx, ca, b) || !settleUnread(ctx, cb, a) {
		collector.AddError()
	}
}

// connectUser dials the server and completes the auth handshake for username.
func connectUser(ctx context.Context, collector *stats.Collector, url, username string) (*client.Client, error) {
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c, err := client.New(connCtx, url)
	if err != nil {
		return nil, err
	}
	if err := c.Authenticate(username); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.WaitForAuth(connCtx); err != nil {
		c.Close()
		return nil, err
	}

	collector.AddConnect(c.GetMetrics().ConnectLatency)
	return c, nil
}

// watchDeliveries registers a message handler that records delivery latency
// for each incoming message and signals recvWg once expected messages arrived.
func watchDeliveries(c *client.Client, collector *stats.Collector, expected int, recvWg *sync.WaitGroup) {
	received := 0
	done := false
	c.On(client.TypeMessage, func(raw json.RawMessage) {
		var frame struct {
			Message struct {
				Text string `json:"text"`
			} `json:"message"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			return
		}

		if sentAt, ok := parseStamp(frame.Message.Text); ok {
			collector.AddMsgLatency(time.Since(sentAt))
		}

		received++
		if received == expected && !done {
			done = true
			recvWg.Done()
		}
	})
}

// sendMessages sends the configured number of stamped messages to recipient.
func sendMessages(ctx context.Context, c *client.Client, recipient string, messages int, interval time.Duration, collector *stats.Collector, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; i < messages; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			text := fmt.Sprintf("lt %d seq=%d", time.Now().UnixNano(), i)
			if err := c.SendMessage(recipient, text); err != nil {
				collector.AddError()
				return
			}
		}
	}
}

// settleUnread marks the conversation with partner as read and then checks
// that the unread total reported by the server is zero.
func settleUnread(ctx context.Context, c *client.Client, partner string) bool {
	marked := make(chan struct{})
	c.On(client.TypeReadMarked, func(json.RawMessage) {
		close(marked)
	})
	if err := c.Send(map[string]string{"type": client.TypeMarkRead, "partner": partner}); err != nil {
		return false
	}
	select {
	case <-marked:
	case <-ctx.Done():
		return false
	case <-time.After(10 * time.Second):
		return false
	}

	unread := make(chan int64, 1)
	c.On(client.TypeUnread, func(raw json.RawMessage) {
		var frame struct {
			Total int64 `json:"total"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			return
		}
		unread <- frame.Total
	})
	if err := c.Send(map[string]string{"type": client.TypeGetUnread}); err != nil {
		return false
	}
	select {
	case total := <-unread:
		return total == 0
	case <-ctx.Done():
		return false
	case <-time.After(10 * time.Second):
		return false
	}
}

// parseStamp extracts the UnixNano send timestamp from a stamped message text
// of the form "lt <unixnano> seq=<n>".
func parseStamp(text string) (time.Time, bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 || fields[0] != "lt" {
		return time.Time{}, false
	}
	ns, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}
