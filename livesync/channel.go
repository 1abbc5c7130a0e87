// ABOUTME: Websocket live-update channel for pushed client/lead replacements
// ABOUTME: Subscription fan-out with start/stop lifecycle and force-sync requests
package livesync

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Message is one push from the live-sync channel. A data message carries a
// full replacement array for either clients or leads.
type Message struct {
	Type     string           `json:"type"`
	DataType string           `json:"dataType,omitempty"`
	Data     []map[string]any `json:"data,omitempty"`
}

// Handler receives pushed messages. Handlers run on the channel's read
// goroutine and must not block.
type Handler func(Message)

// Channel maintains one websocket subscription to the live-sync endpoint.
type Channel struct {
	url      string
	deviceID string

	mu          sync.Mutex
	conn        *websocket.Conn
	cancel      context.CancelFunc
	running     bool
	subscribers map[string]Handler
}

// New creates a channel for the given websocket URL. Each session gets a
// ULID device id so the backend can distinguish subscribers.
func New(url string) *Channel {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return &Channel{
		url:         url,
		deviceID:    ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String(),
		subscribers: make(map[string]Handler),
	}
}

// DeviceID returns this session's subscriber id.
func (c *Channel) DeviceID() string {
	return c.deviceID
}

// Start dials the endpoint and begins dispatching pushed messages. Calling
// Start while running is a no-op.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial live-sync channel: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	hello := Message{Type: "subscribe", DataType: c.deviceID}
	if err := wsjson.Write(ctx, conn, hello); err != nil {
		c.Stop()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.readLoop(readCtx, conn)
	return nil
}

// Stop tears the connection down. In-flight messages after Stop are
// discarded by the read loop's context.
func (c *Channel) Stop() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.running = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

// IsRunning reports whether the channel is connected.
func (c *Channel) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// ForceSync asks the backend to push a fresh replacement for both
// collections. Used as the lightweight re-sync when a REST fetch is skipped.
func (c *Channel) ForceSync(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("live-sync channel is not running")
	}
	return wsjson.Write(ctx, conn, Message{Type: "sync"})
}

// Subscribe registers a handler under an id, replacing any previous handler
// with the same id.
func (c *Channel) Subscribe(id string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers[id] = handler
}

// Unsubscribe removes a handler.
func (c *Channel) Unsubscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscribers, id)
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var msg Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			c.mu.Lock()
			wasRunning := c.running && c.conn == conn
			if wasRunning {
				c.running = false
				c.conn = nil
			}
			c.mu.Unlock()
			if wasRunning && ctx.Err() == nil {
				zap.L().Warn("live-sync channel closed", zap.Error(err))
			}
			return
		}
		if ctx.Err() != nil {
			// Teardown raced the read; discard rather than apply.
			return
		}
		c.dispatch(msg)
	}
}

func (c *Channel) dispatch(msg Message) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.subscribers))
	for _, h := range c.subscribers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}
