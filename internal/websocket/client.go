package websocket

import (
	"context"
	"sync"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Client is one WebSocket connection subscribed to one household.
type Client struct {
	hub         *Hub
	conn        *ws.Conn
	householdID int64
	userID      int64
	send        chan []byte

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewClient(hub *Hub, conn *ws.Conn, householdID, userID int64) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		householdID: householdID,
		userID:      userID,
		send:        make(chan []byte, sendBufferSize),
	}
}

// Run registers the client, starts the write pump, and runs the read pump.
// It blocks until the connection is closed or the client is evicted. A
// non-nil error from admit closes the connection right after registration.
func (c *Client) Run(ctx context.Context, admit func(context.Context) error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.conn.CloseNow()

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.hub.Register(c)
	defer c.hub.Unregister(c)

	if admit != nil {
		if err := admit(ctx); err != nil {
			c.hub.logger.Info("websocket refused after register", "household_id", c.householdID, "user_id", c.userID, "error", err)
			c.conn.Close(ws.StatusPolicyViolation, "membership ended")
			return
		}
	}

	go c.writePump(ctx)
	c.readPump(ctx)
}

// stop ends Run, which closes the connection.
func (c *Client) stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// readPump reads and discards all incoming messages. It returns on error
// (connection close), which triggers cleanup.
func (c *Client) readPump(ctx context.Context) {
	for {
		_, _, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
	}
}

// writePump drains the send channel and pings periodically to detect stale
// connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(ws.StatusPolicyViolation, "membership ended")
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
