package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/sarahkellett/chatrelay/internal/chat"
)

const (
	// sendBufferSize is the number of messages that can be queued per client.
	sendBufferSize = 16

	// writeTimeout is the max time to wait for a single write to complete.
	writeTimeout = 5 * time.Second

	// idleCheckInterval is how often the idle reaper runs.
	idleCheckInterval = 30 * time.Second
)

// connEntry holds a registered client alongside its lifecycle metadata.
type connEntry struct {
	client      *Client
	cancel      context.CancelFunc
	connectedAt time.Time
	lastActive  time.Time
}

// ConnStats holds point-in-time connection statistics.
type ConnStats struct {
	Active          int
	MaxConns        int
	Rejected        int64
	DroppedMessages int64
	IdleReaped      int64
}

// ConnManager tracks all live WebSocket connections keyed by connection ID
// and owns their write pumps. It implements chat.Dispatcher: deliveries
// are queued onto per-client buffered channels, so a slow recipient drops
// messages instead of stalling the core.
type ConnManager struct {
	mu       sync.Mutex
	clients  map[chat.ConnID]*connEntry
	closed   bool
	maxConns int
	idleTTL  time.Duration
	stopIdle context.CancelFunc

	rejected        atomic.Int64
	droppedMessages atomic.Int64
	idleReaped      atomic.Int64
}

// ConnManagerOption configures a ConnManager.
type ConnManagerOption func(*ConnManager)

// WithMaxConns sets the maximum number of concurrent connections. New
// connections beyond the limit are rejected. Zero means unlimited.
func WithMaxConns(n int) ConnManagerOption {
	return func(cm *ConnManager) {
		cm.maxConns = n
	}
}

// WithIdleTimeout sets how long a connection can be idle before it is
// closed. Zero disables idle reaping.
func WithIdleTimeout(d time.Duration) ConnManagerOption {
	return func(cm *ConnManager) {
		cm.idleTTL = d
	}
}

// NewConnManager creates a connection manager with optional configuration.
func NewConnManager(opts ...ConnManagerOption) *ConnManager {
	cm := &ConnManager{
		clients: make(map[chat.ConnID]*connEntry),
	}
	for _, opt := range opts {
		opt(cm)
	}
	if cm.idleTTL > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		cm.stopIdle = cancel
		go cm.idleReapLoop(ctx)
	}
	return cm
}

// Add registers a client and starts its write pump. The returned context
// is cancelled when the client is removed or the manager shuts down;
// callers should watch it from their read loop. A cancelled context is
// returned immediately when the manager is closed or at capacity.
func (cm *ConnManager) Add(c *Client) context.Context {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		return cancelledContext()
	}

	if cm.maxConns > 0 && len(cm.clients) >= cm.maxConns {
		cm.rejected.Add(1)
		c.conn.Close(websocket.StatusTryAgainLater, "server at capacity")
		return cancelledContext()
	}

	now := time.Now()
	c.send = make(chan []byte, sendBufferSize)
	ctx, cancel := context.WithCancel(context.Background())
	cm.clients[c.id] = &connEntry{
		client:      c,
		cancel:      cancel,
		connectedAt: now,
		lastActive:  now,
	}

	go cm.writePump(ctx, c)

	return ctx
}

// Remove stops a client's write pump and forgets the connection. Pending
// deliveries to it are dropped.
func (cm *ConnManager) Remove(id chat.ConnID) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	entry, ok := cm.clients[id]
	if !ok {
		return
	}
	delete(cm.clients, id)
	entry.cancel()
	close(entry.client.send)
}

// Send queues data for delivery to one connection. Returns false when the
// connection is gone or its buffer is full.
func (cm *ConnManager) Send(id chat.ConnID, data []byte) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.sendLocked(id, data)
}

func (cm *ConnManager) sendLocked(id chat.ConnID, data []byte) bool {
	entry, ok := cm.clients[id]
	if !ok {
		return false
	}
	select {
	case entry.client.send <- data:
		return true
	default:
		cm.droppedMessages.Add(1)
		log.Printf("ws: send buffer full for connection %s, dropping message", id)
		return false
	}
}

// Dispatch implements chat.Dispatcher. Each delivery is wrapped in an
// Envelope and queued to its recipients; broadcast deliveries go to every
// live connection.
func (cm *ConnManager) Dispatch(deliveries []chat.Delivery) {
	for _, d := range deliveries {
		payload, err := json.Marshal(d.Payload)
		if err != nil {
			log.Printf("ws: failed to marshal %s payload: %v", d.Event, err)
			continue
		}
		data, err := json.Marshal(Envelope{Type: d.Event, Payload: payload})
		if err != nil {
			log.Printf("ws: failed to marshal %s envelope: %v", d.Event, err)
			continue
		}

		cm.mu.Lock()
		if d.Broadcast {
			for id := range cm.clients {
				cm.sendLocked(id, data)
			}
		} else {
			for _, id := range d.To {
				cm.sendLocked(id, data)
			}
		}
		cm.mu.Unlock()
	}
}

// TouchActivity refreshes a connection's last-active timestamp so the idle
// reaper leaves it alone.
func (cm *ConnManager) TouchActivity(id chat.ConnID) {
	cm.mu.Lock()
	if entry, ok := cm.clients[id]; ok {
		entry.lastActive = time.Now()
	}
	cm.mu.Unlock()
}

// Count returns the number of live connections.
func (cm *ConnManager) Count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.clients)
}

// Stats returns point-in-time connection statistics.
func (cm *ConnManager) Stats() ConnStats {
	cm.mu.Lock()
	active := len(cm.clients)
	maxConns := cm.maxConns
	cm.mu.Unlock()
	return ConnStats{
		Active:          active,
		MaxConns:        maxConns,
		Rejected:        cm.rejected.Load(),
		DroppedMessages: cm.droppedMessages.Load(),
		IdleReaped:      cm.idleReaped.Load(),
	}
}

// Shutdown gracefully closes every connection and rejects new ones.
func (cm *ConnManager) Shutdown() {
	cm.mu.Lock()
	cm.closed = true
	entries := make([]*connEntry, 0, len(cm.clients))
	for _, entry := range cm.clients {
		entries = append(entries, entry)
	}
	cm.clients = make(map[chat.ConnID]*connEntry)
	cm.mu.Unlock()

	if cm.stopIdle != nil {
		cm.stopIdle()
	}

	for _, entry := range entries {
		entry.cancel()
		close(entry.client.send)
		entry.client.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (cm *ConnManager) idleReapLoop(ctx context.Context) {
	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cm.reapIdle()
		}
	}
}

// reapIdle closes connections that have been idle longer than idleTTL.
// The read loop observes the cancelled context and reports the disconnect
// to the core.
func (cm *ConnManager) reapIdle() {
	cm.mu.Lock()
	now := time.Now()
	var stale []*connEntry
	for id, entry := range cm.clients {
		if now.Sub(entry.lastActive) > cm.idleTTL {
			stale = append(stale, entry)
			delete(cm.clients, id)
		}
	}
	cm.mu.Unlock()

	for _, entry := range stale {
		entry.cancel()
		close(entry.client.send)
		entry.client.conn.Close(websocket.StatusPolicyViolation, "idle timeout")
		cm.idleReaped.Add(1)
		log.Printf("ws: reaped idle connection %s", entry.client.id)
	}
}

// writePump drains the client's send channel onto the WebSocket. It exits
// when ctx is cancelled or the channel is closed.
func (cm *ConnManager) writePump(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				log.Printf("ws: write to connection %s failed: %v", c.id, err)
				return
			}
		}
	}
}

func cancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
