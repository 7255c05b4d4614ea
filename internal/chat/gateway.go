package chat

import (
	"errors"
	"log"
	"sync"

	"github.com/sarahkellett/chatrelay/internal/message"
)

// Gateway is the boundary between the transport and the core. It owns the
// single critical section guarding Registry state: every connect,
// disconnect, join, leave and message event mutates state and computes its
// recipient set atomically, then the resulting deliveries are handed to
// the Dispatcher after the lock is released. No blocking I/O happens under
// the lock: history store calls come back from the Router as deferred work
// and run after release, so a slow store never stalls other events.
//
// A panic while handling an event is caught and logged; the event is
// dropped and the connection stays open.
type Gateway struct {
	mu     sync.Mutex
	reg    *Registry
	rooms  *Rooms
	router *Router
	out    Dispatcher
}

// NewGateway wires a Gateway over the fixed room set, a history store and
// the transport dispatcher.
func NewGateway(rooms *Rooms, history message.HistoryStore, out Dispatcher) *Gateway {
	reg := NewRegistry()
	return &Gateway{
		reg:    reg,
		rooms:  rooms,
		router: NewRouter(reg, rooms, history),
		out:    out,
	}
}

// Connect registers a connection under its resolved username and broadcasts
// the presence snapshot to every live connection.
func (g *Gateway) Connect(conn ConnID, username string) {
	g.handle("connect", func() ([]Delivery, deferred) {
		if err := g.reg.Register(conn, User{Username: username}); err != nil {
			log.Printf("chat: register %s: %v", conn, err)
			return nil, nil
		}
		log.Printf("chat: user connected: %s", username)
		return []Delivery{broadcast(EventOnlineUsers, Snapshot(g.reg))}, nil
	})
}

// Disconnect unregisters a connection and broadcasts the presence snapshot.
// A double-fire or a disconnect racing ahead of registration is tolerated
// silently. The reason is informational only.
func (g *Gateway) Disconnect(conn ConnID, reason string) {
	g.handle("disconnect", func() ([]Delivery, deferred) {
		user, err := g.reg.Unregister(conn)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				log.Printf("chat: unregister %s: %v", conn, err)
			}
			return nil, nil
		}
		log.Printf("chat: user disconnected: %s. Reason: %s", user.Username, reason)
		return []Delivery{broadcast(EventOnlineUsers, Snapshot(g.reg))}, nil
	})
}

// Join handles an inbound join event.
func (g *Gateway) Join(conn ConnID, room string) {
	g.handle("join", func() ([]Delivery, deferred) {
		return g.router.Join(conn, room)
	})
}

// Leave handles an inbound leave event.
func (g *Gateway) Leave(conn ConnID, room string) {
	g.handle("leave", func() ([]Delivery, deferred) {
		return g.router.Leave(conn, room)
	})
}

// Message handles an inbound message event.
func (g *Gateway) Message(conn ConnID, in InboundMessage) {
	g.handle("message", func() ([]Delivery, deferred) {
		return g.router.Route(conn, in)
	})
}

// OnlineUsers returns the current presence snapshot.
func (g *Gateway) OnlineUsers() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reg.Usernames()
}

// CurrentRoom returns the connection's current room, if any.
func (g *Gateway) CurrentRoom(conn ConnID) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reg.CurrentRoom(conn)
}

// handle runs one event inside the critical section, dispatches its
// deliveries after releasing the lock, then runs the event's deferred work
// (history store I/O) and dispatches whatever it yields.
func (g *Gateway) handle(event string, fn func() ([]Delivery, deferred)) {
	deliveries, after := g.locked(event, fn)
	g.dispatch(deliveries)
	if after != nil {
		g.dispatch(g.runDeferred(event, after))
	}
}

func (g *Gateway) dispatch(deliveries []Delivery) {
	if len(deliveries) > 0 && g.out != nil {
		g.out.Dispatch(deliveries)
	}
}

func (g *Gateway) locked(event string, fn func() ([]Delivery, deferred)) (deliveries []Delivery, after deferred) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("chat: %s event dropped after fault: %v", event, p)
			deliveries, after = nil, nil
		}
	}()
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn()
}

// runDeferred executes an event's follow-up work outside the lock with the
// same fault isolation as the critical section.
func (g *Gateway) runDeferred(event string, after deferred) (deliveries []Delivery) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("chat: %s event dropped after fault: %v", event, p)
			deliveries = nil
		}
	}()
	return after()
}
