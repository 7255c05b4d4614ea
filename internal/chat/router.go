package chat

import (
	"log"
	"strings"

	"github.com/sarahkellett/chatrelay/internal/message"
)

// InboundMessage is the payload of an inbound message event. Type defaults
// to a public room message; "private" requires a receiver.
type InboundMessage struct {
	Text     string `json:"text"`
	Type     string `json:"type,omitempty"`
	Room     string `json:"room,omitempty"`
	Receiver string `json:"receiver,omitempty"`
}

// ChatHistoryPayload is the chat_history event payload delivered to a
// joining connection.
type ChatHistoryPayload struct {
	Messages []*message.Public `json:"messages"`
}

// Router validates inbound chat events and resolves them into deliveries.
// Every drop path is silent to the sender: invalid rooms, empty texts and
// missing targets are logged and produce no outbound sends.
//
// Router methods mutate Registry state and must run inside the Gateway's
// critical section. History store calls are never made there: each method
// returns them as deferred work so store I/O (which may be a network round
// trip with the Redis backend) runs after the lock is released.
type Router struct {
	reg     *Registry
	rooms   *Rooms
	history message.HistoryStore
}

// NewRouter creates a Router over the given registry, room set and history
// store.
func NewRouter(reg *Registry, rooms *Rooms, history message.HistoryStore) *Router {
	return &Router{reg: reg, rooms: rooms, history: history}
}

// Join moves the connection into room. Joining the current room again is a
// no-op, so status and history are never re-emitted. On success the room
// (including the joiner) gets a join status and the joiner alone gets the
// room's history snapshot, read after the lock is released.
func (rt *Router) Join(conn ConnID, room string) ([]Delivery, deferred) {
	if !rt.rooms.IsValid(room) {
		log.Printf("chat: invalid room join attempt: %s", room)
		return nil, nil
	}
	user, ok := rt.reg.Lookup(conn)
	if !ok {
		log.Printf("chat: join from unregistered connection %s", conn)
		return nil, nil
	}
	if current, ok := rt.reg.CurrentRoom(conn); ok && current == room {
		log.Printf("chat: user %s is already in room %s", user.Username, room)
		return nil, nil
	}

	if err := rt.reg.SetRoom(conn, room); err != nil {
		log.Printf("chat: join %s: %v", conn, err)
		return nil, nil
	}

	status := message.NewStatus(user.Username+" has joined the room.", message.StatusJoin)
	members := rt.reg.MembersOf(room)

	log.Printf("chat: user %s joined room %s", user.Username, room)
	after := func() []Delivery {
		history := ChatHistoryPayload{Messages: rt.history.All(room)}
		return []Delivery{unicast(conn, EventChatHistory, history)}
	}
	return []Delivery{multicast(members, EventStatus, status)}, after
}

// Leave resets the connection's room to none and notifies the named room's
// remaining members. Leaving a room the connection never joined is
// tolerated: the notice is still emitted to that room's members, matching
// the relay's loose leave semantics.
func (rt *Router) Leave(conn ConnID, room string) ([]Delivery, deferred) {
	user, ok := rt.reg.Lookup(conn)
	if !ok {
		log.Printf("chat: leave from unregistered connection %s", conn)
		return nil, nil
	}

	if current, ok := rt.reg.CurrentRoom(conn); ok && current == room {
		rt.reg.ClearRoom(conn)
	}

	members := rt.reg.MembersOf(room)
	log.Printf("chat: user %s left room %s", user.Username, room)
	if len(members) == 0 {
		return nil, nil
	}
	status := message.NewStatus(user.Username+" has left the room.", message.StatusLeave)
	return []Delivery{multicast(members, EventStatus, status)}, nil
}

// Route dispatches an inbound message: private messages go to the first
// live connection matching the receiver's username, public messages go to
// every member of the target room (falling back to the default room) and
// are appended to that room's history. The recipient set is fixed inside
// the critical section; the append and the sends happen after release.
func (rt *Router) Route(conn ConnID, in InboundMessage) ([]Delivery, deferred) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, nil
	}
	user, ok := rt.reg.Lookup(conn)
	if !ok {
		log.Printf("chat: message from unregistered connection %s", conn)
		return nil, nil
	}

	if in.Type == "private" {
		if in.Receiver == "" {
			return nil, nil
		}
		target, ok := rt.reg.FindByUsername(in.Receiver)
		if !ok {
			log.Printf("chat: private message failed, user not found: %s", in.Receiver)
			return nil, nil
		}
		pm := message.NewPrivate(text, user.Username, in.Receiver)
		log.Printf("chat: private message sent: %s -> %s", user.Username, in.Receiver)
		return []Delivery{unicast(target, EventPrivateMessage, pm)}, nil
	}

	room := in.Room
	if room == "" {
		room = rt.rooms.Default()
	}
	if !rt.rooms.IsValid(room) {
		log.Printf("chat: message to invalid room: %s", room)
		return nil, nil
	}

	pub := message.NewPublic(text, user.Username, room)
	members := rt.reg.MembersOf(room)
	log.Printf("chat: message sent in %s by %s", room, user.Username)

	after := func() []Delivery {
		rt.history.Append(room, pub)
		if len(members) == 0 {
			return nil
		}
		return []Delivery{multicast(members, EventMessage, pub)}
	}
	return nil, after
}
