package chat

// Outbound event names, matching the wire protocol.
const (
	EventOnlineUsers    = "online_users"
	EventStatus         = "status"
	EventChatHistory    = "chat_history"
	EventMessage        = "message"
	EventPrivateMessage = "private_message"
)

// Delivery is one outbound send computed by the core: an event and its
// payload addressed to a recipient set. Broadcast targets every live
// connection; otherwise To lists the recipients explicitly.
type Delivery struct {
	Broadcast bool
	To        []ConnID
	Event     string
	Payload   any
}

// Dispatcher delivers computed sends to the transport. Implementations must
// not block: the Gateway calls Dispatch after releasing its critical
// section, and a slow recipient must never stall other connections.
type Dispatcher interface {
	Dispatch(deliveries []Delivery)
}

// deferred is an event's follow-up work that must run outside the critical
// section, typically history store I/O. It may yield further deliveries.
type deferred func() []Delivery

// unicast builds a delivery addressed to a single connection.
func unicast(conn ConnID, event string, payload any) Delivery {
	return Delivery{To: []ConnID{conn}, Event: event, Payload: payload}
}

// multicast builds a delivery addressed to a connection set.
func multicast(to []ConnID, event string, payload any) Delivery {
	return Delivery{To: to, Event: event, Payload: payload}
}

// broadcast builds a delivery addressed to every live connection.
func broadcast(event string, payload any) Delivery {
	return Delivery{Broadcast: true, Event: event, Payload: payload}
}
