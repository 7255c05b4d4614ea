// Package ws is the WebSocket transport boundary: it upgrades connections,
// resolves client identity, feeds inbound events to the chat core and fans
// the core's deliveries out to connections without blocking it.
package ws

import (
	"encoding/json"

	"nhooyr.io/websocket"

	"github.com/sarahkellett/chatrelay/internal/chat"
)

// Client is one live WebSocket connection.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	id       chat.ConnID
	username string
	token    string
}

// Envelope is the JSON frame exchanged over the WebSocket in both
// directions: an event name and its payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RoomPayload is the inbound payload of join and leave events.
type RoomPayload struct {
	Room string `json:"room"`
}

// SessionPayload is sent to a client right after accept so it can present
// the token on reconnect and keep its username.
type SessionPayload struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}
