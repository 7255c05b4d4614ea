package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/sarahkellett/chatrelay/internal/chat"
	"github.com/sarahkellett/chatrelay/internal/ratelimit"
	"github.com/sarahkellett/chatrelay/internal/user"
)

// Handler upgrades HTTP requests to WebSockets and runs each connection's
// read loop, translating inbound envelopes into gateway events.
type Handler struct {
	gateway  *chat.Gateway
	conns    *ConnManager
	sessions *user.SessionStore
	limiter  *ratelimit.IPLimiter
}

// NewHandler creates a WebSocket Handler. limiter may be nil to disable
// upgrade rate limiting.
func NewHandler(gateway *chat.Gateway, conns *ConnManager, sessions *user.SessionStore, limiter *ratelimit.IPLimiter) *Handler {
	return &Handler{
		gateway:  gateway,
		conns:    conns,
		sessions: sessions,
		limiter:  limiter,
	}
}

// ServeHTTP accepts the WebSocket, resolves the client's identity, then
// pumps inbound events into the gateway until the connection closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow(clientIP(r)) {
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow all origins in dev; tighten in production.
	})
	if err != nil {
		log.Printf("ws: accept error: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sess := h.resolveIdentity(r)
	client := &Client{
		conn:     conn,
		id:       chat.ConnID(uuid.NewString()),
		username: sess.Username,
		token:    sess.Token,
	}

	connCtx := h.conns.Add(client)
	if connCtx.Err() != nil {
		return
	}

	// Pin the session while the connection is live so it cannot expire
	// mid-connection.
	h.sessions.Attach(client.token)

	h.sendSessionInfo(client)
	h.gateway.Connect(client.id, client.username)

	reason := h.readLoop(r.Context(), connCtx, client)

	// Remove before reporting the disconnect so nothing is delivered to
	// the dead connection.
	h.conns.Remove(client.id)
	h.gateway.Disconnect(client.id, reason)
	h.sessions.Detach(client.token)
}

// resolveIdentity maps the request to a stable username. A client
// presenting a known session token (query parameter or cookie) keeps its
// username across reconnects; everyone else becomes a fresh guest.
func (h *Handler) resolveIdentity(r *http.Request) *user.Session {
	token := r.URL.Query().Get("session")
	if token == "" {
		if c, err := r.Cookie("session"); err == nil {
			token = c.Value
		}
	}
	if sess := h.sessions.Resolve(token); sess != nil {
		return sess
	}
	return h.sessions.Create(user.GenerateGuestName())
}

// sendSessionInfo queues the session envelope so the client can resume its
// identity on reconnect.
func (h *Handler) sendSessionInfo(client *Client) {
	payload, err := json.Marshal(SessionPayload{Token: client.token, Username: client.username})
	if err != nil {
		log.Printf("ws: failed to marshal session payload: %v", err)
		return
	}
	data, err := json.Marshal(Envelope{Type: "session", Payload: payload})
	if err != nil {
		log.Printf("ws: failed to marshal session envelope: %v", err)
		return
	}
	h.conns.Send(client.id, data)
}

// readLoop reads envelopes until the connection closes or the manager
// cancels connCtx, and returns the disconnect reason. Malformed frames are
// skipped; event ordering per connection is the read order.
func (h *Handler) readLoop(ctx context.Context, connCtx context.Context, client *Client) string {
	for {
		select {
		case <-connCtx.Done():
			return "server closed connection"
		default:
		}

		_, data, err := client.conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				return fmt.Sprintf("close status %d", status)
			}
			return "transport closed"
		}

		h.conns.TouchActivity(client.id)
		h.sessions.Touch(client.token)

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		switch env.Type {
		case "join":
			var p RoomPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				continue
			}
			h.gateway.Join(client.id, p.Room)
		case "leave":
			var p RoomPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				continue
			}
			h.gateway.Leave(client.id, p.Room)
		case "message":
			var in chat.InboundMessage
			if err := json.Unmarshal(env.Payload, &in); err != nil {
				continue
			}
			h.gateway.Message(client.id, in)
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
