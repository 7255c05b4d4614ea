// Package chat implements the connection, room and routing core of the
// relay. All mutable state lives behind the Gateway, which serializes
// every event into a single critical section and hands the resulting
// deliveries to the transport afterwards.
package chat

import "errors"

var (
	// ErrNotFound is returned when an operation names a connection that is
	// not registered. Callers tolerate it on disconnect races.
	ErrNotFound = errors.New("connection not registered")

	// ErrAlreadyRegistered is returned when a connection is registered
	// twice. The transport guarantees this never happens.
	ErrAlreadyRegistered = errors.New("connection already registered")
)

// ConnID identifies one live transport session. IDs are opaque to the core
// and are never reused.
type ConnID string

// User is the identity bound to a connection for its lifetime.
type User struct {
	Username string `json:"username"`
}

type session struct {
	user User
	room string // empty means not in any room
}

// Registry is the authoritative map of live connections to their identity
// and current room. It preserves registration order so presence snapshots
// and username lookups are deterministic.
//
// Registry is not safe for concurrent use; the Gateway guards it with its
// critical section.
type Registry struct {
	sessions map[ConnID]*session
	order    []ConnID
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[ConnID]*session)}
}

// Register binds a user to a live connection with no current room.
func (r *Registry) Register(conn ConnID, user User) error {
	if _, ok := r.sessions[conn]; ok {
		return ErrAlreadyRegistered
	}
	r.sessions[conn] = &session{user: user}
	r.order = append(r.order, conn)
	return nil
}

// Unregister removes a connection and returns the user it was bound to.
func (r *Registry) Unregister(conn ConnID) (User, error) {
	s, ok := r.sessions[conn]
	if !ok {
		return User{}, ErrNotFound
	}
	delete(r.sessions, conn)
	for i, id := range r.order {
		if id == conn {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return s.user, nil
}

// Lookup returns the user bound to a connection.
func (r *Registry) Lookup(conn ConnID) (User, bool) {
	s, ok := r.sessions[conn]
	if !ok {
		return User{}, false
	}
	return s.user, true
}

// SetRoom records the connection's current room.
func (r *Registry) SetRoom(conn ConnID, room string) error {
	s, ok := r.sessions[conn]
	if !ok {
		return ErrNotFound
	}
	s.room = room
	return nil
}

// ClearRoom resets the connection's current room to none.
func (r *Registry) ClearRoom(conn ConnID) error {
	return r.SetRoom(conn, "")
}

// CurrentRoom returns the connection's current room. ok is false when the
// connection is unknown or not in a room.
func (r *Registry) CurrentRoom(conn ConnID) (room string, ok bool) {
	s, found := r.sessions[conn]
	if !found || s.room == "" {
		return "", false
	}
	return s.room, true
}

// Usernames returns every registered username in registration order.
// The result is never nil.
func (r *Registry) Usernames() []string {
	names := make([]string, 0, len(r.order))
	for _, id := range r.order {
		names = append(names, r.sessions[id].user.Username)
	}
	return names
}

// MembersOf returns the connections whose current room is room, in
// registration order.
func (r *Registry) MembersOf(room string) []ConnID {
	var members []ConnID
	for _, id := range r.order {
		if r.sessions[id].room == room {
			members = append(members, id)
		}
	}
	return members
}

// FindByUsername returns the first connection bound to username in
// registration order. Usernames are not enforced unique, so first match
// wins when duplicates exist.
func (r *Registry) FindByUsername(username string) (ConnID, bool) {
	for _, id := range r.order {
		if r.sessions[id].user.Username == username {
			return id, true
		}
	}
	return "", false
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	return len(r.sessions)
}
