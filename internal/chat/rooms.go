package chat

import "errors"

// Rooms is the fixed set of valid room names, immutable after startup.
// Membership is derived from the Registry (a connection's current room),
// so Rooms itself carries no per-connection state.
type Rooms struct {
	names       []string
	valid       map[string]struct{}
	defaultRoom string
}

// NewRooms creates the room directory. defaultRoom falls back to the first
// configured name when empty, and must otherwise be one of names.
func NewRooms(names []string, defaultRoom string) (*Rooms, error) {
	if len(names) == 0 {
		return nil, errors.New("chat: at least one room is required")
	}
	valid := make(map[string]struct{}, len(names))
	for _, n := range names {
		valid[n] = struct{}{}
	}
	if defaultRoom == "" {
		defaultRoom = names[0]
	}
	if _, ok := valid[defaultRoom]; !ok {
		return nil, errors.New("chat: default room is not in the room set")
	}
	r := &Rooms{
		names:       make([]string, len(names)),
		valid:       valid,
		defaultRoom: defaultRoom,
	}
	copy(r.names, names)
	return r, nil
}

// IsValid reports whether name is a configured room.
func (r *Rooms) IsValid(name string) bool {
	_, ok := r.valid[name]
	return ok
}

// Default returns the room messages fall back to when none is given.
func (r *Rooms) Default() string {
	return r.defaultRoom
}

// Names returns the configured room names in configuration order.
func (r *Rooms) Names() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}
