package message

import "sync"

// HistoryStore is the interface for per-room public message history backends.
// Messages are kept in arrival order and are never reordered or deduplicated.
type HistoryStore interface {
	Append(room string, msg *Public)
	All(room string) []*Public
	Count(room string) int
	Clear(room string)
}

// Store keeps public message history per room in memory. History is bounded
// to the process lifetime; maxSize caps each room's retained messages, with
// zero meaning unbounded.
type Store struct {
	mu      sync.RWMutex
	rooms   map[string][]*Public
	maxSize int
}

// NewStore creates an in-memory history store retaining up to maxSize
// messages per room. A maxSize of zero disables the cap.
func NewStore(maxSize int) *Store {
	return &Store{
		rooms:   make(map[string][]*Public),
		maxSize: maxSize,
	}
}

// Append adds a message to the room's history, evicting the oldest entries
// once the cap is exceeded.
func (s *Store) Append(room string, msg *Public) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append(s.rooms[room], msg)
	if s.maxSize > 0 && len(msgs) > s.maxSize {
		msgs = msgs[len(msgs)-s.maxSize:]
	}
	s.rooms[room] = msgs
}

// All returns the room's history in arrival order. The result is a copy and
// is never nil, so callers can serialize it as an empty list.
func (s *Store) All(room string) []*Public {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.rooms[room]
	result := make([]*Public, len(msgs))
	copy(result, msgs)
	return result
}

// Count returns the number of retained messages for a room.
func (s *Store) Count(room string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[room])
}

// Clear drops all retained messages for a room.
func (s *Store) Clear(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, room)
}
