package user

import (
	"sync"
	"time"
)

// Session binds an opaque token to a stable username. A client presenting
// the same token on reconnect keeps its username; the connection identity
// underneath changes on every reconnect.
type Session struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`

	lastSeen time.Time
	live     int // connections currently attached to this session
}

// SessionStore manages identity sessions keyed by token. Sessions with no
// attached connection expire once they have not been seen within the TTL;
// a session backing a live connection never expires, however long the
// connection stays open.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	stop     chan struct{}
}

// NewSessionStore creates a store expiring idle sessions after ttl. A ttl
// of zero disables expiration.
func NewSessionStore(ttl time.Duration) *SessionStore {
	ss := &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	if ttl > 0 {
		go ss.reapLoop()
	}
	return ss
}

// Create generates a new session for username with a fresh token.
func (ss *SessionStore) Create(username string) *Session {
	now := time.Now()
	sess := &Session{
		Token:     generateToken(),
		Username:  username,
		CreatedAt: now,
		lastSeen:  now,
	}
	ss.mu.Lock()
	ss.sessions[sess.Token] = sess
	ss.mu.Unlock()
	return sess
}

// Resolve returns the session for token and refreshes its last-seen time,
// or nil when the token is unknown or expired.
func (ss *SessionStore) Resolve(token string) *Session {
	if token == "" {
		return nil
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	sess, ok := ss.sessions[token]
	if !ok {
		return nil
	}
	sess.lastSeen = time.Now()
	return sess
}

// Touch refreshes the session's last-seen time.
func (ss *SessionStore) Touch(token string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if sess, ok := ss.sessions[token]; ok {
		sess.lastSeen = time.Now()
	}
}

// Attach marks the session as backing a live connection, exempting it from
// expiration until detached.
func (ss *SessionStore) Attach(token string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if sess, ok := ss.sessions[token]; ok {
		sess.live++
		sess.lastSeen = time.Now()
	}
}

// Detach releases a live connection and restarts the idle clock, so the
// TTL counts from disconnect.
func (ss *SessionStore) Detach(token string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if sess, ok := ss.sessions[token]; ok {
		if sess.live > 0 {
			sess.live--
		}
		sess.lastSeen = time.Now()
	}
}

// Count returns the number of live sessions.
func (ss *SessionStore) Count() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.sessions)
}

// Close stops the expiration loop.
func (ss *SessionStore) Close() {
	close(ss.stop)
}

func (ss *SessionStore) reapLoop() {
	ticker := time.NewTicker(ss.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ss.stop:
			return
		case <-ticker.C:
			ss.reap()
		}
	}
}

func (ss *SessionStore) reap() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	now := time.Now()
	for token, sess := range ss.sessions {
		if sess.live == 0 && now.Sub(sess.lastSeen) > ss.ttl {
			delete(ss.sessions, token)
		}
	}
}
