// Package server assembles the relay's HTTP surface: the liveness probe,
// the room listing and the WebSocket endpoint.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sarahkellett/chatrelay/internal/chat"
	"github.com/sarahkellett/chatrelay/internal/config"
	"github.com/sarahkellett/chatrelay/internal/message"
	"github.com/sarahkellett/chatrelay/internal/ratelimit"
	"github.com/sarahkellett/chatrelay/internal/user"
	"github.com/sarahkellett/chatrelay/internal/ws"
)

// Server is the relay's HTTP server.
type Server struct {
	http     *http.Server
	mux      *http.ServeMux
	rooms    *chat.Rooms
	gateway  *chat.Gateway
	conns    *ws.ConnManager
	sessions *user.SessionStore
}

// Option configures a Server.
type Option func(*options)

type options struct {
	redis redis.Cmdable
}

// WithRedis backs room history with Redis instead of process memory.
func WithRedis(client redis.Cmdable) Option {
	return func(o *options) {
		o.redis = client
	}
}

// New assembles a Server from the configuration.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	rooms, err := chat.NewRooms(cfg.Rooms, cfg.DefaultRoom)
	if err != nil {
		return nil, err
	}

	var history message.HistoryStore
	if o.redis != nil {
		history = message.NewRedisStore(o.redis, cfg.HistorySize)
	} else {
		history = message.NewStore(cfg.HistorySize)
	}

	var connOpts []ws.ConnManagerOption
	if cfg.MaxConns > 0 {
		connOpts = append(connOpts, ws.WithMaxConns(cfg.MaxConns))
	}
	if cfg.IdleTimeout() > 0 {
		connOpts = append(connOpts, ws.WithIdleTimeout(cfg.IdleTimeout()))
	}
	conns := ws.NewConnManager(connOpts...)

	gateway := chat.NewGateway(rooms, history, conns)
	sessions := user.NewSessionStore(cfg.SessionTTL())

	var limiter *ratelimit.IPLimiter
	if cfg.RateLimit.Max > 0 {
		limiter = ratelimit.NewIPLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window())
	}

	s := &Server{
		mux:      http.NewServeMux(),
		rooms:    rooms,
		gateway:  gateway,
		conns:    conns,
		sessions: sessions,
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/rooms", s.handleListRooms)
	s.mux.Handle("GET /ws", ws.NewHandler(gateway, conns, sessions, limiter))

	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the server's root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	return s.http.ListenAndServe()
}

// Shutdown stops accepting requests, drains the HTTP server and closes
// every live WebSocket connection.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.conns.Shutdown()
	s.sessions.Close()
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("x-status", "ok")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]string{"rooms": s.rooms.Names()})
}
