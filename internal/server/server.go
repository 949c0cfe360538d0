// Package server wires the chat room and echo handler to HTTP: it owns the
// WebSocket upgrader, the metrics registry and the origin policy.
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/gorelay/internal/chat"
)

// Server holds everything the HTTP handlers share.
type Server struct {
	cfg      Config
	log      zerolog.Logger
	room     *chat.Room
	echo     *chat.Echo
	metrics  *Metrics
	origins  *originPolicy
	upgrader websocket.Upgrader

	// base is cancelled by Shutdown and ends every session still running.
	base     context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	sessions sync.WaitGroup
}

// New creates a Server with an empty chat room.
func New(cfg Config, logger zerolog.Logger) *Server {
	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		log:     logger,
		room:    chat.NewRoom(logger, cfg.RoomOptions()...),
		echo:    chat.NewEcho(cfg.EchoGreeting, logger),
		metrics: NewMetrics(),
		origins: newOriginPolicy(cfg.AllowedOrigins, logger),
		base:    base,
		cancel:  cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	s.metrics.Observe(s.room)
	return s
}

// Room returns the shared chat room.
func (s *Server) Room() *chat.Room {
	return s.room
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// sessionContext derives the context of one WebSocket session. It ends when
// the request ends or the server shuts down.
func (s *Server) sessionContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base.Err() != nil {
		cancel()
		return ctx, cancel
	}

	stop := context.AfterFunc(s.base, cancel)
	s.sessions.Add(1)
	return ctx, func() {
		stop()
		cancel()
		s.sessions.Done()
	}
}

// Shutdown disconnects every chat participant and echo session and waits for
// them to finish, or until timeout elapses.
func (s *Server) Shutdown(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	roomErr := s.room.Shutdown(timeout)

	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return roomErr
	case <-time.After(time.Until(deadline)):
		s.log.Warn().Msg("Sessions still running after shutdown timeout")
		return errors.Join(roomErr, context.DeadlineExceeded)
	}
}
