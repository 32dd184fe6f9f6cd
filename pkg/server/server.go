// Package server implements the chat relay server: the accept loop, the
// per-connection sessions, and the room coordinator that routes messages
// between them.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/chatrelay/chatrelay/pkg/store"
)

// Dependencies holds external collaborators for the server. The server
// assumes ownership of Store and closes it on shutdown.
type Dependencies struct {
	Store store.DataStore
}

// Server is the chat relay server.
type Server struct {
	cfg     Config
	room    *Room
	metrics *Metrics
	store   store.DataStore
	ln      net.Listener
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	metrics := NewMetrics()
	return &Server{
		cfg:     cfg,
		metrics: metrics,
		room:    NewRoom(deps.Store, metrics, cfg.HistoryLimit),
		store:   deps.Store,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Room returns the room coordinator.
func (s *Server) Room() *Room {
	return s.room
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the listener address, useful when ListenAddr used port 0.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start binds the TCP listener and launches the accept loop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.ln = ln
	slog.Info("chat relay listening", "addr", ln.Addr())

	go s.acceptLoop()
	return nil
}

// acceptLoop accepts connections until the listener closes. Each session
// joins the room before its read pipeline starts, so the earliest frame a
// client sends is already routable.
func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				slog.Error("accept error", "err", err)
				continue
			}
		}
		slog.Debug("new connection", "remote", conn.RemoteAddr())
		s.metrics.TotalConnections.Add(1)
		s.metrics.ActiveConnections.Add(1)

		sess := newSession(conn, s.room)
		s.room.Accept(sess)
		sess.Start()
	}
}

// Shutdown stops accepting, then stops every remaining session and closes
// the store. Safe to call once; the accept loop observes the cancelled
// context and exits.
func (s *Server) Shutdown() {
	s.cancel()
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.room.Shutdown()
	if s.store != nil {
		_ = s.store.Close()
	}
}
