package server

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/chatrelay/chatrelay/pkg/protocol"
)

var ErrSessionClosed = errors.New("server: session closed")

// Session owns one client socket: the read pipeline (frame length, frame
// body, decode, dispatch) and a FIFO outbound queue drained by at most one
// in-flight write.
//
// Lifecycle: Connected (anonymous) -> Authenticated (username set by the
// room after a successful login) -> Closed. There is no way back from
// Closed. Every failure on either pipeline converges on the same leave
// path, which runs exactly once.
type Session struct {
	conn net.Conn
	room *Room

	mu       sync.Mutex
	username string
	queue    [][]byte // encoded frames, written in enqueue order
	writing  bool     // a writeLoop goroutine is draining the queue
	closed   bool

	closeOnce sync.Once
	leaveOnce sync.Once
}

func newSession(conn net.Conn, room *Room) *Session {
	return &Session{conn: conn, room: room}
}

// Start begins the read pipeline. The session must already be a member of
// the room so that early traffic is routable.
func (s *Session) Start() {
	go s.readLoop()
}

// Username returns the authenticated identity, or "" before login.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// SetUsername transitions the session identity. Called by the room only,
// after a successful login.
func (s *Session) SetUsername(username string) {
	s.mu.Lock()
	s.username = username
	s.mu.Unlock()
}

// Deliver enqueues one message for the client. Frames are written to the
// wire in Deliver order; at most one write is in flight at any instant. A
// write error closes the session through the usual leave path.
func (s *Session) Deliver(m protocol.Message) error {
	frame, err := protocol.EncodeFrame(m)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.queue = append(s.queue, frame)
	start := !s.writing
	if start {
		s.writing = true
	}
	s.mu.Unlock()

	if start {
		go s.writeLoop()
	}
	return nil
}

// Stop shuts the session down and closes the socket in both directions.
// Idempotent; pending reads and writes fail and converge on leave.
func (s *Session) Stop() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		_ = s.conn.Close()
	})
}

// leave notifies the room and closes the socket. Runs at most once no
// matter how many pipelines fail.
func (s *Session) leave() {
	s.leaveOnce.Do(func() {
		s.room.Leave(s)
		s.Stop()
	})
}

// readLoop reads one frame at a time: exactly 4 length bytes, the bound
// check, exactly length body bytes, decode, dispatch. The next length read
// is not issued until dispatch returns. All read failures (EOF, transport
// error, oversize frame, undecodable body) converge on leave.
func (s *Session) readLoop() {
	for {
		msg, err := protocol.ReadMessage(s.conn)
		if err != nil {
			switch {
			case err == io.EOF || errors.Is(err, net.ErrClosed):
				slog.Debug("session disconnected", "user", s.Username())
			default:
				slog.Warn("session read failed", "user", s.Username(), "err", err)
			}
			s.leave()
			return
		}
		s.room.Dispatch(s, msg)
	}
}

// writeLoop drains the outbound queue. Exactly one instance runs per
// session at a time; it exits when the queue is empty and a later Deliver
// starts a fresh one.
func (s *Session) writeLoop() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.writing = false
			s.mu.Unlock()
			return
		}
		frame := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if _, err := s.conn.Write(frame); err != nil {
			slog.Warn("session write failed", "user", s.Username(), "err", err)
			s.mu.Lock()
			s.writing = false
			s.mu.Unlock()
			s.leave()
			return
		}
	}
}
