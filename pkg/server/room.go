package server

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/chatrelay/chatrelay/pkg/model"
	"github.com/chatrelay/chatrelay/pkg/protocol"
	"github.com/chatrelay/chatrelay/pkg/store"
)

// noticeSender is the synthetic sender of join/leave notices.
const noticeSender = "server"

// Room is the single authority over session membership and message routing.
// The membership set is the only state shared across connection goroutines;
// every mutation and the broadcast iteration hold the same lock, so no
// reader ever observes a half-removed session.
type Room struct {
	store        store.DataStore
	metrics      *Metrics
	historyLimit int

	mu      sync.Mutex
	members map[*Session]struct{}
	closed  bool
}

// NewRoom creates a room backed by the given store. historyLimit caps the
// replay sent after a successful login.
func NewRoom(st store.DataStore, metrics *Metrics, historyLimit int) *Room {
	return &Room{
		store:        st,
		metrics:      metrics,
		historyLimit: historyLimit,
		members:      make(map[*Session]struct{}),
	}
}

// Accept adds a session to the membership set. Callers must do this before
// Session.Start so that early traffic is always routable. Sessions arriving
// after shutdown are stopped immediately.
func (r *Room) Accept(s *Session) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		s.Stop()
		return
	}
	r.members[s] = struct{}{}
	r.mu.Unlock()
}

// Dispatch routes one decoded message from a session. Status variants are
// server-to-client only; a client sending one is a protocol-sequence error
// that is logged and ignored, leaving the connection open.
func (r *Room) Dispatch(s *Session, m protocol.Message) {
	switch msg := m.(type) {
	case protocol.Login:
		r.handleLogin(s, msg)
	case protocol.CreateUser:
		r.handleCreateUser(s, msg)
	case protocol.ChatMessage:
		r.handleChat(s, msg)
	default:
		slog.Debug("ignoring status message from client", "kind", m.Kind(), "user", s.Username())
	}
}

func (r *Room) handleLogin(s *Session, m protocol.Login) {
	ok, err := r.store.Authenticate(m.Username, m.Password)
	if err != nil {
		// Store trouble fails this request only; other sessions are
		// unaffected and the client may retry.
		slog.Error("authenticate failed", "user", m.Username, "err", err)
		ok = false
	}
	if !ok {
		r.metrics.FailedAuths.Add(1)
		slog.Info("login rejected", "user", m.Username)
		if err := s.Deliver(protocol.LoginFailed{}); err != nil {
			slog.Debug("deliver login_failed", "err", err)
		}
		return
	}

	s.SetUsername(m.Username)
	r.metrics.SuccessfulAuths.Add(1)
	slog.Info("login accepted", "user", m.Username)

	if err := s.Deliver(protocol.LoginSuccess{}); err != nil {
		slog.Debug("deliver login_success", "err", err)
		return
	}
	r.replayHistory(s)

	r.Broadcast(protocol.ChatMessage{
		Sender: noticeSender,
		Body:   fmt.Sprintf("%s has joined", m.Username),
	}, s)
}

// replayHistory delivers the most recent chat lines, oldest first, so a
// fresh login sees the tail of the conversation.
func (r *Room) replayHistory(s *Session) {
	lines, err := r.store.RecentMessages(r.historyLimit)
	if err != nil {
		slog.Error("history replay failed", "user", s.Username(), "err", err)
		return
	}
	for _, line := range lines {
		if err := s.Deliver(protocol.ChatMessage{Sender: line.Sender, Body: line.Body}); err != nil {
			slog.Debug("deliver history line", "err", err)
			return
		}
	}
}

func (r *Room) handleCreateUser(s *Session, m protocol.CreateUser) {
	created, err := r.store.CreateAccount(m.Username, m.Password)
	if err != nil {
		slog.Error("create account failed", "user", m.Username, "err", err)
		created = false
	}

	var reply protocol.Message = protocol.AccountExists{}
	if created {
		reply = protocol.AccountCreated{}
		r.metrics.AccountsCreated.Add(1)
		slog.Info("account created", "user", m.Username)
	}
	if err := s.Deliver(reply); err != nil {
		slog.Debug("deliver account status", "err", err)
	}
}

func (r *Room) handleChat(s *Session, m protocol.ChatMessage) {
	identity := s.Username()
	if identity == "" {
		// Not authenticated: drop the message and tell the sender why.
		if err := s.Deliver(protocol.LoginFailed{}); err != nil {
			slog.Debug("deliver unauthenticated notice", "err", err)
		}
		return
	}

	if err := model.ValidateChatBody(m.Body); err != nil {
		slog.Debug("dropping invalid chat body", "user", identity, "err", err)
		return
	}

	// Persist under the server-known identity. The client-supplied sender
	// field is ignored. Broadcast only what was recorded.
	if err := r.store.RecordMessage(identity, m.Body); err != nil {
		slog.Error("record message failed", "user", identity, "err", err)
		return
	}
	r.metrics.ChatMessagesRelayed.Add(1)
	r.Broadcast(protocol.ChatMessage{Sender: identity, Body: m.Body}, s)
}

// Broadcast delivers a message to every current member except exclude.
// Deliver only enqueues, so holding the membership lock across the
// iteration is cheap and keeps the set stable for the whole call.
func (r *Room) Broadcast(m protocol.Message, exclude *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for member := range r.members {
		if member == exclude {
			continue
		}
		if err := member.Deliver(m); err != nil {
			slog.Debug("broadcast deliver failed", "user", member.Username(), "err", err)
		}
	}
}

// Leave removes a session from the membership set. Idempotent. If the
// session had authenticated, the remaining members are told it left.
func (r *Room) Leave(s *Session) {
	r.mu.Lock()
	if _, ok := r.members[s]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.members, s)
	r.mu.Unlock()

	r.metrics.TotalDisconnects.Add(1)
	r.metrics.ActiveConnections.Add(-1)

	if identity := s.Username(); identity != "" {
		r.Broadcast(protocol.ChatMessage{
			Sender: noticeSender,
			Body:   fmt.Sprintf("%s has left", identity),
		}, s)
	}
}

// Count returns the number of current members.
func (r *Room) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Shutdown swaps the membership set out atomically, then stops every
// session that was in it. New sessions are refused from this point on.
func (r *Room) Shutdown() {
	r.mu.Lock()
	r.closed = true
	remaining := r.members
	r.members = make(map[*Session]struct{})
	r.mu.Unlock()

	for s := range remaining {
		s.Stop()
	}
}
