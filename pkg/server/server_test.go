package server

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/chatrelay/chatrelay/pkg/protocol"
	"github.com/chatrelay/chatrelay/pkg/store"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.DBPath = ""
	srv := New(cfg, Dependencies{Store: store.NewMemory()})
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func dialTestServer(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn net.Conn, m protocol.Message) {
	t.Helper()
	if err := protocol.WriteMessage(conn, m); err != nil {
		t.Fatalf("write %T: %v", m, err)
	}
}

func recv(t *testing.T, conn net.Conn) protocol.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	m, err := protocol.ReadMessage(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestServerEndToEnd(t *testing.T) {
	srv := startTestServer(t)

	// Alice registers both accounts and logs in before bob ever connects,
	// so bob cannot observe her join notice.
	alice := dialTestServer(t, srv)
	send(t, alice, protocol.CreateUser{Username: "alice", Password: "pw"})
	if m := recv(t, alice); m != (protocol.AccountCreated{}) {
		t.Fatalf("alice create reply = %T", m)
	}
	send(t, alice, protocol.Login{Username: "alice", Password: "pw"})
	if m := recv(t, alice); m != (protocol.LoginSuccess{}) {
		t.Fatalf("alice login reply = %T", m)
	}
	// Requests on one connection are handled in order, so this reply also
	// means alice's join broadcast has finished.
	send(t, alice, protocol.CreateUser{Username: "bob", Password: "pw"})
	if m := recv(t, alice); m != (protocol.AccountCreated{}) {
		t.Fatalf("bob create reply = %T", m)
	}

	bob := dialTestServer(t, srv)
	send(t, bob, protocol.Login{Username: "bob", Password: "pw"})
	if m := recv(t, bob); m != (protocol.LoginSuccess{}) {
		t.Fatalf("bob login reply = %T", m)
	}
	// Alice sees bob join.
	wantJoin := protocol.Message(protocol.ChatMessage{Sender: "server", Body: "bob has joined"})
	if diff := cmp.Diff(wantJoin, recv(t, alice)); diff != "" {
		t.Fatalf("join notice mismatch (-want +got):\n%s", diff)
	}

	// A chat from alice reaches bob, tagged with her server-side identity.
	send(t, alice, protocol.ChatMessage{Sender: "ignored", Body: "hello bob"})
	wantChat := protocol.Message(protocol.ChatMessage{Sender: "alice", Body: "hello bob"})
	if diff := cmp.Diff(wantChat, recv(t, bob)); diff != "" {
		t.Fatalf("chat mismatch (-want +got):\n%s", diff)
	}

	// Bob hangs up; alice is told.
	_ = bob.Close()
	wantLeft := protocol.Message(protocol.ChatMessage{Sender: "server", Body: "bob has left"})
	if diff := cmp.Diff(wantLeft, recv(t, alice)); diff != "" {
		t.Fatalf("leave notice mismatch (-want +got):\n%s", diff)
	}

	if got := srv.Metrics().ChatMessagesRelayed.Load(); got != 1 {
		t.Errorf("ChatMessagesRelayed = %d, want 1", got)
	}
}

func TestServerReplaysHistoryToNewLogin(t *testing.T) {
	srv := startTestServer(t)

	alice := dialTestServer(t, srv)
	send(t, alice, protocol.CreateUser{Username: "alice", Password: "pw"})
	recv(t, alice)
	send(t, alice, protocol.Login{Username: "alice", Password: "pw"})
	recv(t, alice)
	send(t, alice, protocol.ChatMessage{Body: "first"})
	send(t, alice, protocol.ChatMessage{Body: "second"})

	// Persistence happens on alice's connection goroutine; wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for srv.Metrics().ChatMessagesRelayed.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for messages to persist")
		}
		time.Sleep(2 * time.Millisecond)
	}

	bob := dialTestServer(t, srv)
	send(t, bob, protocol.CreateUser{Username: "bob", Password: "pw"})
	recv(t, bob)
	send(t, bob, protocol.Login{Username: "bob", Password: "pw"})
	if m := recv(t, bob); m != (protocol.LoginSuccess{}) {
		t.Fatalf("bob login reply = %T", m)
	}

	want := []protocol.Message{
		protocol.ChatMessage{Sender: "alice", Body: "first"},
		protocol.ChatMessage{Sender: "alice", Body: "second"},
	}
	got := []protocol.Message{recv(t, bob), recv(t, bob)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("history replay mismatch (-want +got):\n%s", diff)
	}
}

func TestServerDropsOversizeFrame(t *testing.T) {
	srv := startTestServer(t)
	conn := dialTestServer(t, srv)

	// A declared length past the cap must terminate the session before any
	// body bytes are read.
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], protocol.MaxFrameBytes+1)
	if _, err := conn.Write(prefix[:]); err != nil {
		t.Fatalf("write prefix: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err != io.EOF {
		t.Fatalf("read after oversize frame err = %v, want io.EOF", err)
	}
}

func TestServerShutdownClosesClients(t *testing.T) {
	srv := startTestServer(t)
	conn := dialTestServer(t, srv)

	// Make sure the session is registered before shutting down.
	send(t, conn, protocol.CreateUser{Username: "alice", Password: "pw"})
	recv(t, conn)

	srv.Shutdown()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("connection still open after shutdown")
	}

	if _, err := net.Dial("tcp", srv.Addr().String()); err == nil {
		t.Fatal("listener still accepting after shutdown")
	}
}
