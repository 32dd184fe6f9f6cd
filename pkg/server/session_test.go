package server

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/chatrelay/chatrelay/pkg/protocol"
	"github.com/chatrelay/chatrelay/pkg/store"
)

func newTestRoom() *Room {
	return NewRoom(store.NewMemory(), NewMetrics(), 50)
}

func TestDeliverWritesInOrder(t *testing.T) {
	room := newTestRoom()
	gate := make(chan struct{})
	conn := newRecordConn()
	conn.writeGate = gate
	sess := newSession(conn, room)
	room.Accept(sess)

	// Queue every frame while the first write is still blocked, then
	// release the gate. All frames must come out in Deliver order, one
	// write at a time.
	const n = 10
	for i := 0; i < n; i++ {
		if err := sess.Deliver(protocol.ChatMessage{Sender: "alice", Body: fmt.Sprintf("msg-%d", i)}); err != nil {
			t.Fatalf("Deliver %d: %v", i, err)
		}
	}
	close(gate)

	msgs := waitFrames(t, conn, n)
	for i, m := range msgs {
		want := protocol.ChatMessage{Sender: "alice", Body: fmt.Sprintf("msg-%d", i)}
		if diff := cmp.Diff(protocol.Message(want), m); diff != "" {
			t.Errorf("frame %d mismatch (-want +got):\n%s", i, diff)
		}
	}
	if conn.overlapping.Load() {
		t.Error("two writes were in flight at the same time")
	}
}

func TestDeliverAfterStop(t *testing.T) {
	room := newTestRoom()
	conn := newRecordConn()
	sess := newSession(conn, room)
	room.Accept(sess)

	sess.Stop()
	sess.Stop() // idempotent

	if err := sess.Deliver(protocol.LoginSuccess{}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Deliver after Stop err = %v, want ErrSessionClosed", err)
	}
}

func TestWriteErrorLeavesRoom(t *testing.T) {
	room := newTestRoom()
	conn := newRecordConn()
	conn.writeErr = errors.New("wire broke")
	sess := newSession(conn, room)
	room.Accept(sess)

	if got := room.Count(); got != 1 {
		t.Fatalf("room count = %d, want 1", got)
	}
	if err := sess.Deliver(protocol.LoginSuccess{}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	waitForCount(t, room, 0)
}

func TestIdentityAccessors(t *testing.T) {
	sess := newSession(newRecordConn(), newTestRoom())
	if got := sess.Username(); got != "" {
		t.Errorf("initial Username = %q, want empty", got)
	}
	sess.SetUsername("alice")
	if got := sess.Username(); got != "alice" {
		t.Errorf("Username = %q, want alice", got)
	}
}

func waitForCount(t *testing.T, room *Room, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for room.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("room count = %d, want %d", room.Count(), want)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
