package server

import (
	"bytes"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chatrelay/chatrelay/pkg/protocol"
)

// recordConn is a net.Conn that records every written frame. Read blocks
// until the conn is closed, so sessions under test are driven through
// Dispatch/Deliver directly rather than through the read pipeline.
type recordConn struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool

	done      chan struct{} // closed by Close
	closeOnce sync.Once

	writeGate <-chan struct{} // when non-nil, writes block until it closes

	inFlight    atomic.Int32
	overlapping atomic.Bool // two writes were ever in flight at once
	writeErr    error       // when set, writes fail with it
}

func newRecordConn() *recordConn {
	return &recordConn{done: make(chan struct{})}
}

func (c *recordConn) Read(_ []byte) (int, error) {
	<-c.done
	return 0, io.EOF
}

func (c *recordConn) Write(p []byte) (int, error) {
	if n := c.inFlight.Add(1); n > 1 {
		c.overlapping.Store(true)
	}
	defer c.inFlight.Add(-1)

	if c.writeGate != nil {
		<-c.writeGate
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	if c.closed {
		return 0, net.ErrClosed
	}
	return c.buf.Write(p)
}

func (c *recordConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

func (c *recordConn) LocalAddr() net.Addr                { return &net.IPAddr{} }
func (c *recordConn) RemoteAddr() net.Addr               { return &net.IPAddr{} }
func (c *recordConn) SetDeadline(_ time.Time) error      { return nil }
func (c *recordConn) SetReadDeadline(_ time.Time) error  { return nil }
func (c *recordConn) SetWriteDeadline(_ time.Time) error { return nil }

// frames decodes every complete frame recorded so far.
func (c *recordConn) frames(t *testing.T) []protocol.Message {
	t.Helper()
	c.mu.Lock()
	data := append([]byte(nil), c.buf.Bytes()...)
	c.mu.Unlock()

	var msgs []protocol.Message
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		m, err := protocol.ReadMessage(r)
		if err != nil {
			t.Fatalf("decode recorded frame %d: %v", len(msgs), err)
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// waitFrames polls until the conn holds exactly want frames. Writes happen
// on the session's write goroutine, so tests must wait for the queue to
// drain.
func waitFrames(t *testing.T, c *recordConn, want int) []protocol.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		msgs := c.frames(t)
		if len(msgs) == want {
			// One more settle check: no extra frame should follow.
			time.Sleep(5 * time.Millisecond)
			if again := c.frames(t); len(again) != want {
				t.Fatalf("frame count moved past %d (now %d)", want, len(again))
			}
			return msgs
		}
		if len(msgs) > want {
			t.Fatalf("got %d frames, want %d: %v", len(msgs), want, msgs)
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d frames, have %d", want, len(msgs))
		}
		time.Sleep(2 * time.Millisecond)
	}
}
