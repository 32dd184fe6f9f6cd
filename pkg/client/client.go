// Package client implements the chat relay client networking.
package client

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/chatrelay/chatrelay/pkg/protocol"
)

// Client manages one connection to a chat relay server. Incoming frames are
// delivered through the callbacks, all of which are invoked from a single
// goroutine. Set them before calling Start.
type Client struct {
	conn net.Conn

	mu        sync.Mutex // serializes outbound writes
	done      chan struct{}
	closeOnce sync.Once

	// Callbacks for server events.
	OnChat          func(sender, body string)
	OnLoginResult   func(ok bool)
	OnAccountResult func(created bool)
	OnDisconnect    func(err error)
}

// Dial connects to the server. The read pipeline does not start until Start
// is called, so callbacks can be set in between.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: connect: %w", err)
	}
	return &Client{
		conn: conn,
		done: make(chan struct{}),
	}, nil
}

// Start begins reading server frames.
func (c *Client) Start() {
	go c.readLoop()
}

// Done is closed when the connection ends, from either side.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Login requests authentication. The outcome arrives via OnLoginResult.
func (c *Client) Login(username, password string) error {
	return c.send(protocol.Login{Username: username, Password: password})
}

// CreateAccount requests registration. The outcome arrives via
// OnAccountResult.
func (c *Client) CreateAccount(username, password string) error {
	return c.send(protocol.CreateUser{Username: username, Password: password})
}

// SendChat sends one chat line. The server stamps the authoritative sender,
// so none is supplied here.
func (c *Client) SendChat(body string) error {
	return c.send(protocol.ChatMessage{Body: body})
}

// Close shuts the connection down. Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
	return nil
}

func (c *Client) send(m protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return protocol.WriteMessage(c.conn, m)
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		m, err := protocol.ReadMessage(c.conn)
		if err != nil {
			if err == io.EOF || errors.Is(err, net.ErrClosed) {
				err = nil // orderly close
			}
			c.Close()
			if c.OnDisconnect != nil {
				c.OnDisconnect(err)
			}
			return
		}
		c.dispatch(m)
	}
}

func (c *Client) dispatch(m protocol.Message) {
	switch msg := m.(type) {
	case protocol.ChatMessage:
		if c.OnChat != nil {
			c.OnChat(msg.Sender, msg.Body)
		}
	case protocol.LoginSuccess:
		if c.OnLoginResult != nil {
			c.OnLoginResult(true)
		}
	case protocol.LoginFailed:
		if c.OnLoginResult != nil {
			c.OnLoginResult(false)
		}
	case protocol.AccountCreated:
		if c.OnAccountResult != nil {
			c.OnAccountResult(true)
		}
	case protocol.AccountExists:
		if c.OnAccountResult != nil {
			c.OnAccountResult(false)
		}
	default:
		slog.Warn("unexpected message from server", "kind", m.Kind())
	}
}
