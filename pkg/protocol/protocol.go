// Package protocol defines the chat relay wire format.
//
// Every frame carries exactly one message:
//
//	Frame  := u32 length (4 bytes) || body (length bytes)
//	Body   := tag (1 byte) || variant fields
//	string := u32 length (4 bytes) || UTF-8 bytes
//
// All multi-byte integers are little-endian. The byte order is part of the
// protocol, never the platform's.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameBytes is the maximum allowed frame body size (1 MiB). A declared
// length above this bound is a protocol violation, not a retriable read.
const MaxFrameBytes = 1 << 20

// Kind identifies a message variant. It is the tag byte on the wire.
type Kind uint8

const (
	KindLogin          Kind = iota // client -> server: credentials
	KindCreateUser                 // client -> server: account registration
	KindChatMessage                // both directions: chat text
	KindLoginSuccess               // server -> client status
	KindLoginFailed                // server -> client status
	KindAccountCreated             // server -> client status
	KindAccountExists              // server -> client status
)

func (k Kind) String() string {
	switch k {
	case KindLogin:
		return "login"
	case KindCreateUser:
		return "create_user"
	case KindChatMessage:
		return "chat_message"
	case KindLoginSuccess:
		return "login_success"
	case KindLoginFailed:
		return "login_failed"
	case KindAccountCreated:
		return "account_created"
	case KindAccountExists:
		return "account_exists"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

var (
	ErrEmptyBody     = errors.New("protocol: empty message body")
	ErrUnknownKind   = errors.New("protocol: unknown message tag")
	ErrTruncated     = errors.New("protocol: truncated message body")
	ErrFrameTooLarge = errors.New("protocol: frame exceeds size limit")
)

// Message is one case of the closed set of wire messages. Consumers switch
// on the concrete type; decoding never produces a type outside this package.
type Message interface {
	Kind() Kind
}

// Login carries credentials for an existing account.
type Login struct {
	Username string
	Password string
}

func (Login) Kind() Kind { return KindLogin }

// CreateUser requests registration of a new account. It does not log in.
type CreateUser struct {
	Username string
	Password string
}

func (CreateUser) Kind() Kind { return KindCreateUser }

// ChatMessage is a chat line. The server rewrites Sender with the session's
// authenticated identity before persisting or relaying; the client-supplied
// value is never trusted.
type ChatMessage struct {
	Sender string
	Body   string
}

func (ChatMessage) Kind() Kind { return KindChatMessage }

// LoginSuccess acknowledges a successful Login.
type LoginSuccess struct{}

func (LoginSuccess) Kind() Kind { return KindLoginSuccess }

// LoginFailed rejects a Login. It is also reused as the "not authenticated"
// signal for chat text sent before login.
type LoginFailed struct{}

func (LoginFailed) Kind() Kind { return KindLoginFailed }

// AccountCreated acknowledges a successful CreateUser.
type AccountCreated struct{}

func (AccountCreated) Kind() Kind { return KindAccountCreated }

// AccountExists rejects a CreateUser whose username is taken.
type AccountExists struct{}

func (AccountExists) Kind() Kind { return KindAccountExists }

// Marshal serializes a message body: tag byte followed by the variant's
// fields. Deterministic, no padding. The frame length prefix is not
// included; see EncodeFrame.
func Marshal(m Message) []byte {
	buf := make([]byte, 1, 64)
	buf[0] = byte(m.Kind())
	switch v := m.(type) {
	case Login:
		buf = appendString(buf, v.Username)
		buf = appendString(buf, v.Password)
	case CreateUser:
		buf = appendString(buf, v.Username)
		buf = appendString(buf, v.Password)
	case ChatMessage:
		buf = appendString(buf, v.Sender)
		buf = appendString(buf, v.Body)
	case LoginSuccess, LoginFailed, AccountCreated, AccountExists:
		// tag only
	}
	return buf
}

// Unmarshal decodes a message body produced by Marshal. Every length field
// is checked against the remaining buffer; malformed input yields an error,
// never a panic or an out-of-bounds read.
func Unmarshal(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, ErrEmptyBody
	}
	rest := data[1:]
	switch Kind(data[0]) {
	case KindLogin:
		username, password, err := readStringPair(rest)
		if err != nil {
			return nil, err
		}
		return Login{Username: username, Password: password}, nil
	case KindCreateUser:
		username, password, err := readStringPair(rest)
		if err != nil {
			return nil, err
		}
		return CreateUser{Username: username, Password: password}, nil
	case KindChatMessage:
		sender, body, err := readStringPair(rest)
		if err != nil {
			return nil, err
		}
		return ChatMessage{Sender: sender, Body: body}, nil
	case KindLoginSuccess:
		return LoginSuccess{}, nil
	case KindLoginFailed:
		return LoginFailed{}, nil
	case KindAccountCreated:
		return AccountCreated{}, nil
	case KindAccountExists:
		return AccountExists{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, data[0])
	}
}

// EncodeFrame serializes a message and prefixes it with the 4-byte length,
// ready to be written to the wire as one unit.
func EncodeFrame(m Message) ([]byte, error) {
	body := Marshal(m)
	if len(body) > MaxFrameBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}
	frame := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(frame[:4], uint32(len(body))) //nolint:gosec // bounds-checked above
	copy(frame[4:], body)
	return frame, nil
}

// WriteMessage writes one framed message to w.
func WriteMessage(w io.Writer, m Message) error {
	frame, err := EncodeFrame(m)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("protocol: write frame: %w", err)
	}
	return nil
}

// ReadMessage reads one framed message from r. A declared length above
// MaxFrameBytes fails before any body allocation or read is attempted.
func ReadMessage(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length > MaxFrameBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("protocol: read body: %w", err)
	}
	return Unmarshal(body)
}

// appendString appends a u32 length prefix and the raw UTF-8 bytes. No NUL
// terminator, no escaping.
func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s))) //nolint:gosec // string length fits u32 on every supported target
	return append(buf, s...)
}

// readString reads one length-prefixed string starting at data[off],
// returning the string and the offset just past it.
func readString(data []byte, off int) (string, int, error) {
	if len(data)-off < 4 {
		return "", 0, ErrTruncated
	}
	n := int(binary.LittleEndian.Uint32(data[off : off+4]))
	off += 4
	if n < 0 || len(data)-off < n {
		return "", 0, ErrTruncated
	}
	return string(data[off : off+n]), off + n, nil
}

func readStringPair(data []byte) (string, string, error) {
	first, off, err := readString(data, 0)
	if err != nil {
		return "", "", err
	}
	second, _, err := readString(data, off)
	if err != nil {
		return "", "", err
	}
	return first, second, nil
}
