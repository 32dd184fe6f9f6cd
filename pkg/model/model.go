// Package model defines the core domain types for the chat relay.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxUsernameLength = 32

var ErrUsernameEmpty = errors.New("username must not be empty")
var ErrUsernameTooLong = fmt.Errorf("username must not exceed %d characters", MaxUsernameLength)
var ErrUsernameInvalidChars = errors.New("username must contain only alphanumeric characters, underscores, or hyphens")

// User represents a registered account.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidateUsername checks that a username is 1-32 ASCII alphanumeric,
// underscore, or hyphen characters. Returns nil on success or a descriptive
// error.
func ValidateUsername(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' && r != '-' {
			return ErrUsernameInvalidChars
		}
	}
	return nil
}

const MaxChatBodyLength = 2000

var ErrChatBodyTooLong = fmt.Errorf("chat body exceeds %d characters", MaxChatBodyLength)
var ErrChatBodyEmpty = errors.New("chat body cannot be empty")

// ChatLine is one persisted chat message.
type ChatLine struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidateChatBody checks that a chat body is non-blank and within the rune
// cap. Returns nil on success.
func ValidateChatBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrChatBodyEmpty
	}
	if utf8.RuneCountInString(body) > MaxChatBodyLength {
		return ErrChatBodyTooLong
	}
	return nil
}
