package model

import (
	"strings"
	"testing"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid simple", "alice", nil},
		{"valid with numbers", "user123", nil},
		{"valid with underscore", "my_user", nil},
		{"valid with hyphen", "my-user", nil},
		{"valid mixed", "A-b_3", nil},
		{"valid max length", strings.Repeat("a", MaxUsernameLength), nil},
		{"empty", "", ErrUsernameEmpty},
		{"too long", strings.Repeat("a", MaxUsernameLength+1), ErrUsernameTooLong},
		{"contains space", "has space", ErrUsernameInvalidChars},
		{"contains colon", "user:name", ErrUsernameInvalidChars},
		{"contains @", "user@name", ErrUsernameInvalidChars},
		{"unicode letter", "ñoño", ErrUsernameInvalidChars},
		{"newline", "user\nname", ErrUsernameInvalidChars},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if err != tt.wantErr {
				t.Errorf("ValidateUsername(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateChatBody(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid", "hello", nil},
		{"valid max length", strings.Repeat("x", MaxChatBodyLength), nil},
		{"valid multibyte under cap", strings.Repeat("ü", MaxChatBodyLength), nil},
		{"empty", "", ErrChatBodyEmpty},
		{"whitespace only", "  \t ", ErrChatBodyEmpty},
		{"too long", strings.Repeat("x", MaxChatBodyLength+1), ErrChatBodyTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChatBody(tt.input)
			if err != tt.wantErr {
				t.Errorf("ValidateChatBody(%q...) = %v, want %v", truncate(tt.input), err, tt.wantErr)
			}
		})
	}
}

func truncate(s string) string {
	if len(s) > 16 {
		return s[:16]
	}
	return s
}
