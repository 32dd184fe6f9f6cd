package store

import (
	"time"

	"github.com/chatrelay/chatrelay/pkg/model"
)

// DataStore is the persistence interface the room coordinator consumes:
// credential checks, account registration, and durable chat history.
// Implementations include the default SQLite store and an in-memory store
// for tests.
type DataStore interface {
	// Authenticate reports whether the username/password pair matches a
	// registered account. Unknown usernames are a false result, not an
	// error.
	Authenticate(username, password string) (bool, error)

	// CreateAccount registers a new account. It returns false when the
	// username is already taken. It does not log the account in.
	CreateAccount(username, password string) (bool, error)

	// RecordMessage durably records one chat line.
	RecordMessage(sender, body string) error

	// RecentMessages returns up to limit of the newest chat lines,
	// oldest first.
	RecentMessages(limit int) ([]model.ChatLine, error)

	// MessagesBetween returns chat lines recorded in [start, end],
	// oldest first.
	MessagesBetween(start, end time.Time) ([]model.ChatLine, error)

	// GetUserByUsername returns the account, or nil when it does not exist.
	GetUserByUsername(username string) (*model.User, error)

	Close() error
}

// Compile-time checks.
var (
	_ DataStore = (*Store)(nil)
	_ DataStore = (*MemoryStore)(nil)
)
