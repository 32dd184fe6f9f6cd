package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/chatrelay/chatrelay/pkg/crypto"
	"github.com/chatrelay/chatrelay/pkg/model"
)

// MemoryStore provides an in-memory DataStore implementation for tests.
// It mirrors SQLite behavior for validation and error handling.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	nextUserID    int64
	nextMessageID int64

	users    map[string]*memoryUser
	messages []model.ChatLine
}

type memoryUser struct {
	user         model.User
	passwordHash string
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(nil)
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:           now,
		nextUserID:    1,
		nextMessageID: 1,
		users:         make(map[string]*memoryUser),
	}
}

// CreateAccount registers a new account. Returns false when the username is
// already taken.
func (m *MemoryStore) CreateAccount(username, password string) (bool, error) {
	if err := model.ValidateUsername(username); err != nil {
		return false, fmt.Errorf("store: create account: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[username]; exists {
		return false, nil
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("store: create account: %w", err)
	}
	m.users[username] = &memoryUser{
		user: model.User{
			ID:        m.nextUserID,
			Username:  username,
			CreatedAt: m.now(),
		},
		passwordHash: hash,
	}
	m.nextUserID++
	return true, nil
}

// Authenticate verifies a username/password pair.
func (m *MemoryStore) Authenticate(username, password string) (bool, error) {
	m.mu.RLock()
	entry, exists := m.users[username]
	m.mu.RUnlock()

	if !exists {
		return false, nil
	}
	ok, err := crypto.VerifyPassword(password, entry.passwordHash)
	if err != nil {
		return false, fmt.Errorf("store: authenticate: %w", err)
	}
	return ok, nil
}

// GetUserByUsername retrieves an account by username, or nil when absent.
func (m *MemoryStore) GetUserByUsername(username string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.users[username]
	if !exists {
		return nil, nil
	}
	u := entry.user
	return &u, nil
}

// RecordMessage records one chat line.
func (m *MemoryStore) RecordMessage(sender, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, model.ChatLine{
		ID:        m.nextMessageID,
		Sender:    sender,
		Body:      body,
		CreatedAt: m.now(),
	})
	m.nextMessageID++
	return nil
}

// RecentMessages returns up to limit of the newest chat lines, oldest first.
func (m *MemoryStore) RecentMessages(limit int) ([]model.ChatLine, error) {
	if limit <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	start := 0
	if len(m.messages) > limit {
		start = len(m.messages) - limit
	}
	result := make([]model.ChatLine, len(m.messages)-start)
	copy(result, m.messages[start:])
	if len(result) == 0 {
		return nil, nil
	}
	return result, nil
}

// MessagesBetween returns chat lines recorded in [start, end], oldest first.
func (m *MemoryStore) MessagesBetween(start, end time.Time) ([]model.ChatLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []model.ChatLine
	for _, line := range m.messages {
		if !line.CreatedAt.Before(start) && !line.CreatedAt.After(end) {
			result = append(result, line)
		}
	}
	return result, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
