package conversation

import (
	"sync"
	"time"

	"github.com/pixelbot/pixelbot/internal/expiry"
	"github.com/pixelbot/pixelbot/internal/logger"
)

const defaultMaxMessages = 10

// Manager owns per-session history, keyed by the stable user identity.
// Conversations disappear after the configured idle TTL; every append
// re-arms the clock and trims the history to the most recent maxMessages.
//
// The store's own lock only covers the key map; conversations are held by
// pointer, so every access to a Conversation's fields goes through mu.
// Transports dispatch each incoming update on its own goroutine, which
// makes concurrent appends to the same session an expected situation.
type Manager struct {
	mu          sync.Mutex
	store       *expiry.Store[*Conversation]
	maxMessages int
}

func NewManager(ttl time.Duration, maxMessages int, now expiry.Clock) *Manager {
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}
	return &Manager{
		store:       expiry.NewStore[*Conversation](ttl, now),
		maxMessages: maxMessages,
	}
}

// GetOrReset returns the session's conversation when its type matches the
// implied one; otherwise it resets to an empty conversation of that type.
// preserveID carries the conversation id across the reset (Edit flow
// transitioning from another type); the history is always cleared.
func (m *Manager) GetOrReset(key string, implied SessionType, preserveID bool) *Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conv, ok := m.store.Get(key); ok {
		if conv.Type == implied {
			return conv
		}
		logger.Info("session type changed, resetting history",
			"session", key, "from", conv.Type, "to", implied)
		fresh := &Conversation{Type: implied}
		if preserveID {
			fresh.ID = conv.ID
		}
		m.store.Put(key, fresh)
		return fresh
	}

	fresh := &Conversation{Type: implied}
	m.store.Put(key, fresh)
	return fresh
}

// History returns a snapshot of the current messages, or nil when no live
// conversation exists for the key. The snapshot is safe to read while
// other goroutines keep appending.
func (m *Manager) History(key string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.store.Get(key)
	if !ok {
		return nil
	}
	snapshot := make([]Message, len(conv.Messages))
	copy(snapshot, conv.Messages)
	return snapshot
}

// Type returns the live session type, if any.
func (m *Manager) Type(key string) (SessionType, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.store.Get(key)
	if !ok {
		return "", false
	}
	return conv.Type, true
}

// Append pushes a message, refreshes the activity timestamp, and trims
// oldest-first to maxMessages. Returns a snapshot of the post-trim history.
func (m *Manager) Append(key, role string, parts []Part) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.store.Get(key)
	if !ok {
		conv = &Conversation{}
	}

	conv.Messages = append(conv.Messages, Message{Role: role, Parts: parts})
	if excess := len(conv.Messages) - m.maxMessages; excess > 0 {
		conv.Messages = conv.Messages[excess:]
		logger.Info("history trimmed", "session", key, "kept", m.maxMessages)
	}

	m.store.Put(key, conv)
	snapshot := make([]Message, len(conv.Messages))
	copy(snapshot, conv.Messages)
	return snapshot
}

// Clear removes the conversation in one step. The caller is responsible
// for clearing related state (image pointers, pending expectations) in the
// same logical operation.
func (m *Manager) Clear(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store.Remove(key)
	logger.Info("conversation cleared", "session", key)
}

// Sweep removes idle-expired conversations.
func (m *Manager) Sweep() int {
	return m.store.Sweep()
}
