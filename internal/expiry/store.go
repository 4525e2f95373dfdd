// Package expiry provides a mutex-guarded key-value store whose entries
// become invisible once their collection TTL elapses. Expiry is evaluated
// lazily on every read, so correctness does not depend on Sweep running.
package expiry

import (
	"sync"
	"time"
)

// Clock returns the current time. Injectable so tests can simulate time.
type Clock func() time.Time

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Store holds values under string keys with a single fixed TTL.
// TTL <= 0 means entries never expire.
type Store[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     Clock
	entries map[string]entry[V]
}

func NewStore[V any](ttl time.Duration, now Clock) *Store[V] {
	if now == nil {
		now = time.Now
	}
	return &Store[V]{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]entry[V]),
	}
}

func (s *Store[V]) Put(key string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry[V]{value: value, storedAt: s.now()}
}

// Get returns the stored value, treating TTL-elapsed entries as absent
// and evicting them on the way out.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}

	if s.expired(e) {
		delete(s.entries, key)
		var zero V
		return zero, false
	}

	return e.value, true
}

// Touch resets the entry's stored-at timestamp without changing its value.
// No-op if the key is absent or already expired.
func (s *Store[V]) Touch(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.expired(e) {
		return
	}
	e.storedAt = s.now()
	s.entries[key] = e
}

func (s *Store[V]) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Sweep removes every TTL-elapsed entry. Idempotent; safe to run from a
// timer concurrently with reads and writes.
func (s *Store[V]) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store[V]) expired(e entry[V]) bool {
	if s.ttl <= 0 {
		return false
	}
	return s.now().Sub(e.storedAt) > s.ttl
}
