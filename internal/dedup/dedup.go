// Package dedup guards turn ingress against repeated delivery of the
// same external event. Webhook and broker sources deliver at least
// once; a Set remembers recently handled event keys so a retry does
// not start a second turn.
package dedup

import (
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"sync"
)

// DefaultCapacity bounds a Set when no capacity is given.
const DefaultCapacity = 1000

// Key builds the idempotency key for an inbound message:
// <ts>_<channel>_<user>_<first 8 hex digits of md5(text)>.
func Key(ts, channel, user, text string) string {
	sum := md5.Sum([]byte(text))
	return ts + "_" + channel + "_" + user + "_" + hex.EncodeToString(sum[:])[:8]
}

// Set is a bounded set of keys with insertion-order eviction. When an
// insert pushes it past capacity, the oldest half is dropped. It is
// safe for concurrent use.
type Set struct {
	mu       sync.Mutex
	capacity int
	keys     map[string]struct{}
	order    []string
	logger   *slog.Logger
}

// New creates a Set holding at most capacity keys.
func New(capacity int, logger *slog.Logger) *Set {
	if capacity < 2 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Set{
		capacity: capacity,
		keys:     make(map[string]struct{}, capacity),
		order:    make([]string, 0, capacity),
		logger:   logger,
	}
}

// Seen reports whether key has been remembered.
func (s *Set) Seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// Remember records key. Remembering a known key is a no-op.
func (s *Set) Remember(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rememberLocked(key)
}

// CheckAndRemember records key and reports whether it was already
// present. Exactly one of any number of concurrent callers with the
// same new key gets false.
func (s *Set) CheckAndRemember(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return true
	}
	s.rememberLocked(key)
	return false
}

// Len returns the number of keys held.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// rememberLocked must be called with s.mu held.
func (s *Set) rememberLocked(key string) {
	if _, ok := s.keys[key]; ok {
		return
	}
	s.keys[key] = struct{}{}
	s.order = append(s.order, key)

	if len(s.order) <= s.capacity {
		return
	}

	drop := len(s.order) / 2
	for _, k := range s.order[:drop] {
		delete(s.keys, k)
	}
	// Copy into a fresh slice so the evicted prefix can be collected.
	kept := make([]string, len(s.order)-drop, s.capacity+1)
	copy(kept, s.order[drop:])
	s.order = kept

	s.logger.Debug("dedup set evicted oldest keys", "evicted", drop, "kept", len(kept))
}
