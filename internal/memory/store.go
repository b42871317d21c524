// Package memory holds the learning memory: the most recent observation for
// each bookkeeping key, such as the last modal a user activated. Values are
// overwritten in place and no history is kept.
package memory

import (
	"slices"
	"sync"
	"time"
)

// Entry is the latest value remembered for a key.
type Entry struct {
	Key         string
	Value       any
	LastUpdated time.Time
}

// Store is a concurrency-safe key to latest-value map.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for LastUpdated.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Remember overwrites the value stored under key.
func (s *Store) Remember(key string, value any) {
	entry := Entry{Key: key, Value: value, LastUpdated: s.now()}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
}

// Recall returns the value stored under key.
func (s *Store) Recall(key string) (any, bool) {
	entry, ok := s.Entry(key)
	return entry.Value, ok
}

// Entry returns the full entry stored under key.
func (s *Store) Entry(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	return entry, ok
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	slices.Sort(keys)
	return keys
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
