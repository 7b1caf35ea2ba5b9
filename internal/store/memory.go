package store

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when no cached response exists for a key.
	ErrNotFound = errors.New("no cached response for key")
)

// Entry is one cached service response.
type Entry struct {
	Key       string
	Kind      string
	Payload   []byte
	CreatedAt time.Time
}

// MemoryStore is a concurrency-safe in-memory response cache.
type MemoryStore struct {
	mu sync.RWMutex

	// key: cache key, value: entry
	data map[string]*Entry
	// insertion order, oldest first
	order []string

	// retention configuration
	maxEntries int           // max number of cached responses
	maxAge     time.Duration // optional max age for entries

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxEntries is <= 0, it is treated as unlimited.
func NewMemoryStore(maxEntries int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*Entry),
		maxEntries: maxEntries,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Put stores a payload under key and enforces retention.
func (s *MemoryStore) Put(key, kind string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; ok {
		s.remove(key)
	}
	s.data[key] = &Entry{
		Key:       key,
		Kind:      kind,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: s.now(),
	}
	s.order = append(s.order, key)

	// Enforce retention by count.
	for s.maxEntries > 0 && len(s.order) > s.maxEntries {
		s.remove(s.order[0])
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		for len(s.order) > 0 && s.data[s.order[0]].CreatedAt.Before(cutoff) {
			s.remove(s.order[0])
		}
	}
	return nil
}

// Get returns the payload cached under key.
func (s *MemoryStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	if s.maxAge > 0 && e.CreatedAt.Before(s.now().Add(-s.maxAge)) {
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.Payload...), nil
}

// Len returns the number of cached entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// caller holds s.mu
func (s *MemoryStore) remove(key string) {
	delete(s.data, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
