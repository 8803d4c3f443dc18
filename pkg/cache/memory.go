package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/illmade-knight/go-openweather/pkg/weather"
)

// memoryEntry is the internal structure stored in the recency list.
type memoryEntry[V any] struct {
	key       string
	value     V
	fetchedAt time.Time
}

// MemoryStore is a thread-safe, in-memory Store with a fixed capacity, a
// Least Recently Used eviction policy, and lazy TTL expiry: stale entries
// are only discovered and removed when read.
//
// Capacity is a hard bound. An expired entry keeps occupying a slot until it
// is read or evicted; there is no background sweep.
type MemoryStore[V any] struct {
	capacity int
	ttl      time.Duration

	mu      sync.Mutex
	ll      *list.List               // Recency order, front is most recently touched.
	entries map[string]*list.Element // Normalized key lookups.
}

// NewMemoryStore creates an empty in-memory store holding at most capacity
// entries, each fresh for ttl after its last Put.
func NewMemoryStore[V any](capacity int, ttl time.Duration) (*MemoryStore[V], error) {
	if capacity <= 0 {
		return nil, weather.NewError(weather.CodeInvalidConfiguration, "cache capacity must be greater than 0, got %d", capacity)
	}
	if ttl <= 0 {
		return nil, weather.NewError(weather.CodeInvalidConfiguration, "cache TTL must be positive, got %s", ttl)
	}
	return &MemoryStore[V]{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		entries:  make(map[string]*list.Element),
	}, nil
}

// GetIfFresh returns the value for city if it is younger than the TTL and
// moves it to the front of the recency order. An expired entry is removed
// before reporting a miss.
func (s *MemoryStore[V]) GetIfFresh(_ context.Context, city string) (V, bool, error) {
	var zero V
	key := weather.NormalizeCity(city)

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[key]
	if !ok {
		return zero, false, nil
	}
	entry := elem.Value.(*memoryEntry[V])
	if time.Since(entry.fetchedAt) > s.ttl {
		s.ll.Remove(elem)
		delete(s.entries, key)
		return zero, false, nil
	}
	s.ll.MoveToFront(elem)
	return entry.value, true, nil
}

// Put inserts or refreshes the entry for city and marks it most recently
// used. Growing past capacity evicts the least recently touched entry.
func (s *MemoryStore[V]) Put(_ context.Context, city string, value V) error {
	key := weather.NormalizeCity(city)

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		entry := elem.Value.(*memoryEntry[V])
		entry.value = value
		entry.fetchedAt = time.Now()
		s.ll.MoveToFront(elem)
		return nil
	}

	elem := s.ll.PushFront(&memoryEntry[V]{key: key, value: value, fetchedAt: time.Now()})
	s.entries[key] = elem
	if s.ll.Len() > s.capacity {
		s.evict()
	}
	return nil
}

// Invalidate removes the entry for city if present.
func (s *MemoryStore[V]) Invalidate(_ context.Context, city string) error {
	key := weather.NormalizeCity(city)

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		s.ll.Remove(elem)
		delete(s.entries, key)
	}
	return nil
}

// Clear removes all entries.
func (s *MemoryStore[V]) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ll.Init()
	s.entries = make(map[string]*list.Element)
	return nil
}

// Keys returns a snapshot of the stored city keys, least recently used
// first. Expired-but-unread entries are included; they still hold a slot.
func (s *MemoryStore[V]) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, s.ll.Len())
	for elem := s.ll.Back(); elem != nil; elem = elem.Prev() {
		keys = append(keys, elem.Value.(*memoryEntry[V]).key)
	}
	return keys, nil
}

// Len returns the number of entries currently held, expired or not.
func (s *MemoryStore[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}

// evict removes the least recently used entry. Callers must hold the mutex.
func (s *MemoryStore[V]) evict() {
	elem := s.ll.Back()
	if elem != nil {
		entry := s.ll.Remove(elem).(*memoryEntry[V])
		delete(s.entries, entry.key)
	}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore[V]) Close() error {
	return nil
}
