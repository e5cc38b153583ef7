// Package dedup remembers recently seen event ids so redelivered events are
// processed once.
package dedup

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Result tells the caller whether an id was new.
type Result int

const (
	First Result = iota
	Duplicate
)

func (r Result) String() string {
	if r == Duplicate {
		return "duplicate"
	}
	return "first"
}

// Store is a bounded, TTL-limited set of event ids. The oldest entry is
// evicted once capacity is reached. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	seen *lru.Cache[string, time.Time]
	ttl  time.Duration
	now  func() time.Time
}

func New(capacity int, ttl time.Duration) (*Store, error) {
	cache, err := lru.New[string, time.Time](capacity)
	if err != nil {
		return nil, err
	}
	return &Store{seen: cache, ttl: ttl, now: time.Now}, nil
}

// WithClock replaces the time source. Used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Observe marks id as seen and reports whether it already was. Check and
// mark happen under one lock, so of two concurrent calls with the same id
// exactly one gets First.
func (s *Store) Observe(id string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if at, ok := s.seen.Get(id); ok {
		if now.Sub(at) <= s.ttl {
			return Duplicate
		}
		s.seen.Remove(id)
	}
	s.seen.Add(id, now)
	return First
}

// Len returns the number of tracked ids, expired ones included.
func (s *Store) Len() int {
	return s.seen.Len()
}
