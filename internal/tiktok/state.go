package tiktok

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

const stateBytes = 16

// NewState returns 32 hex characters from crypto/rand.
func NewState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// StateStore remembers issued authorization states until they are used
// or expire. It lives in memory only.
type StateStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	issued map[string]time.Time
	now    func() time.Time
}

// NewStateStore creates a store whose entries live for ttl.
func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateStore{
		ttl:    ttl,
		issued: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Add records a newly issued state.
func (s *StateStore) Add(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.issued {
		if now.After(exp) {
			delete(s.issued, k)
		}
	}
	s.issued[state] = now.Add(s.ttl)
}

// Consume reports whether state was issued and is still valid. A state
// can be consumed once.
func (s *StateStore) Consume(state string) bool {
	if state == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.issued[state]
	if !ok {
		return false
	}
	delete(s.issued, state)
	return !s.now().After(exp)
}

// Len returns the number of outstanding states.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.issued)
}
