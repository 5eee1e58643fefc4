package credential

import (
	"sync"
	"time"
)

// Credential is a gateway bearer token with its lifetimes.
// It is replaced wholesale and never mutated after being stored.
type Credential struct {
	Value            string
	IssuedAt         time.Time
	ExpiresAt        time.Time
	RenewalValue     string
	RenewalExpiresAt time.Time
}

// ValidAt reports whether the bearer value outlives now by more than buffer.
func (c *Credential) ValidAt(now time.Time, buffer time.Duration) bool {
	if c == nil || c.Value == "" {
		return false
	}
	return c.ExpiresAt.Sub(now) > buffer
}

// RenewableAt reports whether the renewal value outlives now by more than buffer.
func (c *Credential) RenewableAt(now time.Time, buffer time.Duration) bool {
	if c == nil || c.RenewalValue == "" {
		return false
	}
	return c.RenewalExpiresAt.Sub(now) > buffer
}

// Store holds the process-wide credential. Only Manager writes to it.
// Every Clear bumps the generation so results of older authentications
// can be told apart from current ones.
type Store struct {
	mu         sync.RWMutex
	current    *Credential
	generation uint64
}

func NewStore() *Store {
	return &Store{}
}

// Snapshot returns the cached credential and the generation it belongs to.
func (s *Store) Snapshot() (*Credential, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.generation
}

// Replace stores cred if the generation is still gen. It reports whether it did.
func (s *Store) Replace(gen uint64, cred *Credential) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen {
		return false
	}
	s.current = cred
	return true
}

// Clear drops the cached credential and starts a new generation.
func (s *Store) Clear() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	s.generation++
	return s.generation
}
