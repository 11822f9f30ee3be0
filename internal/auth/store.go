// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"sync"
)

// DefaultMaxAttempts is the number of challenges per key that may still
// lead to credentials being offered. The next challenge is refused.
const DefaultMaxAttempts = 3

// =============================================================================
// CREDENTIAL TYPES
// =============================================================================

// Credentials is a username and password pair.
type Credentials struct {
	Username string
	Password string
}

// Key identifies a protection space: the challenge realm on one host:port.
type Key struct {
	Realm    string
	HostPort string
}

// =============================================================================
// STORE
// =============================================================================

// Store is the session credential cache and failure counter.
//
// An entry is pending from the moment credentials are entered until a
// response to a request carrying them is not itself a challenge; it is
// then committed and reused without prompting. Failure counts only grow
// for the lifetime of the Store.
type Store struct {
	mu          sync.Mutex
	committed   map[Key]Credentials
	pending     map[Key]Credentials
	failures    map[Key]int
	offered     map[Key]bool
	defaults    *Credentials
	maxAttempts int
}

// StoreOption is a functional option for configuring a Store.
type StoreOption func(*Store)

// WithMaxAttempts sets the failure threshold.
func WithMaxAttempts(n int) StoreOption {
	return func(s *Store) {
		if n >= 0 {
			s.maxAttempts = n
		}
	}
}

// WithDefaultCredentials seeds credentials (e.g. from command-line flags)
// that are offered once per key before any prompt.
func WithDefaultCredentials(c Credentials) StoreOption {
	return func(s *Store) {
		if c.Username != "" {
			s.defaults = &c
		}
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		committed:   make(map[Key]Credentials),
		pending:     make(map[Key]Credentials),
		failures:    make(map[Key]int),
		offered:     make(map[Key]bool),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Committed returns confirmed credentials for key.
func (s *Store) Committed(key Key) (Credentials, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.committed[key]
	return c, ok
}

// Pending returns unconfirmed credentials for key.
func (s *Store) Pending(key Key) (Credentials, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.pending[key]
	return c, ok
}

// SetPending records freshly entered credentials for key.
func (s *Store) SetPending(key Key, c Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = c
}

// Promote moves the pending entry for key to committed.
func (s *Store) Promote(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.pending[key]; ok {
		s.committed[key] = c
		delete(s.pending, key)
	}
}

// Discard drops the pending entry for key.
func (s *Store) Discard(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
}

// RecordChallenge counts a challenge for key and reports whether
// credentials may still be supplied for it. The count of challenges
// before this one is compared against the threshold.
func (s *Store) RecordChallenge(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prior := s.failures[key]
	s.failures[key] = prior + 1
	return prior <= s.maxAttempts
}

// Failures returns the number of challenges seen for key.
func (s *Store) Failures(key Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[key]
}

// takeDefault returns the seeded credentials the first time it is called
// for key.
func (s *Store) takeDefault(key Key) (Credentials, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.defaults == nil || s.offered[key] {
		return Credentials{}, false
	}
	s.offered[key] = true
	return *s.defaults, true
}
