// Package session tracks each user's current platform selection, made
// through the chat menu. Selections are process-lifetime and overwritten
// on every new selection.
package session

import (
	"sync"

	"mediarelay/internal/platform"
)

// Store maps users to their selected platform.
type Store struct {
	mu       sync.RWMutex
	selected map[int64]platform.Platform
}

func NewStore() *Store {
	return &Store{selected: make(map[int64]platform.Platform)}
}

// Select records the user's platform choice, replacing any previous one.
func (s *Store) Select(user int64, p platform.Platform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected[user] = p
}

// Get returns the user's current selection, if any.
func (s *Store) Get(user int64) (platform.Platform, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.selected[user]
	return p, ok
}

// Clear removes the user's selection.
func (s *Store) Clear(user int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.selected, user)
}
