package tokenstore

import (
	"context"
	"sync"
)

// MemoryStore keeps the token in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
	set   bool
}

// NewMemoryStore returns an empty store. Its token is lost when the process
// exits.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements [Store]. It never fails.
func (s *MemoryStore) Load(context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.set, nil
}

// Save implements [Store]. An empty token is stored as present.
func (s *MemoryStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	s.token, s.set = token, true
	s.mu.Unlock()
	return nil
}

// Clear implements [Store].
func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	s.token, s.set = "", false
	s.mu.Unlock()
	return nil
}
