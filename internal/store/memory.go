package store

import (
	"context"
	"sync"

	"github.com/maintenance-gate/internal/maintenance"
)

// MemoryStore keeps the shared state in process. Gates built on the same
// MemoryStore see each other's writes after their refresh interval.
type MemoryStore struct {
	mu    sync.RWMutex
	state *maintenance.State
}

var _ maintenance.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) ReadState(context.Context) (*maintenance.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil, nil
	}
	out := s.state.Clone()
	return &out, nil
}

func (s *MemoryStore) WriteState(_ context.Context, state maintenance.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := state.Clone()
	s.state = &stored
	return nil
}
