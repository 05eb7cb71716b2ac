package testutil

import (
	"sync"

	"moltd/internal/daemon"
)

// MemoryStore is an in-memory daemon.StateStore that counts saves.
type MemoryStore struct {
	mu    sync.Mutex
	state daemon.State
	Saves int

	LoadErr error
	SaveErr error
}

var _ daemon.StateStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: daemon.NewState()}
}

// Seed replaces the stored state without counting a save.
func (s *MemoryStore) Seed(st daemon.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func (s *MemoryStore) Load() (daemon.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return daemon.State{}, s.LoadErr
	}
	return s.state, nil
}

func (s *MemoryStore) Save(st daemon.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.state = st
	s.Saves++
	return nil
}

func (s *MemoryStore) Path() string { return ":memory:" }

// Current returns the stored state.
func (s *MemoryStore) Current() daemon.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
