package checkpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/stategraph/core"
)

// InMemoryStore is a volatile Checkpointer implementation storing
// checkpoints in a process local map. It is safe for concurrent access and
// best suited for tests or short-lived runs. Each stored and returned
// checkpoint is cloned to prevent external mutation of internal state.
type InMemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*core.Checkpoint
	byRun       map[string][]string
}

// NewInMemoryStore constructs an empty in-memory checkpoint store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		checkpoints: make(map[string]*core.Checkpoint),
		byRun:       make(map[string][]string),
	}
}

// Save stores a clone of the checkpoint, assigning an id if absent.
func (s *InMemoryStore) Save(_ context.Context, checkpoint *core.Checkpoint) (string, error) {
	if checkpoint == nil {
		return "", fmt.Errorf("checkpoint is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := checkpoint.Clone()
	if clone.ID == "" {
		clone.ID = core.NewID()
	}
	if _, exists := s.checkpoints[clone.ID]; !exists {
		s.byRun[clone.RunID] = append(s.byRun[clone.RunID], clone.ID)
	}
	s.checkpoints[clone.ID] = clone
	return clone.ID, nil
}

// Load returns a clone of the checkpoint stored under id.
func (s *InMemoryStore) Load(_ context.Context, id string) (*core.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[id]
	if !ok {
		return nil, fmt.Errorf("checkpoint %s: %w", id, core.ErrCheckpointNotFound)
	}
	return cp.Clone(), nil
}

// Latest returns a clone of the most recently saved checkpoint of a run.
func (s *InMemoryStore) Latest(_ context.Context, runID string) (*core.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byRun[runID]
	if len(ids) == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, core.ErrCheckpointNotFound)
	}
	return s.checkpoints[ids[len(ids)-1]].Clone(), nil
}

// List returns clones of all checkpoints of a run in save order.
func (s *InMemoryStore) List(_ context.Context, runID string) ([]*core.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byRun[runID]
	out := make([]*core.Checkpoint, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.checkpoints[id].Clone())
	}
	return out, nil
}
