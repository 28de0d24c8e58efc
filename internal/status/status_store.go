package status

import (
	"context"
	"sync"

	"jobharvest-engine/internal/domain"
)

// Store keeps the summary of the latest pipeline runs. Jobs are never stored;
// RunOutcome omits them when serialized.
type Store interface {
	SetRun(ctx context.Context, o domain.RunOutcome) error
	Run(ctx context.Context, runID string) (domain.RunOutcome, bool, error)
	Latest(ctx context.Context) (domain.RunOutcome, bool, error)
}

// MemoryStore is the Store used when no Redis address is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]domain.RunOutcome
	latest string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: map[string]domain.RunOutcome{}}
}

func (s *MemoryStore) SetRun(ctx context.Context, o domain.RunOutcome) error {
	o.Jobs = nil
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[o.RunID] = o
	s.latest = o.RunID
	return nil
}

func (s *MemoryStore) Run(ctx context.Context, runID string) (domain.RunOutcome, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.runs[runID]
	return o, ok, nil
}

func (s *MemoryStore) Latest(ctx context.Context) (domain.RunOutcome, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == "" {
		return domain.RunOutcome{}, false, nil
	}
	o, ok := s.runs[s.latest]
	return o, ok, nil
}
