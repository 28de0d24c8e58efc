package enricher

import (
	"sync"

	"jobharvest-engine/internal/domain"
)

// DetailSet holds raw details keyed by id. Upsert replaces an existing entry
// in place, so a second success for an id never duplicates it. Safe for
// concurrent use.
type DetailSet struct {
	mu    sync.Mutex
	order []string
	byID  map[string]domain.RawDetail
}

func NewDetailSet(seed ...domain.RawDetail) *DetailSet {
	s := &DetailSet{byID: make(map[string]domain.RawDetail, len(seed))}
	for _, d := range seed {
		s.Upsert(d)
	}
	return s
}

func (s *DetailSet) Upsert(d domain.RawDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[d.ID]; !ok {
		s.order = append(s.order, d.ID)
	}
	s.byID[d.ID] = d
}

func (s *DetailSet) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byID[id]
	return ok
}

func (s *DetailSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Ordered returns the details following ids, then any remaining entries in
// insertion order.
func (s *DetailSet) Ordered(ids []string) []domain.RawDetail {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.RawDetail, 0, len(s.byID))
	used := make(map[string]bool, len(s.byID))
	for _, id := range ids {
		if d, ok := s.byID[id]; ok && !used[id] {
			out = append(out, d)
			used[id] = true
		}
	}
	for _, id := range s.order {
		if !used[id] {
			out = append(out, s.byID[id])
			used[id] = true
		}
	}
	return out
}
