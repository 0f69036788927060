package metrics

import (
	"slices"
	"strings"
	"sync"
	"time"

	"spcguard/internal/model"
)

type Store struct {
	mu          sync.RWMutex
	byParameter map[string]model.ParameterSummary
	limit       int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		byParameter: make(map[string]model.ParameterSummary),
		limit:       limit,
	}
}

func (s *Store) Update(summary model.ParameterSummary) {
	if summary.ParameterID == "" {
		return
	}
	if summary.UpdatedAt.IsZero() {
		summary.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byParameter[summary.ParameterID] = summary
	if len(s.byParameter) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(parameterID string) (model.ParameterSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.byParameter[parameterID]
	return sum, ok
}

func (s *Store) GetAll() []model.ParameterSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ParameterSummary, 0, len(s.byParameter))
	for _, sum := range s.byParameter {
		out = append(out, sum)
	}
	slices.SortFunc(out, func(a, b model.ParameterSummary) int {
		return strings.Compare(a.ParameterID, b.ParameterID)
	})
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byParameter)
}

func (s *Store) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, sum := range s.byParameter {
		if oldestID == "" || sum.UpdatedAt.Before(oldest) {
			oldestID = id
			oldest = sum.UpdatedAt
		}
	}
	if oldestID != "" {
		delete(s.byParameter, oldestID)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byParameter = make(map[string]model.ParameterSummary)
}
