package alerts

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"spcguard/internal/model"
)

// Store keeps alerts in memory. Once the limit is reached the oldest resolved
// or dismissed alerts are evicted; open alerts are never dropped.
type Store struct {
	mu    sync.RWMutex
	buf   []model.Alert
	byID  map[string]int
	keys  map[string]string
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{
		limit: limit,
		byID:  make(map[string]int),
		keys:  make(map[string]string),
	}
}

// CreateAlerts inserts the batch atomically. Alerts whose idempotency key is
// already present are skipped; the inserted alerts are returned.
func (s *Store) CreateAlerts(ctx context.Context, batch []model.Alert) ([]model.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, a := range batch {
		if a.ID == "" || a.ParameterID == "" || !a.Kind.Valid() || !a.Status.Valid() {
			return nil, fmt.Errorf("%w: %q", model.ErrInvalidAlert, a.ID)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range batch {
		if _, dup := s.byID[a.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", model.ErrInvalidAlert, a.ID)
		}
	}
	inserted := make([]model.Alert, 0, len(batch))
	pending := make(map[string]struct{})
	for _, a := range batch {
		if key := a.IdempotencyKey(); key != "" {
			if _, exists := s.keys[key]; exists {
				continue
			}
			if _, exists := pending[key]; exists {
				continue
			}
			pending[key] = struct{}{}
		}
		inserted = append(inserted, a)
	}
	for _, a := range inserted {
		s.byID[a.ID] = len(s.buf)
		s.buf = append(s.buf, a)
		if key := a.IdempotencyKey(); key != "" {
			s.keys[key] = a.ID
		}
	}
	s.evictLocked()
	return inserted, nil
}

// Transition moves an alert to t.To only when its current status allows it.
// The check and the write happen under one lock.
func (s *Store) Transition(ctx context.Context, id string, t model.Transition) (model.Alert, error) {
	if err := ctx.Err(); err != nil {
		return model.Alert{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[id]
	if !ok {
		return model.Alert{}, fmt.Errorf("%w: %s", model.ErrAlertNotFound, id)
	}
	current := s.buf[idx]
	if !model.CanTransition(current.Status, t.To) {
		return model.Alert{}, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, current.Status, t.To)
	}
	t.Apply(&current)
	s.buf[idx] = current
	return current, nil
}

func (s *Store) Get(ctx context.Context, id string) (model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return model.Alert{}, fmt.Errorf("%w: %s", model.ErrAlertNotFound, id)
	}
	return s.buf[idx], nil
}

// List returns the newest alerts first together with the total number of
// matches before pagination.
func (s *Store) List(ctx context.Context, f model.AlertFilter) ([]model.Alert, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]model.Alert, 0)
	for i := len(s.buf) - 1; i >= 0; i-- {
		if f.Match(s.buf[i]) {
			matched = append(matched, s.buf[i])
		}
	}
	slices.SortStableFunc(matched, func(a, b model.Alert) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	total := len(matched)
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return []model.Alert{}, total, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func (s *Store) Stats(ctx context.Context) (model.AlertStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats model.AlertStats
	for _, a := range s.buf {
		stats.Count(a)
	}
	return stats, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buf)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
	s.byID = make(map[string]int)
	s.keys = make(map[string]string)
}

func (s *Store) evictLocked() {
	excess := len(s.buf) - s.limit
	if excess <= 0 {
		return
	}
	kept := s.buf[:0]
	for _, a := range s.buf {
		if excess > 0 && a.Status.Terminal() {
			excess--
			delete(s.byID, a.ID)
			if key := a.IdempotencyKey(); key != "" {
				delete(s.keys, key)
			}
			continue
		}
		kept = append(kept, a)
	}
	s.buf = kept
	for i, a := range s.buf {
		s.byID[a.ID] = i
	}
}
