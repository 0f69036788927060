package engine

import (
	"sort"
	"sync"
	"time"

	"spcguard/internal/model"
)

type SeriesState struct {
	mu       sync.Mutex
	points   []model.Measurement
	head     int
	ids      map[string]struct{}
	hydrated bool
}

func NewSeriesState() *SeriesState {
	return &SeriesState{
		points: make([]model.Measurement, 0, 128),
		ids:    make(map[string]struct{}),
	}
}

// Add inserts m in timestamp order, evicts what falls outside the window and
// returns a snapshot of the retained series together with the position of m
// in it. ok is false when m is already retained.
func (w *SeriesState) Add(m model.Measurement, maxPoints int, retention time.Duration) (series []model.Measurement, pos int, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, dup := w.ids[m.ID]; dup {
		return nil, -1, false
	}
	live := w.points[w.head:]
	if len(live) == 0 || !m.Timestamp.Before(live[len(live)-1].Timestamp) {
		w.points = append(w.points, m)
	} else {
		w.compact()
		i := sort.Search(len(w.points), func(i int) bool {
			return w.points[i].Timestamp.After(m.Timestamp)
		})
		w.points = append(w.points, model.Measurement{})
		copy(w.points[i+1:], w.points[i:])
		w.points[i] = m
	}
	w.ids[m.ID] = struct{}{}
	w.evict(maxPoints, retention)
	series = w.snapshot()
	pos = -1
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].ID == m.ID {
			pos = i
			break
		}
	}
	return series, pos, true
}

// Seed loads history once; later calls are no-ops.
func (w *SeriesState) Seed(history []model.Measurement, maxPoints int, retention time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.hydrated {
		return
	}
	w.hydrated = true
	for _, m := range history {
		if _, dup := w.ids[m.ID]; dup {
			continue
		}
		w.points = append(w.points, m)
		w.ids[m.ID] = struct{}{}
	}
	w.compact()
	sort.SliceStable(w.points, func(i, j int) bool {
		return w.points[i].Timestamp.Before(w.points[j].Timestamp)
	})
	w.evict(maxPoints, retention)
}

func (w *SeriesState) Hydrated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hydrated
}

func (w *SeriesState) Snapshot() []model.Measurement {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot()
}

func (w *SeriesState) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.points) - w.head
}

func (w *SeriesState) snapshot() []model.Measurement {
	return append([]model.Measurement(nil), w.points[w.head:]...)
}

// evict drops measurements older than retention relative to the newest one
// and then the oldest ones beyond maxPoints.
func (w *SeriesState) evict(maxPoints int, retention time.Duration) {
	if w.head >= len(w.points) {
		return
	}
	newest := w.points[len(w.points)-1].Timestamp
	for w.head < len(w.points) {
		m := w.points[w.head]
		expired := retention > 0 && newest.Sub(m.Timestamp) > retention
		overflow := maxPoints > 0 && len(w.points)-w.head > maxPoints
		if !expired && !overflow {
			break
		}
		delete(w.ids, m.ID)
		w.head++
	}
	if w.head > 0 && w.head*2 >= len(w.points) {
		w.compact()
	}
}

func (w *SeriesState) compact() {
	if w.head == 0 {
		return
	}
	w.points = append([]model.Measurement{}, w.points[w.head:]...)
	w.head = 0
}
