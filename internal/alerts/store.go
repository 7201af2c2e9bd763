package alerts

import (
	"sync"
	"time"

	"siemlite/internal/model"
)

// Store keeps the most recent alerts in a fixed-size ring. Records are
// returned oldest first.
type Store struct {
	mu   sync.RWMutex
	ring []model.AlertRecord
	next int
	n    int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{ring: make([]model.AlertRecord, limit)}
}

func (s *Store) Add(rec model.AlertRecord) {
	s.mu.Lock()
	s.ring[s.next] = rec
	s.next = (s.next + 1) % len(s.ring)
	if s.n < len(s.ring) {
		s.n++
	}
	s.mu.Unlock()
}

// at returns the i-th oldest retained record. Callers hold mu.
func (s *Store) at(i int) model.AlertRecord {
	start := (s.next - s.n + len(s.ring)) % len(s.ring)
	return s.ring[(start+i)%len(s.ring)]
}

// List returns the newest limit records; limit <= 0 means all of them.
func (s *Store) List(limit int) []model.AlertRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > s.n {
		limit = s.n
	}
	out := make([]model.AlertRecord, 0, limit)
	for i := s.n - limit; i < s.n; i++ {
		out = append(out, s.at(i))
	}
	return out
}

// Since returns the retained records stamped at or after ts.
func (s *Store) Since(ts time.Time) []model.AlertRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.AlertRecord{}
	for i := 0; i < s.n; i++ {
		if rec := s.at(i); !rec.Timestamp.Before(ts) {
			out = append(out, rec)
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.n
}
