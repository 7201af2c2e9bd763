package metrics

import (
	"sort"
	"sync"
	"time"

	"siemlite/internal/model"
)

// SourceStore keeps per-source activity counters for the status API. It is
// bounded; the least recently seen source is evicted first.
type SourceStore struct {
	mu      sync.RWMutex
	sources map[string]*model.SourceStats
	limit   int
}

func NewSourceStore(limit int) *SourceStore {
	if limit <= 0 {
		limit = 5000
	}
	return &SourceStore{
		sources: make(map[string]*model.SourceStats),
		limit:   limit,
	}
}

func (s *SourceStore) Observe(source string, ts time.Time, failedLogin bool) {
	if source == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getLocked(source, ts)
	st.Lines++
	st.LastSeen = ts
	if failedLogin {
		st.FailedLogins++
	}
	if len(s.sources) > s.limit {
		s.evictOldest()
	}
}

func (s *SourceStore) RecordAlert(source string, cat model.Category, ts time.Time) {
	if source == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getLocked(source, ts)
	if st.Alerts == nil {
		st.Alerts = make(map[model.Category]int)
	}
	st.Alerts[cat]++
}

func (s *SourceStore) getLocked(source string, ts time.Time) *model.SourceStats {
	st, ok := s.sources[source]
	if !ok {
		st = &model.SourceStats{Source: source, FirstSeen: ts, LastSeen: ts}
		s.sources[source] = st
	}
	return st
}

func (s *SourceStore) Get(source string) (model.SourceStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sources[source]
	if !ok {
		return model.SourceStats{}, false
	}
	return copyStats(st), true
}

// All returns every tracked source ordered by address.
func (s *SourceStore) All() []model.SourceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.SourceStats, 0, len(s.sources))
	for _, st := range s.sources {
		out = append(out, copyStats(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

func (s *SourceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sources)
}

func (s *SourceStore) evictOldest() {
	var oldestSource string
	var oldest time.Time
	for src, st := range s.sources {
		if oldestSource == "" || st.LastSeen.Before(oldest) {
			oldestSource = src
			oldest = st.LastSeen
		}
	}
	if oldestSource != "" {
		delete(s.sources, oldestSource)
	}
}

func copyStats(st *model.SourceStats) model.SourceStats {
	out := *st
	if st.Alerts != nil {
		out.Alerts = make(map[model.Category]int, len(st.Alerts))
		for k, v := range st.Alerts {
			out.Alerts[k] = v
		}
	}
	return out
}
