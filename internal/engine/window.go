package engine

import (
	"sync"
	"time"
)

// FailureWindow is a fixed-capacity ring of failure timestamps. Once full, the
// oldest entry is overwritten. Entries that fall out of the trailing interval
// stay in the ring and simply stop counting.
type FailureWindow struct {
	buf  []time.Time
	head int
	size int
}

func NewFailureWindow(capacity int) *FailureWindow {
	if capacity <= 0 {
		capacity = 10
	}
	return &FailureWindow{buf: make([]time.Time, capacity)}
}

func (w *FailureWindow) Add(ts time.Time) {
	idx := (w.head + w.size) % len(w.buf)
	if w.size == len(w.buf) {
		w.buf[w.head] = ts
		w.head = (w.head + 1) % len(w.buf)
		return
	}
	w.buf[idx] = ts
	w.size++
}

func (w *FailureWindow) Len() int {
	return w.size
}

func (w *FailureWindow) Cap() int {
	return len(w.buf)
}

// CountAfter returns the number of entries strictly after cutoff.
func (w *FailureWindow) CountAfter(cutoff time.Time) int {
	n := 0
	for i := 0; i < w.size; i++ {
		if w.buf[(w.head+i)%len(w.buf)].After(cutoff) {
			n++
		}
	}
	return n
}

// Entries returns the buffered timestamps oldest first.
func (w *FailureWindow) Entries() []time.Time {
	out := make([]time.Time, 0, w.size)
	for i := 0; i < w.size; i++ {
		out = append(out, w.buf[(w.head+i)%len(w.buf)])
	}
	return out
}

// Tracker keeps one FailureWindow per source. It knows nothing about which
// sources were already alerted on.
type Tracker struct {
	mu        sync.Mutex
	capacity  int
	window    time.Duration
	threshold int
	sources   map[string]*FailureWindow
}

func NewTracker(capacity int, window time.Duration, threshold int) *Tracker {
	if window <= 0 {
		window = time.Minute
	}
	if threshold <= 0 {
		threshold = 5
	}
	return &Tracker{
		capacity:  capacity,
		window:    window,
		threshold: threshold,
		sources:   make(map[string]*FailureWindow),
	}
}

func (t *Tracker) SetLimits(window time.Duration, threshold int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if window > 0 {
		t.window = window
	}
	if threshold > 0 {
		t.threshold = threshold
	}
}

func (t *Tracker) Window() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.window
}

func (t *Tracker) RecordFailure(source string, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.sources[source]
	if !ok {
		w = NewFailureWindow(t.capacity)
		t.sources[source] = w
	}
	w.Add(ts)
}

func (t *Tracker) RecentFailures(source string, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.sources[source]
	if !ok {
		return 0
	}
	return w.CountAfter(now.Add(-t.window))
}

func (t *Tracker) IsBruteForce(source string, now time.Time) bool {
	t.mu.Lock()
	threshold := t.threshold
	t.mu.Unlock()
	return t.RecentFailures(source, now) >= threshold
}

func (t *Tracker) Len(source string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.sources[source]; ok {
		return w.Len()
	}
	return 0
}

func (t *Tracker) Sources() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sources)
}
