package engine

import (
	"testing"
	"time"
)

func TestFailureWindowEvictsOldest(t *testing.T) {
	w := NewFailureWindow(10)
	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 11; i++ {
		w.Add(base.Add(time.Duration(i) * time.Second))
	}
	if w.Len() != 10 || w.Cap() != 10 {
		t.Fatalf("len=%d cap=%d", w.Len(), w.Cap())
	}
	entries := w.Entries()
	if !entries[0].Equal(base.Add(time.Second)) {
		t.Fatalf("oldest entry should be evicted, first=%s", entries[0])
	}
	if !entries[9].Equal(base.Add(10 * time.Second)) {
		t.Fatalf("newest entry missing, last=%s", entries[9])
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Before(entries[i-1]) {
			t.Fatalf("entries out of order at %d", i)
		}
	}
}

func TestFailureWindowCountAfterIsStrict(t *testing.T) {
	w := NewFailureWindow(10)
	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 5; i++ {
		w.Add(base.Add(time.Duration(i) * time.Second))
	}
	if got := w.CountAfter(base); got != 4 {
		t.Fatalf("CountAfter(base) = %d, want 4", got)
	}
	if got := w.CountAfter(base.Add(-time.Nanosecond)); got != 5 {
		t.Fatalf("CountAfter(before base) = %d, want 5", got)
	}
}

func TestTrackerThreshold(t *testing.T) {
	tr := NewTracker(10, time.Minute, 5)
	now := time.Unix(1_700_000_000, 0)
	for i := 0; i < 4; i++ {
		tr.RecordFailure("10.0.0.1", now.Add(time.Duration(i)*time.Second))
	}
	if tr.IsBruteForce("10.0.0.1", now.Add(4*time.Second)) {
		t.Fatalf("four failures must not trigger")
	}
	tr.RecordFailure("10.0.0.1", now.Add(4*time.Second))
	if !tr.IsBruteForce("10.0.0.1", now.Add(4*time.Second)) {
		t.Fatalf("five failures within window must trigger")
	}
	if tr.IsBruteForce("10.0.0.1", now.Add(2*time.Minute)) {
		t.Fatalf("all failures aged out")
	}
	if tr.RecentFailures("10.0.0.2", now) != 0 || tr.Len("10.0.0.2") != 0 {
		t.Fatalf("unknown source must report zero")
	}
}

func TestTrackerBufferBounded(t *testing.T) {
	tr := NewTracker(10, time.Minute, 5)
	now := time.Unix(1_700_000_000, 0)
	for i := 0; i < 25; i++ {
		tr.RecordFailure("10.0.0.1", now.Add(time.Duration(i)*time.Millisecond))
		if tr.Len("10.0.0.1") > 10 {
			t.Fatalf("buffer exceeded capacity: %d", tr.Len("10.0.0.1"))
		}
	}
	if got := tr.RecentFailures("10.0.0.1", now.Add(time.Second)); got != 10 {
		t.Fatalf("recent failures capped by buffer, got %d", got)
	}
	if tr.Sources() != 1 {
		t.Fatalf("sources: %d", tr.Sources())
	}
}
