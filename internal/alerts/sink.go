package alerts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"siemlite/internal/metrics"
	"siemlite/internal/model"
	"siemlite/internal/storage"
)

type SinkOptions struct {
	// LogPath is the append-only alert log. Empty disables the file.
	LogPath string
	// Console receives the prefixed echo of every alert. Nil disables it.
	Console io.Writer
	Logger  *slog.Logger
	Recent  *Store
	Archive storage.Store
	Metrics *metrics.Collectors
	Clock   clock.Clock
}

// Sink is the single destination for detections. Emit appends to the alert
// log before returning, so a record that was returned survived on disk
// unless the returned error says otherwise.
type Sink struct {
	mu      sync.Mutex
	opts    SinkOptions
	clock   clock.Clock
	recent  *Store
	total   int
	byCat   map[model.Category]int
	dirDone bool
}

func NewSink(opts SinkOptions) *Sink {
	c := opts.Clock
	if c == nil {
		c = clock.New()
	}
	recent := opts.Recent
	if recent == nil {
		recent = NewStore(0)
	}
	return &Sink{
		opts:   opts,
		clock:  c,
		recent: recent,
		byCat:  make(map[model.Category]int),
	}
}

// Emit records one alert. A write failure is logged and returned, but the
// counters and the in-memory ring are updated regardless.
func (s *Sink) Emit(ctx context.Context, cat model.Category, message, source, details string) (model.AlertRecord, error) {
	if source == "" {
		source = model.UnknownSource
	}
	rec := model.AlertRecord{
		Timestamp: s.clock.Now().Truncate(time.Second),
		Category:  cat,
		Source:    source,
		Message:   message,
		Details:   details,
	}
	line := FormatRecord(rec)

	s.mu.Lock()
	writeErr := s.appendLocked(line)
	if s.opts.Console != nil {
		fmt.Fprintf(s.opts.Console, "%s %s\n", consolePrefix(cat), line)
		if writeErr != nil {
			fmt.Fprintf(s.opts.Console, "[ERROR] alert log write failed: %v\n", writeErr)
		}
	}
	s.total++
	s.byCat[cat]++
	s.mu.Unlock()

	s.recent.Add(rec)
	s.opts.Metrics.Alert(cat)
	if writeErr != nil && s.opts.Logger != nil {
		s.opts.Logger.Error("alert log write failed", "path", s.opts.LogPath, "category", cat, "err", writeErr)
	}
	if s.opts.Archive != nil {
		if err := s.opts.Archive.SaveAlert(ctx, rec); err != nil && s.opts.Logger != nil {
			s.opts.Logger.Warn("alert archive failed", "category", cat, "err", err)
		}
	}
	return rec, writeErr
}

func (s *Sink) appendLocked(line string) error {
	if s.opts.LogPath == "" {
		return nil
	}
	if !s.dirDone {
		if dir := filepath.Dir(s.opts.LogPath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create alert log dir: %w", err)
			}
		}
		s.dirDone = true
	}
	f, err := os.OpenFile(s.opts.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		// The directory may have been removed since; retry the mkdir next time.
		s.dirDone = false
		return fmt.Errorf("open alert log: %w", err)
	}
	if _, err := io.WriteString(f, line+"\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("append alert log: %w", err)
	}
	return f.Close()
}

// Counts returns a copy of the incident counters.
func (s *Sink) Counts() model.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := model.Counters{Total: s.total, ByCategory: make(map[model.Category]int, len(model.Categories))}
	for _, cat := range model.Categories {
		out.ByCategory[cat] = s.byCat[cat]
	}
	for cat, n := range s.byCat {
		out.ByCategory[cat] = n
	}
	return out
}

func (s *Sink) Recent() *Store {
	return s.recent
}

func (s *Sink) LogPath() string {
	return s.opts.LogPath
}
