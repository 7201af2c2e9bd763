package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"siemlite/internal/classify"
	"siemlite/internal/config"
	"siemlite/internal/metrics"
	"siemlite/internal/model"
)

const (
	msgBruteForce   = "brute force login attack detected"
	msgSQLInjection = "sql injection attempt detected"
	msgUnauthorized = "access attempt to protected resource"
	msgSuspicious   = "suspicious response status"
)

// Emitter is the subset of alerts.Sink the engine needs.
type Emitter interface {
	Emit(ctx context.Context, cat model.Category, message, source, details string) (model.AlertRecord, error)
}

// Engine runs every log line through the detection pipeline. It owns the
// per-source failure windows and the suspicious set; the counters live in the
// sink.
type Engine struct {
	logger     *slog.Logger
	sink       Emitter
	sources    *metrics.SourceStore
	collectors *metrics.Collectors
	cfg        atomic.Value
	tracker    *Tracker

	mu         sync.Mutex
	suspicious map[string]struct{}
	lines      int64
}

func NewEngine(cfg *config.Config, logger *slog.Logger, sink Emitter, sources *metrics.SourceStore, collectors *metrics.Collectors) *Engine {
	e := &Engine{
		logger:     logger,
		sink:       sink,
		sources:    sources,
		collectors: collectors,
		tracker:    NewTracker(cfg.Detection.FailureBuffer, cfg.Detection.BruteForceWindow, cfg.Detection.BruteForceThreshold),
		suspicious: make(map[string]struct{}),
	}
	e.cfg.Store(cfg)
	return e
}

// UpdateConfig applies new detection limits. The ring capacity is fixed at
// construction.
func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
	e.tracker.SetLimits(cfg.Detection.BruteForceWindow, cfg.Detection.BruteForceThreshold)
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

// Start consumes lines until ctx is done or in is closed. The returned channel
// is closed once the consumer has exited.
func (e *Engine) Start(ctx context.Context, in <-chan model.LogLine) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case line, ok := <-in:
				if !ok {
					return
				}
				e.ProcessLine(ctx, line)
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}

// ProcessLine classifies one line and returns the alerts it raised. A panic
// inside detection is contained to the line that caused it.
func (e *Engine) ProcessLine(ctx context.Context, line model.LogLine) (out []model.AlertRecord) {
	defer func() {
		if r := recover(); r != nil {
			e.collectors.LineError()
			if e.logger != nil {
				e.logger.Warn("line processing failed", "path", line.Path, "err", fmt.Sprint(r))
			}
		}
	}()
	e.mu.Lock()
	e.lines++
	e.mu.Unlock()
	e.collectors.Line()

	cfg := e.config()
	text := line.Text
	now := line.Time
	source := classify.ExtractSource(text)
	failed := classify.IsFailedLogin(text)
	if e.sources != nil {
		e.sources.Observe(source, now, failed)
	}

	if failed {
		if rec, ok := e.detectBruteForce(ctx, source, line); ok {
			out = append(out, rec)
		}
	}

	if classify.LooksLikeSQL(text) {
		if pattern, ok := classify.MatchSQLInjection(text); ok {
			out = append(out, e.emit(ctx, model.CategorySQLInjection, msgSQLInjection, source, "Pattern: "+pattern))
		}
	}

	status, hasStatus := classify.ExtractStatus(text)
	endpoint, hasEndpoint := classify.SensitiveEndpoint(text)
	if hasEndpoint {
		code := cfg.Detection.DefaultStatus
		if hasStatus {
			code = status
		}
		out = append(out, e.emit(ctx, model.CategoryUnauthorizedAccess, msgUnauthorized, source,
			fmt.Sprintf("Endpoint: %s, Status: %d", endpoint, code)))
	}

	if hasStatus && isSuspiciousStatus(status, cfg.Detection.SuspiciousStatuses) {
		details := fmt.Sprintf("Status: %d", status)
		if hasEndpoint {
			details = fmt.Sprintf("Endpoint: %s, Status: %d", endpoint, status)
		}
		out = append(out, e.emit(ctx, model.CategorySuspiciousActivity, msgSuspicious, source, details))
	}
	return out
}

func (e *Engine) detectBruteForce(ctx context.Context, source string, line model.LogLine) (model.AlertRecord, bool) {
	e.tracker.RecordFailure(source, line.Time)
	if !e.tracker.IsBruteForce(source, line.Time) {
		return model.AlertRecord{}, false
	}
	e.mu.Lock()
	if _, seen := e.suspicious[source]; seen {
		e.mu.Unlock()
		return model.AlertRecord{}, false
	}
	e.suspicious[source] = struct{}{}
	n := len(e.suspicious)
	e.mu.Unlock()
	e.collectors.SetSuspicious(n)

	recent := e.tracker.RecentFailures(source, line.Time)
	details := fmt.Sprintf("%d failed attempts within %s", recent, e.tracker.Window())
	return e.emit(ctx, model.CategoryBruteForce, msgBruteForce, source, details), true
}

func (e *Engine) emit(ctx context.Context, cat model.Category, message, source, details string) model.AlertRecord {
	rec, err := e.sink.Emit(ctx, cat, message, source, details)
	if err != nil && e.logger != nil {
		e.logger.Debug("alert kept in memory only", "category", cat, "source", source)
	}
	if e.sources != nil {
		e.sources.RecordAlert(source, cat, rec.Timestamp)
	}
	return rec
}

func isSuspiciousStatus(code int, list []int) bool {
	for _, c := range list {
		if c == code {
			return true
		}
	}
	return false
}

func (e *Engine) IsSuspicious(source string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.suspicious[source]
	return ok
}

// SuspiciousSources returns the suspicious set sorted.
func (e *Engine) SuspiciousSources() []string {
	e.mu.Lock()
	out := make([]string, 0, len(e.suspicious))
	for src := range e.suspicious {
		out = append(out, src)
	}
	e.mu.Unlock()
	sort.Strings(out)
	return out
}

func (e *Engine) LinesProcessed() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lines
}

func (e *Engine) Tracker() *Tracker {
	return e.tracker
}
