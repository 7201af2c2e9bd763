package monitor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"siemlite/internal/alerts"
	"siemlite/internal/config"
	"siemlite/internal/engine"
	"siemlite/internal/metrics"
	"siemlite/internal/model"
	"siemlite/internal/report"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(dir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Ingest.Files = []string{filepath.Join(dir, "app.log")}
	cfg.Ingest.PollInterval = 5 * time.Millisecond
	cfg.Ingest.RetryInterval = 10 * time.Millisecond
	cfg.Alerts.LogPath = filepath.Join(dir, "alerts", "security_alerts.log")
	cfg.Report.Dir = filepath.Join(dir, "reports")
	cfg.Report.CheckInterval = 10 * time.Millisecond
	return cfg
}

func newMonitor(cfg *config.Config, c clock.Clock, console *syncBuffer) *Monitor {
	collectors := metrics.NewCollectors()
	opts := alerts.SinkOptions{LogPath: cfg.Alerts.LogPath, Metrics: collectors, Clock: c}
	if console != nil {
		opts.Console = console
	}
	sink := alerts.NewSink(opts)
	eng := engine.NewEngine(cfg, nil, sink, metrics.NewSourceStore(cfg.Metrics.SourceLimit), collectors)
	return New(Options{
		Config:  config.Static(cfg),
		Engine:  eng,
		Sink:    sink,
		Metrics: collectors,
		Clock:   c,
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunDetectsBruteForceEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	console := &syncBuffer{}
	m := newMonitor(cfg, clock.New(), console)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	watched := cfg.Ingest.Files[0]
	waitFor(t, "tailer registered", func() bool { return len(m.TailerStates()) == 1 })
	if got := m.TailerStates()[watched]; got != "waiting" {
		t.Fatalf("missing file should leave the tailer waiting, got %q", got)
	}

	if err := os.WriteFile(watched, nil, 0o644); err != nil {
		t.Fatalf("create: %v", err)
	}
	waitFor(t, "tailer streaming", func() bool { return m.TailerStates()[watched] == "streaming" })

	f, err := os.OpenFile(watched, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := f.WriteString("2026-10-14 10:00:00 WARNING Failed login attempt for user: admin - IP: [10.0.0.5]\n"); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	_ = f.Close()

	waitFor(t, "brute force alert", func() bool { return m.Counts().Get(model.CategoryBruteForce) == 1 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancel")
	}

	data, err := os.ReadFile(cfg.Alerts.LogPath)
	if err != nil {
		t.Fatalf("read alert log: %v", err)
	}
	recs, err := alerts.ReadRecords(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse alert log: %v", err)
	}
	if len(recs) != 1 || recs[0].Category != model.CategoryBruteForce || recs[0].Source != "10.0.0.5" {
		t.Fatalf("alert log: %+v", recs)
	}
	if !strings.Contains(console.String(), "[BRUTE] ") {
		t.Fatalf("console echo missing: %q", console.String())
	}

	matches, _ := filepath.Glob(filepath.Join(cfg.Report.Dir, "daily_security_report_*.txt"))
	if len(matches) != 1 {
		t.Fatalf("final report not written: %v", matches)
	}
	text, _ := os.ReadFile(matches[0])
	if !strings.Contains(string(text), "- 10.0.0.5") || !strings.Contains(string(text), report.AdviceCaptcha) {
		t.Fatalf("final report content:\n%s", text)
	}
}

func TestRunAlertsOnLinesWrittenWithTheFile(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Ingest.RetryInterval = 200 * time.Millisecond
	m := newMonitor(cfg, clock.New(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	watched := cfg.Ingest.Files[0]
	waitFor(t, "tailer registered", func() bool { return len(m.TailerStates()) == 1 })
	time.Sleep(50 * time.Millisecond)

	line := "2026-10-14 10:00:00 WARNING Failed login attempt for user: admin - IP: [10.0.0.5]\n"
	if err := os.WriteFile(watched, []byte(strings.Repeat(line, 5)), 0o644); err != nil {
		t.Fatalf("create: %v", err)
	}
	waitFor(t, "brute force alert", func() bool { return m.Counts().Get(model.CategoryBruteForce) == 1 })
	if got := m.SuspiciousSources(); len(got) != 1 || got[0] != "10.0.0.5" {
		t.Fatalf("suspicious: %v", got)
	}
	if m.LinesProcessed() != 5 {
		t.Fatalf("lines: %d", m.LinesProcessed())
	}
}

func TestTickWritesReportWhenDue(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 10, 14, 9, 0, 0, 0, time.Local))
	m := newMonitor(cfg, mock, nil)
	m.lastReport = mock.Now()
	m.lastStatus = mock.Now()

	m.tick(context.Background(), mock.Now().Add(time.Hour))
	if matches, _ := filepath.Glob(filepath.Join(cfg.Report.Dir, "*.txt")); len(matches) != 0 {
		t.Fatalf("report written early: %v", matches)
	}

	mock.Add(24 * time.Hour)
	m.tick(context.Background(), mock.Now())
	want := filepath.Join(cfg.Report.Dir, report.FileName(mock.Now())+".txt")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected %s: %v", want, err)
	}
	if !m.lastReport.Equal(mock.Now()) || !m.lastStatus.Equal(mock.Now()) {
		t.Fatalf("timestamps not advanced: report=%s status=%s", m.lastReport, m.lastStatus)
	}
}

func TestGenerateReportFailureKeepsSnapshot(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg.Report.Dir = filepath.Join(blocker, "reports")
	m := newMonitor(cfg, clock.New(), nil)
	snap, err := m.GenerateReport(context.Background())
	if err == nil {
		t.Fatalf("expected write error")
	}
	if len(snap.Recommendations) != 1 || snap.Recommendations[0] != report.AdviceNone {
		t.Fatalf("snapshot: %+v", snap)
	}
}
