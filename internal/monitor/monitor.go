// Package monitor wires the tailers, the detection engine and the periodic
// report into one long-running loop.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"siemlite/internal/alerts"
	"siemlite/internal/config"
	"siemlite/internal/engine"
	"siemlite/internal/ingest"
	"siemlite/internal/logging"
	"siemlite/internal/metrics"
	"siemlite/internal/model"
	"siemlite/internal/report"
	"siemlite/internal/storage"
)

const (
	configWatchInterval = 3 * time.Second
	finalReportTimeout  = 5 * time.Second
)

type Options struct {
	Config *config.Manager
	Engine *engine.Engine
	Sink   *alerts.Sink
	// Archive receives every generated report when set.
	Archive  storage.Store
	Metrics  *metrics.Collectors
	Logger   *slog.Logger
	LevelVar *slog.LevelVar
	Clock    clock.Clock
}

type Monitor struct {
	cfg      *config.Manager
	engine   *engine.Engine
	sink     *alerts.Sink
	archive  storage.Store
	metrics  *metrics.Collectors
	logger   *slog.Logger
	levelVar *slog.LevelVar
	clock    clock.Clock

	mu         sync.Mutex
	tailers    []*ingest.Tailer
	lastReport time.Time
	lastStatus time.Time
}

func New(opts Options) *Monitor {
	c := opts.Clock
	if c == nil {
		c = clock.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Static(config.DefaultConfig())
	}
	return &Monitor{
		cfg:      cfg,
		engine:   opts.Engine,
		sink:     opts.Sink,
		archive:  opts.Archive,
		metrics:  opts.Metrics,
		logger:   logger,
		levelVar: opts.LevelVar,
		clock:    c,
	}
}

// Run monitors until ctx is cancelled, then writes a final report and
// returns once every worker has stopped.
func (m *Monitor) Run(ctx context.Context) error {
	cfg := m.cfg.Get()
	m.logger.Info("security monitor starting",
		"files", cfg.Ingest.Files,
		"alert_log", cfg.Alerts.LogPath,
		"report_dir", cfg.Report.Dir,
		"kafka", cfg.Ingest.Kafka.Enabled,
	)

	lines := make(chan model.LogLine, cfg.Ingest.ChannelBuffer)
	var wg sync.WaitGroup
	for _, path := range cfg.Ingest.Files {
		t := ingest.NewTailer(ingest.TailerOptions{
			Path:          path,
			StartAtEnd:    cfg.Ingest.StartAtEnd,
			ReopenAtStart: cfg.Ingest.ReopenAtStart,
			PollInterval:  cfg.Ingest.PollInterval,
			RetryInterval: cfg.Ingest.RetryInterval,
			Clock:         m.clock,
			Logger:        m.logger,
			Metrics:       m.metrics,
		})
		m.mu.Lock()
		m.tailers = append(m.tailers, t)
		m.mu.Unlock()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = t.Run(ctx, lines)
		}()
	}
	kafkaDone := ingest.StartKafka(ctx, cfg.Ingest.Kafka, lines, m.logger)
	engineDone := m.engine.Start(ctx, lines)

	stopWatch := make(chan struct{})
	go m.cfg.Watch(m.clock, configWatchInterval, m.applyConfig, func(err error) {
		m.logger.Warn("config reload failed", "path", m.cfg.Path(), "err", err)
	}, stopWatch)

	now := m.clock.Now()
	m.mu.Lock()
	m.lastReport = now
	m.lastStatus = now
	m.mu.Unlock()

	ticker := m.clock.Ticker(cfg.Report.CheckInterval)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			m.tick(ctx, m.clock.Now())
		}
	}

	close(stopWatch)
	wg.Wait()
	<-engineDone
	if kafkaDone != nil {
		<-kafkaDone
	}

	m.logger.Info("security monitor stopping, writing final report")
	finalCtx, cancel := context.WithTimeout(context.Background(), finalReportTimeout)
	defer cancel()
	_, _ = m.GenerateReport(finalCtx)
	return nil
}

func (m *Monitor) tick(ctx context.Context, now time.Time) {
	cfg := m.cfg.Get()
	m.mu.Lock()
	dueReport := now.Sub(m.lastReport) >= cfg.Report.Interval
	if dueReport {
		m.lastReport = now
	}
	dueStatus := now.Sub(m.lastStatus) >= cfg.Report.StatusInterval
	if dueStatus {
		m.lastStatus = now
	}
	m.mu.Unlock()

	if dueReport {
		_, _ = m.GenerateReport(ctx)
	}
	if dueStatus {
		m.logger.Info("monitor status",
			"alerts", m.sink.Counts().Total,
			"suspicious", len(m.engine.SuspiciousSources()),
			"lines", m.engine.LinesProcessed(),
		)
	}
}

func (m *Monitor) applyConfig(cfg *config.Config) {
	m.engine.UpdateConfig(cfg)
	if m.levelVar != nil {
		m.levelVar.Set(logging.ParseLevel(cfg.LogLevel))
	}
	m.logger.Info("config reloaded", "path", m.cfg.Path())
}

// Snapshot builds the current report without writing it.
func (m *Monitor) Snapshot() model.ReportSnapshot {
	return report.Build(m.clock.Now(), m.sink.Counts(), m.engine.SuspiciousSources())
}

// GenerateReport writes the dated report files and archives the snapshot.
// The snapshot is returned even when writing fails.
func (m *Monitor) GenerateReport(ctx context.Context) (model.ReportSnapshot, error) {
	cfg := m.cfg.Get()
	snap := m.Snapshot()
	paths, err := report.Write(cfg.Report.Dir, snap, cfg.Report.JSON)
	m.metrics.Report(err == nil)
	if err != nil {
		m.logger.Error("report write failed", "dir", cfg.Report.Dir, "err", err)
		return snap, err
	}
	m.logger.Info("report generated", "paths", paths, "total", snap.Total, "suspicious", len(snap.SuspiciousSources))
	if m.archive != nil {
		if err := m.archive.SaveReport(ctx, snap); err != nil {
			m.logger.Warn("report archive failed", "err", err)
		}
	}
	return snap, nil
}

// TailerStates maps each watched path to its tailer state.
func (m *Monitor) TailerStates() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.tailers))
	for _, t := range m.tailers {
		out[t.Path()] = t.State().String()
	}
	return out
}

func (m *Monitor) Counts() model.Counters {
	return m.sink.Counts()
}

func (m *Monitor) SuspiciousSources() []string {
	return m.engine.SuspiciousSources()
}

func (m *Monitor) LinesProcessed() int64 {
	return m.engine.LinesProcessed()
}
