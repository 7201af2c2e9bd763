package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"siemlite/internal/alerts"
	"siemlite/internal/config"
	"siemlite/internal/metrics"
	"siemlite/internal/model"
	"siemlite/internal/storage"
)

// MonitorView is the read-only surface of monitor.Monitor the API exposes.
type MonitorView interface {
	Counts() model.Counters
	SuspiciousSources() []string
	LinesProcessed() int64
	TailerStates() map[string]string
	Snapshot() model.ReportSnapshot
}

type Deps struct {
	Monitor MonitorView
	Alerts  *alerts.Store
	Sources *metrics.SourceStore
	Metrics *metrics.Collectors
	// Archive, when set, serves /alerts?limit=N once the ring holds fewer than N.
	Archive storage.Store
}

type Server struct {
	cfg     *config.Manager
	deps    Deps
	logger  *slog.Logger
	version string
	started time.Time
}

type statusResponse struct {
	Status     string            `json:"status"`
	Time       string            `json:"time"`
	Version    string            `json:"version"`
	Uptime     string            `json:"uptime"`
	ConfigPath string            `json:"config_path"`
	Tailers    map[string]string `json:"tailers"`
	Kafka      bool              `json:"kafka"`
	AlertLog   string            `json:"alert_log"`
	ReportDir  string            `json:"report_dir"`
	Lines      int64             `json:"lines"`
	Counters   model.Counters    `json:"counters"`
	Suspicious []string          `json:"suspicious"`
	Detection  detectionStatus   `json:"detection"`
}

type detectionStatus struct {
	Threshold          int    `json:"brute_force_threshold"`
	Window             string `json:"brute_force_window"`
	FailureBuffer      int    `json:"failure_buffer"`
	SuspiciousStatuses []int  `json:"suspicious_statuses"`
}

func NewServer(cfg *config.Manager, deps Deps, logger *slog.Logger, version string) *Server {
	return &Server{cfg: cfg, deps: deps, logger: logger, version: version, started: time.Now()}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/alerts", s.handleAlerts)
	mux.HandleFunc("/sources", s.handleSources)
	mux.HandleFunc("/report", s.handleReport)
	if s.deps.Metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.deps.Metrics.Registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start serves the API in the background until ctx is done. It returns nil
// when the API is disabled.
func Start(ctx context.Context, cfg *config.Manager, deps Deps, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := NewServer(cfg, deps, logger, version)
	httpServer := &http.Server{
		Addr:              current.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		Uptime:     time.Since(s.started).Truncate(time.Second).String(),
		ConfigPath: s.cfg.Path(),
		Kafka:      cfg.Ingest.Kafka.Enabled,
		AlertLog:   cfg.Alerts.LogPath,
		ReportDir:  cfg.Report.Dir,
		Detection: detectionStatus{
			Threshold:          cfg.Detection.BruteForceThreshold,
			Window:             cfg.Detection.BruteForceWindow.String(),
			FailureBuffer:      cfg.Detection.FailureBuffer,
			SuspiciousStatuses: cfg.Detection.SuspiciousStatuses,
		},
	}
	if m := s.deps.Monitor; m != nil {
		resp.Tailers = m.TailerStates()
		resp.Lines = m.LinesProcessed()
		resp.Counters = m.Counts()
		resp.Suspicious = m.SuspiciousSources()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Alerts == nil {
		writeJSON(w, http.StatusOK, map[string]any{"alerts": []model.AlertRecord{}, "count": 0})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		limit = n
	}
	var list []model.AlertRecord
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.deps.Alerts.Since(ts)
		if limit > 0 && len(list) > limit {
			list = list[len(list)-limit:]
		}
	} else {
		list = s.deps.Alerts.List(limit)
		if limit > len(list) && s.deps.Archive != nil {
			list = s.archivedAlerts(r.Context(), limit, list)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

// archivedAlerts returns up to limit archived alerts oldest first, or
// fallback when the archive fails or holds no more than the ring.
func (s *Server) archivedAlerts(ctx context.Context, limit int, fallback []model.AlertRecord) []model.AlertRecord {
	older, err := s.deps.Archive.RecentAlerts(ctx, limit)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("archive alert query failed", "limit", limit, "err", err)
		}
		return fallback
	}
	if len(older) <= len(fallback) {
		return fallback
	}
	slices.Reverse(older)
	return older
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var all []model.SourceStats
	if s.deps.Sources != nil {
		all = s.deps.Sources.All()
	}
	if all == nil {
		all = []model.SourceStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sources": all,
		"count":   len(all),
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Monitor == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Monitor.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
