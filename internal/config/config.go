package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	LogFormat string          `json:"log_format" yaml:"log_format"`
	Ingest    IngestConfig    `json:"ingest" yaml:"ingest"`
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	Alerts    AlertsConfig    `json:"alerts" yaml:"alerts"`
	Report    ReportConfig    `json:"report" yaml:"report"`
	API       APIConfig       `json:"api" yaml:"api"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
}

type IngestConfig struct {
	ChannelBuffer int           `json:"channel_buffer" yaml:"channel_buffer"`
	Files         []string      `json:"files" yaml:"files"`
	StartAtEnd    bool          `json:"start_at_end" yaml:"start_at_end"`
	ReopenAtStart bool          `json:"reopen_at_start" yaml:"reopen_at_start"`
	PollInterval  time.Duration `json:"poll_interval" yaml:"poll_interval"`
	RetryInterval time.Duration `json:"retry_interval" yaml:"retry_interval"`
	Kafka         KafkaConfig   `json:"kafka" yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type DetectionConfig struct {
	FailureBuffer       int           `json:"failure_buffer" yaml:"failure_buffer"`
	BruteForceThreshold int           `json:"brute_force_threshold" yaml:"brute_force_threshold"`
	BruteForceWindow    time.Duration `json:"brute_force_window" yaml:"brute_force_window"`
	DefaultStatus       int           `json:"default_status" yaml:"default_status"`
	SuspiciousStatuses  []int         `json:"suspicious_statuses" yaml:"suspicious_statuses"`
}

type AlertsConfig struct {
	LogPath    string `json:"log_path" yaml:"log_path"`
	StoreLimit int    `json:"store_limit" yaml:"store_limit"`
}

type ReportConfig struct {
	Dir            string        `json:"dir" yaml:"dir"`
	Interval       time.Duration `json:"interval" yaml:"interval"`
	CheckInterval  time.Duration `json:"check_interval" yaml:"check_interval"`
	StatusInterval time.Duration `json:"status_interval" yaml:"status_interval"`
	JSON           bool          `json:"json" yaml:"json"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type MetricsConfig struct {
	SourceLimit int `json:"source_limit" yaml:"source_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Ingest: IngestConfig{
			ChannelBuffer: 1024,
			Files:         []string{"logs/flask_app.log"},
			StartAtEnd:    true,
			PollInterval:  100 * time.Millisecond,
			RetryInterval: 5 * time.Second,
		},
		Detection: DetectionConfig{
			FailureBuffer:       10,
			BruteForceThreshold: 5,
			BruteForceWindow:    time.Minute,
			DefaultStatus:       403,
			SuspiciousStatuses:  []int{403, 404},
		},
		Alerts: AlertsConfig{LogPath: "logs/security_alerts.log", StoreLimit: 1000},
		Report: ReportConfig{
			Dir:            "logs",
			Interval:       24 * time.Hour,
			CheckInterval:  10 * time.Second,
			StatusInterval: 30 * time.Second,
		},
		API:     APIConfig{Enabled: false, Addr: "127.0.0.1:8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:logs/siemlite.db?_pragma=busy_timeout(5000)"},
		Metrics: MetricsConfig{SourceLimit: 5000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode %s: %w", path, decodeErr)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as JSON when path ends in .json, YAML otherwise.
func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.LogFormat == "" {
		cfg.LogFormat = def.LogFormat
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = def.Ingest.ChannelBuffer
	}
	if cfg.Ingest.PollInterval <= 0 {
		cfg.Ingest.PollInterval = def.Ingest.PollInterval
	}
	if cfg.Ingest.RetryInterval <= 0 {
		cfg.Ingest.RetryInterval = def.Ingest.RetryInterval
	}
	if cfg.Detection.FailureBuffer <= 0 {
		cfg.Detection.FailureBuffer = def.Detection.FailureBuffer
	}
	if cfg.Detection.BruteForceThreshold <= 0 {
		cfg.Detection.BruteForceThreshold = def.Detection.BruteForceThreshold
	}
	if cfg.Detection.BruteForceWindow <= 0 {
		cfg.Detection.BruteForceWindow = def.Detection.BruteForceWindow
	}
	if cfg.Detection.DefaultStatus <= 0 {
		cfg.Detection.DefaultStatus = def.Detection.DefaultStatus
	}
	if cfg.Detection.SuspiciousStatuses == nil {
		cfg.Detection.SuspiciousStatuses = def.Detection.SuspiciousStatuses
	}
	if cfg.Alerts.LogPath == "" {
		cfg.Alerts.LogPath = def.Alerts.LogPath
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = def.Alerts.StoreLimit
	}
	if cfg.Report.Dir == "" {
		cfg.Report.Dir = def.Report.Dir
	}
	if cfg.Report.Interval <= 0 {
		cfg.Report.Interval = def.Report.Interval
	}
	if cfg.Report.CheckInterval <= 0 {
		cfg.Report.CheckInterval = def.Report.CheckInterval
	}
	if cfg.Report.StatusInterval <= 0 {
		cfg.Report.StatusInterval = def.Report.StatusInterval
	}
	if cfg.Metrics.SourceLimit <= 0 {
		cfg.Metrics.SourceLimit = def.Metrics.SourceLimit
	}
}

func Validate(cfg *Config) error {
	if len(cfg.Ingest.Files) == 0 && !cfg.Ingest.Kafka.Enabled {
		return errors.New("ingest.files required unless ingest.kafka.enabled is true")
	}
	for _, f := range cfg.Ingest.Files {
		if strings.TrimSpace(f) == "" {
			return errors.New("ingest.files contains an empty path")
		}
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Detection.BruteForceThreshold > cfg.Detection.FailureBuffer {
		return fmt.Errorf("detection.brute_force_threshold (%d) exceeds detection.failure_buffer (%d)",
			cfg.Detection.BruteForceThreshold, cfg.Detection.FailureBuffer)
	}
	for _, code := range cfg.Detection.SuspiciousStatuses {
		if code < 100 || code > 599 {
			return fmt.Errorf("detection.suspicious_statuses contains invalid status: %d", code)
		}
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "postgresql":
		default:
			return fmt.Errorf("storage.driver %q unsupported", cfg.Storage.Driver)
		}
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("log_format %q unsupported", cfg.LogFormat)
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

// NewManager loads path, or serves defaults when path is empty.
func NewManager(path string) (*Manager, error) {
	m := &Manager{path: path}
	if path == "" {
		m.cfg.Store(DefaultConfig())
		return m, nil
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(path); err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// Static wraps an in-memory config, mostly for tests.
func Static(cfg *Config) *Manager {
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

// Watch polls the file's mtime every interval on c and reloads on change
// until stop is closed. A nil clock uses wall time.
func (m *Manager) Watch(c clock.Clock, interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if m.path == "" {
		return
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if c == nil {
		c = clock.New()
	}
	ticker := c.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
