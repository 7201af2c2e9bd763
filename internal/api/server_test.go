package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"siemlite/internal/alerts"
	"siemlite/internal/config"
	"siemlite/internal/metrics"
	"siemlite/internal/model"
	"siemlite/internal/report"
	"siemlite/internal/storage"
)

type fakeMonitor struct {
	counts model.Counters
	susp   []string
}

func (f fakeMonitor) Counts() model.Counters      { return f.counts }
func (f fakeMonitor) SuspiciousSources() []string { return f.susp }
func (f fakeMonitor) LinesProcessed() int64       { return 42 }
func (f fakeMonitor) TailerStates() map[string]string {
	return map[string]string{"logs/flask_app.log": "streaming"}
}
func (f fakeMonitor) Snapshot() model.ReportSnapshot {
	return report.Build(time.Now(), f.counts, f.susp)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := alerts.NewStore(10)
	base := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	for i, cat := range model.Categories {
		store.Add(model.AlertRecord{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Category:  cat,
			Source:    "10.0.0.5",
			Message:   "test",
		})
	}
	sources := metrics.NewSourceStore(10)
	sources.Observe("10.0.0.5", base, true)
	collectors := metrics.NewCollectors()
	collectors.Alert(model.CategoryBruteForce)

	mon := fakeMonitor{
		counts: model.Counters{Total: 1, ByCategory: map[model.Category]int{model.CategoryBruteForce: 1}},
		susp:   []string{"10.0.0.5"},
	}
	srv := NewServer(config.Static(config.DefaultConfig()), Deps{
		Monitor: mon,
		Alerts:  store,
		Sources: sources,
		Metrics: collectors,
	}, nil, "test")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthAndStatus(t *testing.T) {
	ts := newTestServer(t)
	var health map[string]string
	if code := getJSON(t, ts.URL+"/health", &health); code != http.StatusOK || health["status"] != "ok" {
		t.Fatalf("health: %d %v", code, health)
	}

	var status statusResponse
	if code := getJSON(t, ts.URL+"/status", &status); code != http.StatusOK {
		t.Fatalf("status code: %d", code)
	}
	if status.Lines != 42 || status.Counters.Total != 1 || len(status.Suspicious) != 1 {
		t.Fatalf("status: %+v", status)
	}
	if status.Tailers["logs/flask_app.log"] != "streaming" {
		t.Fatalf("tailers: %v", status.Tailers)
	}
	if status.Detection.Threshold != 5 || status.Detection.Window != "1m0s" {
		t.Fatalf("detection: %+v", status.Detection)
	}

	resp, err := http.Post(ts.URL+"/status", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("post status: %d", resp.StatusCode)
	}
}

func TestAlertsQuery(t *testing.T) {
	ts := newTestServer(t)
	var body struct {
		Alerts []model.AlertRecord `json:"alerts"`
		Count  int                 `json:"count"`
	}
	if code := getJSON(t, ts.URL+"/alerts?limit=2", &body); code != http.StatusOK {
		t.Fatalf("code: %d", code)
	}
	if body.Count != 2 || body.Alerts[1].Category != model.CategorySuspiciousActivity {
		t.Fatalf("limit: %+v", body)
	}

	body.Alerts, body.Count = nil, 0
	if code := getJSON(t, ts.URL+"/alerts?since=2026-10-14T10:01:00Z", &body); code != http.StatusOK {
		t.Fatalf("code: %d", code)
	}
	if body.Count != 3 || body.Alerts[0].Category != model.CategorySQLInjection {
		t.Fatalf("since: %+v", body)
	}

	if code := getJSON(t, ts.URL+"/alerts?since=yesterday", nil); code != http.StatusBadRequest {
		t.Fatalf("bad since: %d", code)
	}
	if code := getJSON(t, ts.URL+"/alerts?limit=-1", nil); code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", code)
	}
}

func TestSourcesAndReport(t *testing.T) {
	ts := newTestServer(t)
	var sources struct {
		Sources []model.SourceStats `json:"sources"`
		Count   int                 `json:"count"`
	}
	if code := getJSON(t, ts.URL+"/sources", &sources); code != http.StatusOK {
		t.Fatalf("code: %d", code)
	}
	if sources.Count != 1 || sources.Sources[0].FailedLogins != 1 {
		t.Fatalf("sources: %+v", sources)
	}

	var snap model.ReportSnapshot
	if code := getJSON(t, ts.URL+"/report", &snap); code != http.StatusOK {
		t.Fatalf("code: %d", code)
	}
	if snap.Counts[model.CategoryBruteForce] != 1 || snap.Recommendations[0] != report.AdviceCaptcha {
		t.Fatalf("report: %+v", snap)
	}
}

func TestMetricsExposition(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `siemlite_alerts_total{category="BRUTE_FORCE"} 1`) {
		t.Fatalf("metrics body missing alert counter:\n%s", data)
	}
}

func TestAlertsFallsBackToArchive(t *testing.T) {
	archive, err := storage.NewStore(config.StorageConfig{
		Enabled: true,
		Driver:  "sqlite",
		DSN:     "file:" + filepath.Join(t.TempDir(), "alerts.db"),
	})
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { _ = archive.Close() })
	ctx := context.Background()
	if err := archive.Init(ctx); err != nil {
		t.Fatalf("init archive: %v", err)
	}

	ring := alerts.NewStore(2)
	base := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		rec := model.AlertRecord{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Category:  model.CategoryBruteForce,
			Source:    "10.0.0." + strconv.Itoa(i+1),
			Message:   "brute force login attack detected",
		}
		ring.Add(rec)
		if err := archive.SaveAlert(ctx, rec); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	srv := NewServer(config.Static(config.DefaultConfig()), Deps{
		Monitor: fakeMonitor{},
		Alerts:  ring,
		Archive: archive,
	}, nil, "test")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	var body struct {
		Alerts []model.AlertRecord `json:"alerts"`
		Count  int                 `json:"count"`
	}
	if code := getJSON(t, ts.URL+"/alerts?limit=3", &body); code != http.StatusOK {
		t.Fatalf("code: %d", code)
	}
	if body.Count != 3 || body.Alerts[0].Source != "10.0.0.2" || body.Alerts[2].Source != "10.0.0.4" {
		t.Fatalf("archive fallback: %+v", body)
	}

	body.Alerts, body.Count = nil, 0
	if code := getJSON(t, ts.URL+"/alerts?limit=2", &body); code != http.StatusOK {
		t.Fatalf("code: %d", code)
	}
	if body.Count != 2 || body.Alerts[0].Source != "10.0.0.3" {
		t.Fatalf("ring: %+v", body)
	}
}
