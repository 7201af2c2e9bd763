package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"siemlite/internal/config"
	"siemlite/internal/model"
)

func openTestSQLite(t *testing.T) Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db")
	st, err := NewStore(config.StorageConfig{Enabled: true, Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return st
}

func TestNewStoreDisabled(t *testing.T) {
	st, err := NewStore(config.StorageConfig{Enabled: false})
	if err != nil || st != nil {
		t.Fatalf("expected nil store, got %v %v", st, err)
	}
	if _, err := NewStore(config.StorageConfig{Enabled: true, Driver: "mongo"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestSQLiteAlertRoundTrip(t *testing.T) {
	st := openTestSQLite(t)
	ctx := context.Background()
	ts := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)
	first := model.AlertRecord{
		Timestamp: ts,
		Category:  model.CategoryBruteForce,
		Source:    "10.0.0.5",
		Message:   "brute force login attack detected",
		Details:   "5 failed attempts within 1m0s",
	}
	second := model.AlertRecord{
		Timestamp: ts.Add(time.Second),
		Category:  model.CategorySuspiciousActivity,
		Source:    "10.0.0.6",
		Message:   "suspicious response status",
	}
	if err := st.SaveAlert(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.SaveAlert(ctx, second); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := st.RecentAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(got))
	}
	if !sameAlert(got[0], second) || !sameAlert(got[1], first) {
		t.Fatalf("unexpected rows: %+v", got)
	}
}

func sameAlert(a, b model.AlertRecord) bool {
	return a.Timestamp.Equal(b.Timestamp) &&
		a.Category == b.Category &&
		a.Source == b.Source &&
		a.Message == b.Message &&
		a.Details == b.Details
}

func TestSQLiteSaveReport(t *testing.T) {
	st := openTestSQLite(t)
	snap := model.ReportSnapshot{
		GeneratedAt:       time.Now(),
		Total:             3,
		Counts:            map[model.Category]int{model.CategoryBruteForce: 2, model.CategoryUnauthorizedAccess: 1},
		SuspiciousSources: []string{"10.0.0.5"},
		Recommendations:   []string{"Consider adding CAPTCHA to login forms"},
	}
	if err := st.SaveReport(context.Background(), snap); err != nil {
		t.Fatalf("save report: %v", err)
	}
}

func TestSQLiteCreatesMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs", "siemlite.db")
	st, err := NewSQLite("file:" + path + "?_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	if err := st.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file: %v", err)
	}
}

func TestSQLitePath(t *testing.T) {
	cases := []struct{ dsn, want string }{
		{"file:logs/siemlite.db?_pragma=busy_timeout(5000)", "logs/siemlite.db"},
		{"data/x.db", "data/x.db"},
		{":memory:", ""},
		{"file:mem?mode=memory&cache=shared", ""},
	}
	for _, tc := range cases {
		if got := sqlitePath(tc.dsn); got != tc.want {
			t.Fatalf("sqlitePath(%q) = %q, want %q", tc.dsn, got, tc.want)
		}
	}
}
