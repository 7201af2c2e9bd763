package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:logs/siemlite.db?_pragma=busy_timeout(5000)"
	}
	if path := sqlitePath(dsn); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{
		db: db,
		insertAlert: `INSERT INTO alerts (ts, category, source, message, details)
			VALUES (?, ?, ?, ?, ?)`,
		insertReport: `INSERT INTO reports (ts, total, counts_json, suspicious_json, recommendations_json)
			VALUES (?, ?, ?, ?, ?)`,
		selectRecent: `SELECT ts, category, source, message, details FROM alerts ORDER BY id DESC LIMIT ?`,
	}}, nil
}

// sqlitePath returns the database file named by dsn, or "" for in-memory
// databases.
func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return ""
	}
	return path
}

func (s *sqliteStore) Init(ctx context.Context) error {
	return s.initSchema(ctx, []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			category TEXT NOT NULL,
			source TEXT NOT NULL,
			message TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_source ON alerts(source)`,
		`CREATE TABLE IF NOT EXISTS reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			total INTEGER NOT NULL,
			counts_json TEXT NOT NULL,
			suspicious_json TEXT NOT NULL,
			recommendations_json TEXT NOT NULL
		)`,
	})
}
