package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/siemlite?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{
		db: db,
		insertAlert: `INSERT INTO alerts (ts, category, source, message, details)
			VALUES ($1, $2, $3, $4, $5)`,
		insertReport: `INSERT INTO reports (ts, total, counts_json, suspicious_json, recommendations_json)
			VALUES ($1, $2, $3, $4, $5)`,
		selectRecent: `SELECT ts, category, source, message, details FROM alerts ORDER BY id DESC LIMIT $1`,
	}}, nil
}

// Timestamps are kept as RFC 3339 text so both drivers scan them the same way.
func (s *postgresStore) Init(ctx context.Context) error {
	return s.initSchema(ctx, []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			ts TEXT NOT NULL,
			category TEXT NOT NULL,
			source TEXT NOT NULL,
			message TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_source ON alerts(source)`,
		`CREATE TABLE IF NOT EXISTS reports (
			id BIGSERIAL PRIMARY KEY,
			ts TEXT NOT NULL,
			total INTEGER NOT NULL,
			counts_json JSONB NOT NULL,
			suspicious_json JSONB NOT NULL,
			recommendations_json JSONB NOT NULL
		)`,
	})
}
