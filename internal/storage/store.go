package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"siemlite/internal/config"
	"siemlite/internal/model"
)

// Store archives alerts and reports. Detection never reads from it.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveAlert(ctx context.Context, alert model.AlertRecord) error
	SaveReport(ctx context.Context, snap model.ReportSnapshot) error
	RecentAlerts(ctx context.Context, limit int) ([]model.AlertRecord, error)
}

// NewStore returns nil, nil when storage is disabled.
func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

type baseStore struct {
	db           *sql.DB
	insertAlert  string
	insertReport string
	selectRecent string
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) initSchema(ctx context.Context, stmts []string) error {
	if b.db == nil {
		return nil
	}
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (b *baseStore) SaveAlert(ctx context.Context, alert model.AlertRecord) error {
	if b.db == nil {
		return nil
	}
	_, err := b.db.ExecContext(ctx, b.insertAlert,
		formatTS(alert.Timestamp),
		string(alert.Category),
		alert.Source,
		alert.Message,
		alert.Details,
	)
	return err
}

func (b *baseStore) SaveReport(ctx context.Context, snap model.ReportSnapshot) error {
	if b.db == nil {
		return nil
	}
	_, err := b.db.ExecContext(ctx, b.insertReport,
		formatTS(snap.GeneratedAt),
		snap.Total,
		encodeJSON(snap.Counts),
		encodeJSON(snap.SuspiciousSources),
		encodeJSON(snap.Recommendations),
	)
	return err
}

func (b *baseStore) RecentAlerts(ctx context.Context, limit int) ([]model.AlertRecord, error) {
	if b.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := b.db.QueryContext(ctx, b.selectRecent, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AlertRecord
	for rows.Next() {
		var (
			ts       string
			category string
			rec      model.AlertRecord
		)
		if err := rows.Scan(&ts, &category, &rec.Source, &rec.Message, &rec.Details); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse stored timestamp %q: %w", ts, err)
		}
		rec.Timestamp = parsed
		rec.Category = model.Category(category)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}

func formatTS(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}
