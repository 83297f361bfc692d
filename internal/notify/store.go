package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	appLog "railwatch/internal/log"
	"railwatch/internal/model"
)

// HistoryStore persists delivered alerts in sqlite. It is an audit log,
// not session state: the orchestrator never reads it back.
type HistoryStore struct {
	db *sql.DB
}

// OpenHistory opens (and if needed bootstraps) the alert history database.
func OpenHistory(ctx context.Context, path string) (*HistoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at TEXT NOT NULL,
	recommendation TEXT
);
CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at DESC);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	return &HistoryStore{db: db}, nil
}

func (s *HistoryStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert records one alert.
func (s *HistoryStore) Insert(ctx context.Context, alert model.TravelAlert) error {
	var rec any
	if alert.Recommendation != nil {
		data, err := json.Marshal(alert.Recommendation)
		if err != nil {
			return fmt.Errorf("marshal recommendation: %w", err)
		}
		rec = string(data)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, type, title, body, created_at, recommendation) VALUES (?, ?, ?, ?, ?, ?)`,
		alert.ID, string(alert.Type), alert.Title, alert.Body, alert.CreatedAt.UTC().Format(time.RFC3339Nano), rec,
	)
	return err
}

// Recent returns up to limit alerts, newest first.
func (s *HistoryStore) Recent(ctx context.Context, limit int) ([]model.TravelAlert, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, title, body, created_at, recommendation FROM alerts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TravelAlert
	for rows.Next() {
		var (
			alert     model.TravelAlert
			alertType string
			createdAt string
			rec       sql.NullString
		)
		if err := rows.Scan(&alert.ID, &alertType, &alert.Title, &alert.Body, &createdAt, &rec); err != nil {
			return nil, err
		}
		alert.Type = model.AlertType(alertType)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			alert.CreatedAt = t
		}
		if rec.Valid && rec.String != "" {
			var r model.Recommendation
			if err := json.Unmarshal([]byte(rec.String), &r); err == nil {
				alert.Recommendation = &r
			}
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

// HistoryNotifier records every alert before forwarding it to the wrapped
// notifier. Store failures are logged, never propagated: alert delivery
// must not depend on the audit log.
type HistoryNotifier struct {
	store *HistoryStore
	next  Notifier
}

func NewHistoryNotifier(store *HistoryStore, next Notifier) *HistoryNotifier {
	return &HistoryNotifier{store: store, next: next}
}

func (n *HistoryNotifier) Notify(alert model.TravelAlert) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.store.Insert(ctx, alert); err != nil && !errors.Is(err, context.Canceled) {
		appLog.Error("alert history insert failed", err, "id", alert.ID)
	}
	if n.next != nil {
		n.next.Notify(alert)
	}
}
