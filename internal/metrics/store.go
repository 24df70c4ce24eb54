// Package metrics records dispatch activity: Prometheus collectors for live
// scraping and a SQLite dispatch log for historical statistics.
package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════════
// METRICS TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// Outcome classifies a dispatch.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeError   Outcome = "error"
	OutcomeNoMatch Outcome = "no_match"
)

// Record is one row of the dispatch log.
type Record struct {
	RequestID  string    `json:"request_id"`
	Handler    string    `json:"handler"`
	Outcome    Outcome   `json:"outcome"`
	Cached     bool      `json:"cached"`
	LatencyMs  float64   `json:"latency_ms"`
	Confidence float64   `json:"confidence"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// HandlerStats aggregates the log for one handler.
type HandlerStats struct {
	Handler       string  `json:"handler"`
	Requests      int64   `json:"requests"`
	Failures      int64   `json:"failures"`
	CacheHits     int64   `json:"cache_hits"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"` // uncached successes only
	AvgConfidence float64 `json:"avg_confidence"`
}

// DailyStats aggregates the log for one calendar day (UTC).
type DailyStats struct {
	Date         string  `json:"date"` // YYYY-MM-DD
	Total        int64   `json:"total"`
	Succeeded    int64   `json:"succeeded"`
	Failed       int64   `json:"failed"`
	Unmatched    int64   `json:"unmatched"`
	CacheHits    int64   `json:"cache_hits"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// CacheHitRate is the share of dispatches served from cache.
func (d DailyStats) CacheHitRate() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.CacheHits) / float64(d.Total)
}

// ═══════════════════════════════════════════════════════════════════════════════
// METRICS STORE
// ═══════════════════════════════════════════════════════════════════════════════

const timeLayout = "2006-01-02 15:04:05.000"

// Store keeps the dispatch log in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates the dispatch log tables on db if needed.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize metrics schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS dispatch_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		handler TEXT NOT NULL,
		outcome TEXT NOT NULL,
		cached INTEGER NOT NULL DEFAULT 0,
		latency_ms REAL NOT NULL DEFAULT 0,
		confidence REAL NOT NULL DEFAULT 0,
		error TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_dispatch_log_created_at ON dispatch_log(created_at);
	CREATE INDEX IF NOT EXISTS idx_dispatch_log_handler ON dispatch_log(handler);
	`)
	return err
}

// ═══════════════════════════════════════════════════════════════════════════════
// RECORDING METHODS
// ═══════════════════════════════════════════════════════════════════════════════

// Record appends r to the log. A zero CreatedAt is stamped with the
// current time.
func (s *Store) Record(ctx context.Context, r Record) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatch_log (request_id, handler, outcome, cached, latency_ms, confidence, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.RequestID, r.Handler, string(r.Outcome), boolToInt(r.Cached), r.LatencyMs,
		r.Confidence, r.Error, r.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("record dispatch: %w", err)
	}
	return nil
}

// Prune deletes rows older than before and returns how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM dispatch_log WHERE created_at < ?`, before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune dispatch log: %w", err)
	}
	return res.RowsAffected()
}

// ═══════════════════════════════════════════════════════════════════════════════
// QUERY METHODS
// ═══════════════════════════════════════════════════════════════════════════════

// Count returns the number of logged dispatches.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dispatch_log`).Scan(&n)
	return n, err
}

// HandlerStats aggregates dispatches since the given time per handler,
// busiest first. Unmatched dispatches are reported under their handler
// name like any other.
func (s *Store) HandlerStats(ctx context.Context, since time.Time) ([]HandlerStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT handler,
		       COUNT(*),
		       SUM(CASE WHEN outcome = 'error' THEN 1 ELSE 0 END),
		       SUM(cached),
		       COALESCE(AVG(CASE WHEN outcome = 'ok' AND cached = 0 THEN latency_ms END), 0),
		       COALESCE(AVG(CASE WHEN outcome = 'ok' THEN confidence END), 0)
		FROM dispatch_log
		WHERE created_at >= ?
		GROUP BY handler
		ORDER BY COUNT(*) DESC, handler
	`, since.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("query handler stats: %w", err)
	}
	defer rows.Close()

	var out []HandlerStats
	for rows.Next() {
		var h HandlerStats
		if err := rows.Scan(&h.Handler, &h.Requests, &h.Failures, &h.CacheHits, &h.AvgLatencyMs, &h.AvgConfidence); err != nil {
			return nil, fmt.Errorf("scan handler stats: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// DailyStats returns one entry per day with activity over the last days
// days, most recent first.
func (s *Store) DailyStats(ctx context.Context, days int) ([]DailyStats, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -(days - 1)).Format("2006-01-02")

	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(created_at, 1, 10) AS day,
		       COUNT(*),
		       SUM(CASE WHEN outcome = 'ok' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN outcome = 'error' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN outcome = 'no_match' THEN 1 ELSE 0 END),
		       SUM(cached),
		       COALESCE(AVG(latency_ms), 0)
		FROM dispatch_log
		WHERE created_at >= ?
		GROUP BY day
		ORDER BY day DESC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()

	var out []DailyStats
	for rows.Next() {
		var d DailyStats
		if err := rows.Scan(&d.Date, &d.Total, &d.Succeeded, &d.Failed, &d.Unmatched, &d.CacheHits, &d.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan daily stats: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
