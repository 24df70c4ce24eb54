package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/normanking/switchboard/internal/dispatch"
)

// Response is a persisted answer.
type Response struct {
	Query      string    `json:"query"` // normalized
	Response   string    `json:"response"`
	Handler    string    `json:"handler"`
	Confidence float64   `json:"confidence"`
	Hits       int64     `json:"hits"`
	CreatedAt  time.Time `json:"created_at"`
}

// ResponseStore persists answers across restarts. Queries are normalized
// with dispatch.NormalizeQuery before every lookup or write.
type ResponseStore interface {
	// Lookup returns the stored answer for query and counts the hit.
	Lookup(ctx context.Context, query string) (Response, bool, error)

	// Save stores r, replacing any answer for the same query.
	Save(ctx context.Context, r Response) error

	// Prune removes answers created before the given time.
	Prune(ctx context.Context, before time.Time) (int64, error)

	// Count returns the number of stored answers.
	Count(ctx context.Context) (int64, error)

	// Clear removes every stored answer.
	Clear(ctx context.Context) (int64, error)
}

const timeLayout = "2006-01-02 15:04:05.000"

// SQLiteResponses keeps answers in the responses table.
type SQLiteResponses struct {
	db *sql.DB
}

var _ ResponseStore = (*SQLiteResponses)(nil)

// NewSQLiteResponses uses the responses table of s.
func NewSQLiteResponses(s *Store) *SQLiteResponses {
	return &SQLiteResponses{db: s.DB()}
}

func (r *SQLiteResponses) Lookup(ctx context.Context, query string) (Response, bool, error) {
	q := dispatch.NormalizeQuery(query)

	var (
		resp    = Response{Query: q}
		created string
	)
	err := r.db.QueryRowContext(ctx, `
		UPDATE responses SET hits = hits + 1, last_used = ?
		WHERE query = ?
		RETURNING response, handler, confidence, hits, created_at
	`, time.Now().UTC().Format(timeLayout), q).Scan(&resp.Response, &resp.Handler, &resp.Confidence, &resp.Hits, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Response{}, false, nil
	}
	if err != nil {
		return Response{}, false, fmt.Errorf("lookup response: %w", err)
	}
	resp.CreatedAt, _ = time.Parse(timeLayout, created)
	return resp, true, nil
}

func (r *SQLiteResponses) Save(ctx context.Context, resp Response) error {
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO responses (query, response, handler, confidence, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(query) DO UPDATE SET
			response = excluded.response,
			handler = excluded.handler,
			confidence = excluded.confidence,
			created_at = excluded.created_at
	`, dispatch.NormalizeQuery(resp.Query), resp.Response, resp.Handler, resp.Confidence,
		resp.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("save response: %w", err)
	}
	return nil
}

func (r *SQLiteResponses) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM responses WHERE created_at < ?`,
		before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune responses: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteResponses) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count responses: %w", err)
	}
	return n, nil
}

func (r *SQLiteResponses) Clear(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM responses`)
	if err != nil {
		return 0, fmt.Errorf("clear responses: %w", err)
	}
	return res.RowsAffected()
}

// NopResponses stores nothing. It backs the "none" persistence backend.
type NopResponses struct{}

var _ ResponseStore = NopResponses{}

func (NopResponses) Lookup(context.Context, string) (Response, bool, error) {
	return Response{}, false, nil
}
func (NopResponses) Save(context.Context, Response) error            { return nil }
func (NopResponses) Prune(context.Context, time.Time) (int64, error) { return 0, nil }
func (NopResponses) Count(context.Context) (int64, error)            { return 0, nil }
func (NopResponses) Clear(context.Context) (int64, error)            { return 0, nil }
