package metrics

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "metrics.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(openTestDB(t))
	require.NoError(t, err)
	return s
}

func TestStore_RecordAndHandlerStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	records := []Record{
		{RequestID: "1", Handler: "Math", Outcome: OutcomeOK, LatencyMs: 10, Confidence: 0.8, CreatedAt: now},
		{RequestID: "2", Handler: "Math", Outcome: OutcomeOK, LatencyMs: 30, Confidence: 1.0, CreatedAt: now},
		{RequestID: "3", Handler: "Math", Outcome: OutcomeOK, Cached: true, Confidence: 0.9, CreatedAt: now},
		{RequestID: "4", Handler: "System", Outcome: OutcomeError, LatencyMs: 5, Error: "boom", CreatedAt: now},
		{RequestID: "5", Handler: "Dispatcher", Outcome: OutcomeNoMatch, CreatedAt: now},
		{RequestID: "6", Handler: "Math", Outcome: OutcomeOK, LatencyMs: 99, CreatedAt: now.Add(-48 * time.Hour)},
	}
	for _, r := range records {
		require.NoError(t, s.Record(ctx, r))
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)

	stats, err := s.HandlerStats(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 3)

	math := stats[0]
	assert.Equal(t, "Math", math.Handler)
	assert.EqualValues(t, 3, math.Requests)
	assert.EqualValues(t, 1, math.CacheHits)
	assert.Zero(t, math.Failures)
	assert.InDelta(t, 20, math.AvgLatencyMs, 1e-9)
	assert.InDelta(t, 0.9, math.AvgConfidence, 1e-9)

	assert.Equal(t, "Dispatcher", stats[1].Handler)
	assert.Equal(t, "System", stats[2].Handler)
	assert.EqualValues(t, 1, stats[2].Failures)
}

func TestStore_DailyStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Record(ctx, Record{RequestID: "a", Handler: "Math", Outcome: OutcomeOK, Cached: true, CreatedAt: now}))
	require.NoError(t, s.Record(ctx, Record{RequestID: "b", Handler: "Math", Outcome: OutcomeError, CreatedAt: now}))
	require.NoError(t, s.Record(ctx, Record{RequestID: "c", Handler: "Dispatcher", Outcome: OutcomeNoMatch, CreatedAt: now}))
	require.NoError(t, s.Record(ctx, Record{RequestID: "d", Handler: "Math", Outcome: OutcomeOK, CreatedAt: now.AddDate(0, 0, -1)}))
	require.NoError(t, s.Record(ctx, Record{RequestID: "e", Handler: "Math", Outcome: OutcomeOK, CreatedAt: now.AddDate(0, 0, -30)}))

	days, err := s.DailyStats(ctx, 7)
	require.NoError(t, err)
	require.Len(t, days, 2)

	today := days[0]
	assert.Equal(t, now.Format("2006-01-02"), today.Date)
	assert.EqualValues(t, 3, today.Total)
	assert.EqualValues(t, 1, today.Succeeded)
	assert.EqualValues(t, 1, today.Failed)
	assert.EqualValues(t, 1, today.Unmatched)
	assert.InDelta(t, 1.0/3, today.CacheHitRate(), 1e-9)

	assert.Equal(t, now.AddDate(0, 0, -1).Format("2006-01-02"), days[1].Date)
	assert.Zero(t, DailyStats{}.CacheHitRate())
}

func TestStore_Prune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Record(ctx, Record{RequestID: "old", Handler: "Math", Outcome: OutcomeOK, CreatedAt: now.Add(-72 * time.Hour)}))
	require.NoError(t, s.Record(ctx, Record{RequestID: "new", Handler: "Math", Outcome: OutcomeOK}))

	removed, err := s.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestNewStore_Idempotent(t *testing.T) {
	db := openTestDB(t)
	_, err := NewStore(db)
	require.NoError(t, err)
	_, err = NewStore(db)
	require.NoError(t, err)
}
