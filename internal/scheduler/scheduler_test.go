package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/switchboard/internal/dispatch"
)

type fakePruner struct {
	cutoff time.Time
	n      int64
	err    error
}

func (p *fakePruner) Prune(_ context.Context, before time.Time) (int64, error) {
	p.cutoff = before
	return p.n, p.err
}

type fakeSummary struct{ calls int }

func (f *fakeSummary) Summary() dispatch.Summary {
	f.calls++
	return dispatch.Summary{TotalRequests: 3, Usage: map[string]int64{"Math": 2}}
}

func TestNew_Jobs(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want int
	}{
		{"both", Config{PruneSchedule: "@daily", SummarySchedule: "@hourly", Retention: time.Hour}, 2},
		{"no retention", Config{PruneSchedule: "@daily", SummarySchedule: "@hourly"}, 1},
		{"disabled", Config{Retention: time.Hour}, 0},
		{"five-field cron", Config{PruneSchedule: "0 3 * * *", Retention: time.Hour}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg, &fakeSummary{}, map[string]Pruner{"responses": &fakePruner{}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Jobs())
		})
	}
}

func TestNew_BadSchedule(t *testing.T) {
	_, err := New(Config{PruneSchedule: "every tuesday", Retention: time.Hour}, nil, map[string]Pruner{"x": &fakePruner{}})
	assert.Error(t, err)
}

func TestPrune(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	good := &fakePruner{n: 4}
	bad := &fakePruner{err: errors.New("locked")}

	s, err := New(Config{Retention: 24 * time.Hour}, nil, map[string]Pruner{"responses": good, "dispatch_log": bad})
	require.NoError(t, err)
	s.now = func() time.Time { return now }

	removed := s.Prune(context.Background())
	assert.Equal(t, map[string]int64{"responses": 4}, removed)
	assert.Equal(t, now.Add(-24*time.Hour), good.cutoff)
	assert.Equal(t, now.Add(-24*time.Hour), bad.cutoff)
}

func TestLogSummary(t *testing.T) {
	sum := &fakeSummary{}
	s, err := New(Config{}, sum, nil)
	require.NoError(t, err)

	s.LogSummary()
	assert.Equal(t, 1, sum.calls)
}

func TestStartStop(t *testing.T) {
	s, err := New(Config{SummarySchedule: "@every 1h"}, &fakeSummary{}, nil)
	require.NoError(t, err)
	s.Start()
	s.Stop()
}
