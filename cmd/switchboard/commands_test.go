package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/switchboard/internal/assistant"
	"github.com/normanking/switchboard/internal/config"
	"github.com/normanking/switchboard/internal/data"
)

func TestDescribeReply(t *testing.T) {
	tests := []struct {
		name  string
		reply assistant.Reply
		want  string
	}{
		{"smalltalk", assistant.Reply{Handler: "SmallTalk", Source: assistant.SourceSmallTalk}, "via SmallTalk"},
		{"persisted", assistant.Reply{Handler: "Math", Source: assistant.SourcePersisted}, "via Math · remembered"},
		{"dispatch", assistant.Reply{Handler: "Math", Source: assistant.SourceDispatch, Confidence: 0.7, LatencyMs: 2.25}, "via Math · confidence 0.70 · 2.2ms"},
		{"cached", assistant.Reply{Handler: "Math", Source: assistant.SourceDispatch, Cached: true, Confidence: 1}, "via Math · cached · confidence 1.00 · 0.0ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeReply(tt.reply))
		})
	}
}

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	c := config.Default()
	dir := t.TempDir()
	c.Persistence.DataDir = dir
	c.Persistence.Backend = backend
	c.Handlers.ScriptDir = filepath.Join(dir, "handlers")
	c.Handlers.Enabled = []string{config.HandlerMath, config.HandlerKnowledge}
	require.NoError(t, c.EnsureDirectories())
	return c
}

func TestRuntime_SQLite(t *testing.T) {
	ctx := context.Background()
	rt, err := initializeRuntime(ctx, testConfig(t, config.BackendSQLite), nil)
	require.NoError(t, err)

	assert.Len(t, rt.dispatcher.Handlers(), 2)
	assert.IsType(t, &data.SQLiteResponses{}, rt.responses)
	require.NotNil(t, rt.stats)
	assert.NoError(t, rt.health(ctx))

	reply, err := rt.assistant.Ask(ctx, "what is 6*7")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "42")

	require.NoError(t, rt.close())

	// Closing flushes queued bus events into the dispatch log.
	db, err := data.Open(rt.db.Path())
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM dispatch_log").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestRuntime_NoPersistence(t *testing.T) {
	ctx := context.Background()
	rt, err := initializeRuntime(ctx, testConfig(t, config.BackendNone), nil)
	require.NoError(t, err)
	defer rt.close()

	assert.Nil(t, rt.db)
	assert.Nil(t, rt.stats)
	assert.IsType(t, data.NopResponses{}, rt.responses)
	assert.NoError(t, rt.health(ctx))
}

func TestRuntime_UnknownBackend(t *testing.T) {
	_, err := initializeRuntime(context.Background(), testConfig(t, "etcd"), nil)
	assert.ErrorContains(t, err, "unknown persistence backend")
}
