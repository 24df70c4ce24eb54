package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/switchboard/internal/dispatch"
)

func TestResultEvent(t *testing.T) {
	ok := ResultEvent(dispatch.Result{RequestID: "r1", Query: "5*3", Handler: "Math", Confidence: 1, Cached: true})
	assert.Equal(t, EventDispatchCompleted, ok.Type)
	assert.Equal(t, "r1", ok.RequestID)
	assert.True(t, ok.Cached)
	assert.NotEmpty(t, ok.ID)

	failed := ResultEvent(dispatch.Result{Handler: "Math", Error: "boom"})
	assert.Equal(t, EventDispatchFailed, failed.Type)
	assert.Equal(t, "boom", failed.Error)

	none := ResultEvent(dispatch.Result{Handler: dispatch.DispatcherName})
	assert.Equal(t, EventDispatchNoMatch, none.Type)
}

func TestDispatchBridge(t *testing.T) {
	b := New()
	defer b.Close()

	d := dispatch.New(
		dispatch.WithObserver(NewDispatchBridge(b)),
		dispatch.WithBreaker(dispatch.BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute, SuccessThreshold: 1}),
	)
	d.MustRegister(&dispatch.Definition{
		ID:        "Echo",
		Specialty: "echo",
		Match:     func(q string) bool { return q != "fail" && q != "" },
		Run:       func(_ context.Context, q string) (string, error) { return q, nil },
	}, &dispatch.Definition{
		ID:        "Fail",
		Specialty: "always fails",
		Match:     func(q string) bool { return q == "fail" },
		Run:       func(context.Context, string) (string, error) { return "", errors.New("nope") },
	})

	ctx := context.Background()
	d.Dispatch(ctx, "hello")
	d.Dispatch(ctx, "fail")
	d.Dispatch(ctx, "")
	d.ClearCaches()

	require.Eventually(t, func() bool {
		return len(b.History()) >= 5
	}, time.Second, 10*time.Millisecond)

	var types []EventType
	for _, e := range b.History() {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, EventDispatchCompleted)
	assert.Contains(t, types, EventDispatchFailed)
	assert.Contains(t, types, EventDispatchNoMatch)
	assert.Contains(t, types, EventCacheCleared)
	assert.Contains(t, types, EventBreakerChanged)

	for _, e := range b.History() {
		if e.Type == EventBreakerChanged {
			assert.Equal(t, "Fail", e.Handler)
			assert.Equal(t, dispatch.CircuitClosed.String(), e.From)
			assert.Equal(t, dispatch.CircuitOpen.String(), e.To)
		}
		if e.Type == EventCacheCleared {
			assert.Equal(t, 1, e.Cleared)
		}
	}
}
