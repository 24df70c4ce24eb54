package assistant

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/switchboard/internal/bus"
	"github.com/normanking/switchboard/internal/data"
	"github.com/normanking/switchboard/internal/dispatch"
)

type fakeDispatcher struct {
	mu      sync.Mutex
	results map[string]dispatch.Result
	calls   []string
}

func (f *fakeDispatcher) Dispatch(_ context.Context, q string) dispatch.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, q)
	if res, ok := f.results[q]; ok {
		res.Query = q
		return res
	}
	return dispatch.Result{Query: q, Handler: dispatch.DispatcherName, Response: dispatch.NoHandlerResponse}
}

type recordingPublisher struct {
	events []bus.Event
}

func (p *recordingPublisher) Publish(e bus.Event) error {
	p.events = append(p.events, e)
	return nil
}

func newStore(t *testing.T) *data.SQLiteResponses {
	t.Helper()
	s, err := data.Open(filepath.Join(t.TempDir(), "switchboard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return data.NewSQLiteResponses(s)
}

func TestAsk_SmallTalk(t *testing.T) {
	d := &fakeDispatcher{}
	a := New(d)

	tests := []struct {
		query    string
		contains string
		farewell bool
	}{
		{"Hello!", "Hello!", false},
		{"hi there", "Hello!", false},
		{"thanks a lot", "welcome", false},
		{"Goodbye", "Goodbye", true},
		{"who are you?", "switchboard", false},
		{"help", "evaluate arithmetic", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r, err := a.Ask(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, SourceSmallTalk, r.Source)
			assert.Equal(t, SmallTalkHandler, r.Handler)
			assert.Contains(t, r.Text, tt.contains)
			assert.Equal(t, tt.farewell, r.Farewell)
		})
	}
	assert.Empty(t, d.calls)
}

func TestAsk_SmallTalkSkipsRealQuestions(t *testing.T) {
	d := &fakeDispatcher{}
	a := New(d)
	ctx := context.Background()

	for _, q := range []string{"hi what is 2+2", "hello, how is the cpu load today?", "highway"} {
		r, err := a.Ask(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, SourceDispatch, r.Source, q)
	}
	assert.Len(t, d.calls, 3)
}

func TestAsk_WithoutSmallTalk(t *testing.T) {
	d := &fakeDispatcher{}
	r, err := New(d, WithoutSmallTalk()).Ask(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, SourceDispatch, r.Source)
}

func TestAsk_Empty(t *testing.T) {
	_, err := New(&fakeDispatcher{}).Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestAsk_PersistsConfidentAnswers(t *testing.T) {
	d := &fakeDispatcher{results: map[string]dispatch.Result{
		"5*3":         {RequestID: "r1", Handler: "Math", Response: "5 × 3 = 15", Confidence: 1.0},
		"what is foo": {RequestID: "r2", Handler: "Knowledge", Response: "no idea", Confidence: 0.5},
		"cpu":         {RequestID: "r3", Handler: "System", Response: "System failed", Error: "probe down"},
	}}
	store := newStore(t)
	pub := &recordingPublisher{}
	a := New(d, WithStore(store), WithPublisher(pub))
	ctx := context.Background()

	r, err := a.Ask(ctx, "5*3")
	require.NoError(t, err)
	assert.Equal(t, SourceDispatch, r.Source)
	assert.Equal(t, "r1", r.RequestID)
	assert.True(t, r.Persisted)

	r, err = a.Ask(ctx, "  5*3 ")
	require.NoError(t, err)
	assert.Equal(t, SourcePersisted, r.Source)
	assert.Equal(t, "Math", r.Handler)
	assert.Equal(t, "5 × 3 = 15", r.Text)
	assert.True(t, r.Cached)
	assert.Len(t, d.calls, 1)

	require.Len(t, pub.events, 1)
	assert.Equal(t, bus.EventResponseRecalled, pub.events[0].Type)
	assert.Equal(t, "Math", pub.events[0].Handler)

	r, err = a.Ask(ctx, "what is foo")
	require.NoError(t, err)
	assert.False(t, r.Persisted)

	r, err = a.Ask(ctx, "cpu")
	require.NoError(t, err)
	assert.Equal(t, "probe down", r.Error)
	assert.False(t, r.Persisted)

	r, err = a.Ask(ctx, "zzz")
	require.NoError(t, err)
	assert.Equal(t, dispatch.DispatcherName, r.Handler)
	assert.False(t, r.Persisted)

	n, err := a.Remembered(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	cleared, err := a.ForgetAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cleared)

	r, err = a.Ask(ctx, "5*3")
	require.NoError(t, err)
	assert.Equal(t, SourceDispatch, r.Source)
}

func TestAsk_ThresholdIsExclusive(t *testing.T) {
	d := &fakeDispatcher{results: map[string]dispatch.Result{
		"q": {Handler: "Knowledge", Response: "a", Confidence: 0.6},
	}}
	a := New(d, WithStore(newStore(t)), WithMinConfidence(0.6))

	r, err := a.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.False(t, r.Persisted)
}

func TestAsk_NopStoreNeverPersists(t *testing.T) {
	d := &fakeDispatcher{results: map[string]dispatch.Result{
		"5*3": {Handler: "Math", Response: "15", Confidence: 1},
	}}
	r, err := New(d).Ask(context.Background(), "5*3")
	require.NoError(t, err)
	assert.False(t, r.Persisted)
}
