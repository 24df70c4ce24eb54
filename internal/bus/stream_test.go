package bus

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialStream(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var e Event
	require.NoError(t, json.Unmarshal(data, &e))
	return e
}

func TestStream_ReplayAndLive(t *testing.T) {
	b := New()
	defer b.Close()

	past := NewEvent(EventDispatchCompleted)
	past.Query = "before"
	require.NoError(t, b.Publish(past))

	s := NewStream(b)
	srv := httptest.NewServer(s)
	defer srv.Close()
	defer s.Close()

	conn := dialStream(t, srv, "count=10")
	assert.Equal(t, "before", readEvent(t, conn).Query)

	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	live := NewEvent(EventCacheCleared)
	live.Cleared = 4
	require.NoError(t, b.Publish(live))

	got := readEvent(t, conn)
	assert.Equal(t, EventCacheCleared, got.Type)
	assert.Equal(t, 4, got.Cleared)
}

func TestStream_NoReplay(t *testing.T) {
	b := New()
	defer b.Close()
	require.NoError(t, b.Publish(NewEvent(EventDispatchNoMatch)))

	s := NewStream(b)
	srv := httptest.NewServer(s)
	defer srv.Close()
	defer s.Close()

	conn := dialStream(t, srv, "replay=false")
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, b.Publish(NewEvent(EventBreakerChanged)))
	assert.Equal(t, EventBreakerChanged, readEvent(t, conn).Type)
}

func TestStream_ClientDisconnect(t *testing.T) {
	b := New()
	defer b.Close()

	s := NewStream(b)
	srv := httptest.NewServer(s)
	defer srv.Close()
	defer s.Close()

	conn := dialStream(t, srv, "replay=false")
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return s.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
