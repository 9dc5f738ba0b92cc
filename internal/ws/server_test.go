package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func querySession(r *http.Request) (string, bool) {
	id := r.URL.Query().Get("sid")
	return id, id != ""
}

func dial(t *testing.T, srv *httptest.Server, sid string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?sid=" + sid
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}

func TestPublishReachesOnlyThatSession(t *testing.T) {
	s := NewServer(querySession, zaptest.NewLogger(t))
	srv := httptest.NewServer(s)
	defer srv.Close()

	a1 := dial(t, srv, "a")
	a2 := dial(t, srv, "a")
	b := dial(t, srv, "b")
	waitFor(t, func() bool { return s.Connections("a") == 2 && s.Connections("b") == 1 })

	s.Publish("a", RedrawHint("files", []string{"dialog-files"}))

	for _, conn := range []*websocket.Conn{a1, a2} {
		var hint Hint
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&hint))
		assert.Equal(t, Hint{Type: "redraw", Dialog: "files", Fragments: []string{"dialog-files"}}, hint)
	}

	require.NoError(t, b.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := b.ReadMessage()
	assert.Error(t, err)
}

func TestClosedConnectionsAreForgotten(t *testing.T) {
	s := NewServer(querySession, nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	conn := dial(t, srv, "a")
	waitFor(t, func() bool { return s.Connections("a") == 1 })

	require.NoError(t, conn.Close())
	waitFor(t, func() bool { return s.Connections("a") == 0 })

	assert.NotPanics(t, func() { s.Publish("a", RedrawHint("files", nil)) })
}

func TestRejectsRequestsWithoutSession(t *testing.T) {
	s := NewServer(querySession, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSameOrigin(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.com/ws", nil)
	assert.True(t, sameOrigin(r))
	r.Header.Set("Origin", "http://example.com")
	assert.True(t, sameOrigin(r))
	r.Header.Set("Origin", "http://evil.test")
	assert.False(t, sameOrigin(r))
}
