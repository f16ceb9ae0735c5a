package statusws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley"
)

func dialRelay(t *testing.T, b *parley.Broadcaster) *websocket.Conn {
	t.Helper()
	relay := NewRelay(b, WithCheckOrigin(func(*http.Request) bool { return true }))
	srv := httptest.NewServer(relay)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRelay_StreamsEvents(t *testing.T) {
	b := parley.NewBroadcaster()
	defer b.Close()
	conn := dialRelay(t, b)

	// Give the server a moment to subscribe before publishing.
	require.Eventually(t, func() bool {
		b.Publish(parley.StatusEvent{Kind: parley.StatusStarted, ToolName: "search", CallID: "c1"})
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		var ev parley.StatusEvent
		return conn.ReadJSON(&ev) == nil && ev.CallID == "c1"
	}, 2*time.Second, 50*time.Millisecond)

	b.Publish(parley.StatusEvent{Kind: parley.StatusCompleted, ToolName: "search", CallID: "c1", Message: "completed in 12ms"})
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev parley.StatusEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, parley.StatusCompleted, ev.Kind)
	assert.Equal(t, "completed in 12ms", ev.Message)
	assert.False(t, ev.At.IsZero())
}

func TestRelay_BroadcasterCloseEndsStream(t *testing.T) {
	b := parley.NewBroadcaster()
	conn := dialRelay(t, b)

	b.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			require.ErrorAs(t, err, &closeErr)
			assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
			return
		}
	}
}

func TestRelay_RejectsPlainHTTP(t *testing.T) {
	b := parley.NewBroadcaster()
	defer b.Close()
	relay := NewRelay(b)
	srv := httptest.NewServer(relay)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
