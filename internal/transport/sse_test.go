// ABOUTME: Tests for the SSE transport
// ABOUTME: Reads real event streams and exercises the session inbox

package transport

import (
	"bufio"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	name string
	data string
}

// readEvent parses the next event off the stream.
func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "" && ev.name != "":
			return ev
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func openStream(t *testing.T, url string) (*bufio.Reader, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	ev := readEvent(t, r)
	require.Equal(t, "endpoint", ev.name)
	return r, ev.data
}

func TestSSE_EndpointEventNamesInbox(t *testing.T) {
	srv := newTestServer(t)
	_, endpoint := openStream(t, srv.URL+"/acme/mcp/sse")

	assert.True(t, strings.HasPrefix(endpoint, "/acme/mcp/sse?session="), "got %q", endpoint)
}

func TestSSE_RequestRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	stream, endpoint := openStream(t, srv.URL+"/acme/mcp/sse")

	resp, err := http.Post(srv.URL+endpoint, "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	ev := readEvent(t, stream)
	assert.Equal(t, "message", ev.name)
	assert.Contains(t, ev.data, `"sage-gateway"`)

	resp, err = http.Post(srv.URL+endpoint, "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	ev = readEvent(t, stream)
	assert.Equal(t, "message", ev.name)
	assert.Contains(t, ev.data, "github_list_repositories")
}

func TestSSE_NotificationEmitsNoEvent(t *testing.T) {
	srv := newTestServer(t)
	stream, endpoint := openStream(t, srv.URL+"/acme/mcp/sse")

	resp, err := http.Post(srv.URL+endpoint, "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// The next event must answer the follow-up request, not the notification.
	resp, err = http.Post(srv.URL+endpoint, "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":3,"method":"initialize"}`))
	require.NoError(t, err)
	resp.Body.Close()

	ev := readEvent(t, stream)
	assert.Equal(t, "message", ev.name)
	assert.Contains(t, ev.data, `"id":3`)
}

func TestSSE_UnknownSession404(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/acme/mcp/sse?session=missing", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSSE_MissingSessionParam400(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/acme/mcp/sse", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSSE_UnknownTenant404(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/nobody/mcp/sse")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSSE_InactiveTenant404(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/ghost/mcp/sse")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSSE_InboxClosedAfterDisconnect(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/acme/mcp/sse")
	require.NoError(t, err)
	r := bufio.NewReader(resp.Body)
	ev := readEvent(t, r)
	endpoint := ev.data
	resp.Body.Close()

	// The inbox is removed once the stream goes away; give the handler a
	// moment to observe the disconnect.
	require.Eventually(t, func() bool {
		post, err := http.Post(srv.URL+endpoint, "application/json",
			strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
		if err != nil {
			return false
		}
		post.Body.Close()
		return post.StatusCode == http.StatusNotFound
	}, 5*time.Second, 50*time.Millisecond)
}
