// ABOUTME: Tests for the WebSocket transport
// ABOUTME: Dials real connections and verifies framing, ordering, and close codes

package transport

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(httpURL, path string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + path
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWS_SessionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, wsURL(srv.URL, "/acme/mcp"))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`)))

	var init struct {
		ID     int `json:"id"`
		Result struct {
			ServerInfo struct {
				Name string `json:"name"`
			} `json:"serverInfo"`
		} `json:"result"`
	}
	require.NoError(t, conn.ReadJSON(&init))
	assert.Equal(t, 1, init.ID)
	assert.Equal(t, "sage-gateway", init.Result.ServerInfo.Name)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"github_list_repositories"}}`)))

	var call struct {
		ID     int `json:"id"`
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	require.NoError(t, conn.ReadJSON(&call))
	assert.Equal(t, 2, call.ID)
	require.Len(t, call.Result.Content, 1)
	assert.Equal(t, `{"repos":[]}`, call.Result.Content[0].Text)
}

func TestWS_RequestBeforeInitializeRejected(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, wsURL(srv.URL, "/acme/mcp"))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)))

	var resp struct {
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32600, resp.Error.Code)
}

func TestWS_NotificationProducesNoFrame(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, wsURL(srv.URL, "/acme/mcp"))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`)))
	var discard json.RawMessage
	require.NoError(t, conn.ReadJSON(&discard))

	// A notification followed by a request: the next frame must answer the
	// request, not the notification.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","id":7,"method":"tools/list"}`)))

	var resp struct {
		ID int `json:"id"`
	}
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, 7, resp.ID)
}

func TestWS_UnknownTenantClosesWith4004(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, wsURL(srv.URL, "/nobody/mcp"))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, CloseTenantNotFound, closeErr.Code)
}

func TestWS_InactiveTenantClosesWith4004(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, wsURL(srv.URL, "/ghost/mcp"))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, CloseTenantNotFound, closeErr.Code)
}

func TestWS_DisabledConnectorScopeClosesWith4004(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, wsURL(srv.URL, "/acme/connectors/slack/mcp"))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, CloseTenantNotFound, closeErr.Code)
}
