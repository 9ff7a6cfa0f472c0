// ABOUTME: Shared plumbing for the gateway's client-facing transports
// ABOUTME: Route registration, body limits, and response encoding helpers

package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sagehq/sage-gateway/internal/dispatch"
	"github.com/sagehq/sage-gateway/internal/metrics"
	"github.com/sagehq/sage-gateway/internal/store"
)

// MaxMessageBytes caps inbound JSON-RPC message size across transports (1MB).
const MaxMessageBytes = 1 << 20

// Deps carries the shared dependencies of every transport handler.
type Deps struct {
	Dispatcher *dispatch.Dispatcher
	Store      store.Store
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Version    string
}

// RegisterRoutes mounts all tenant-facing endpoints on the mux. The
// /{tenant}/connectors/{connector}/... variants scope the session to one
// connector type.
//
//	GET  /{tenant}/mcp       WebSocket session
//	POST /{tenant}/mcp       single-shot JSON-RPC
//	GET  /{tenant}/mcp/info  tenant and connector summary
//	GET  /{tenant}/mcp/sse   SSE stream
//	POST /{tenant}/mcp/sse   SSE message inbox (?session=)
func RegisterRoutes(mux *http.ServeMux, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	h := &HTTPHandler{deps: deps}
	ws := &WSHandler{deps: deps}
	sse := NewSSEHandler(deps)

	mux.HandleFunc("GET /{tenant}/mcp", ws.handleWS)
	mux.HandleFunc("POST /{tenant}/mcp", h.handlePost)
	mux.HandleFunc("GET /{tenant}/mcp/info", h.handleInfo)
	mux.HandleFunc("GET /{tenant}/mcp/sse", sse.handleStream)
	mux.HandleFunc("POST /{tenant}/mcp/sse", sse.handleMessage)

	mux.HandleFunc("GET /{tenant}/connectors/{connector}/mcp", ws.handleWS)
	mux.HandleFunc("POST /{tenant}/connectors/{connector}/mcp", h.handlePost)
	mux.HandleFunc("GET /{tenant}/connectors/{connector}/mcp/sse", sse.handleStream)
	mux.HandleFunc("POST /{tenant}/connectors/{connector}/mcp/sse", sse.handleMessage)
}

// connectorScope pulls the optional connector path segment. Unknown types
// are rejected before any tenant lookup.
func connectorScope(r *http.Request) (store.ConnectorType, bool) {
	raw := r.PathValue("connector")
	if raw == "" {
		return "", true
	}
	ctype := store.ConnectorType(raw)
	if !ctype.Valid() {
		return "", false
	}
	return ctype, true
}

// peekMethod extracts the JSON-RPC method for metric labels without
// interpreting the message.
func peekMethod(data []byte) string {
	var probe struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.Method == "" {
		return "unknown"
	}
	return probe.Method
}

func outcomeLabel(resp *dispatch.Response) string {
	switch {
	case resp == nil:
		return "notification"
	case resp.Error != nil:
		return "error"
	default:
		return "ok"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
