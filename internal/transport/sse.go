// ABOUTME: Server-Sent Events transport with a per-session message inbox
// ABOUTME: GET opens the event stream, POST ?session= delivers client messages

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sagehq/sage-gateway/internal/dispatch"
)

// inboxCapacity bounds queued client messages per SSE session. A client
// that outruns its own stream gets 429s rather than unbounded buffering.
const inboxCapacity = 32

// SSEHandler implements the SSE transport. Replies travel down the event
// stream; clients send requests to the paired POST endpoint.
type SSEHandler struct {
	deps Deps

	mu      sync.Mutex
	inboxes map[string]chan []byte
}

// NewSSEHandler creates the SSE transport handler.
func NewSSEHandler(deps Deps) *SSEHandler {
	return &SSEHandler{deps: deps, inboxes: make(map[string]chan []byte)}
}

// handleStream opens the event stream. The first event names the endpoint
// the client must POST its messages to; every dispatcher reply follows as
// a message event.
func (h *SSEHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	scope, ok := connectorScope(r)
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sess, err := h.deps.Dispatcher.NewSession(r.Context(), r.PathValue("tenant"), scope)
	if err != nil {
		if errors.Is(err, dispatch.ErrTenantNotFound) || errors.Is(err, dispatch.ErrConnectorNotFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		h.deps.Logger.Error("session creation failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer sess.Close()

	inbox := make(chan []byte, inboxCapacity)
	h.mu.Lock()
	h.inboxes[sess.ID] = inbox
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.inboxes, sess.ID)
		h.mu.Unlock()
	}()

	h.deps.Metrics.SessionOpened("sse")
	defer h.deps.Metrics.SessionClosed("sse")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, "endpoint", fmt.Sprintf("%s?session=%s", r.URL.Path, sess.ID))
	flusher.Flush()

	// The producer owns dispatching; the handler goroutine owns the wire.
	// Cancellation from either side unwinds both before the handler returns.
	streamCtx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan *dispatch.Response)
	g, ctx := errgroup.WithContext(streamCtx)
	g.Go(func() error {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case data := <-inbox:
				resp := h.deps.Dispatcher.Handle(ctx, sess, data)
				h.deps.Metrics.ObserveRequest("sse", peekMethod(data), outcomeLabel(resp))
				if resp == nil {
					continue
				}
				select {
				case <-ctx.Done():
					return nil
				case out <- resp:
				}
			}
		}
	})

	for resp := range out {
		payload, err := json.Marshal(resp)
		if err != nil {
			// An error event terminates the stream; the client reconnects.
			h.deps.Logger.Error("encoding response failed", "session_id", sess.ID, "error", err)
			writeEvent(w, "error", "internal error")
			flusher.Flush()
			cancel()
			continue
		}
		writeEvent(w, "message", string(payload))
		flusher.Flush()
	}

	if err := g.Wait(); err != nil {
		h.deps.Logger.Warn("sse producer failed", "session_id", sess.ID, "error", err)
	}
	h.deps.Logger.Debug("sse stream closed", "session_id", sess.ID)
}

// handleMessage accepts one client message for an open stream. Delivery is
// asynchronous: the response arrives as a message event, so success here is
// only an acknowledgement.
func (h *SSEHandler) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "Bad Request: missing session", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	inbox, ok := h.inboxes[sessionID]
	h.mu.Unlock()
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxMessageBytes+1))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if len(body) > MaxMessageBytes {
		http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
		return
	}

	select {
	case inbox <- body:
		w.WriteHeader(http.StatusAccepted)
	default:
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
	}
}

func writeEvent(w io.Writer, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
