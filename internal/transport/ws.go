// ABOUTME: WebSocket transport carrying one JSON-RPC session per connection
// ABOUTME: Messages are processed sequentially; notifications produce no frame

package transport

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sagehq/sage-gateway/internal/dispatch"
)

// Application close codes (4000-4999 range is reserved for applications).
const (
	// CloseTenantNotFound signals an unknown tenant slug or connector scope.
	CloseTenantNotFound = 4004
)

const closeWriteTimeout = 5 * time.Second

// WSHandler upgrades connections and pumps JSON-RPC messages through a
// per-connection session.
type WSHandler struct {
	deps Deps

	upgrader websocket.Upgrader
}

func (h *WSHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	scope, scopeOK := connectorScope(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error.
		return
	}
	defer conn.Close()

	if !scopeOK {
		h.closeWith(conn, CloseTenantNotFound, "connector not found")
		return
	}

	sess, err := h.deps.Dispatcher.NewSession(r.Context(), r.PathValue("tenant"), scope)
	if err != nil {
		if errors.Is(err, dispatch.ErrTenantNotFound) {
			h.closeWith(conn, CloseTenantNotFound, "tenant not found")
		} else if errors.Is(err, dispatch.ErrConnectorNotFound) {
			h.closeWith(conn, CloseTenantNotFound, "connector not found")
		} else {
			h.deps.Logger.Error("session creation failed", "error", err)
			h.closeWith(conn, websocket.CloseInternalServerErr, "internal error")
		}
		return
	}
	defer sess.Close()

	h.deps.Metrics.SessionOpened("ws")
	defer h.deps.Metrics.SessionClosed("ws")

	conn.SetReadLimit(MaxMessageBytes)

	// One message at a time; ordering within a session is part of the
	// contract, so there is no per-message goroutine.
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.deps.Logger.Debug("websocket closed", "session_id", sess.ID, "error", err)
			}
			return
		}

		resp := h.deps.Dispatcher.Handle(r.Context(), sess, data)
		h.deps.Metrics.ObserveRequest("ws", peekMethod(data), outcomeLabel(resp))
		if resp == nil {
			continue
		}
		if err := conn.WriteJSON(resp); err != nil {
			h.deps.Logger.Warn("websocket write failed", "session_id", sess.ID, "error", err)
			return
		}
	}
}

func (h *WSHandler) closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
}
