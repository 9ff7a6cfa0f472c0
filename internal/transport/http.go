// ABOUTME: Stateless HTTP transport for single-shot JSON-RPC exchanges
// ABOUTME: Also serves the per-tenant info endpoint

package transport

import (
	"errors"
	"io"
	"net/http"

	"github.com/sagehq/sage-gateway/internal/dispatch"
)

// HTTPHandler serves one JSON-RPC exchange per POST. No session persists
// between requests, so clients may call any method without a prior
// initialize handshake.
type HTTPHandler struct {
	deps Deps
}

func (h *HTTPHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	scope, ok := connectorScope(r)
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
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
	sess.Ready()

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxMessageBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dispatch.NewError(nil, dispatch.CodeParseError, "failed to read request body"))
		return
	}
	if len(body) > MaxMessageBytes {
		writeJSON(w, http.StatusBadRequest, dispatch.NewError(nil, dispatch.CodeInvalidRequest, "request body too large"))
		return
	}

	resp := h.deps.Dispatcher.Handle(r.Context(), sess, body)
	h.deps.Metrics.ObserveRequest("http", peekMethod(body), outcomeLabel(resp))

	// Notifications are accepted without a reply body.
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	status := http.StatusOK
	if resp.Error != nil && resp.Error.Code == dispatch.CodeParseError {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

// tenantInfo is the info endpoint payload.
type tenantInfo struct {
	Tenant          string          `json:"tenant"`
	Name            string          `json:"name"`
	ProtocolVersion string          `json:"protocolVersion"`
	Version         string          `json:"version"`
	Connectors      []connectorInfo `json:"connectors"`
}

type connectorInfo struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// handleInfo summarizes a tenant's enabled connectors without opening a
// protocol session.
func (h *HTTPHandler) handleInfo(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.deps.Store.GetTenantBySlug(r.Context(), r.PathValue("tenant"))
	if err != nil || !tenant.Active {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	configs, err := h.deps.Store.ListEnabledConnectors(r.Context(), tenant.ID)
	if err != nil {
		h.deps.Logger.Error("listing connectors failed", "tenant", tenant.Slug, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	info := tenantInfo{
		Tenant:          tenant.Slug,
		Name:            tenant.Name,
		ProtocolVersion: dispatch.ProtocolVersion,
		Version:         h.deps.Version,
		Connectors:      make([]connectorInfo, 0, len(configs)),
	}
	for _, cfg := range configs {
		info.Connectors = append(info.Connectors, connectorInfo{
			Type:        string(cfg.Type),
			Name:        cfg.Name,
			Description: cfg.Description,
		})
	}
	writeJSON(w, http.StatusOK, info)
}
