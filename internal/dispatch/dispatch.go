// ABOUTME: Transport-agnostic JSON-RPC dispatcher with per-session state
// ABOUTME: Routes namespaced tool names and resource URIs to tenant connectors

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sagehq/sage-gateway/internal/connector"
	"github.com/sagehq/sage-gateway/internal/credential"
	"github.com/sagehq/sage-gateway/internal/metrics"
	"github.com/sagehq/sage-gateway/internal/store"
)

// serverName identifies the gateway in initialize responses.
const serverName = "sage-gateway"

var (
	// ErrTenantNotFound is returned when a session names an unknown or
	// inactive tenant slug. Inactive tenants are indistinguishable from
	// missing ones.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrConnectorNotFound is returned when a session is scoped to a
	// connector the tenant does not have enabled.
	ErrConnectorNotFound = errors.New("connector not found")
)

// Session state machine.
type sessionState int

const (
	stateUninitialized sessionState = iota
	stateReady
	stateClosed
)

// Session is one client conversation with the gateway. Transports create a
// session per connection (or per SSE stream) and feed it raw messages.
type Session struct {
	ID        string
	Tenant    *store.Tenant
	CreatedAt time.Time

	// scope restricts the session to a single connector type when the
	// client connected through a connector-scoped endpoint.
	scope store.ConnectorType

	mu              sync.Mutex
	state           sessionState
	protocolVersion string
}

// Ready skips the initialize handshake. Stateless transports use this so a
// single-shot request does not require a prior initialize exchange.
func (s *Session) Ready() {
	s.mu.Lock()
	if s.state == stateUninitialized {
		s.state = stateReady
		s.protocolVersion = ProtocolVersion
	}
	s.mu.Unlock()
}

// Close marks the session terminated. Subsequent requests are rejected.
func (s *Session) Close() {
	s.mu.Lock()
	s.state = stateClosed
	s.mu.Unlock()
}

// Config holds dispatcher dependencies.
type Config struct {
	Store    store.Store
	Registry *connector.Registry
	Resolver *credential.Resolver
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Version  string

	// CallTimeout bounds a single tool execution or resource read.
	// Zero leaves only the caller's context deadline in force.
	CallTimeout time.Duration
}

// Dispatcher interprets JSON-RPC messages against tenant connector state.
type Dispatcher struct {
	store       store.Store
	registry    *connector.Registry
	resolver    *credential.Resolver
	metrics     *metrics.Metrics
	logger      *slog.Logger
	version     string
	callTimeout time.Duration
}

// New creates a dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("credential resolver is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	return &Dispatcher{
		store:       cfg.Store,
		registry:    cfg.Registry,
		resolver:    cfg.Resolver,
		metrics:     cfg.Metrics,
		logger:      logger,
		version:     version,
		callTimeout: cfg.CallTimeout,
	}, nil
}

// NewSession resolves the tenant slug and opens a session. A non-empty scope
// restricts the session to that connector type; the connector must exist and
// be enabled for the tenant, a disabled connector is indistinguishable from
// a missing one.
func (d *Dispatcher) NewSession(ctx context.Context, tenantSlug string, scope store.ConnectorType) (*Session, error) {
	tenant, err := d.store.GetTenantBySlug(ctx, tenantSlug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("resolving tenant %q: %w", tenantSlug, err)
	}
	if !tenant.Active {
		return nil, ErrTenantNotFound
	}

	if scope != "" {
		enabled, err := d.store.ListEnabledConnectors(ctx, tenant.ID)
		if err != nil {
			return nil, fmt.Errorf("listing connectors for tenant %q: %w", tenantSlug, err)
		}
		found := false
		for _, cfg := range enabled {
			if cfg.Type == scope {
				found = true
				break
			}
		}
		if !found {
			return nil, ErrConnectorNotFound
		}
	}

	sess := &Session{
		ID:        uuid.New().String(),
		Tenant:    tenant,
		CreatedAt: time.Now(),
		scope:     scope,
	}
	d.logger.Info("session opened",
		"session_id", sess.ID,
		"tenant", tenant.Slug,
		"scope", string(scope),
	)
	return sess, nil
}

// Handle processes one raw JSON-RPC message. It returns nil for
// notifications; transports must not emit a frame in that case.
func (d *Dispatcher) Handle(ctx context.Context, sess *Session, data []byte) *Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return NewError(nil, CodeParseError, "invalid JSON")
	}
	if req.JSONRPC != "2.0" {
		return NewError(req.ID, CodeInvalidRequest, "invalid JSON-RPC version")
	}

	if req.IsNotification() {
		if !strings.HasPrefix(req.Method, "notifications/") {
			d.logger.Warn("notification for non-notification method", "method", req.Method)
		}
		return nil
	}

	sess.mu.Lock()
	state := sess.state
	sess.mu.Unlock()

	if state == stateClosed {
		return NewError(req.ID, CodeInvalidRequest, "session closed")
	}
	if state == stateUninitialized && req.Method != "initialize" {
		return NewError(req.ID, CodeInvalidRequest, "session not initialized")
	}

	switch req.Method {
	case "initialize":
		return d.handleInitialize(sess, req)
	case "tools/list":
		return d.handleToolsList(ctx, sess, req)
	case "tools/call":
		return d.handleToolsCall(ctx, sess, req)
	case "resources/list":
		return d.handleResourcesList(ctx, sess, req)
	case "resources/read":
		return d.handleResourcesRead(ctx, sess, req)
	default:
		return NewError(req.ID, CodeMethodNotFound, "method not found")
	}
}

func (d *Dispatcher) handleInitialize(sess *Session, req Request) *Response {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewError(req.ID, CodeInvalidParams, "invalid params")
		}
	}

	// Echo the client's protocol version when it supplied one; clients
	// that omit it get ours.
	version := params.ProtocolVersion
	if version == "" {
		version = ProtocolVersion
	}

	sess.mu.Lock()
	sess.state = stateReady
	sess.protocolVersion = version
	sess.mu.Unlock()

	d.logger.Info("session initialized",
		"session_id", sess.ID,
		"tenant", sess.Tenant.Slug,
		"protocol_version", version,
		"client", params.ClientInfo.Name,
	)

	return NewResult(req.ID, InitializeResult{
		ProtocolVersion: version,
		Capabilities: map[string]any{
			"tools":     map[string]any{},
			"resources": map[string]any{},
		},
		ServerInfo: ServerInfo{Name: serverName, Version: d.version},
	})
}

// sessionConnectors lists the connectors visible to the session: the
// tenant's enabled connectors, narrowed by scope when set.
func (d *Dispatcher) sessionConnectors(ctx context.Context, sess *Session) ([]*store.ConnectorConfig, error) {
	enabled, err := d.store.ListEnabledConnectors(ctx, sess.Tenant.ID)
	if err != nil {
		return nil, err
	}
	if sess.scope == "" {
		return enabled, nil
	}
	scoped := enabled[:0:0]
	for _, cfg := range enabled {
		if cfg.Type == sess.scope {
			scoped = append(scoped, cfg)
		}
	}
	return scoped, nil
}

func (d *Dispatcher) handleToolsList(ctx context.Context, sess *Session, req Request) *Response {
	configs, err := d.sessionConnectors(ctx, sess)
	if err != nil {
		d.logger.Error("listing connectors failed", "tenant", sess.Tenant.Slug, "error", err)
		return NewError(req.ID, CodeInternalError, "internal error")
	}

	// One broken connector must not hide the others.
	tools := make([]ToolInfo, 0)
	for _, cfg := range configs {
		descs, err := d.connectorTools(ctx, sess, cfg)
		if err != nil {
			d.metrics.ObserveConnectorError(string(cfg.Type), "tools")
			d.logger.Warn("connector tools/list failed",
				"tenant", sess.Tenant.Slug,
				"connector", string(cfg.Type),
				"error", err,
			)
			continue
		}
		for _, t := range descs {
			tools = append(tools, ToolInfo{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
		}
	}
	return NewResult(req.ID, ListToolsResult{Tools: tools})
}

func (d *Dispatcher) connectorTools(ctx context.Context, sess *Session, cfg *store.ConnectorConfig) ([]connector.ToolDescriptor, error) {
	plugin, err := d.registry.ResolveForConfig(cfg)
	if err != nil {
		return nil, err
	}
	cred, err := d.resolver.Active(ctx, sess.Tenant.ID, string(cfg.Type))
	if err != nil {
		return nil, err
	}
	return plugin.Tools(ctx, cfg, cred)
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, sess *Session, req Request) *Response {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewError(req.ID, CodeInvalidParams, "invalid params")
		}
	}
	if params.Name == "" {
		return NewError(req.ID, CodeInvalidParams, "tool name is required")
	}

	configs, err := d.sessionConnectors(ctx, sess)
	if err != nil {
		d.logger.Error("listing connectors failed", "tenant", sess.Tenant.Slug, "error", err)
		return NewError(req.ID, CodeInternalError, "internal error")
	}

	// An unroutable tool name is an application-level failure, not a
	// protocol error: the reply succeeds and carries error-shaped text.
	cfg, action, ok := matchTool(params.Name, configs)
	if !ok {
		return NewResult(req.ID, CallToolResult{
			Content: []Content{{Type: "text", Text: "Connector not found or not enabled: " + params.Name}},
			IsError: true,
		})
	}

	plugin, err := d.registry.ResolveForConfig(cfg)
	if err != nil {
		d.metrics.ObserveConnectorError(string(cfg.Type), "call")
		return NewError(req.ID, CodeInternalError, "internal error")
	}
	cred, err := d.resolver.Active(ctx, sess.Tenant.ID, string(cfg.Type))
	if err != nil {
		d.metrics.ObserveConnectorError(string(cfg.Type), "call")
		return NewError(req.ID, CodeInternalError, "internal error")
	}

	callCtx := ctx
	if d.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.callTimeout)
		defer cancel()
	}

	text, err := plugin.ExecuteTool(callCtx, cfg, action, params.Arguments, cred)
	if err != nil {
		// Execution failure is a tool-level error, not a protocol error.
		d.metrics.ObserveConnectorError(string(cfg.Type), "call")
		d.logger.Warn("tool execution failed",
			"tenant", sess.Tenant.Slug,
			"tool", params.Name,
			"error", err,
		)
		return NewResult(req.ID, CallToolResult{
			Content: []Content{{Type: "text", Text: fmt.Sprintf("Error: %v", err)}},
			IsError: true,
		})
	}

	return NewResult(req.ID, CallToolResult{
		Content: []Content{{Type: "text", Text: text}},
		IsError: strings.HasPrefix(text, "Error:"),
	})
}

func (d *Dispatcher) handleResourcesList(ctx context.Context, sess *Session, req Request) *Response {
	configs, err := d.sessionConnectors(ctx, sess)
	if err != nil {
		d.logger.Error("listing connectors failed", "tenant", sess.Tenant.Slug, "error", err)
		return NewError(req.ID, CodeInternalError, "internal error")
	}

	resources := make([]ResourceInfo, 0)
	for _, cfg := range configs {
		descs, err := d.connectorResources(ctx, sess, cfg)
		if err != nil {
			d.metrics.ObserveConnectorError(string(cfg.Type), "resources")
			d.logger.Warn("connector resources/list failed",
				"tenant", sess.Tenant.Slug,
				"connector", string(cfg.Type),
				"error", err,
			)
			continue
		}
		for _, r := range descs {
			resources = append(resources, ResourceInfo{URI: r.URI, Name: r.Name, Description: r.Description})
		}
	}
	return NewResult(req.ID, ListResourcesResult{Resources: resources})
}

func (d *Dispatcher) connectorResources(ctx context.Context, sess *Session, cfg *store.ConnectorConfig) ([]connector.ResourceDescriptor, error) {
	plugin, err := d.registry.ResolveForConfig(cfg)
	if err != nil {
		return nil, err
	}
	cred, err := d.resolver.Active(ctx, sess.Tenant.ID, string(cfg.Type))
	if err != nil {
		return nil, err
	}
	return plugin.Resources(ctx, cfg, cred)
}

func (d *Dispatcher) handleResourcesRead(ctx context.Context, sess *Session, req Request) *Response {
	var params ReadResourceParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewError(req.ID, CodeInvalidParams, "invalid params")
		}
	}
	scheme, path, ok := splitResourceURI(params.URI)
	if !ok {
		return NewError(req.ID, CodeInvalidParams, fmt.Sprintf("invalid resource URI: %s", params.URI))
	}

	configs, err := d.sessionConnectors(ctx, sess)
	if err != nil {
		d.logger.Error("listing connectors failed", "tenant", sess.Tenant.Slug, "error", err)
		return NewError(req.ID, CodeInternalError, "internal error")
	}

	var cfg *store.ConnectorConfig
	for _, c := range configs {
		if string(c.Type) == scheme {
			cfg = c
			break
		}
	}
	if cfg == nil {
		return NewError(req.ID, CodeInvalidParams, fmt.Sprintf("unknown resource: %s", params.URI))
	}

	plugin, err := d.registry.ResolveForConfig(cfg)
	if err != nil {
		d.metrics.ObserveConnectorError(string(cfg.Type), "read")
		return NewError(req.ID, CodeInternalError, "internal error")
	}
	cred, err := d.resolver.Active(ctx, sess.Tenant.ID, string(cfg.Type))
	if err != nil {
		d.metrics.ObserveConnectorError(string(cfg.Type), "read")
		return NewError(req.ID, CodeInternalError, "internal error")
	}

	callCtx := ctx
	if d.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.callTimeout)
		defer cancel()
	}

	text, err := plugin.ReadResource(callCtx, cfg, path, cred)
	if err != nil {
		d.metrics.ObserveConnectorError(string(cfg.Type), "read")
		d.logger.Warn("resource read failed",
			"tenant", sess.Tenant.Slug,
			"uri", params.URI,
			"error", err,
		)
		text = fmt.Sprintf("Error: %v", err)
	}

	return NewResult(req.ID, ReadResourceResult{
		Contents: []ResourceContents{{URI: params.URI, MimeType: "text/plain", Text: text}},
	})
}

// matchTool routes a namespaced tool name to a connector. Connector types
// may themselves contain underscores (google_docs), so the longest
// "{type}_" prefix wins over a naive first-underscore split.
func matchTool(name string, configs []*store.ConnectorConfig) (*store.ConnectorConfig, string, bool) {
	var best *store.ConnectorConfig
	for _, cfg := range configs {
		prefix := string(cfg.Type) + "_"
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if best == nil || len(cfg.Type) > len(best.Type) {
			best = cfg
		}
	}
	if best == nil {
		return nil, "", false
	}
	return best, strings.TrimPrefix(name, string(best.Type)+"_"), true
}

// splitResourceURI splits "{scheme}://{path}" into its parts.
func splitResourceURI(uri string) (scheme, path string, ok bool) {
	idx := strings.Index(uri, "://")
	if idx <= 0 {
		return "", "", false
	}
	scheme, path = uri[:idx], uri[idx+3:]
	if path == "" {
		return "", "", false
	}
	return scheme, path, true
}
