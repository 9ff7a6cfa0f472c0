// ABOUTME: Thread-safe registry mapping connector types to plugin instances
// ABOUTME: Resolves native plugins from the type map and external configs to stdio adapters

package connector

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sagehq/sage-gateway/internal/store"
)

// ErrNotRegistered indicates no native plugin is registered for a connector type.
var ErrNotRegistered = errors.New("no plugin registered for connector type")

// ErrInvalidLaunchSpec indicates an external connector config carries a
// missing or unusable launch specification.
var ErrInvalidLaunchSpec = errors.New("invalid launch spec")

// Registry maps connector types to plugin instances. It is constructed once
// at process start, populated by an explicit registration call list before
// traffic begins, and read-only afterwards.
type Registry struct {
	mu       sync.RWMutex
	native   map[store.ConnectorType]Plugin
	external map[string]*ExternalPlugin // by connector config ID
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		native:   make(map[store.ConnectorType]Plugin),
		external: make(map[string]*ExternalPlugin),
		logger:   logger.With("component", "registry"),
	}
}

// Register binds a native plugin to a connector type. Registering the same
// type twice overwrites the previous binding (last registration wins), which
// lets tests install doubles over the startup set.
func (r *Registry) Register(ctype store.ConnectorType, p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.native[ctype]; exists {
		r.logger.Warn("overwriting registered plugin", "connector_type", ctype, "plugin", p.Name())
	}
	r.native[ctype] = p
	r.logger.Info("registered connector plugin", "connector_type", ctype, "plugin", p.Name())
}

// Resolve returns the native plugin for a connector type.
func (r *Registry) Resolve(ctype store.ConnectorType) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.native[ctype]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, ctype)
	}
	return p, nil
}

// ResolveForConfig returns the plugin instance for a connector configuration,
// regardless of runtime kind. External configs resolve to a generic stdio
// adapter parameterized by the launch spec; the adapter starts its server
// lazily on first use. Adapters are cached per config so repeated calls reuse
// one server process.
func (r *Registry) ResolveForConfig(cfg *store.ConnectorConfig) (Plugin, error) {
	if cfg.Runtime == store.RuntimeExternal {
		if cfg.Launch == nil || cfg.Launch.Command == "" {
			return nil, fmt.Errorf("%w: external connector %s has no launch command", ErrInvalidLaunchSpec, cfg.ID)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if ext, ok := r.external[cfg.ID]; ok {
			return ext, nil
		}
		ext := NewExternalPlugin(cfg.Type, *cfg.Launch, r.logger)
		r.external[cfg.ID] = ext
		return ext, nil
	}

	return r.Resolve(cfg.Type)
}

// Types returns the connector types with a registered native plugin.
func (r *Registry) Types() []store.ConnectorType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]store.ConnectorType, 0, len(r.native))
	for t := range r.native {
		types = append(types, t)
	}
	return types
}

// Close stops any external server processes the registry has started.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, ext := range r.external {
		ext.Stop()
		delete(r.external, id)
	}
}
