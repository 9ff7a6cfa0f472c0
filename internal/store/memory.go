// ABOUTME: In-memory implementation of the Store interface for tests and dev mode
// ABOUTME: Mirrors SQLite semantics including uniqueness and active-credential filtering

package store

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Store implementation. It enforces the same
// invariants as the SQLite store (slug uniqueness, one connector per
// tenant+type, active-credential filtering) so tests exercise identical
// semantics without a database file.
type MemStore struct {
	mu          sync.RWMutex
	tenants     map[string]*Tenant          // by slug
	connectors  map[string]*ConnectorConfig // by id
	credentials []*Credential
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		tenants:    make(map[string]*Tenant),
		connectors: make(map[string]*ConnectorConfig),
	}
}

// CreateTenant stores a tenant, rejecting duplicate slugs.
func (m *MemStore) CreateTenant(_ context.Context, tenant *Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tenants[tenant.Slug]; exists {
		return ErrDuplicateTenant
	}
	cp := *tenant
	m.tenants[tenant.Slug] = &cp
	return nil
}

// GetTenantBySlug returns the tenant with the given slug, or ErrNotFound.
func (m *MemStore) GetTenantBySlug(_ context.Context, slug string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[slug]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// CreateConnector stores a connector config, rejecting a second connector of
// the same type for the same tenant.
func (m *MemStore) CreateConnector(_ context.Context, cfg *ConnectorConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.connectors {
		if existing.TenantID == cfg.TenantID && existing.Type == cfg.Type {
			return ErrDuplicateConnector
		}
	}
	cp := *cfg
	m.connectors[cfg.ID] = &cp
	return nil
}

// GetConnector returns a connector config by id regardless of enabled state.
func (m *MemStore) GetConnector(_ context.Context, id string) (*ConnectorConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, ok := m.connectors[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *cfg
	return &cp, nil
}

// ListEnabledConnectors returns all enabled connectors for a tenant.
func (m *MemStore) ListEnabledConnectors(_ context.Context, tenantID string) ([]*ConnectorConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ConnectorConfig
	for _, cfg := range m.connectors {
		if cfg.TenantID == tenantID && cfg.Enabled {
			cp := *cfg
			out = append(out, &cp)
		}
	}
	return out, nil
}

// SaveCredential appends a credential row.
func (m *MemStore) SaveCredential(_ context.Context, cred *Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *cred
	m.credentials = append(m.credentials, &cp)
	return nil
}

// GetActiveCredential returns the newest active, non-expired credential for a
// tenant+provider pair, or ErrNotFound.
func (m *MemStore) GetActiveCredential(_ context.Context, tenantID, provider string) (*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().UTC()
	var newest *Credential
	for _, c := range m.credentials {
		if c.TenantID != tenantID || c.Provider != provider {
			continue
		}
		if !c.Active || c.Expired(now) {
			continue
		}
		if newest == nil || c.CreatedAt.After(newest.CreatedAt) {
			newest = c
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error {
	return nil
}
