// ABOUTME: Credential resolver for looking up third-party OAuth tokens per tenant+provider
// ABOUTME: Centralizes the lookup; validity judgment stays with each connector plugin

package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sagehq/sage-gateway/internal/store"
)

// Resolver looks up the active credential for a tenant+provider pair.
// It is read-mostly process-wide state constructed once at startup.
type Resolver struct {
	store  store.Store
	logger *slog.Logger
}

// NewResolver creates a Resolver backed by the given store.
func NewResolver(s store.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:  s,
		logger: logger.With("component", "credential"),
	}
}

// Active returns the active, non-expired credential for the tenant+provider
// pair, or nil when none exists. Absence is not an error: OAuth-optional
// connectors run without a credential, and OAuth-requiring connectors apply
// their own usability predicate to whatever they receive.
func (r *Resolver) Active(ctx context.Context, tenantID, provider string) (*store.Credential, error) {
	cred, err := r.store.GetActiveCredential(ctx, tenantID, provider)
	if errors.Is(err, store.ErrNotFound) {
		r.logger.Debug("no active credential", "tenant_id", tenantID, "provider", provider)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving credential for %s/%s: %w", tenantID, provider, err)
	}
	return cred, nil
}
