// Package store provides persistent storage for the gateway using SQLite.
//
// # Architecture
//
// The Store interface covers exactly what the protocol core consumes:
//
//   - Tenants: lookup by slug (plus creation for seeding)
//   - ConnectorConfig: enabled-set listing per tenant and lookup by id
//   - Credential: active, non-expired lookup per tenant+provider
//
// Administrative CRUD (tenant management, connector toggling, OAuth flows)
// lives in external collaborators; this package only carries the reads the
// dispatcher needs and the writes that exercise the schema's invariants.
//
// # Invariants
//
//   - Tenant slugs are unique.
//   - At most one connector of a given type exists per tenant, enforced by a
//     unique index on (tenant_id, connector_type), not by the dispatcher.
//   - GetActiveCredential never returns an inactive or expired credential;
//     the filter runs as an explicit boolean/expiry predicate in the query.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Testing
//
// Use NewMemStore() for unit tests; it implements the same invariants in
// memory. Use NewSQLiteStore(":memory:") for integration tests with real
// SQLite.
package store
