// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides tenant/connector/credential persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tenants (
			id            TEXT PRIMARY KEY,
			slug          TEXT NOT NULL UNIQUE,
			name          TEXT NOT NULL,
			description   TEXT,
			contact_email TEXT,
			active        INTEGER NOT NULL DEFAULT 1,
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tenants_slug ON tenants(slug);

		CREATE TABLE IF NOT EXISTS connectors (
			id             TEXT PRIMARY KEY,
			tenant_id      TEXT NOT NULL,
			connector_type TEXT NOT NULL,
			name           TEXT NOT NULL,
			description    TEXT,
			enabled        INTEGER NOT NULL DEFAULT 1,
			runtime        TEXT NOT NULL DEFAULT 'native',
			launch_json    TEXT,
			created_at     DATETIME NOT NULL,
			updated_at     DATETIME NOT NULL,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE,
			CHECK (runtime IN ('native', 'external'))
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_connectors_tenant_type
			ON connectors(tenant_id, connector_type);

		CREATE TABLE IF NOT EXISTS credentials (
			id            TEXT PRIMARY KEY,
			tenant_id     TEXT NOT NULL,
			provider      TEXT NOT NULL,
			access_token  TEXT NOT NULL,
			refresh_token TEXT,
			token_type    TEXT NOT NULL DEFAULT 'bearer',
			scopes        TEXT,
			expires_at    DATETIME,
			active        INTEGER NOT NULL DEFAULT 1,
			created_at    DATETIME NOT NULL,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_credentials_tenant_provider
			ON credentials(tenant_id, provider);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// CreateTenant inserts a new tenant row.
func (s *SQLiteStore) CreateTenant(ctx context.Context, tenant *Tenant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, slug, name, description, contact_email, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tenant.ID, tenant.Slug, tenant.Name, tenant.Description, tenant.ContactEmail,
		boolToInt(tenant.Active), tenant.CreatedAt, tenant.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateTenant
		}
		return fmt.Errorf("inserting tenant: %w", err)
	}
	return nil
}

// GetTenantBySlug returns the tenant with the given slug, or ErrNotFound.
func (s *SQLiteStore) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, slug, name, COALESCE(description, ''), COALESCE(contact_email, ''), active, created_at, updated_at
		FROM tenants WHERE slug = ?`, slug)

	var t Tenant
	var active int
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Description, &t.ContactEmail, &active, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying tenant: %w", err)
	}
	t.Active = active != 0
	return &t, nil
}

// CreateConnector inserts a connector configuration. The unique index on
// (tenant_id, connector_type) enforces the one-connector-per-type invariant.
func (s *SQLiteStore) CreateConnector(ctx context.Context, cfg *ConnectorConfig) error {
	var launchJSON sql.NullString
	if cfg.Launch != nil {
		data, err := json.Marshal(cfg.Launch)
		if err != nil {
			return fmt.Errorf("encoding launch spec: %w", err)
		}
		launchJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connectors (id, tenant_id, connector_type, name, description, enabled, runtime, launch_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.TenantID, string(cfg.Type), cfg.Name, cfg.Description,
		boolToInt(cfg.Enabled), cfg.Runtime, launchJSON, cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateConnector
		}
		return fmt.Errorf("inserting connector: %w", err)
	}
	return nil
}

// GetConnector returns a connector configuration by id, enabled or not.
func (s *SQLiteStore) GetConnector(ctx context.Context, id string) (*ConnectorConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, connector_type, name, COALESCE(description, ''), enabled, runtime, launch_json, created_at, updated_at
		FROM connectors WHERE id = ?`, id)

	cfg, err := scanConnector(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying connector: %w", err)
	}
	return cfg, nil
}

// ListEnabledConnectors returns all enabled connectors for a tenant.
func (s *SQLiteStore) ListEnabledConnectors(ctx context.Context, tenantID string) ([]*ConnectorConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, connector_type, name, COALESCE(description, ''), enabled, runtime, launch_json, created_at, updated_at
		FROM connectors WHERE tenant_id = ? AND enabled = 1
		ORDER BY connector_type`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying connectors: %w", err)
	}
	defer rows.Close()

	var out []*ConnectorConfig
	for rows.Next() {
		cfg, err := scanConnector(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning connector: %w", err)
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connectors: %w", err)
	}
	return out, nil
}

// SaveCredential inserts a credential row (the OAuth collaborator's write path).
func (s *SQLiteStore) SaveCredential(ctx context.Context, cred *Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, tenant_id, provider, access_token, refresh_token, token_type, scopes, expires_at, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cred.ID, cred.TenantID, cred.Provider, cred.AccessToken, cred.RefreshToken,
		cred.TokenType, cred.Scopes, cred.ExpiresAt, boolToInt(cred.Active), cred.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting credential: %w", err)
	}
	return nil
}

// GetActiveCredential returns the newest active, non-expired credential for a
// tenant+provider pair, or ErrNotFound. The activity and expiry filters run in
// the query so inactive or expired rows are never handed out.
func (s *SQLiteStore) GetActiveCredential(ctx context.Context, tenantID, provider string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, provider, access_token, COALESCE(refresh_token, ''), token_type, COALESCE(scopes, ''), expires_at, active, created_at
		FROM credentials
		WHERE tenant_id = ? AND provider = ? AND active = 1
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at DESC
		LIMIT 1`, tenantID, provider, time.Now().UTC())

	var c Credential
	var active int
	var expiresAt sql.NullTime
	err := row.Scan(&c.ID, &c.TenantID, &c.Provider, &c.AccessToken, &c.RefreshToken,
		&c.TokenType, &c.Scopes, &expiresAt, &active, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	c.Active = active != 0
	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
	}
	return &c, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnector(row rowScanner) (*ConnectorConfig, error) {
	var cfg ConnectorConfig
	var ctype string
	var enabled int
	var launchJSON sql.NullString
	err := row.Scan(&cfg.ID, &cfg.TenantID, &ctype, &cfg.Name, &cfg.Description,
		&enabled, &cfg.Runtime, &launchJSON, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	cfg.Type = ConnectorType(ctype)
	cfg.Enabled = enabled != 0
	if launchJSON.Valid && launchJSON.String != "" {
		var spec LaunchSpec
		if err := json.Unmarshal([]byte(launchJSON.String), &spec); err != nil {
			return nil, fmt.Errorf("decoding launch spec: %w", err)
		}
		cfg.Launch = &spec
	}
	return &cfg, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation reports whether err is a SQLite unique constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
