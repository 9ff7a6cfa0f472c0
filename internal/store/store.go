// ABOUTME: Store interface and data types for sage-gateway persistence
// ABOUTME: Defines Tenant, ConnectorConfig, Credential structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConnector is returned when a tenant already has a connector of the same type
var ErrDuplicateConnector = errors.New("connector type already configured for tenant")

// ErrDuplicateTenant is returned when a tenant with the same slug already exists
var ErrDuplicateTenant = errors.New("tenant already exists")

// Tenant represents an isolated customer space identified by its slug
type Tenant struct {
	ID           string
	Slug         string
	Name         string
	Description  string
	ContactEmail string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ConnectorType identifies a supported integration.
type ConnectorType string

// Supported connector types
const (
	TypeGitHub     ConnectorType = "github"
	TypeGitLab     ConnectorType = "gitlab"
	TypeGoogleDocs ConnectorType = "google_docs"
	TypeNotion     ConnectorType = "notion"
	TypeConfluence ConnectorType = "confluence"
	TypeJira       ConnectorType = "jira"
	TypeLinear     ConnectorType = "linear"
	TypeSlack      ConnectorType = "slack"
	TypeTeams      ConnectorType = "teams"
	TypeDiscord    ConnectorType = "discord"
)

// KnownTypes lists every connector type the gateway understands.
var KnownTypes = []ConnectorType{
	TypeGitHub, TypeGitLab, TypeGoogleDocs, TypeNotion, TypeConfluence,
	TypeJira, TypeLinear, TypeSlack, TypeTeams, TypeDiscord,
}

// Valid reports whether t is one of the supported connector types.
func (t ConnectorType) Valid() bool {
	for _, k := range KnownTypes {
		if t == k {
			return true
		}
	}
	return false
}

// RuntimeKind constants for connector runtime kinds
const (
	RuntimeNative   = "native"   // implemented in-process
	RuntimeExternal = "external" // proxied to an out-of-process server
)

// LaunchSpec describes how to start an externally hosted connector server.
// Present only when the connector's runtime kind is external.
type LaunchSpec struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Dir     string            `json:"dir,omitempty"`
}

// ConnectorConfig is a tenant-scoped, configured instance of an integration.
// At most one connector of a given type exists per tenant.
type ConnectorConfig struct {
	ID          string
	TenantID    string
	Type        ConnectorType
	Name        string
	Description string
	Enabled     bool
	Runtime     string      // "native" or "external"
	Launch      *LaunchSpec // nil unless Runtime is external
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Credential holds a stored third-party OAuth token for a tenant+provider pair.
// Owned by the OAuth collaborator; the gateway only reads it.
type Credential struct {
	ID           string
	TenantID     string
	Provider     string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scopes       string
	ExpiresAt    *time.Time
	Active       bool
	CreatedAt    time.Time
}

// Expired reports whether the credential's access token is past its expiry.
// Credentials without an expiry never expire.
func (c *Credential) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Before(*c.ExpiresAt)
}

// Store defines the persistence operations the gateway consumes.
// Administrative CRUD beyond the writes below belongs to the admin collaborator.
type Store interface {
	// Tenants
	CreateTenant(ctx context.Context, tenant *Tenant) error
	GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error)

	// Connector configurations
	CreateConnector(ctx context.Context, cfg *ConnectorConfig) error
	GetConnector(ctx context.Context, id string) (*ConnectorConfig, error)
	ListEnabledConnectors(ctx context.Context, tenantID string) ([]*ConnectorConfig, error)

	// Credentials (read side of the OAuth collaborator)
	SaveCredential(ctx context.Context, cred *Credential) error
	GetActiveCredential(ctx context.Context, tenantID, provider string) (*Credential, error)

	// Close releases any resources held by the store
	Close() error
}
