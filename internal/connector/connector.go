// ABOUTME: Connector plugin contract shared by native and externally hosted integrations
// ABOUTME: Defines tool/resource descriptors and the credential usability predicate

package connector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sagehq/sage-gateway/internal/store"
)

// ToolDescriptor describes one callable action a connector exposes.
// Names carry a "{connector_type}_" prefix; the dispatcher routes calls by
// that prefix, not by plugin identity.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ResourceDescriptor describes one readable document a connector exposes.
// The URI scheme is the connector type (e.g. "notion://page/abc").
type ResourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Plugin is the capability contract every connector implements, whether it
// runs in-process or is proxied to an external server.
//
// Listing calls must not assume the credential is valid: a plugin that cannot
// list (missing/unusable credential, upstream failure) returns an empty slice
// rather than failing sibling connectors. Tool descriptors are static, so
// Tools returns them regardless of credential state. ExecuteTool and
// ReadResource return error-shaped text payloads for domain failures; real
// errors they do return are caught at the dispatcher boundary and converted
// to error text, never propagated as transport failures.
type Plugin interface {
	Name() string
	DisplayName() string
	Description() string
	RequiresOAuth() bool

	// Tools lists the connector's tool descriptors.
	Tools(ctx context.Context, cfg *store.ConnectorConfig, cred *store.Credential) ([]ToolDescriptor, error)

	// Resources lists the connector's readable resources.
	Resources(ctx context.Context, cfg *store.ConnectorConfig, cred *store.Credential) ([]ResourceDescriptor, error)

	// ExecuteTool runs one action. The action name arrives with the
	// "{connector_type}_" prefix already stripped.
	ExecuteTool(ctx context.Context, cfg *store.ConnectorConfig, action string, args map[string]any, cred *store.Credential) (string, error)

	// ReadResource reads one resource. The path arrives with the
	// "{connector_type}://" scheme already stripped.
	ReadResource(ctx context.Context, cfg *store.ConnectorConfig, path string, cred *store.Credential) (string, error)
}

// CredentialUsable reports whether a plugin can authenticate with the given
// credential. Connectors that do not require OAuth need no credential at all.
// For OAuth connectors the credential must exist, be active, and not be past
// its expiry.
func CredentialUsable(p Plugin, cred *store.Credential) bool {
	if !p.RequiresOAuth() {
		return true
	}
	if cred == nil || !cred.Active {
		return false
	}
	return !cred.Expired(time.Now().UTC())
}
