// ABOUTME: Native GitHub connector plugin exposing repository and issue tools
// ABOUTME: Carries a deliberately small operation set to exercise the plugin contract

package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sagehq/sage-gateway/internal/connector"
	"github.com/sagehq/sage-gateway/internal/store"
)

const defaultBaseURL = "https://api.github.com"

// invalidCredentialText is the error-shaped payload returned when the
// resolved credential cannot be used. Execution never raises for this case.
const invalidCredentialText = "Error: Invalid or expired GitHub credentials"

// Connector implements the plugin contract against the GitHub REST API.
type Connector struct {
	// BaseURL overrides the GitHub API endpoint (tests point it at a stub).
	BaseURL string

	client *http.Client
	logger *slog.Logger
}

// New creates a GitHub connector plugin.
func New(logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		BaseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With("connector", "github"),
	}
}

func (c *Connector) Name() string        { return "github" }
func (c *Connector) DisplayName() string { return "GitHub" }
func (c *Connector) Description() string {
	return "Access GitHub repositories, issues, pull requests, and more"
}
func (c *Connector) RequiresOAuth() bool { return true }

// Tools returns the static GitHub tool descriptors. Descriptors do not
// depend on credential state; execution applies the usability check.
func (c *Connector) Tools(_ context.Context, _ *store.ConnectorConfig, _ *store.Credential) ([]connector.ToolDescriptor, error) {
	return []connector.ToolDescriptor{
		{
			Name:        "github_list_repositories",
			Description: "List repositories for the authenticated user",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"type": {"type": "string", "enum": ["all", "owner", "public", "private", "member"], "default": "all", "description": "Type of repositories to list"},
					"sort": {"type": "string", "enum": ["created", "updated", "pushed", "full_name"], "default": "updated", "description": "Sort order"},
					"per_page": {"type": "integer", "minimum": 1, "maximum": 100, "default": 30, "description": "Number of results per page"}
				}
			}`),
		},
		{
			Name:        "github_get_repository",
			Description: "Get detailed information about a repository",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"owner": {"type": "string", "description": "Repository owner"},
					"repo": {"type": "string", "description": "Repository name"}
				},
				"required": ["owner", "repo"]
			}`),
		},
		{
			Name:        "github_list_issues",
			Description: "List issues for a repository",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"owner": {"type": "string", "description": "Repository owner"},
					"repo": {"type": "string", "description": "Repository name"},
					"state": {"type": "string", "enum": ["open", "closed", "all"], "default": "open", "description": "Issue state"},
					"per_page": {"type": "integer", "minimum": 1, "maximum": 100, "default": 30, "description": "Number of results per page"}
				},
				"required": ["owner", "repo"]
			}`),
		},
	}, nil
}

// Resources lists the authenticated user's repositories as readable
// resources. Without a usable credential the listing is empty, never an
// error, so sibling connectors still aggregate.
func (c *Connector) Resources(ctx context.Context, _ *store.ConnectorConfig, cred *store.Credential) ([]connector.ResourceDescriptor, error) {
	if !connector.CredentialUsable(c, cred) {
		return nil, nil
	}

	body, err := c.get(ctx, cred, "/user/repos?per_page=30&sort=updated")
	if err != nil {
		c.logger.Warn("listing repositories for resources failed", "error", err)
		return nil, nil
	}

	var repos []struct {
		FullName    string `json:"full_name"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &repos); err != nil {
		c.logger.Warn("decoding repository list failed", "error", err)
		return nil, nil
	}

	resources := make([]connector.ResourceDescriptor, 0, len(repos))
	for _, r := range repos {
		resources = append(resources, connector.ResourceDescriptor{
			URI:         "github://repo/" + r.FullName,
			Name:        r.FullName,
			Description: r.Description,
		})
	}
	return resources, nil
}

// ExecuteTool runs one GitHub action. Credential invalidity short-circuits
// with an error-shaped text payload before any API call.
func (c *Connector) ExecuteTool(ctx context.Context, _ *store.ConnectorConfig, action string, args map[string]any, cred *store.Credential) (string, error) {
	if !connector.CredentialUsable(c, cred) {
		return invalidCredentialText, nil
	}

	switch action {
	case "list_repositories":
		q := url.Values{}
		q.Set("type", stringArg(args, "type", "all"))
		q.Set("sort", stringArg(args, "sort", "updated"))
		q.Set("per_page", intArg(args, "per_page", 30))
		return c.getText(ctx, cred, "/user/repos?"+q.Encode())

	case "get_repository":
		owner, repo := stringArg(args, "owner", ""), stringArg(args, "repo", "")
		if owner == "" || repo == "" {
			return "Error: owner and repo are required", nil
		}
		return c.getText(ctx, cred, fmt.Sprintf("/repos/%s/%s", owner, repo))

	case "list_issues":
		owner, repo := stringArg(args, "owner", ""), stringArg(args, "repo", "")
		if owner == "" || repo == "" {
			return "Error: owner and repo are required", nil
		}
		q := url.Values{}
		q.Set("state", stringArg(args, "state", "open"))
		q.Set("per_page", intArg(args, "per_page", 30))
		return c.getText(ctx, cred, fmt.Sprintf("/repos/%s/%s/issues?%s", owner, repo, q.Encode()))

	default:
		return fmt.Sprintf("Error: Unknown GitHub action: %s", action), nil
	}
}

// ReadResource reads one github:// resource. Paths follow "repo/{owner}/{name}".
func (c *Connector) ReadResource(ctx context.Context, _ *store.ConnectorConfig, path string, cred *store.Credential) (string, error) {
	if !connector.CredentialUsable(c, cred) {
		return invalidCredentialText, nil
	}

	parts := strings.SplitN(path, "/", 3)
	if len(parts) == 3 && parts[0] == "repo" {
		return c.getText(ctx, cred, fmt.Sprintf("/repos/%s/%s", parts[1], parts[2]))
	}
	return fmt.Sprintf("Error: Unknown GitHub resource path: %s", path), nil
}

// get performs an authenticated GET and returns the response body.
func (c *Connector) get(ctx context.Context, cred *store.Credential, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GitHub API %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// getText performs an authenticated GET and returns the body as a text
// payload, converting API failures into error-shaped text.
func (c *Connector) getText(ctx context.Context, cred *store.Credential, path string) (string, error) {
	body, err := c.get(ctx, cred, path)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}
	return string(body), nil
}

func stringArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

func intArg(args map[string]any, key string, def int) string {
	if v, ok := args[key].(float64); ok && v > 0 {
		return fmt.Sprintf("%d", int(v))
	}
	return fmt.Sprintf("%d", def)
}
