// ABOUTME: Native Notion connector plugin for page and database access
// ABOUTME: Talks to the Notion REST API with a bearer credential

package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sagehq/sage-gateway/internal/connector"
	"github.com/sagehq/sage-gateway/internal/store"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	notionVersion  = "2022-06-28"

	invalidCredentialText = "Error: Invalid or expired Notion credentials"
)

// Connector implements the plugin contract against the Notion API.
type Connector struct {
	// BaseURL overrides the Notion API endpoint (tests point it at a stub).
	BaseURL string

	client *http.Client
	logger *slog.Logger
}

// New creates a Notion connector plugin.
func New(logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		BaseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With("connector", "notion"),
	}
}

func (c *Connector) Name() string        { return "notion" }
func (c *Connector) DisplayName() string { return "Notion" }
func (c *Connector) Description() string {
	return "Search, read, and query Notion pages and databases"
}
func (c *Connector) RequiresOAuth() bool { return true }

func (c *Connector) Tools(_ context.Context, _ *store.ConnectorConfig, _ *store.Credential) ([]connector.ToolDescriptor, error) {
	return []connector.ToolDescriptor{
		{
			Name:        "notion_search",
			Description: "Search for pages and databases in the workspace",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "Search query text"},
					"filter": {"type": "string", "enum": ["page", "database"], "description": "Restrict results to a single object type"}
				},
				"required": ["query"]
			}`),
		},
		{
			Name:        "notion_get_page",
			Description: "Retrieve a page by its identifier",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"page_id": {"type": "string", "description": "Notion page identifier"}
				},
				"required": ["page_id"]
			}`),
		},
		{
			Name:        "notion_query_database",
			Description: "Query rows from a database",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"database_id": {"type": "string", "description": "Notion database identifier"},
					"page_size": {"type": "integer", "minimum": 1, "maximum": 100, "default": 25, "description": "Number of rows to return"}
				},
				"required": ["database_id"]
			}`),
		},
	}, nil
}

// Resources surfaces recently edited pages. Empty without a usable credential.
func (c *Connector) Resources(ctx context.Context, _ *store.ConnectorConfig, cred *store.Credential) ([]connector.ResourceDescriptor, error) {
	if !connector.CredentialUsable(c, cred) {
		return nil, nil
	}

	body, err := c.do(ctx, cred, http.MethodPost, "/search",
		map[string]any{"page_size": 25, "sort": map[string]string{"direction": "descending", "timestamp": "last_edited_time"}})
	if err != nil {
		c.logger.Warn("search for resources failed", "error", err)
		return nil, nil
	}

	var result struct {
		Results []struct {
			ID         string `json:"id"`
			Object     string `json:"object"`
			Properties map[string]struct {
				Title []struct {
					PlainText string `json:"plain_text"`
				} `json:"title"`
			} `json:"properties"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Warn("decoding search results failed", "error", err)
		return nil, nil
	}

	resources := make([]connector.ResourceDescriptor, 0, len(result.Results))
	for _, r := range result.Results {
		name := r.ID
		for _, prop := range r.Properties {
			if len(prop.Title) > 0 && prop.Title[0].PlainText != "" {
				name = prop.Title[0].PlainText
				break
			}
		}
		resources = append(resources, connector.ResourceDescriptor{
			URI:  fmt.Sprintf("notion://%s/%s", r.Object, r.ID),
			Name: name,
		})
	}
	return resources, nil
}

func (c *Connector) ExecuteTool(ctx context.Context, _ *store.ConnectorConfig, action string, args map[string]any, cred *store.Credential) (string, error) {
	if !connector.CredentialUsable(c, cred) {
		return invalidCredentialText, nil
	}

	switch action {
	case "search":
		query, _ := args["query"].(string)
		if query == "" {
			return "Error: query is required", nil
		}
		payload := map[string]any{"query": query}
		if filter, ok := args["filter"].(string); ok && filter != "" {
			payload["filter"] = map[string]string{"property": "object", "value": filter}
		}
		return c.doText(ctx, cred, http.MethodPost, "/search", payload)

	case "get_page":
		pageID, _ := args["page_id"].(string)
		if pageID == "" {
			return "Error: page_id is required", nil
		}
		return c.doText(ctx, cred, http.MethodGet, "/pages/"+pageID, nil)

	case "query_database":
		dbID, _ := args["database_id"].(string)
		if dbID == "" {
			return "Error: database_id is required", nil
		}
		pageSize := 25
		if v, ok := args["page_size"].(float64); ok && v > 0 {
			pageSize = int(v)
		}
		return c.doText(ctx, cred, http.MethodPost, "/databases/"+dbID+"/query",
			map[string]any{"page_size": pageSize})

	default:
		return fmt.Sprintf("Error: Unknown Notion action: %s", action), nil
	}
}

// ReadResource reads a notion:// resource. Paths follow "{object}/{id}"
// where object is page or database.
func (c *Connector) ReadResource(ctx context.Context, _ *store.ConnectorConfig, path string, cred *store.Credential) (string, error) {
	if !connector.CredentialUsable(c, cred) {
		return invalidCredentialText, nil
	}

	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 {
		return fmt.Sprintf("Error: Unknown Notion resource path: %s", path), nil
	}
	switch parts[0] {
	case "page":
		return c.doText(ctx, cred, http.MethodGet, "/pages/"+parts[1], nil)
	case "database":
		return c.doText(ctx, cred, http.MethodGet, "/databases/"+parts[1], nil)
	default:
		return fmt.Sprintf("Error: Unknown Notion resource path: %s", path), nil
	}
}

func (c *Connector) do(ctx context.Context, cred *store.Credential, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Notion-Version", notionVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("Notion API %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func (c *Connector) doText(ctx context.Context, cred *store.Credential, method, path string, payload any) (string, error) {
	data, err := c.do(ctx, cred, method, path, payload)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}
	return string(data), nil
}
