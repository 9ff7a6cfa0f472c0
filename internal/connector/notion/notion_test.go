// ABOUTME: Tests for the Notion connector plugin
// ABOUTME: Exercises tool routing, credential gating, and resource URI construction

package notion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagehq/sage-gateway/internal/store"
)

func usableCred() *store.Credential {
	return &store.Credential{
		Provider:    "notion",
		AccessToken: "secret_test",
		Active:      true,
	}
}

func TestTools_Prefixed(t *testing.T) {
	c := New(nil)
	tools, err := c.Tools(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, tools, 3)
	for _, tool := range tools {
		assert.Regexp(t, "^notion_", tool.Name)
		assert.True(t, json.Valid(tool.InputSchema), "schema for %s must be valid JSON", tool.Name)
	}
}

func TestExecuteTool_InvalidCredential(t *testing.T) {
	c := New(nil)
	text, err := c.ExecuteTool(context.Background(), nil, "search", map[string]any{"query": "roadmap"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Error: Invalid or expired Notion credentials", text)
}

func TestExecuteTool_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret_test", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Notion-Version"))

		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "roadmap", payload["query"])

		w.Write([]byte(`{"results":[{"id":"abc","object":"page"}]}`))
	}))
	defer srv.Close()

	c := New(nil)
	c.BaseURL = srv.URL

	text, err := c.ExecuteTool(context.Background(), nil, "search", map[string]any{"query": "roadmap"}, usableCred())
	require.NoError(t, err)
	assert.Contains(t, text, `"id":"abc"`)
}

func TestExecuteTool_MissingArgs(t *testing.T) {
	c := New(nil)
	for action, want := range map[string]string{
		"search":         "Error: query is required",
		"get_page":       "Error: page_id is required",
		"query_database": "Error: database_id is required",
	} {
		text, err := c.ExecuteTool(context.Background(), nil, action, nil, usableCred())
		require.NoError(t, err)
		assert.Equal(t, want, text)
	}
}

func TestExecuteTool_UnknownAction(t *testing.T) {
	c := New(nil)
	text, err := c.ExecuteTool(context.Background(), nil, "teleport", nil, usableCred())
	require.NoError(t, err)
	assert.Equal(t, "Error: Unknown Notion action: teleport", text)
}

func TestResources_URIsCarryObjectType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[
			{"id":"p1","object":"page","properties":{"title":{"title":[{"plain_text":"Roadmap"}]}}},
			{"id":"d1","object":"database"}
		]}`))
	}))
	defer srv.Close()

	c := New(nil)
	c.BaseURL = srv.URL

	resources, err := c.Resources(context.Background(), nil, usableCred())
	require.NoError(t, err)
	require.Len(t, resources, 2)
	assert.Equal(t, "notion://page/p1", resources[0].URI)
	assert.Equal(t, "Roadmap", resources[0].Name)
	assert.Equal(t, "notion://database/d1", resources[1].URI)
}

func TestResources_EmptyWithoutCredential(t *testing.T) {
	c := New(nil)
	resources, err := c.Resources(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, resources)
}

func TestReadResource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pages/p1", r.URL.Path)
		w.Write([]byte(`{"id":"p1"}`))
	}))
	defer srv.Close()

	c := New(nil)
	c.BaseURL = srv.URL

	text, err := c.ReadResource(context.Background(), nil, "page/p1", usableCred())
	require.NoError(t, err)
	assert.Contains(t, text, "p1")

	text, err = c.ReadResource(context.Background(), nil, "block/b1", usableCred())
	require.NoError(t, err)
	assert.Equal(t, "Error: Unknown Notion resource path: block/b1", text)
}
