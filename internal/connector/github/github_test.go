// ABOUTME: Tests for the GitHub connector plugin
// ABOUTME: Covers static tool descriptors, credential gating, and API calls against a stub server

package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagehq/sage-gateway/internal/store"
)

func usableCred() *store.Credential {
	return &store.Credential{
		Provider:    "github",
		AccessToken: "gho_test",
		Active:      true,
	}
}

func TestTools_StaticRegardlessOfCredential(t *testing.T) {
	c := New(nil)

	withCred, err := c.Tools(context.Background(), nil, usableCred())
	require.NoError(t, err)
	withoutCred, err := c.Tools(context.Background(), nil, nil)
	require.NoError(t, err)

	require.Len(t, withoutCred, 3)
	assert.Equal(t, withCred, withoutCred)

	names := make([]string, 0, len(withoutCred))
	for _, tool := range withoutCred {
		names = append(names, tool.Name)
	}
	assert.Contains(t, names, "github_list_repositories")
	assert.Contains(t, names, "github_get_repository")
	assert.Contains(t, names, "github_list_issues")
}

func TestToolNamesCarryConnectorPrefix(t *testing.T) {
	c := New(nil)
	tools, err := c.Tools(context.Background(), nil, nil)
	require.NoError(t, err)
	for _, tool := range tools {
		assert.Regexp(t, "^github_", tool.Name)
	}
}

func TestExecuteTool_InvalidCredentialShortCircuits(t *testing.T) {
	c := New(nil)
	c.BaseURL = "http://127.0.0.1:1" // any API call would fail loudly

	expired := time.Now().Add(-time.Hour)
	for name, cred := range map[string]*store.Credential{
		"nil":      nil,
		"inactive": {Provider: "github", AccessToken: "x", Active: false},
		"expired":  {Provider: "github", AccessToken: "x", Active: true, ExpiresAt: &expired},
	} {
		t.Run(name, func(t *testing.T) {
			text, err := c.ExecuteTool(context.Background(), nil, "list_repositories", nil, cred)
			require.NoError(t, err)
			assert.Equal(t, "Error: Invalid or expired GitHub credentials", text)
		})
	}
}

func TestExecuteTool_ListRepositories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/repos", r.URL.Path)
		assert.Equal(t, "Bearer gho_test", r.Header.Get("Authorization"))
		assert.Equal(t, "updated", r.URL.Query().Get("sort"))
		w.Write([]byte(`[{"full_name":"octocat/hello-world"}]`))
	}))
	defer srv.Close()

	c := New(nil)
	c.BaseURL = srv.URL

	text, err := c.ExecuteTool(context.Background(), nil, "list_repositories", nil, usableCred())
	require.NoError(t, err)
	assert.Contains(t, text, "octocat/hello-world")
}

func TestExecuteTool_MissingRequiredArgs(t *testing.T) {
	c := New(nil)
	text, err := c.ExecuteTool(context.Background(), nil, "get_repository", map[string]any{"owner": "octocat"}, usableCred())
	require.NoError(t, err)
	assert.Equal(t, "Error: owner and repo are required", text)
}

func TestExecuteTool_UnknownAction(t *testing.T) {
	c := New(nil)
	text, err := c.ExecuteTool(context.Background(), nil, "launch_rocket", nil, usableCred())
	require.NoError(t, err)
	assert.Equal(t, "Error: Unknown GitHub action: launch_rocket", text)
}

func TestExecuteTool_APIErrorBecomesErrorText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(nil)
	c.BaseURL = srv.URL

	text, err := c.ExecuteTool(context.Background(), nil, "get_repository",
		map[string]any{"owner": "nobody", "repo": "missing"}, usableCred())
	require.NoError(t, err)
	assert.Contains(t, text, "Error:")
	assert.Contains(t, text, "404")
}

func TestResources_EmptyWithoutCredential(t *testing.T) {
	c := New(nil)
	resources, err := c.Resources(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, resources)
}

func TestResources_ListsRepositories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"full_name":"octocat/hello-world","description":"My first repo"}]`))
	}))
	defer srv.Close()

	c := New(nil)
	c.BaseURL = srv.URL

	resources, err := c.Resources(context.Background(), nil, usableCred())
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "github://repo/octocat/hello-world", resources[0].URI)
	assert.Equal(t, "octocat/hello-world", resources[0].Name)
}

func TestReadResource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/octocat/hello-world", r.URL.Path)
		w.Write([]byte(`{"full_name":"octocat/hello-world"}`))
	}))
	defer srv.Close()

	c := New(nil)
	c.BaseURL = srv.URL

	text, err := c.ReadResource(context.Background(), nil, "repo/octocat/hello-world", usableCred())
	require.NoError(t, err)
	assert.Contains(t, text, "octocat/hello-world")

	text, err = c.ReadResource(context.Background(), nil, "gist/abc", usableCred())
	require.NoError(t, err)
	assert.Equal(t, "Error: Unknown GitHub resource path: gist/abc", text)
}
