package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCallToolRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(s.shutdown)
	return s
}

func writeTestProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := `package auth

// AuthenticateUser validates a bearer token and returns the associated user.
func AuthenticateUser(token string) (string, error) {
	return token, nil
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "auth.go"), []byte(content), 0644))
	return dir
}

func TestHandleSemanticSearch_LazyIndexesAndReturnsResults(t *testing.T) {
	s := newTestServer(t)
	projectDir := writeTestProject(t)

	result, err := s.handleSemanticSearch(context.Background(), newCallToolRequest(map[string]interface{}{
		"query": "authenticate user",
		"path":  projectDir,
	}))
	require.NoError(t, err)
	require.NotNil(t, result)

	text := resultText(t, result)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &resp))

	results, ok := resp["results"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, results)
	assert.Equal(t, "authenticate user", resp["query"])

	indexStats, ok := resp["index_stats"].(map[string]interface{})
	require.True(t, ok)
	assert.Greater(t, indexStats["total_chunks"], float64(0))
}

func TestHandleSemanticSearch_MissingQueryRejected(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleSemanticSearch(context.Background(), newCallToolRequest(map[string]interface{}{
		"path": t.TempDir(),
	}))
	require.NoError(t, err)
	assert.Equal(t, ErrorCodeEmptyQuery, toolErrorCode(t, result))
}

// S5 — an injection attempt in file_pattern surfaces as an invalid-filter
// tool error, never an internal error or silent empty result.
func TestHandleSemanticSearch_InjectionAttemptRejected(t *testing.T) {
	s := newTestServer(t)
	projectDir := writeTestProject(t)

	result, err := s.handleSemanticSearch(context.Background(), newCallToolRequest(map[string]interface{}{
		"query":        "x",
		"path":         projectDir,
		"file_pattern": "*.ts'; DROP TABLE--",
	}))
	require.NoError(t, err)
	assert.Equal(t, ErrorCodeInvalidFilter, toolErrorCode(t, result))
}

func TestHandleSemanticSearch_RelativePathRejected(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleSemanticSearch(context.Background(), newCallToolRequest(map[string]interface{}{
		"query": "x",
		"path":  "relative/path",
	}))
	require.NoError(t, err)
	assert.Equal(t, ErrorCodeInvalidParams, toolErrorCode(t, result))
}

func TestHandleIndexCodebase_ThenGetStatusReportsIndexed(t *testing.T) {
	s := newTestServer(t)
	projectDir := writeTestProject(t)

	_, err := s.handleIndexCodebase(context.Background(), newCallToolRequest(map[string]interface{}{
		"path": projectDir,
	}))
	require.NoError(t, err)

	result, err := s.handleGetStatus(context.Background(), newCallToolRequest(map[string]interface{}{
		"path": projectDir,
	}))
	require.NoError(t, err)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &resp))
	assert.Equal(t, true, resp["indexed"])
}

func TestHandleGetStatus_UnindexedProjectReportsFalse(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleGetStatus(context.Background(), newCallToolRequest(map[string]interface{}{
		"path": t.TempDir(),
	}))
	require.NoError(t, err)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &resp))
	assert.Equal(t, false, resp["indexed"])
}

// resultText extracts the text payload mcp.NewToolResultText wraps.
func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

// toolErrorCode unwraps the MCPError JSON body toolError embeds in an
// isError result's text content and returns its code, also asserting the
// result is actually flagged as an error.
func toolErrorCode(t *testing.T, result *mcp.CallToolResult) int {
	t.Helper()
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	var mcpErr MCPError
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &mcpErr))
	return mcpErr.Code
}
