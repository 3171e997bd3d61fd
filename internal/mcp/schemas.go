package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexCodebaseTool returns the tool definition for index_codebase, the
// explicit trigger for an initial or forced scan.
func indexCodebaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_codebase",
		Description: "Index a codebase to make it searchable via semantic_search",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project root to index",
				},
				"force_reindex": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, re-index all files ignoring file hashes (full rebuild)",
					"default":     false,
				},
				"include_tests": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, index test files (*_test.go, *.test.ts, etc.)",
					"default":     true,
				},
				"include_vendor": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, index the vendor/ directory",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// semanticSearchTool returns the tool definition for the engine's single
// core operation. The target project is lazily indexed on first call for
// path if it hasn't been indexed yet (§4.8).
func semanticSearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "semantic_search",
		Description: "Search a codebase by meaning, not just tokens: a natural-language query returns ranked code regions whose behavior matches the query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural-language or keyword search query",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project root to search (indexed automatically if not already)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-50)",
					"default":     10,
					"minimum":     1,
					"maximum":     50,
				},
				"file_pattern": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to files matching this glob or extension pattern, e.g. \"*.ts\" or \"internal/**/*.go\"",
				},
			},
			Required: []string{"query", "path"},
		},
	}
}

// getStatusTool returns the tool definition for get_status, surfacing
// degraded-mode/fallback information alongside indexing progress.
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Query indexing status and statistics for a project root",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project root",
				},
			},
			Required: []string{"path"},
		},
	}
}
