package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/example/semcode-mcp/internal/indexer"
	"github.com/example/semcode-mcp/internal/searcher"
	"github.com/example/semcode-mcp/internal/storage"
	"github.com/example/semcode-mcp/pkg/types"
)

// MCP error codes.
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound    = -32001 // Specified path does not contain an indexable project
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // Project not indexed
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeInvalidFilter      = -32005 // file_pattern/path filter failed the safety layer's whitelist
)

// handleIndexCodebase handles the index_codebase tool invocation: the
// explicit trigger for an initial or forced scan (§4.8).
func (s *Server) handleIndexCodebase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return toolError(ErrorCodeInvalidParams, "invalid arguments", nil), nil
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return toolError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		}), nil
	}

	if err := validatePath(path); err != nil {
		return toolError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		}), nil
	}

	forceReindex, _ := args["force_reindex"].(bool)
	config := &indexer.Config{
		IncludeTests:  getBoolDefault(args, "include_tests", true),
		IncludeVendor: getBoolDefault(args, "include_vendor", false),
	}

	_, stats, err := s.ensureIndexed(ctx, path, config, forceReindex)
	if err != nil {
		return toolError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		}), nil
	}

	response := map[string]interface{}{"indexed": true}
	if stats != nil {
		response["files_indexed"] = stats.FilesIndexed
		response["files_skipped"] = stats.FilesSkipped
		response["files_failed"] = stats.FilesFailed
		response["files_removed"] = stats.FilesRemoved
		response["symbols_extracted"] = stats.SymbolsExtracted
		response["chunks_created"] = stats.ChunksCreated
		response["duration_ms"] = stats.Duration.Milliseconds()
		if len(stats.ErrorMessages) > 0 {
			if len(stats.ErrorMessages) > 5 {
				response["errors"] = stats.ErrorMessages[:5]
				response["error_count"] = len(stats.ErrorMessages)
			} else {
				response["errors"] = stats.ErrorMessages
			}
		}
	} else {
		response["already_indexed"] = true
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSemanticSearch handles the semantic_search tool invocation: the
// engine's single core operation (§4.6). It lazily indexes path on first
// call, then runs the hybrid retrieval pipeline.
func (s *Server) handleSemanticSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return toolError(ErrorCodeInvalidParams, "invalid arguments", nil), nil
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return toolError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		}), nil
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return toolError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		}), nil
	}

	if err := validatePath(path); err != nil {
		return toolError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		}), nil
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return toolError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", searcher.MaxLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		}), nil
	}

	filePattern := getStringDefault(args, "file_pattern", "")

	project, _, err := s.ensureIndexed(ctx, path, nil, false)
	if err != nil {
		return toolError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		}), nil
	}

	req := searcher.NewSearchRequest(query, project.ID)
	req.Limit = limit
	req.FilePattern = filePattern

	resp, err := s.searcher.Search(ctx, req)
	if err != nil {
		var opErr *types.OperationalError
		if errors.As(err, &opErr) && opErr.Kind == types.FailureInvalidFilter {
			return toolError(ErrorCodeInvalidFilter, "invalid filter", map[string]interface{}{
				"error": opErr.Error(),
			}), nil
		}
		return toolError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		}), nil
	}

	status, statusErr := s.storage.GetStatus(ctx, project.ID)
	totalChunks := 0
	if statusErr == nil {
		totalChunks = status.ChunksCount
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		entry := map[string]interface{}{
			"score":     r.RelevanceScore,
			"name":      r.Name,
			"node_type": r.NodeType,
			"signature": r.Signature,
			"content":   r.Content,
		}
		if r.File != nil {
			entry["file"] = r.File.Path
			entry["start_line"] = r.File.StartLine
			entry["end_line"] = r.File.EndLine
		}
		results = append(results, entry)
	}

	response := map[string]interface{}{
		"results":       results,
		"total_results": resp.TotalResults,
		"query":         query,
		"index_stats": map[string]interface{}{
			"total_chunks": totalChunks,
			"indexed":      true,
		},
	}
	if resp.FromFallback {
		response["from_fallback"] = true
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation. Unlike
// semantic_search and index_codebase, it never triggers indexing as a
// side effect of a read-only status check.
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return toolError(ErrorCodeInvalidParams, "invalid arguments", nil), nil
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return toolError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		}), nil
	}

	if err := validatePath(path); err != nil {
		return toolError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		}), nil
	}

	project, err := s.storage.GetProject(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		response := map[string]interface{}{
			"indexed": false,
			"path":    path,
			"message": "project not indexed; call index_codebase or semantic_search to index it",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return toolError(ErrorCodeInternalError, "failed to get project status", map[string]interface{}{
			"error": err.Error(),
		}), nil
	}

	status, err := s.storage.GetStatus(ctx, project.ID)
	if err != nil {
		return toolError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		}), nil
	}

	response := map[string]interface{}{
		"indexed": true,
		"project": map[string]interface{}{
			"path":            project.RootPath,
			"module_name":     project.ModuleName,
			"go_version":      project.GoVersion,
			"last_indexed_at": project.LastIndexedAt.Format("2006-01-02T15:04:05Z07:00"),
		},
		"statistics": map[string]interface{}{
			"files_count":      status.FilesCount,
			"symbols_count":    status.SymbolsCount,
			"chunks_count":     status.ChunksCount,
			"embeddings_count": status.EmbeddingsCount,
			"index_size_mb":    fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
			"fts_indexes_built":    status.Health.FTSIndexesBuilt,
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// MCPError is the JSON body carried as the text content of an isError tool
// result. Handlers signal failure by returning a result with IsError set
// and this body as its text (see toolError), returning
// mcp.NewToolResultError(...), nil rather than propagating an error return.
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// toolError builds the isError CallToolResult a handler returns on failure,
// with code/message/data JSON-encoded as its text content so callers can
// parse a stable error shape instead of matching on message text.
func toolError(code int, message string, data interface{}) *mcp.CallToolResult {
	body, err := json.Marshal(MCPError{Code: code, Message: message, Data: data})
	if err != nil {
		return mcp.NewToolResultError(message)
	}
	return mcp.NewToolResultError(string(body))
}

// validatePath checks that path exists, is an absolute directory, and is
// readable. It does not require any particular file extension to be
// present, since the engine indexes several languages.
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a map as indented JSON.
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value.
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value.
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value.
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation errors.

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
