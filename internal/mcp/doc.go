// Package mcp implements the Model Context Protocol (MCP) server exposing
// the semantic code search engine to AI coding assistants.
//
// Three tools are registered:
//   - index_codebase: explicit trigger for an initial or forced scan
//   - semantic_search: the engine's single core operation — natural-language
//     query in, ranked code regions out. Lazily indexes its target path on
//     first call if it hasn't been indexed yet.
//   - get_status: indexing status and statistics for a project root
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server communicates with MCP clients via standard input/output.
//
// # Tool: semantic_search
//
//	Request:
//	{
//	  "name": "semantic_search",
//	  "arguments": {
//	    "path": "/path/to/project",
//	    "query": "user authentication logic",
//	    "limit": 10,
//	    "file_pattern": "*.go"
//	  }
//	}
//
//	Response:
//	{
//	  "results": [
//	    {
//	      "file": "internal/auth/service.go",
//	      "start_line": 45,
//	      "end_line": 72,
//	      "name": "AuthenticateUser",
//	      "node_type": "function",
//	      "score": 0.92,
//	      "content": "func AuthenticateUser(...) { ... }",
//	      "signature": "func AuthenticateUser(ctx context.Context, token string) error"
//	    }
//	  ],
//	  "total_results": 1,
//	  "query": "user authentication logic",
//	  "index_stats": {"total_chunks": 8432, "indexed": true}
//	}
//
// # Tool: index_codebase
//
//	Request:
//	{
//	  "name": "index_codebase",
//	  "arguments": {
//	    "path": "/path/to/project",
//	    "force_reindex": false,
//	    "include_tests": true,
//	    "include_vendor": false
//	  }
//	}
//
// # Tool: get_status
//
//	Request:
//	{
//	  "name": "get_status",
//	  "arguments": {"path": "/path/to/project"}
//	}
//
//	Response:
//	{
//	  "indexed": true,
//	  "project": {"path": "/path/to/project", "module_name": "example.com/m"},
//	  "health": {"database_accessible": true, "embeddings_available": true}
//	}
//
// # Lazy indexing and the live watcher
//
// A project root is scanned at most once per server lifetime: the first
// semantic_search or index_codebase call against a new path runs the
// initial scan, then starts an fsnotify watcher that keeps the index
// current in the background (see internal/indexer's Watch). Later calls
// against the same root skip the scan entirely.
//
// # Error Handling
//
// Handlers never return a Go error for a request-level failure. They report
// it as a tool result with IsError set (mcp.NewToolResultError), whose text
// content is an MCPError JSON body carrying a JSON-RPC-style code:
//
//	{"code": -32004, "message": "query parameter is required and cannot be empty", "data": {...}}
//
//	-32602: Invalid params (missing/invalid arguments)
//	-32603: Internal error (database, filesystem, etc.)
//	-32001: Project not found
//	-32003: Project not indexed
//	-32004: Empty query
//	-32005: Filter rejected by the safety layer (invalid path/file_pattern)
//
// A Go error return from a handler is reserved for transport-level failures
// mcp-go itself needs to surface, which none of the three tools currently do.
//
// # Logging
//
// The MCP server logs to stderr (stdout is reserved for MCP protocol)
// via log/slog, matching the rest of the engine's logging.
package mcp
