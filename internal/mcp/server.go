package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"github.com/example/semcode-mcp/internal/embedder"
	"github.com/example/semcode-mcp/internal/indexer"
	"github.com/example/semcode-mcp/internal/reranker"
	"github.com/example/semcode-mcp/internal/searcher"
	"github.com/example/semcode-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name.
	ServerName = "semcode-mcp"
	// ServerVersion is the current server version.
	ServerVersion = "1.0.0"
	// DefaultDBPath is the default location for the persisted index.
	DefaultDBPath = "~/.semantic-code/index"
)

// Server wraps the MCP server with application dependencies.
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	logger   *slog.Logger

	watchCtx    context.Context
	watchCancel context.CancelFunc
	watchWG     sync.WaitGroup

	rootsMu sync.Mutex
	roots   map[string]*rootState
}

// rootState tracks the lazy-indexing and watcher lifecycle for a single
// project root. The engine indexes each root at most once per server
// lifetime (§4.8's lazy initialization); the fsnotify watcher started
// after that first scan keeps it current so later searches never re-scan.
type rootState struct {
	mu           sync.Mutex
	project      *storage.Project
	indexed      bool
	watchStarted bool
}

// NewServer creates a new MCP server instance backed by a SQLite index at
// dbPath (or DefaultDBPath, expanded under the user's home directory, when
// empty).
func NewServer(dbPath string) (*Server, error) {
	if dbPath == "" || dbPath == DefaultDBPath {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".semantic-code", "index")
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	dbFile := filepath.Join(dbPath, "semcode.db")

	store, err := storage.NewSQLiteStorage(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	// The cross-encoder is optional: no API key means rerank falls back to
	// the lexical-boost-only ordering, never a fatal condition.
	var rr reranker.Reranker
	if ce, ceErr := reranker.NewCrossEncoderReranker(""); ceErr == nil {
		rr = ce
	}

	idx := indexer.New(store, emb)
	srch := searcher.NewSearcher(store, emb, rr)

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	watchCtx, watchCancel := context.WithCancel(context.Background())

	s := &Server{
		mcp:         mcpServer,
		storage:     store,
		indexer:     idx,
		searcher:    srch,
		logger:      slog.Default().With("component", "mcp"),
		watchCtx:    watchCtx,
		watchCancel: watchCancel,
		roots:       make(map[string]*rootState),
	}

	if err := s.registerTools(); err != nil {
		watchCancel()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown. Graceful
// shutdown stops accepting new watcher events and awaits in-flight per-file
// tasks before closing the store (§4.8).
func (s *Server) Serve(ctx context.Context) error {
	defer s.shutdown()
	return server.ServeStdio(s.mcp)
}

func (s *Server) shutdown() {
	s.watchCancel()
	s.watchWG.Wait()
	_ = s.storage.Close()
}

// registerTools registers all MCP tools.
func (s *Server) registerTools() error {
	s.mcp.AddTool(indexCodebaseTool(), s.handleIndexCodebase)
	s.mcp.AddTool(semanticSearchTool(), s.handleSemanticSearch)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	return nil
}

// stateFor returns the shared rootState for an already-normalized absolute
// root path, creating it on first use.
func (s *Server) stateFor(root string) *rootState {
	s.rootsMu.Lock()
	defer s.rootsMu.Unlock()
	st, ok := s.roots[root]
	if !ok {
		st = &rootState{}
		s.roots[root] = st
	}
	return st
}

// ensureIndexed lazily runs the initial scan for root exactly once per
// server lifetime (unless force is set), then starts the live file watcher
// so subsequent calls never re-scan (§4.8). Config.ProgressCh, if set by
// the caller, is threaded through to the underlying IndexProject call.
func (s *Server) ensureIndexed(ctx context.Context, root string, cfg *indexer.Config, force bool) (*storage.Project, *indexer.Statistics, error) {
	st := s.stateFor(root)
	st.mu.Lock()
	defer st.mu.Unlock()

	var stats *indexer.Statistics
	if force || !st.indexed {
		if cfg == nil {
			cfg = &indexer.Config{}
		}
		result, err := s.indexer.IndexProject(ctx, root, cfg)
		if err != nil {
			return nil, nil, err
		}
		stats = result
		st.indexed = true
	}

	project, err := s.storage.GetProject(ctx, root)
	if err != nil {
		return nil, stats, fmt.Errorf("load project after indexing: %w", err)
	}
	st.project = project

	if !st.watchStarted {
		st.watchStarted = true
		s.startWatcher(root, project)
	}

	return project, stats, nil
}

// startWatcher launches the fsnotify-backed live updater for root in the
// background; it runs until the server shuts down.
func (s *Server) startWatcher(root string, project *storage.Project) {
	s.watchWG.Add(1)
	go func() {
		defer s.watchWG.Done()
		if err := s.indexer.Watch(s.watchCtx, root, project, &indexer.Config{}); err != nil && s.watchCtx.Err() == nil {
			s.logger.Error("file watcher stopped unexpectedly", "root", root, "error", err)
		}
	}()
}
