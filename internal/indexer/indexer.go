// Package indexer coordinates the parse -> chunk -> embed -> store pipeline
// for an initial project scan and keeps the index current afterward via a
// live fsnotify watcher.
package indexer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/example/semcode-mcp/internal/chunker"
	"github.com/example/semcode-mcp/internal/chunker/languages"
	"github.com/example/semcode-mcp/internal/embedder"
	"github.com/example/semcode-mcp/internal/parser"
	"github.com/example/semcode-mcp/internal/pathutil"
	"github.com/example/semcode-mcp/internal/storage"
	"github.com/example/semcode-mcp/pkg/types"
)

// DefaultIgnorePatterns are the doublestar globs skipped during a scan and
// by the live watcher, unless Config.IgnorePatterns overrides them.
var DefaultIgnorePatterns = []string{
	"**/node_modules/**", "**/.git/**", "**/dist/**", "**/build/**",
	"**/.next/**", "**/coverage/**", "**/__pycache__/**", "**/venv/**",
	"**/.venv/**", "**/target/**", "**/vendor/**",
	"**/*.min.js", "**/*.bundle.js", "**/*.map",
	"**/go.sum", "**/package-lock.json", "**/yarn.lock", "**/pnpm-lock.yaml",
	"**/.semantic-code/**",
}

// debounceWindow coalesces a burst of fsnotify events for the same path
// (editor save-storms) before the watcher acts on it.
const debounceWindow = time.Second

// Indexer coordinates the indexing pipeline: parse -> chunk -> embed -> store.
type Indexer struct {
	registry *chunker.Registry
	parser   *parser.Parser
	chunker  *chunker.Chunker
	embedder embedder.Embedder
	storage  storage.Storage
	logger   *slog.Logger

	workers int

	pathLocksMu sync.Mutex
	pathLocks   map[string]*sync.Mutex
}

// Config contains configuration for the indexer.
type Config struct {
	Workers        int      // concurrent workers (default: runtime.NumCPU())
	BatchSize      int      // files committed per transaction (default: 20)
	IncludeTests   bool     // whether to index test files (default: true)
	IncludeVendor  bool     // whether to index the vendor directory (default: false)
	IgnorePatterns []string // doublestar globs; defaults to DefaultIgnorePatterns

	// ProgressCh, if non-nil, receives a ProgressEvent per file as
	// IndexProject processes it. Sends are non-blocking; a caller that
	// wants every event must buffer or drain it faster than the worker
	// pool produces them. Never closed by the indexer.
	ProgressCh chan<- ProgressEvent
}

func defaultConfig() *Config {
	return &Config{
		Workers:      runtime.NumCPU(),
		BatchSize:    20,
		IncludeTests: true,
	}
}

// ProgressEvent reports the outcome of a single file during IndexProject,
// replacing a callback with a channel the caller may drain or ignore.
type ProgressEvent struct {
	FilePath string
	Status   ProgressStatus
	Err      error // set when Status is ProgressFailed
}

// ProgressStatus is the outcome recorded in a ProgressEvent.
type ProgressStatus int

const (
	ProgressIndexed ProgressStatus = iota
	ProgressSkipped
	ProgressFailed
)

// emitProgress sends ev on ch without blocking indexing when the channel is
// full or nil; a caller that wants every event should size the channel to
// the file count or drain it continuously.
func emitProgress(ch chan<- ProgressEvent, ev ProgressEvent) {
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
	}
}

// Statistics contains statistics about an indexing operation.
type Statistics struct {
	FilesIndexed     int
	FilesSkipped     int
	FilesFailed      int
	FilesRemoved     int
	SymbolsExtracted int
	ChunksCreated    int
	Duration         time.Duration
	ErrorMessages    []string
}

// New creates an Indexer wired with the multi-language chunker registry and
// the embedder used to vectorize chunks at index time.
func New(store storage.Storage, emb embedder.Embedder) *Indexer {
	registry := chunker.NewRegistry()
	languages.RegisterGo(registry)
	languages.RegisterPython(registry)
	languages.RegisterJavaScript(registry)
	languages.RegisterTypeScript(registry)

	return &Indexer{
		registry:  registry,
		parser:    parser.New(),
		chunker:   chunker.New(registry),
		embedder:  emb,
		storage:   store,
		logger:    slog.Default().With("component", "indexer"),
		workers:   runtime.NumCPU(),
		pathLocks: make(map[string]*sync.Mutex),
	}
}

// IndexProject indexes an entire project rooted at rootPath.
func (idx *Indexer) IndexProject(ctx context.Context, rootPath string, config *Config) (*Statistics, error) {
	if config == nil {
		config = defaultConfig()
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	idx.workers = config.Workers

	startTime := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	project, err := idx.getOrCreateProject(ctx, rootPath)
	if err != nil {
		return nil, fmt.Errorf("get or create project: %w", err)
	}

	previouslyIndexed, err := idx.storage.IndexedFiles(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("load indexed files: %w", err)
	}

	files, err := idx.discoverFiles(rootPath, config)
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}

	for _, f := range files {
		rel, err := pathutil.Normalize(rootPath, f)
		if err != nil {
			continue
		}
		delete(previouslyIndexed, rel)
	}

	if err := idx.indexFiles(ctx, project, files, config, stats); err != nil {
		return nil, fmt.Errorf("index files: %w", err)
	}

	// Whatever remains in previouslyIndexed was removed from disk since the
	// last scan; purge its records.
	for relPath := range previouslyIndexed {
		if err := idx.storage.DeleteFileByPath(ctx, project.ID, relPath); err != nil {
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", relPath, err))
			continue
		}
		stats.FilesRemoved++
	}

	if err := idx.updateProjectStats(ctx, project); err != nil {
		return nil, fmt.Errorf("update project stats: %w", err)
	}

	stats.Duration = time.Since(startTime)
	return stats, nil
}

func (idx *Indexer) getOrCreateProject(ctx context.Context, rootPath string) (*storage.Project, error) {
	project, err := idx.storage.GetProject(ctx, rootPath)
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	project = &storage.Project{
		RootPath:     rootPath,
		IndexVersion: storage.CurrentSchemaVersion,
	}

	if modInfo, err := parseGoMod(filepath.Join(rootPath, "go.mod")); err == nil {
		project.ModuleName = modInfo.Module
		project.GoVersion = modInfo.GoVersion
	}

	if err := idx.storage.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

func (idx *Indexer) ignorePatterns(config *Config) []string {
	if len(config.IgnorePatterns) > 0 {
		return config.IgnorePatterns
	}
	return DefaultIgnorePatterns
}

func matchesIgnore(patterns []string, relPath string) bool {
	slashPath := filepath.ToSlash(relPath)
	base := filepath.Base(relPath)
	for _, p := range patterns {
		if matched, _ := doublestar.Match(p, slashPath); matched {
			return true
		}
		if matched, _ := doublestar.Match(p, base); matched {
			return true
		}
	}
	return false
}

func (idx *Indexer) isIgnoredDir(name string, config *Config) bool {
	if name == "vendor" && !config.IncludeVendor {
		return true
	}
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "node_modules", "dist", "build", "coverage", "__pycache__", "venv", "target":
		return true
	}
	return false
}

func isTestFile(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, "_test.go"):
		return true
	case strings.HasSuffix(base, ".test.ts"), strings.HasSuffix(base, ".test.js"),
		strings.HasSuffix(base, ".spec.ts"), strings.HasSuffix(base, ".spec.js"):
		return true
	case strings.HasSuffix(base, "_test.py"), strings.HasPrefix(base, "test_"):
		return true
	}
	return false
}

// discoverFiles finds every file under rootPath with a registered grammar,
// filtered by the ignore-pattern set and the test/vendor inclusion flags.
func (idx *Indexer) discoverFiles(rootPath string, config *Config) ([]string, error) {
	patterns := idx.ignorePatterns(config)
	var files []string

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		relPath, relErr := filepath.Rel(rootPath, path)
		if relErr != nil {
			return relErr
		}

		if info.IsDir() {
			if relPath == "." {
				return nil
			}
			if idx.isIgnoredDir(info.Name(), config) {
				return filepath.SkipDir
			}
			if matchesIgnore(patterns, relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if !idx.registry.Supported(path) {
			return nil
		}
		if !config.IncludeTests && isTestFile(path) {
			return nil
		}
		if matchesIgnore(patterns, relPath) {
			return nil
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// indexFiles indexes a batch of files concurrently.
func (idx *Indexer) indexFiles(ctx context.Context, project *storage.Project, files []string, config *Config, stats *Statistics) error {
	semaphore := make(chan struct{}, idx.workers)

	var (
		indexedCount int32
		skippedCount int32
		failedCount  int32
		symbolCount  int32
		chunkCount   int32
	)

	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for i := 0; i < len(files); i += batchSize {
		end := i + batchSize
		if end > len(files) {
			end = len(files)
		}
		batch := files[i:end]

		g.Go(func() error {
			return idx.indexBatch(gctx, project, batch, config.ProgressCh, semaphore, &indexedCount, &skippedCount, &failedCount, &symbolCount, &chunkCount, &mu, stats)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	stats.FilesIndexed = int(indexedCount)
	stats.FilesSkipped = int(skippedCount)
	stats.FilesFailed = int(failedCount)
	stats.SymbolsExtracted = int(symbolCount)
	stats.ChunksCreated = int(chunkCount)

	return nil
}

// indexBatch indexes a batch of files within a transaction.
func (idx *Indexer) indexBatch(ctx context.Context, project *storage.Project, files []string, progressCh chan<- ProgressEvent,
	semaphore chan struct{}, indexed, skipped, failed, symbols, chunks *int32,
	mu *sync.Mutex, stats *Statistics) error {

	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, filePath := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case semaphore <- struct{}{}:
		}

		before := atomic.LoadInt32(skipped)
		err := idx.indexFile(ctx, tx, project, filePath, indexed, skipped, failed, symbols, chunks)
		<-semaphore

		if err != nil {
			atomic.AddInt32(failed, 1)
			mu.Lock()
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", filePath, err))
			mu.Unlock()
			emitProgress(progressCh, ProgressEvent{FilePath: filePath, Status: ProgressFailed, Err: err})
			continue
		}

		if atomic.LoadInt32(skipped) > before {
			emitProgress(progressCh, ProgressEvent{FilePath: filePath, Status: ProgressSkipped})
		} else {
			emitProgress(progressCh, ProgressEvent{FilePath: filePath, Status: ProgressIndexed})
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// indexFile indexes a single file: hash, parse (Go only), chunk, embed, store.
func (idx *Indexer) indexFile(ctx context.Context, store storage.Storage, project *storage.Project,
	filePath string, indexed, skipped, failed, symbols, chunks *int32) error {

	relPath, err := pathutil.Normalize(project.RootPath, filePath)
	if err != nil {
		return err
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	content = pathutil.StripBOM(content)

	info, err := os.Stat(filePath)
	if err != nil {
		return err
	}
	hash := sha256.Sum256(content)

	changed, err := idx.checkFileChanged(ctx, store, project.ID, relPath, hash, skipped)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	_, language := idx.registry.Lookup(filePath)

	var parseResult *types.ParseResult
	if language == "go" {
		parseResult, err = idx.parser.ParseFile(filePath)
		if err != nil {
			return err
		}
	}

	file := &storage.File{
		ProjectID:   project.ID,
		FilePath:    relPath,
		Language:    language,
		ContentHash: hash,
		ModTime:     info.ModTime(),
		SizeBytes:   info.Size(),
	}
	if parseResult != nil {
		file.PackageName = parseResult.PackageName
		if len(parseResult.Errors) > 0 {
			errMsg := parseResult.Errors[0].Message
			file.ParseError = &errMsg
		}
	}

	if err := store.UpsertFile(ctx, file); err != nil {
		return err
	}

	symbolCount := 0
	if parseResult != nil {
		for _, imp := range parseResult.Imports {
			impRecord := &storage.Import{FileID: file.ID, ImportPath: imp.Path, Alias: imp.Alias}
			if err := store.UpsertImport(ctx, impRecord); err != nil {
				return fmt.Errorf("store import: %w", err)
			}
		}
		for i := range parseResult.Symbols {
			sym := storage.FromTypesSymbol(parseResult.Symbols[i], file.ID)
			if err := store.UpsertSymbol(ctx, sym); err != nil {
				return fmt.Errorf("store symbol: %w", err)
			}
			symbolCount++
		}
	}

	fileChunks, err := idx.chunker.ChunkFile(project.RootPath, filePath, content, parseResult, file.ID)
	if err != nil {
		return fmt.Errorf("chunk file: %w", err)
	}

	for _, chunk := range fileChunks {
		storageChunk := &storage.Chunk{
			ID:            chunk.ID,
			FileID:        file.ID,
			SymbolID:      chunk.SymbolID,
			FilePath:      chunk.FilePath,
			Language:      chunk.Language,
			Name:          chunk.Name,
			Signature:     chunk.Signature,
			Docstring:     chunk.Docstring,
			Content:       chunk.Content,
			ContentHash:   chunk.ContentHash,
			TokenCount:    chunk.TokenCount,
			StartLine:     chunk.StartLine,
			EndLine:       chunk.EndLine,
			ContextBefore: chunk.ContextBefore,
			ContextAfter:  chunk.ContextAfter,
			ChunkType:     string(chunk.NodeKind),
		}
		if err := store.UpsertChunk(ctx, storageChunk); err != nil {
			return fmt.Errorf("store chunk: %w", err)
		}
	}

	if err := idx.embedChunks(ctx, store, fileChunks); err != nil {
		idx.logger.Warn("embedding failed for file", "path", relPath, "error", err)
	}

	atomic.AddInt32(indexed, 1)
	atomic.AddInt32(symbols, int32(symbolCount))
	atomic.AddInt32(chunks, int32(len(fileChunks)))

	return nil
}

// embedChunks generates and stores embeddings for a file's chunks,
// sub-batching at embedder.DefaultBatchSize rather than sending an entire
// file's chunks through a single call. A whole sub-batch failure is logged
// by the caller and leaves that sub-batch's chunks searchable by keyword
// only; a partial failure (BatchFailure) skips just the offending chunks
// within it.
func (idx *Indexer) embedChunks(ctx context.Context, store storage.Storage, fileChunks []*types.Chunk) error {
	if len(fileChunks) == 0 {
		return nil
	}

	for start := 0; start < len(fileChunks); start += embedder.DefaultBatchSize {
		end := start + embedder.DefaultBatchSize
		if end > len(fileChunks) {
			end = len(fileChunks)
		}
		if err := idx.embedChunkBatch(ctx, store, fileChunks[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Indexer) embedChunkBatch(ctx context.Context, store storage.Storage, batch []*types.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	resp, err := idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
		Texts: texts,
		Task:  embedder.TaskDocument,
	})
	if err != nil {
		return err
	}

	failedIdx := make(map[int]struct{}, len(resp.Failures))
	for _, f := range resp.Failures {
		failedIdx[f.Index] = struct{}{}
	}

	embPos := 0
	for i, chunk := range batch {
		if _, failed := failedIdx[i]; failed {
			continue
		}
		emb := resp.Embeddings[embPos]
		embPos++

		record := &storage.Embedding{
			ChunkID:   chunk.ID,
			Vector:    storage.SerializeVector(emb.Vector),
			Dimension: emb.Dimension,
			Provider:  emb.Provider,
			Model:     emb.Model,
		}
		if err := store.UpsertEmbedding(ctx, record); err != nil {
			return fmt.Errorf("store embedding for %s: %w", chunk.ID, err)
		}
	}
	return nil
}

// checkFileChanged reports whether relPath needs (re)indexing. A changed
// file's prior records are purged via DeleteFileByPath before the caller
// re-ingests it, so the subsequent UpsertFile performs a fresh insert
// rather than an update-in-place.
func (idx *Indexer) checkFileChanged(ctx context.Context, store storage.Storage, projectID int64,
	relPath string, hash [32]byte, skipped *int32) (bool, error) {

	existingFile, err := store.GetFile(ctx, projectID, relPath)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if existingFile.ContentHash == hash {
		atomic.AddInt32(skipped, 1)
		return false, nil
	}

	if err := store.DeleteFileByPath(ctx, projectID, relPath); err != nil {
		return false, fmt.Errorf("delete stale file: %w", err)
	}
	return true, nil
}

func (idx *Indexer) updateProjectStats(ctx context.Context, project *storage.Project) error {
	files, err := idx.storage.ListFiles(ctx, project.ID)
	if err != nil {
		return err
	}

	totalChunks := 0
	for _, file := range files {
		fileChunks, err := idx.storage.ListChunksByFile(ctx, file.ID)
		if err != nil {
			return err
		}
		totalChunks += len(fileChunks)
	}

	project.TotalFiles = len(files)
	project.TotalChunks = totalChunks
	project.LastIndexedAt = time.Now()

	return idx.storage.UpdateProject(ctx, project)
}

// goModInfo contains parsed go.mod information.
type goModInfo struct {
	Module    string
	GoVersion string
}

func parseGoMod(goModPath string) (*goModInfo, error) {
	content, err := os.ReadFile(goModPath)
	if err != nil {
		return nil, err
	}

	info := &goModInfo{}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "module ") {
			info.Module = strings.TrimSpace(strings.TrimPrefix(line, "module"))
		} else if strings.HasPrefix(line, "go ") {
			info.GoVersion = strings.TrimSpace(strings.TrimPrefix(line, "go"))
		}
	}
	return info, nil
}

// Watch subscribes to file-system events under rootPath and keeps the index
// current until ctx is canceled, at which point it drains in-flight work and
// returns. Callers should run IndexProject once before calling Watch so the
// initial scan and the live updates don't race on the same files.
func (idx *Indexer) Watch(ctx context.Context, rootPath string, project *storage.Project, config *Config) error {
	if config == nil {
		config = defaultConfig()
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	idx.workers = config.Workers

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := idx.addDirsRecursive(watcher, rootPath, config); err != nil {
		return fmt.Errorf("watch root: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)

	deb := newDebouncer(debounceWindow)
	defer deb.Stop()

	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		case event, ok := <-watcher.Events:
			if !ok {
				return g.Wait()
			}
			idx.handleWatchEvent(gctx, g, watcher, rootPath, project, config, deb, event)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return g.Wait()
			}
			idx.logger.Error("watcher error", "error", watchErr)
		}
	}
}

// addDirsRecursive registers root and every non-ignored subdirectory with
// watcher, since fsnotify watches are non-recursive.
func (idx *Indexer) addDirsRecursive(watcher *fsnotify.Watcher, root string, config *Config) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && idx.isIgnoredDir(info.Name(), config) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// handleWatchEvent dispatches a single fsnotify event, either adding a newly
// created directory to the watch set or scheduling a debounced reconcile of
// the affected file.
func (idx *Indexer) handleWatchEvent(ctx context.Context, g *errgroup.Group, watcher *fsnotify.Watcher,
	rootPath string, project *storage.Project, config *Config, deb *debouncer, event fsnotify.Event) {

	if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			if err := idx.addDirsRecursive(watcher, event.Name, config); err != nil {
				idx.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
		}
		return
	}

	if !idx.registry.Supported(event.Name) {
		return
	}
	if matchesIgnore(idx.ignorePatterns(config), event.Name) {
		return
	}
	if !config.IncludeTests && isTestFile(event.Name) {
		return
	}

	path := event.Name
	deb.Schedule(path, func() {
		g.Go(func() error {
			if err := idx.reconcilePath(ctx, project, rootPath, path); err != nil {
				idx.logger.Error("reconcile failed", "path", path, "error", err)
			}
			return nil
		})
	})
}

// reconcilePath re-syncs a single path against the store: deletes its
// records if the file no longer exists on disk, otherwise re-ingests it if
// its content changed. Writes to the same path are serialized by a keyed
// mutex so a delete-then-reinsert can't race with an older hash.
func (idx *Indexer) reconcilePath(ctx context.Context, project *storage.Project, rootPath, absPath string) error {
	lock := idx.lockFor(absPath)
	lock.Lock()
	defer lock.Unlock()

	relPath, err := pathutil.Normalize(rootPath, absPath)
	if err != nil {
		return nil
	}

	if _, statErr := os.Stat(absPath); errors.Is(statErr, os.ErrNotExist) {
		if _, getErr := idx.storage.GetFile(ctx, project.ID, relPath); errors.Is(getErr, storage.ErrNotFound) {
			return nil
		}
		return idx.storage.DeleteFileByPath(ctx, project.ID, relPath)
	}

	var indexedCount, skippedCount, failedCount, symbolCount, chunkCount int32
	return idx.indexFile(ctx, idx.storage, project, absPath, &indexedCount, &skippedCount, &failedCount, &symbolCount, &chunkCount)
}

func (idx *Indexer) lockFor(path string) *sync.Mutex {
	idx.pathLocksMu.Lock()
	defer idx.pathLocksMu.Unlock()
	l, ok := idx.pathLocks[path]
	if !ok {
		l = &sync.Mutex{}
		idx.pathLocks[path] = l
	}
	return l
}

// debouncer coalesces repeated Schedule calls for the same key within
// window into a single deferred invocation.
type debouncer struct {
	mu     sync.Mutex
	window time.Duration
	timers map[string]*time.Timer
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{window: window, timers: make(map[string]*time.Timer)}
}

func (d *debouncer) Schedule(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.timers[key] = time.AfterFunc(d.window, fn)
}

func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.timers {
		t.Stop()
	}
}
