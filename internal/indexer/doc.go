// Package indexer coordinates the end-to-end indexing pipeline for source
// trees in every language with a registered grammar (Go, Python, JavaScript,
// TypeScript).
//
// The indexer orchestrates parsing, chunking, embedding, and storage operations,
// managing concurrency and error handling for production-scale code indexing.
//
// # Basic Usage
//
//	idx := indexer.New(store, emb)
//
//	stats, err := idx.IndexProject(ctx, "/path/to/project", &indexer.Config{
//	    IncludeTests: true,
//	})
//
//	fmt.Printf("Indexed %d files in %v\n", stats.FilesIndexed, stats.Duration)
//
// # Indexing Pipeline
//
// The indexer executes a multi-stage pipeline:
//
//  1. Project Discovery: Find all files with a registered grammar, apply exclusion filters
//  2. Incremental Decision: Compare file hashes, skip unchanged files
//  3. Parse & Chunk: Extract symbols and create semantic chunks (parallel)
//  4. Embed: Generate vector embeddings in batches
//  5. Store: Persist to SQLite database in transactions
//
// # Incremental Indexing
//
// By default, the indexer only processes changed files:
//
//	// First index: processes all files
//	stats1, _ := idx.IndexProject(ctx, rootPath, config)
//	// Files: 247 indexed, 0 skipped
//
//	// Subsequent index: only changed files
//	stats2, _ := idx.IndexProject(ctx, rootPath, config)
//	// Files: 3 indexed, 244 skipped
//
// File change detection uses SHA-256 content hashing:
//
//	currentHash := sha256.Sum256(fileContent)
//	stored, err := store.GetFile(ctx, projectID, relPath)
//	if err == nil && stored.ContentHash == currentHash {
//	    skip(file) // unchanged
//	}
//
// Config has no force option: a file is re-indexed only when its content
// hash differs from the stored one.
//
// # Concurrent Processing
//
// The indexer uses a worker pool for parallel file processing:
//
//	workers := runtime.NumCPU()
//	semaphore := make(chan struct{}, workers)
//
//	for _, file := range files {
//	    semaphore <- struct{}{} // acquire
//	    go func(f string) {
//	        defer func() { <-semaphore }() // release
//	        processFile(f)
//	    }(file)
//	}
//
// Default: NumCPU() workers (typically 4-16 on modern machines).
//
// # Embedding Batching
//
// Chunks are collected and embedded in batches for efficiency:
//
//	batchSize := embedder.DefaultBatchSize // 32
//	for i := 0; i < len(chunks); i += batchSize {
//	    batch := chunks[i:min(i+batchSize, len(chunks))]
//	    embeddings, _ := embedder.GenerateBatch(ctx, batch)
//	}
//
// This sends one API call per 32 chunks instead of one per chunk.
//
// # Error Handling
//
// The indexer handles errors gracefully:
//
//	stats, err := idx.IndexProject(ctx, rootPath, config)
//	// err only returned for fatal errors (e.g., storage failure)
//
//	// Check partial failures
//	if stats.FilesFailed > 0 {
//	    for _, msg := range stats.ErrorMessages {
//	        log.Printf("index error: %s", msg)
//	    }
//	}
//
// Parse errors are non-fatal:
//   - Syntax errors: Continue with partial results
//   - Read errors: Skip file, log error
//   - Embedding errors: Skip chunks, continue indexing
//
// # Progress Tracking
//
// Config.ProgressCh, if set, receives a ProgressEvent per file as
// IndexProject processes it; sends are non-blocking so a slow consumer
// drops events rather than stalling the indexing workers:
//
//	progressCh := make(chan indexer.ProgressEvent, 100)
//	config := &indexer.Config{ProgressCh: progressCh}
//	go func() {
//	    for ev := range progressCh {
//	        log.Printf("%s: %v", ev.FilePath, ev.Status)
//	    }
//	}()
//	stats, err := idx.IndexProject(ctx, rootPath, config)
//	close(progressCh)
//
// # Performance
//
// Target performance (100k LOC codebase, M1 Mac):
//   - First index: <5 minutes
//   - Incremental update (10 files): <30 seconds
//   - Memory usage: <500MB peak
//
// Bottleneck: Embedding API calls (network latency).
//
// # Example: Complete Workflow
//
//	// Setup (New builds its own parser, chunker and grammar registry)
//	store, err := storage.NewSQLiteStorage("/path/to/project.db")
//	emb, err := embedder.NewFromEnv()
//	idx := indexer.New(store, emb)
//
//	// Index with options
//	stats, err := idx.IndexProject(ctx, "/Users/dev/myproject", &indexer.Config{
//	    IncludeTests:  true,
//	    IncludeVendor: false,
//	    Workers:       8,
//	    BatchSize:     20,
//	})
//
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf(`
//	Indexing complete:
//	  Files indexed: %d
//	  Files skipped: %d
//	  Files failed:  %d
//	  Symbols extracted: %d
//	  Chunks created: %d
//	  Duration: %v
//	`, stats.FilesIndexed, stats.FilesSkipped, stats.FilesFailed,
//	   stats.SymbolsExtracted, stats.ChunksCreated, stats.Duration)
package indexer
