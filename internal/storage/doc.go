// Package storage provides SQLite-based persistence for indexed code data.
//
// The storage layer manages:
//   - Project metadata
//   - File information and content hashes
//   - Extracted symbols
//   - Code chunks
//   - Vector embeddings
//   - Full-text search indexes
//
// # Database Schema
//
// Tables:
//   - projects: Project metadata (root path, module name)
//   - files: File paths and SHA-256 hashes
//   - symbols: Extracted symbols (functions, types, etc.)
//   - chunks: Semantic code chunks
//   - embeddings: Vector embeddings for chunks
//   - chunks_fts: FTS5 full-text search index
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("/path/to/project.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	// Store a file (UpsertFile fills in file.ID)
//	file := &storage.File{
//	    ProjectID:   projectID,
//	    FilePath:    "internal/parser/parser.go",
//	    PackageName: "parser",
//	    ContentHash: hash,
//	}
//	err = db.UpsertFile(ctx, file)
//
// # Transactions
//
// Use transactions for atomic operations:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	// Multiple operations in transaction (Tx embeds Storage)
//	_ = tx.UpsertFile(ctx, file)
//	_ = tx.UpsertSymbol(ctx, symbol)
//	_ = tx.UpsertChunk(ctx, chunk)
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// # Incremental Updates
//
// Check file hashes to detect changes:
//
//	stored, err := db.GetFile(ctx, projectID, filePath)
//	currentHash := sha256.Sum256(content)
//
//	if err == nil && stored.ContentHash == currentHash {
//	    // File unchanged, skip re-indexing
//	    return nil
//	}
//
//	// File changed, delete old data (symbols, chunks and embeddings cascade)
//	db.DeleteFileByPath(ctx, projectID, filePath)
//
//	// Re-index file
//	// ...
//
// # Vector Operations
//
// Store and query vector embeddings:
//
//	// Store embedding
//	err := db.UpsertEmbedding(ctx, &storage.Embedding{
//	    ChunkID:   chunkID,
//	    Vector:    storage.SerializeVector(vec),
//	    Dimension: len(vec),
//	})
//
//	// Vector similarity search (an empty predicate applies no filter)
//	results, err := db.SearchVector(ctx, projectID, queryVector, limit, "", nil)
//	for _, result := range results {
//	    fmt.Printf("Chunk %s: similarity %.3f\n",
//	        result.ChunkID, result.SimilarityScore)
//	}
//
// Vector search uses cosine similarity via sqlite-vec extension (CGO build)
// or pure Go implementation (purego build).
//
// # Full-Text Search
//
// Query using BM25 ranking:
//
//	results, err := db.SearchText(ctx, projectID, "user authentication", limit, "", nil)
//	for _, result := range results {
//	    fmt.Printf("Chunk %s: score %.3f\n",
//	        result.ChunkID, result.BM25Score)
//	}
//
// FTS5 indexes are automatically updated when chunks are inserted.
//
// # Query Patterns
//
// Common query patterns:
//
//	// Get project by path
//	project, err := db.GetProject(ctx, "/path/to/project")
//
//	// Get all files in project
//	files, err := db.ListFiles(ctx, projectID)
//
//	// Get symbols for file
//	symbols, err := db.ListSymbolsByFile(ctx, fileID)
//
//	// Get chunks for file
//	chunks, err := db.ListChunksByFile(ctx, fileID)
//
//	// Search with filters: a predicate built by internal/filter is passed
//	// with its arguments to SearchVector or SearchText
//	results, err := db.SearchText(ctx, projectID, "validation", 10, predicate, args)
//
// # Build Tags
//
// The storage package supports two build configurations:
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Includes sqlite-vec extension for fast vector operations
//
//   - Requires C compiler
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (whenever the sqlite_vec tag is absent, or with the purego tag):
//
//   - Uses modernc.org/sqlite driver
//
//   - Pure Go vector operations (slower)
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build -tags "purego"
//
// # Performance
//
// Typical operations:
//   - Store file: <1ms
//   - Store symbols (batch): <5ms for 100 symbols
//   - Store chunks (batch): <10ms for 100 chunks
//   - Store embeddings (batch): <20ms for 100 embeddings
//   - Vector search (1k chunks): <100ms
//   - Keyword search (1k chunks): <50ms
//
// Database size: ~10-20% of codebase size.
//
// # Example: Complete Workflow
//
//	// Open database
//	db, err := storage.NewSQLiteStorage("project.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	// Create project (CreateProject fills in project.ID)
//	project := &storage.Project{
//	    RootPath:   "/Users/dev/myproject",
//	    ModuleName: "github.com/dev/myproject",
//	    GoVersion:  "1.21",
//	}
//	_ = db.CreateProject(ctx, project)
//
//	// Begin transaction
//	tx, _ := db.BeginTx(ctx)
//	defer tx.Rollback()
//
//	// Store file
//	file := &storage.File{
//	    ProjectID:   project.ID,
//	    FilePath:    "main.go",
//	    PackageName: "main",
//	    ContentHash: hash,
//	}
//	_ = tx.UpsertFile(ctx, file)
//
//	// Store symbols
//	for _, sym := range symbols {
//	    sym.FileID = file.ID
//	    _ = tx.UpsertSymbol(ctx, sym)
//	}
//
//	// Store chunks (string IDs from internal/pathutil) and their embeddings
//	for i, chunk := range chunks {
//	    chunk.FileID = file.ID
//	    _ = tx.UpsertChunk(ctx, chunk)
//	    _ = tx.UpsertEmbedding(ctx, &storage.Embedding{
//	        ChunkID:   chunk.ID,
//	        Vector:    storage.SerializeVector(vectors[i]),
//	        Dimension: len(vectors[i]),
//	    })
//	}
//
//	// Commit transaction
//	if err := tx.Commit(); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Query: vector and full-text results are combined by internal/searcher
//	vecResults, _ := db.SearchVector(ctx, project.ID, queryEmbedding, 10, "", nil)
//	textResults, _ := db.SearchText(ctx, project.ID, "authentication", 10, "", nil)
package storage
