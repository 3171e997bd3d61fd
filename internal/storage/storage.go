package storage

import (
	"context"
	"time"

	"github.com/example/semcode-mcp/pkg/types"
)

// Storage defines the interface for persisting and querying indexed code data.
type Storage interface {
	// Project operations
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, rootPath string) (*Project, error)
	UpdateProject(ctx context.Context, project *Project) error

	// File operations
	UpsertFile(ctx context.Context, file *File) error
	GetFile(ctx context.Context, projectID int64, filePath string) (*File, error)
	GetFileByID(ctx context.Context, fileID int64) (*File, error)
	GetFileByHash(ctx context.Context, contentHash [32]byte) (*File, error)
	DeleteFile(ctx context.Context, fileID int64) error
	DeleteFileByPath(ctx context.Context, projectID int64, filePath string) error
	ListFiles(ctx context.Context, projectID int64) ([]*File, error)
	// IndexedFiles returns filePath -> contentHash (hex) for every tracked
	// file in the project, letting the indexer diff against a directory
	// walk without a per-file round trip.
	IndexedFiles(ctx context.Context, projectID int64) (map[string]string, error)

	// Symbol operations
	UpsertSymbol(ctx context.Context, symbol *Symbol) error
	GetSymbol(ctx context.Context, symbolID int64) (*Symbol, error)
	ListSymbolsByFile(ctx context.Context, fileID int64) ([]*Symbol, error)
	DeleteSymbolsByFile(ctx context.Context, fileID int64) error
	SearchSymbols(ctx context.Context, query string, limit int) ([]*Symbol, error)

	// Chunk operations. Chunk IDs are the deterministic, path-derived string
	// ids computed by internal/pathutil, not database surrogate keys.
	UpsertChunk(ctx context.Context, chunk *Chunk) error
	GetChunk(ctx context.Context, chunkID string) (*Chunk, error)
	ListChunksByFile(ctx context.Context, fileID int64) ([]*Chunk, error)
	DeleteChunk(ctx context.Context, chunkID string) error
	DeleteChunksBatch(ctx context.Context, chunkIDs []string) (deletedCount int, err error)
	DeleteChunksByFile(ctx context.Context, fileID int64) error

	// Embedding operations
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
	GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error)
	DeleteEmbedding(ctx context.Context, chunkID string) error

	// Search operations. predicate is a sanitized SQL boolean expression
	// produced by internal/filter.Build, spliced verbatim into the WHERE
	// clause; predicateArgs are bound to its "?" placeholders in order.
	SearchVector(ctx context.Context, projectID int64, vector []float32, limit int, predicate string, predicateArgs []interface{}) ([]VectorResult, error)
	SearchText(ctx context.Context, projectID int64, query string, limit int, predicate string, predicateArgs []interface{}) ([]TextResult, error)

	// Import operations
	UpsertImport(ctx context.Context, imp *Import) error
	ListImportsByFile(ctx context.Context, fileID int64) ([]*Import, error)
	DeleteImportsByFile(ctx context.Context, fileID int64) error

	// Status operations
	GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error)
	// CountChunks reports how many chunks are indexed for projectID, the
	// cheap existence check the retrieval pipeline uses to short-circuit a
	// search against an empty index.
	CountChunks(ctx context.Context, projectID int64) (int, error)

	// Database operations

	// Close drains in-flight operations before releasing the underlying
	// connection; operations started after Close is called fail with
	// ErrStoreClosed rather than racing the close.
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction.
type Tx interface {
	Commit() error
	Rollback() error
	Storage
}

// Project represents an indexed codebase.
type Project struct {
	ID            int64
	RootPath      string
	ModuleName    string
	GoVersion     string
	TotalFiles    int
	TotalChunks   int
	IndexVersion  string
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// File represents a tracked source file.
type File struct {
	ID            int64
	ProjectID     int64
	FilePath      string // relative to project root
	Language      string // "" when no grammar recognized the extension
	PackageName   string // Go package name; empty for other languages
	ContentHash   [32]byte
	ModTime       time.Time
	SizeBytes     int64
	ParseError    *string // nullable
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Symbol represents a code symbol from Go AST parsing. Non-Go chunks have no
// associated Symbol row.
type Symbol struct {
	ID          int64
	FileID      int64
	Name        string
	Kind        string
	PackageName string
	Signature   string
	DocComment  string
	Scope       string
	Receiver    string
	StartLine   int
	StartCol    int
	EndLine     int
	EndCol      int
	CreatedAt   time.Time
}

// Chunk represents a code section for embedding.
type Chunk struct {
	ID            string // deterministic, path-derived id (see internal/pathutil)
	FileID        int64
	SymbolID      *int64 // nullable
	FilePath      string
	Language      string
	Name          string
	Signature     string
	Docstring     string
	Content       string
	ContentHash   [32]byte
	TokenCount    int
	StartLine     int
	EndLine       int
	ContextBefore string
	ContextAfter  string
	ChunkType     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Embedding represents a vector embedding for a chunk.
type Embedding struct {
	ID        int64
	ChunkID   string
	Vector    []byte // serialized float32 array
	Dimension int
	Provider  string
	Model     string
	CreatedAt time.Time
}

// Import represents an import statement in a Go file.
type Import struct {
	ID         int64
	FileID     int64
	ImportPath string
	Alias      string
	CreatedAt  time.Time
}

// SearchFilters is retained for callers that want to build predicates from
// structured criteria before handing them to internal/filter; the storage
// layer itself only ever sees the resulting predicate string.
type SearchFilters struct {
	SymbolTypes  []string
	FilePattern  string
	Languages    []string
	MinRelevance float64
}

// VectorResult represents a result from vector similarity search.
type VectorResult struct {
	ChunkID         string
	SimilarityScore float64
}

// TextResult represents a result from full-text search.
type TextResult struct {
	ChunkID   string
	BM25Score float64
}

// ProjectStatus contains statistics about an indexed project.
type ProjectStatus struct {
	Project         *Project
	FilesCount      int
	SymbolsCount    int
	ChunksCount     int
	EmbeddingsCount int
	IndexSizeMB     float64
	LastIndexedAt   time.Time
	IndexDuration   time.Duration
	Health          HealthStatus
}

// HealthStatus represents the health of the index.
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	FTSIndexesBuilt     bool
}

// ToTypesSymbol converts a storage Symbol to a types.Symbol.
func (s *Symbol) ToTypesSymbol() types.Symbol {
	return types.Symbol{
		Name:       s.Name,
		Kind:       types.SymbolKind(s.Kind),
		Package:    s.PackageName,
		Signature:  s.Signature,
		DocComment: s.DocComment,
		Scope:      types.SymbolScope(s.Scope),
		Receiver:   s.Receiver,
		Start: types.Position{
			Line:   s.StartLine,
			Column: s.StartCol,
		},
		End: types.Position{
			Line:   s.EndLine,
			Column: s.EndCol,
		},
	}
}

// FromTypesSymbol converts a types.Symbol to a storage Symbol.
func FromTypesSymbol(s types.Symbol, fileID int64) *Symbol {
	return &Symbol{
		FileID:      fileID,
		Name:        s.Name,
		Kind:        string(s.Kind),
		PackageName: s.Package,
		Signature:   s.Signature,
		DocComment:  s.DocComment,
		Scope:       string(s.Scope),
		Receiver:    s.Receiver,
		StartLine:   s.Start.Line,
		StartCol:    s.Start.Column,
		EndLine:     s.End.Line,
		EndCol:      s.End.Column,
	}
}

// FromTypesChunk converts a types.Chunk (chunker output) to a storage Chunk.
func FromTypesChunk(c *types.Chunk, symbolID *int64) *Chunk {
	return &Chunk{
		ID:          c.ID,
		FileID:      c.FileID,
		SymbolID:    symbolID,
		FilePath:    c.FilePath,
		Language:    c.Language,
		Name:        c.Name,
		Signature:   c.Signature,
		Docstring:   c.Docstring,
		Content:     c.Content,
		ContentHash: c.ContentHash,
		TokenCount:  c.TokenCount,
		StartLine:   c.StartLine,
		EndLine:     c.EndLine,
		ChunkType:   string(c.NodeKind),
	}
}
