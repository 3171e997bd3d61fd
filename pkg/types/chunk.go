package types

import (
	"crypto/sha256"
	"errors"
)

// ChunkType classifies the semantic category a Chunk was extracted as.
type ChunkType string

const (
	ChunkFunction     ChunkType = "function"
	ChunkMethod       ChunkType = "method"
	ChunkClass        ChunkType = "class"
	ChunkStruct       ChunkType = "struct"
	ChunkInterface    ChunkType = "interface"
	ChunkTypeAlias    ChunkType = "type"
	ChunkTopLevelDecl ChunkType = "decl"
	ChunkFallback     ChunkType = "fallback_chunk"
)

// Chunk is a contiguous, semantically meaningful source region produced by
// the chunker: the unit that gets embedded and later returned from search.
type Chunk struct {
	// ID is derived deterministically from the normalized file path and the
	// start line (plus a part suffix for split chunks); see internal/pathutil.
	ID       string
	FileID   int64
	SymbolID *int64 // set only when a matching pkg/types.Symbol exists (Go)

	FilePath string
	Language string
	NodeKind ChunkType

	Name      string // optional: empty for fallback chunks
	Signature string // optional: node text up to the body-opening delimiter
	Docstring string // optional: leading comment/docstring run

	Content       string
	ContentHash   [32]byte // hash of the originating file's full content
	TokenCount    int
	ContextBefore string
	ContextAfter  string

	StartLine int // 1-indexed, inclusive
	EndLine   int // 1-indexed, inclusive
}

// ValidateContent checks the chunk's content and line invariants.
func (c *Chunk) ValidateContent() error {
	if c.Content == "" {
		return errors.New("chunk content cannot be empty")
	}
	if c.StartLine <= 0 || c.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}
	if c.StartLine > c.EndLine {
		return errors.New("start line must be before or equal to end line")
	}
	return nil
}

// ComputeTokenCount estimates the chunk's token count (characters / 4).
func (c *Chunk) ComputeTokenCount() int {
	totalChars := len(c.Content) + len(c.ContextBefore) + len(c.ContextAfter)
	c.TokenCount = totalChars / 4
	return c.TokenCount
}

// ComputeContentHash records the hash of the file the chunk was cut from,
// used as the change-detection token during incremental indexing.
func (c *Chunk) ComputeContentHash(fileContent []byte) {
	c.ContentHash = sha256.Sum256(fileContent)
}

// ValidateNodeKind checks that NodeKind is one of the known categories.
func (c *Chunk) ValidateNodeKind() error {
	switch c.NodeKind {
	case ChunkFunction, ChunkMethod, ChunkClass, ChunkStruct, ChunkInterface,
		ChunkTypeAlias, ChunkTopLevelDecl, ChunkFallback:
		return nil
	default:
		return errors.New("invalid chunk node kind")
	}
}

// Validate performs comprehensive validation of the chunk.
func (c *Chunk) Validate() error {
	if err := c.ValidateContent(); err != nil {
		return err
	}
	if err := c.ValidateNodeKind(); err != nil {
		return err
	}
	if c.ID == "" {
		return errors.New("chunk id is required")
	}
	if c.FilePath == "" {
		return errors.New("file path is required")
	}
	return nil
}

// FullContent returns the complete content including surrounding context.
func (c *Chunk) FullContent() string {
	result := ""
	if c.ContextBefore != "" {
		result += c.ContextBefore + "\n\n"
	}
	result += c.Content
	if c.ContextAfter != "" {
		result += "\n\n" + c.ContextAfter
	}
	return result
}
