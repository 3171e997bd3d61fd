// Package chunker cuts source files into semantically meaningful chunks
// along AST node boundaries, using tree-sitter grammars registered per
// language. Files without a registered grammar fall back to fixed windows.
package chunker

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/example/semcode-mcp/internal/pathutil"
	"github.com/example/semcode-mcp/pkg/types"
)

const (
	// targetChunkChars is the size above which a single AST node (or, for the
	// fallback path, the whole file) is split into overlapping windows rather
	// than kept as one chunk.
	targetChunkChars = 1500
	// overlapRatio is the fraction of a window's lines that the next window
	// repeats, applied on both split paths.
	overlapRatio = 0.15

	// minChunkChars and minChunkLines are the floor below which a chunk is
	// discarded rather than indexed.
	minChunkChars = 50
	minChunkLines = 2
)

// Chunker extracts chunks from source files using the registered grammars.
type Chunker struct {
	registry *Registry
}

// New creates a Chunker backed by r.
func New(r *Registry) *Chunker {
	return &Chunker{registry: r}
}

// ChunkFile parses content (the full bytes of filePath, rooted at root) and
// returns its chunks. parseResult, when non-nil, supplies Go-specific
// signatures and doc comments that the generic grammar pass cannot recover;
// pass nil for non-Go files.
func (c *Chunker) ChunkFile(root, filePath string, content []byte, parseResult *types.ParseResult, fileID int64) ([]*types.Chunk, error) {
	content = pathutil.StripBOM(content)
	relPath, err := pathutil.Normalize(root, filePath)
	if err != nil {
		return nil, fmt.Errorf("normalize path: %w", err)
	}
	hash := sha256.Sum256(content)

	spec, lang := c.registry.Lookup(filePath)
	if spec == nil {
		return c.fallbackChunks(relPath, content, hash, fileID), nil
	}

	captures, err := c.parseCaptures(spec, filePath, content)
	if err != nil {
		return nil, err
	}
	if len(captures) == 0 {
		return c.fallbackChunks(relPath, content, hash, fileID), nil
	}

	lines := strings.Split(string(content), "\n")
	var chunks []*types.Chunk
	for _, cap := range captures {
		text := joinLines(lines, cap.startLine, cap.endLine)
		nodeKind := classify(cap.kind)

		if len(text) <= targetChunkChars {
			chunk := c.buildChunk(relPath, lang, nodeKind, cap.name, text, cap.startLine, cap.endLine, hash, fileID, 0)
			c.enrichFromParse(chunk, parseResult)
			if meetsFloor(chunk) {
				chunks = append(chunks, chunk)
			}
			continue
		}

		for i, win := range splitOversized(text, cap.startLine) {
			chunk := c.buildChunk(relPath, lang, nodeKind, cap.name, win.content, win.startLine, win.endLine, hash, fileID, i+1)
			c.enrichFromParse(chunk, parseResult)
			if chunk.Name != "" {
				chunk.Name = fmt.Sprintf("%s_part%d", chunk.Name, i+1)
			}
			if meetsFloor(chunk) {
				chunks = append(chunks, chunk)
			}
		}
	}
	return chunks, nil
}

// meetsFloor reports whether chunk clears the minimum size below which it
// carries too little context to be worth indexing.
func meetsFloor(chunk *types.Chunk) bool {
	lineCount := chunk.EndLine - chunk.StartLine + 1
	return len(chunk.Content) >= minChunkChars && lineCount >= minChunkLines
}

func (c *Chunker) buildChunk(relPath, lang string, kind types.ChunkType, name, content string, startLine, endLine int, hash [32]byte, fileID int64, part int) *types.Chunk {
	return &types.Chunk{
		ID:          pathutil.ChunkID(relPath, startLine, part),
		FileID:      fileID,
		FilePath:    relPath,
		Language:    lang,
		NodeKind:    kind,
		Name:        name,
		Content:     content,
		ContentHash: hash,
		StartLine:   startLine,
		EndLine:     endLine,
	}
}

// enrichFromParse attaches signature/docstring/name from the Go AST parse
// for the symbol whose declaration starts on the same line as the chunk.
func (c *Chunker) enrichFromParse(chunk *types.Chunk, pr *types.ParseResult) {
	if pr == nil {
		return
	}
	for i := range pr.Symbols {
		sym := &pr.Symbols[i]
		if sym.Kind == types.KindField {
			continue
		}
		if sym.Start.Line == chunk.StartLine {
			chunk.Signature = sym.Signature
			chunk.Docstring = sym.DocComment
			chunk.Name = sym.Name
			return
		}
	}
}

func (c *Chunker) fallbackChunks(relPath string, content []byte, hash [32]byte, fileID int64) []*types.Chunk {
	if strings.TrimSpace(string(content)) == "" {
		return nil
	}
	var chunks []*types.Chunk
	for _, win := range splitOversized(string(content), 1) {
		chunk := &types.Chunk{
			ID:          pathutil.ChunkID(relPath, win.startLine, 0),
			FileID:      fileID,
			FilePath:    relPath,
			NodeKind:    types.ChunkFallback,
			Content:     win.content,
			ContentHash: hash,
			StartLine:   win.startLine,
			EndLine:     win.endLine,
		}
		if meetsFloor(chunk) {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

type capture struct {
	name      string
	kind      string
	startLine int
	endLine   int
	startByte uint32
	endByte   uint32
}

func (c *Chunker) parseCaptures(spec *LanguageSpec, filePath string, src []byte) ([]capture, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(spec.Language)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	defer tree.Close()

	q, err := sitter.NewQuery([]byte(spec.Query), spec.Language)
	if err != nil {
		return nil, fmt.Errorf("compile query for %s: %w", filePath, err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	var caps []capture
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		var node *sitter.Node
		var name string
		for _, cp := range m.Captures {
			switch q.CaptureNameForId(cp.Index) {
			case "chunk":
				node = cp.Node
			case "name":
				name = cp.Node.Content(src)
			}
		}
		if node == nil {
			continue
		}
		caps = append(caps, capture{
			name:      name,
			kind:      node.Type(),
			startLine: int(node.StartPoint().Row) + 1,
			endLine:   int(node.EndPoint().Row) + 1,
			startByte: node.StartByte(),
			endByte:   node.EndByte(),
		})
	}
	return dedup(caps), nil
}

// dedup removes captures fully contained within a larger, earlier-starting
// capture (e.g. a method matched both by its own rule and by an enclosing
// class/type rule).
func dedup(caps []capture) []capture {
	if len(caps) <= 1 {
		return caps
	}
	sort.Slice(caps, func(i, j int) bool {
		if caps[i].startByte != caps[j].startByte {
			return caps[i].startByte < caps[j].startByte
		}
		return (caps[i].endByte - caps[i].startByte) > (caps[j].endByte - caps[j].startByte)
	})
	var result []capture
	var lastEnd uint32
	for _, cp := range caps {
		if cp.startByte >= lastEnd || lastEnd == 0 {
			result = append(result, cp)
			if cp.endByte > lastEnd {
				lastEnd = cp.endByte
			}
		}
	}
	return result
}

type window struct {
	content   string
	startLine int
	endLine   int
}

// splitOversized cuts content into windows of roughly targetChunkChars each,
// consecutive windows overlapping by overlapRatio of the preceding window's
// line count.
func splitOversized(content string, baseStartLine int) []window {
	lines := strings.Split(content, "\n")
	var windows []window
	for i := 0; i < len(lines); {
		end := i
		size := 0
		for end < len(lines) && (size == 0 || size < targetChunkChars) {
			size += len(lines[end]) + 1
			end++
		}
		windows = append(windows, window{
			content:   strings.Join(lines[i:end], "\n"),
			startLine: baseStartLine + i,
			endLine:   baseStartLine + end - 1,
		})
		if end >= len(lines) {
			break
		}
		overlap := int(float64(end-i) * overlapRatio)
		if overlap < 1 {
			overlap = 1
		}
		i = end - overlap
	}
	return windows
}

func joinLines(lines []string, startLine, endLine int) string {
	start := startLine - 1
	end := endLine
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return ""
	}
	return strings.Join(lines[start:end], "\n")
}

// classify maps a tree-sitter node type to the chunker's language-agnostic
// ChunkType taxonomy.
func classify(nodeKind string) types.ChunkType {
	switch nodeKind {
	case "function_declaration", "function_definition":
		return types.ChunkFunction
	case "method_declaration", "method_definition":
		return types.ChunkMethod
	case "class_declaration", "class_definition":
		return types.ChunkClass
	case "interface_declaration":
		return types.ChunkInterface
	case "type_declaration", "type_alias_declaration":
		return types.ChunkTypeAlias
	default:
		return types.ChunkTopLevelDecl
	}
}
