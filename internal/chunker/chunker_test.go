package chunker_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/semcode-mcp/internal/chunker"
	"github.com/example/semcode-mcp/internal/chunker/languages"
	"github.com/example/semcode-mcp/internal/parser"
	"github.com/example/semcode-mcp/pkg/types"
)

func newGoRegistry() *chunker.Registry {
	r := chunker.NewRegistry()
	languages.RegisterGo(r)
	return r
}

func TestNew(t *testing.T) {
	c := chunker.New(newGoRegistry())
	assert.NotNil(t, c)
}

func TestChunkFile_SimpleFunction(t *testing.T) {
	dir := t.TempDir()
	testFile := filepath.Join(dir, "test.go")
	src := "package testpkg\n\n" +
		"func Add(a, b int) int {\n" +
		"\tsum := a + b\n" +
		"\tif sum < 0 {\n" +
		"\t\treturn 0\n" +
		"\t}\n" +
		"\treturn sum\n" +
		"}\n"
	require.NoError(t, os.WriteFile(testFile, []byte(src), 0o644))

	pr, err := parser.New().ParseFile(testFile)
	require.NoError(t, err)

	c := chunker.New(newGoRegistry())
	chunks, err := c.ChunkFile(dir, testFile, []byte(src), pr, 1)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var fn *types.Chunk
	for _, ch := range chunks {
		if ch.NodeKind == types.ChunkFunction {
			fn = ch
		}
	}
	require.NotNil(t, fn)
	assert.Contains(t, fn.Content, "func Add")
	assert.Equal(t, "test_go_L3", fn.ID)
	assert.Equal(t, "go", fn.Language)
}

func TestChunkFile_UnsupportedExtensionFallsBack(t *testing.T) {
	dir := t.TempDir()
	testFile := filepath.Join(dir, "notes.txt")
	src := "line one is long enough to matter\nline two is long enough to matter\nline three is long enough to matter\n"
	require.NoError(t, os.WriteFile(testFile, []byte(src), 0o644))

	c := chunker.New(newGoRegistry())
	chunks, err := c.ChunkFile(dir, testFile, []byte(src), nil, 1)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, types.ChunkFallback, chunks[0].NodeKind)
}

func TestChunkFile_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	testFile := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(testFile, []byte(""), 0o644))

	c := chunker.New(newGoRegistry())
	chunks, err := c.ChunkFile(dir, testFile, []byte(""), nil, 1)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkFile_WhitespaceOnlySourceReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	testFile := filepath.Join(dir, "blank.txt")
	src := "   \n\t\n   \n"
	require.NoError(t, os.WriteFile(testFile, []byte(src), 0o644))

	c := chunker.New(newGoRegistry())
	chunks, err := c.ChunkFile(dir, testFile, []byte(src), nil, 1)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkFile_DiscardsChunksBelowFloor(t *testing.T) {
	dir := t.TempDir()
	testFile := filepath.Join(dir, "tiny.txt")
	src := "too small\n"
	require.NoError(t, os.WriteFile(testFile, []byte(src), 0o644))

	c := chunker.New(newGoRegistry())
	chunks, err := c.ChunkFile(dir, testFile, []byte(src), nil, 1)
	require.NoError(t, err)
	assert.Empty(t, chunks, "content under the 50-character/2-line floor should be discarded")
}

func TestChunkFile_OversizedNodeSplitsAtTargetSizeWithOverlap(t *testing.T) {
	dir := t.TempDir()
	testFile := filepath.Join(dir, "big.go")

	var body strings.Builder
	body.WriteString("package testpkg\n\nfunc Big() int {\n")
	for i := 0; i < 120; i++ {
		fmt.Fprintf(&body, "\tx%d := %d // padding line to push this function past the target chunk size\n", i, i)
	}
	body.WriteString("\treturn 0\n}\n")
	src := body.String()
	require.NoError(t, os.WriteFile(testFile, []byte(src), 0o644))

	pr, err := parser.New().ParseFile(testFile)
	require.NoError(t, err)

	c := chunker.New(newGoRegistry())
	chunks, err := c.ChunkFile(dir, testFile, []byte(src), pr, 1)
	require.NoError(t, err)

	var parts []*types.Chunk
	for _, ch := range chunks {
		if ch.NodeKind == types.ChunkFunction {
			parts = append(parts, ch)
		}
	}
	require.Greater(t, len(parts), 1, "a function this large must be split into multiple parts")

	for _, p := range parts {
		assert.LessOrEqual(t, len(p.Content), 2*1500, "split parts should stay near the ~1500-character target")
	}
	for i := 1; i < len(parts); i++ {
		assert.Less(t, parts[i].StartLine, parts[i-1].EndLine,
			"consecutive split parts should overlap by line range")
	}
}
