package searcher_test

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/semcode-mcp/internal/embedder"
	"github.com/example/semcode-mcp/internal/reranker"
	"github.com/example/semcode-mcp/internal/searcher"
	"github.com/example/semcode-mcp/internal/storage"
	"github.com/example/semcode-mcp/pkg/types"
)

// fakeStorage is a minimal in-memory storage.Storage sufficient to drive
// the search pipeline; every method the pipeline doesn't call panics so a
// future caller that starts depending on it is forced to implement it.
type fakeStorage struct {
	chunks map[string]*storage.Chunk
	files  map[int64]*storage.File

	vectorResults []storage.VectorResult
	textResults   []storage.TextResult
	searchErr     error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		chunks: make(map[string]*storage.Chunk),
		files:  make(map[int64]*storage.File),
	}
}

func (f *fakeStorage) addChunk(c *storage.Chunk, file *storage.File) {
	f.chunks[c.ID] = c
	f.files[file.ID] = file
}

func (f *fakeStorage) SearchVector(ctx context.Context, projectID int64, vector []float32, limit int, predicate string, predicateArgs []interface{}) ([]storage.VectorResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return truncateVector(f.vectorResults, limit), nil
}

func (f *fakeStorage) SearchText(ctx context.Context, projectID int64, query string, limit int, predicate string, predicateArgs []interface{}) ([]storage.TextResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return truncateText(f.textResults, limit), nil
}

func (f *fakeStorage) GetChunk(ctx context.Context, chunkID string) (*storage.Chunk, error) {
	c, ok := f.chunks[chunkID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return c, nil
}

func (f *fakeStorage) GetFileByID(ctx context.Context, fileID int64) (*storage.File, error) {
	file, ok := f.files[fileID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return file, nil
}

func (f *fakeStorage) GetSymbol(ctx context.Context, symbolID int64) (*storage.Symbol, error) {
	return nil, storage.ErrNotFound
}

func truncateVector(in []storage.VectorResult, limit int) []storage.VectorResult {
	if limit > 0 && limit < len(in) {
		return in[:limit]
	}
	return in
}

func truncateText(in []storage.TextResult, limit int) []storage.TextResult {
	if limit > 0 && limit < len(in) {
		return in[:limit]
	}
	return in
}

// The remaining storage.Storage methods aren't exercised by the search
// pipeline; panic so a new caller surfaces the gap immediately.
func (f *fakeStorage) CreateProject(ctx context.Context, p *storage.Project) error { panic("unused") }
func (f *fakeStorage) GetProject(ctx context.Context, rootPath string) (*storage.Project, error) {
	panic("unused")
}
func (f *fakeStorage) UpdateProject(ctx context.Context, p *storage.Project) error { panic("unused") }
func (f *fakeStorage) UpsertFile(ctx context.Context, file *storage.File) error    { panic("unused") }
func (f *fakeStorage) GetFile(ctx context.Context, projectID int64, filePath string) (*storage.File, error) {
	panic("unused")
}
func (f *fakeStorage) GetFileByHash(ctx context.Context, hash [32]byte) (*storage.File, error) {
	panic("unused")
}
func (f *fakeStorage) DeleteFile(ctx context.Context, fileID int64) error { panic("unused") }
func (f *fakeStorage) DeleteFileByPath(ctx context.Context, projectID int64, filePath string) error {
	panic("unused")
}
func (f *fakeStorage) ListFiles(ctx context.Context, projectID int64) ([]*storage.File, error) {
	panic("unused")
}
func (f *fakeStorage) IndexedFiles(ctx context.Context, projectID int64) (map[string]string, error) {
	panic("unused")
}
func (f *fakeStorage) UpsertSymbol(ctx context.Context, symbol *storage.Symbol) error {
	panic("unused")
}
func (f *fakeStorage) ListSymbolsByFile(ctx context.Context, fileID int64) ([]*storage.Symbol, error) {
	panic("unused")
}
func (f *fakeStorage) DeleteSymbolsByFile(ctx context.Context, fileID int64) error { panic("unused") }
func (f *fakeStorage) SearchSymbols(ctx context.Context, query string, limit int) ([]*storage.Symbol, error) {
	panic("unused")
}
func (f *fakeStorage) UpsertChunk(ctx context.Context, chunk *storage.Chunk) error { panic("unused") }
func (f *fakeStorage) ListChunksByFile(ctx context.Context, fileID int64) ([]*storage.Chunk, error) {
	panic("unused")
}
func (f *fakeStorage) DeleteChunk(ctx context.Context, chunkID string) error { panic("unused") }
func (f *fakeStorage) DeleteChunksBatch(ctx context.Context, chunkIDs []string) (int, error) {
	panic("unused")
}
func (f *fakeStorage) DeleteChunksByFile(ctx context.Context, fileID int64) error { panic("unused") }
func (f *fakeStorage) UpsertEmbedding(ctx context.Context, e *storage.Embedding) error {
	panic("unused")
}
func (f *fakeStorage) GetEmbedding(ctx context.Context, chunkID string) (*storage.Embedding, error) {
	panic("unused")
}
func (f *fakeStorage) DeleteEmbedding(ctx context.Context, chunkID string) error { panic("unused") }
func (f *fakeStorage) UpsertImport(ctx context.Context, imp *storage.Import) error {
	panic("unused")
}
func (f *fakeStorage) ListImportsByFile(ctx context.Context, fileID int64) ([]*storage.Import, error) {
	panic("unused")
}
func (f *fakeStorage) DeleteImportsByFile(ctx context.Context, fileID int64) error {
	panic("unused")
}
func (f *fakeStorage) GetStatus(ctx context.Context, projectID int64) (*storage.ProjectStatus, error) {
	panic("unused")
}
func (f *fakeStorage) CountChunks(ctx context.Context, projectID int64) (int, error) {
	return len(f.chunks), nil
}
func (f *fakeStorage) Close() error                                    { return nil }
func (f *fakeStorage) BeginTx(ctx context.Context) (storage.Tx, error) { panic("unused") }

var _ storage.Storage = (*fakeStorage)(nil)

// failingEmbedder always errors, to exercise the keyword-fallback path.
type failingEmbedder struct{ embedder.Embedder }

func (failingEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	return nil, errors.New("embedder unavailable")
}
func (failingEmbedder) Close() error { return nil }

func newLocalEmbedder(t *testing.T) embedder.Embedder {
	t.Helper()
	e, err := embedder.NewLocalProvider(embedder.NewCache(100))
	require.NoError(t, err)
	return e
}

func TestSearch_VectorAndTextMerge(t *testing.T) {
	store := newFakeStorage()
	store.addChunk(&storage.Chunk{ID: "a", FileID: 1, Name: "ParseConfig", Content: "func ParseConfig() {}"}, &storage.File{ID: 1, FilePath: "a.go"})
	store.addChunk(&storage.Chunk{ID: "b", FileID: 1, Name: "Unrelated", Content: "func Unrelated() {}"}, &storage.File{ID: 1, FilePath: "a.go"})
	store.vectorResults = []storage.VectorResult{{ChunkID: "a", SimilarityScore: 0.9}, {ChunkID: "b", SimilarityScore: 0.5}}
	store.textResults = []storage.TextResult{{ChunkID: "b", BM25Score: 0.8}}

	s := searcher.NewSearcher(store, newLocalEmbedder(t), nil)
	req := searcher.NewSearchRequest("ParseConfig", 1)
	req.UseReranking = false

	resp, err := s.Search(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	require.Equal(t, "a", resp.Results[0].ChunkID)
}

func TestSearch_EmbedderFailureFallsBackToKeyword(t *testing.T) {
	store := newFakeStorage()
	store.addChunk(&storage.Chunk{ID: "a", FileID: 1, Name: "Foo"}, &storage.File{ID: 1, FilePath: "a.go"})
	store.textResults = []storage.TextResult{{ChunkID: "a", BM25Score: 1.0}}

	s := searcher.NewSearcher(store, failingEmbedder{}, nil)
	req := searcher.NewSearchRequest("foo", 1)

	resp, err := s.Search(context.Background(), req)
	require.NoError(t, err)
	require.True(t, resp.FromFallback)
	require.Len(t, resp.Results, 1)
	require.True(t, resp.Results[0].FromFallback)
}

func TestSearch_EmbedderFailureNoFallbackErrors(t *testing.T) {
	store := newFakeStorage()
	store.addChunk(&storage.Chunk{ID: "a", FileID: 1, Name: "Foo"}, &storage.File{ID: 1, FilePath: "a.go"})
	s := searcher.NewSearcher(store, failingEmbedder{}, nil)
	req := searcher.NewSearchRequest("foo", 1)
	req.FallbackToKeyword = false

	_, err := s.Search(context.Background(), req)
	require.Error(t, err)
}

// stubReranker reverses candidate order so tests can tell whether rerank
// actually ran vs. the lexical-boost-only ordering.
type stubReranker struct{ err error }

func (r stubReranker) Rerank(ctx context.Context, query string, candidates []reranker.Candidate, k int) ([]reranker.Candidate, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]reranker.Candidate, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChunkID < out[j].ChunkID })
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out, nil
}

func TestSearch_RerankerFailureFallsBackToBoostedOrder(t *testing.T) {
	store := newFakeStorage()
	for _, id := range []string{"a", "b", "c"} {
		store.addChunk(&storage.Chunk{ID: id, FileID: 1, Name: id}, &storage.File{ID: 1, FilePath: "a.go"})
	}
	store.vectorResults = []storage.VectorResult{
		{ChunkID: "a", SimilarityScore: 0.9},
		{ChunkID: "b", SimilarityScore: 0.5},
		{ChunkID: "c", SimilarityScore: 0.1},
	}

	s := searcher.NewSearcher(store, newLocalEmbedder(t), stubReranker{err: errors.New("rerank down")})
	req := searcher.NewSearchRequest("query", 1)
	req.Limit = 2

	resp, err := s.Search(context.Background(), req)
	require.NoError(t, err)
	require.False(t, resp.Reranked)
	require.Len(t, resp.Results, 2)
	require.Equal(t, "a", resp.Results[0].ChunkID)
}

func TestSearch_EmptyQueryRejected(t *testing.T) {
	store := newFakeStorage()
	s := searcher.NewSearcher(store, newLocalEmbedder(t), nil)
	_, err := s.Search(context.Background(), searcher.NewSearchRequest("", 1))
	require.Error(t, err)
}

// S5 — an injection attempt in file_pattern surfaces as a security failure
// and never reaches the store.
func TestSearch_InvalidFilterIsFatal(t *testing.T) {
	store := newFakeStorage()
	store.addChunk(&storage.Chunk{ID: "a", FileID: 1, Name: "Foo"}, &storage.File{ID: 1, FilePath: "a.go"})

	s := searcher.NewSearcher(store, newLocalEmbedder(t), nil)
	req := searcher.NewSearchRequest("x", 1)
	req.FilePattern = "*.ts'; DROP TABLE--"

	_, err := s.Search(context.Background(), req)
	require.Error(t, err)

	var opErr *types.OperationalError
	require.True(t, errors.As(err, &opErr))
	require.Equal(t, types.FailureInvalidFilter, opErr.Kind)
}

// Step 1 of the hybrid_search contract: an empty store returns an empty
// result without touching the embedder or the store's search calls.
func TestSearch_EmptyStoreReturnsEmptyResult(t *testing.T) {
	store := newFakeStorage()
	s := searcher.NewSearcher(store, failingEmbedder{}, nil)

	resp, err := s.Search(context.Background(), searcher.NewSearchRequest("anything", 1))
	require.NoError(t, err)
	require.Empty(t, resp.Results)
}

func TestNewSearchRequest_Defaults(t *testing.T) {
	req := searcher.NewSearchRequest("q", 42)
	require.True(t, req.UseReranking)
	require.True(t, req.FallbackToKeyword)
	require.Equal(t, searcher.DefaultLimit, req.Limit)
}
