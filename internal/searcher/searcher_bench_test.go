package searcher_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/example/semcode-mcp/internal/embedder"
	"github.com/example/semcode-mcp/internal/searcher"
	"github.com/example/semcode-mcp/internal/storage"
)

func BenchmarkSearch_Hybrid(b *testing.B) {
	store := newFakeStorage()
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("chunk-%d", i)
		store.addChunk(&storage.Chunk{ID: id, FileID: 1, Name: id, Content: "some function body"}, &storage.File{ID: 1, FilePath: "a.go"})
		store.vectorResults = append(store.vectorResults, storage.VectorResult{ChunkID: id, SimilarityScore: float64(i) / 100})
		store.textResults = append(store.textResults, storage.TextResult{ChunkID: id, BM25Score: float64(i) / 100})
	}

	e, err := embedder.NewLocalProvider(embedder.NewCache(1000))
	if err != nil {
		b.Fatal(err)
	}
	s := searcher.NewSearcher(store, e, nil)
	req := searcher.NewSearchRequest("function body", 1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Search(context.Background(), req); err != nil {
			b.Fatal(err)
		}
	}
}
