package searcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/semcode-mcp/internal/cache"
	"github.com/example/semcode-mcp/internal/embedder"
	"github.com/example/semcode-mcp/internal/filter"
	"github.com/example/semcode-mcp/internal/reranker"
	"github.com/example/semcode-mcp/internal/storage"
	"github.com/example/semcode-mcp/pkg/types"
)

// resultCacheTTL is the fixed expiry for cached search responses (§4.9).
// Entries are not tied to store changes; InvalidateCache purges the whole
// cache, and only when a caller invokes it.
const resultCacheTTL = 1 * time.Hour

// Default tuning knobs for SearchRequest, applied by validateRequest.
const (
	DefaultLimit               = 10
	MaxLimit                   = 50
	DefaultCandidateMultiplier = 5
)

// SearchRequest contains parameters for a hybrid_search call: query ->
// embed -> vector search -> lexical boost -> rerank -> return, with
// fallbacks at the embed and rerank steps.
type SearchRequest struct {
	Query     string
	Limit     int
	ProjectID int64

	Path        string // directory prefix filter, e.g. "src/auth"
	FilePattern string // glob filter, e.g. "*.ts"

	UseReranking        bool // callers should build via NewSearchRequest, which defaults this true
	CandidateMultiplier int  // default 5
	FallbackToKeyword   bool // callers should build via NewSearchRequest, which defaults this true

	UseCache bool
}

// SearchResponse contains search results and metadata.
type SearchResponse struct {
	Results      []types.SearchResult
	TotalResults int
	Duration     time.Duration
	CacheHit     bool
	FromFallback bool

	VectorCandidates int
	TextCandidates   int
	Reranked         bool
}

// Searcher coordinates the hybrid retrieval pipeline across the store, the
// embedder, and an optional reranker.
type Searcher struct {
	storage  storage.Storage
	embedder embedder.Embedder
	reranker reranker.Reranker // nil disables cross-encoder rerank; boost still runs

	resultCache *cache.TTLCache[[32]byte, *SearchResponse]
}

// NewSearcher creates a Searcher. rr may be nil, in which case reranking
// falls back to lexical-boost-only ordering even when UseReranking is set.
func NewSearcher(store storage.Storage, emb embedder.Embedder, rr reranker.Reranker) *Searcher {
	resultCache, err := cache.New[[32]byte, *SearchResponse](1000, resultCacheTTL)
	if err != nil {
		panic(fmt.Sprintf("failed to create result cache: %v", err))
	}

	return &Searcher{
		storage:     store,
		embedder:    emb,
		reranker:    rr,
		resultCache: resultCache,
	}
}

// Search runs the hybrid_search pipeline.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	if req.UseCache {
		if cached, ok := s.checkCache(req); ok {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	response, err := s.hybridSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	response.Duration = time.Since(startTime)

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}

	return response, nil
}

// hybridSearch is the step-by-step implementation of §4.6's contract.
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	// Step 1: an empty store short-circuits to an empty result rather than
	// paying for an embed/search round trip that can only return nothing.
	if count, err := s.storage.CountChunks(ctx, req.ProjectID); err == nil && count == 0 {
		return &SearchResponse{Results: []types.SearchResult{}}, nil
	}

	// Step 3 (predicate): a security failure is always fatal to the request,
	// never degraded to a fallback.
	pred, err := filter.Build(filter.Options{Path: req.Path, FilePattern: req.FilePattern})
	if err != nil {
		return nil, err
	}
	predicate, args := pred.SQL, pred.Args

	candidateLimit := req.Limit
	if req.UseReranking {
		candidateLimit = req.Limit * req.CandidateMultiplier
	}

	embReq := embedder.EmbeddingRequest{Text: req.Query, Task: embedder.TaskQuery}
	embedding, embErr := s.embedder.GenerateEmbedding(ctx, embReq)
	if embErr != nil {
		if !req.FallbackToKeyword {
			return nil, fmt.Errorf("failed to generate query embedding: %w", embErr)
		}
		return s.keywordFallback(ctx, req, predicate, args)
	}

	var vectorResults []storage.VectorResult
	var textResults []storage.TextResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vectorResults, err = s.storage.SearchVector(gctx, req.ProjectID, embedding.Vector, candidateLimit, predicate, args)
		return err
	})
	g.Go(func() error {
		var err error
		textResults, err = s.storage.SearchText(gctx, req.ProjectID, req.Query, candidateLimit, predicate, args)
		return err
	})
	if err := g.Wait(); err != nil {
		if req.FallbackToKeyword {
			return s.keywordFallback(ctx, req, predicate, args)
		}
		return nil, fmt.Errorf("hybrid search failed: %w", err)
	}

	candidates, err := s.buildCandidates(ctx, vectorResults, textResults)
	if err != nil {
		return nil, err
	}

	candidates = reranker.ApplyLexicalBoost(req.Query, candidates)

	reranked := false
	if req.UseReranking && s.reranker != nil && len(candidates) > req.Limit {
		if rr, rerr := s.reranker.Rerank(ctx, req.Query, candidates, req.Limit); rerr == nil {
			candidates = rr
			reranked = true
		}
		// Reranker failure is non-fatal: fall through using the boosted order.
	}

	if !reranked {
		sortCandidatesDescending(candidates)
		if len(candidates) > req.Limit {
			candidates = candidates[:req.Limit]
		}
	}

	results, err := s.toSearchResults(ctx, candidates, false)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:          results,
		TotalResults:     len(results),
		VectorCandidates: len(vectorResults),
		TextCandidates:   len(textResults),
		Reranked:         reranked,
	}, nil
}

// keywordFallback implements step 2's embedder-failure path: full text
// search only, results marked FromFallback.
func (s *Searcher) keywordFallback(ctx context.Context, req SearchRequest, predicate string, args []interface{}) (*SearchResponse, error) {
	textResults, err := s.storage.SearchText(ctx, req.ProjectID, req.Query, req.Limit*2, predicate, args)
	if err != nil {
		return nil, fmt.Errorf("fallback keyword search failed: %w", err)
	}

	candidates := make([]reranker.Candidate, 0, len(textResults))
	for _, tr := range textResults {
		candidates = append(candidates, reranker.Candidate{
			ChunkID:      tr.ChunkID,
			KeywordScore: tr.BM25Score,
		})
	}
	if err := s.hydrateCandidates(ctx, candidates); err != nil {
		return nil, err
	}

	candidates = reranker.ApplyLexicalBoost(req.Query, candidates)
	sortCandidatesDescending(candidates)
	if len(candidates) > req.Limit {
		candidates = candidates[:req.Limit]
	}

	results, err := s.toSearchResults(ctx, candidates, true)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:        results,
		TotalResults:   len(results),
		TextCandidates: len(textResults),
		FromFallback:   true,
	}, nil
}

// buildCandidates merges vector and text results on ChunkID, then loads
// the name/signature/content fields lexical boosting needs.
func (s *Searcher) buildCandidates(ctx context.Context, vectorResults []storage.VectorResult, textResults []storage.TextResult) ([]reranker.Candidate, error) {
	byID := make(map[string]*reranker.Candidate)
	order := make([]string, 0, len(vectorResults)+len(textResults))

	for _, vr := range vectorResults {
		if _, ok := byID[vr.ChunkID]; !ok {
			order = append(order, vr.ChunkID)
			byID[vr.ChunkID] = &reranker.Candidate{ChunkID: vr.ChunkID}
		}
		byID[vr.ChunkID].VectorScore = vr.SimilarityScore
	}
	for _, tr := range textResults {
		if _, ok := byID[tr.ChunkID]; !ok {
			order = append(order, tr.ChunkID)
			byID[tr.ChunkID] = &reranker.Candidate{ChunkID: tr.ChunkID}
		}
		byID[tr.ChunkID].KeywordScore = tr.BM25Score
	}

	candidates := make([]reranker.Candidate, 0, len(order))
	for _, id := range order {
		candidates = append(candidates, *byID[id])
	}

	if err := s.hydrateCandidates(ctx, candidates); err != nil {
		return nil, err
	}
	return candidates, nil
}

// hydrateCandidates fills in Name/Signature/Content from the store so the
// lexical boost and cross-encoder stages have text to score against.
func (s *Searcher) hydrateCandidates(ctx context.Context, candidates []reranker.Candidate) error {
	for i := range candidates {
		chunk, err := s.storage.GetChunk(ctx, candidates[i].ChunkID)
		if err != nil {
			continue // chunk may have been deleted since the index scan; skip silently
		}
		candidates[i].Name = chunk.Name
		candidates[i].Signature = chunk.Signature
		candidates[i].Content = chunk.Content
	}
	return nil
}

// toSearchResults loads the remaining file/symbol metadata for the final
// candidate slice and converts to the public result shape.
func (s *Searcher) toSearchResults(ctx context.Context, candidates []reranker.Candidate, fromFallback bool) ([]types.SearchResult, error) {
	results := make([]types.SearchResult, 0, len(candidates))

	for i, c := range candidates {
		chunk, err := s.storage.GetChunk(ctx, c.ChunkID)
		if err != nil {
			continue
		}
		file, err := s.storage.GetFileByID(ctx, chunk.FileID)
		if err != nil {
			continue
		}

		var symbol *types.Symbol
		if chunk.SymbolID != nil {
			if storageSymbol, err := s.storage.GetSymbol(ctx, *chunk.SymbolID); err == nil {
				typesSymbol := storageSymbol.ToTypesSymbol()
				symbol = &typesSymbol
			}
		}

		results = append(results, types.SearchResult{
			ChunkID:        c.ChunkID,
			Rank:           i + 1,
			RelevanceScore: c.CombinedScore,
			VectorScore:    c.VectorScore,
			KeywordScore:   c.KeywordScore,
			FromFallback:   fromFallback,
			Symbol:         symbol,
			Name:           chunk.Name,
			Signature:      chunk.Signature,
			NodeType:       chunk.ChunkType,
			File: &types.FileInfo{
				Path:      file.FilePath,
				Language:  file.Language,
				StartLine: chunk.StartLine,
				EndLine:   chunk.EndLine,
			},
			Content: chunk.Content,
			Context: fmt.Sprintf("%s\n\n%s", chunk.ContextBefore, chunk.ContextAfter),
		})
	}

	return results, nil
}

func sortCandidatesDescending(candidates []reranker.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CombinedScore > candidates[j].CombinedScore
	})
}

// validateRequest applies defaults to the request's option list.
func (s *Searcher) validateRequest(req *SearchRequest) error {
	if req.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if req.CandidateMultiplier <= 0 {
		req.CandidateMultiplier = DefaultCandidateMultiplier
	}
	return nil
}

// NewSearchRequest builds a SearchRequest with every default applied
// (UseReranking, FallbackToKeyword both on).
func NewSearchRequest(query string, projectID int64) SearchRequest {
	return SearchRequest{
		Query:             query,
		ProjectID:         projectID,
		Limit:             DefaultLimit,
		UseReranking:      true,
		FallbackToKeyword: true,
	}
}

// checkCache looks up cached search results.
func (s *Searcher) checkCache(req SearchRequest) (*SearchResponse, bool) {
	hash := computeQueryHash(req)
	cached, found := s.resultCache.Get(hash)
	if !found {
		return nil, false
	}
	return copySearchResponse(cached), true
}

// storeInCache saves search results to cache.
func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse) {
	hash := computeQueryHash(req)
	s.resultCache.Put(hash, copySearchResponse(response))
}

// copySearchResponse creates a deep copy of a SearchResponse.
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}
	dst := &SearchResponse{
		TotalResults:     src.TotalResults,
		Duration:         src.Duration,
		CacheHit:         src.CacheHit,
		FromFallback:     src.FromFallback,
		VectorCandidates: src.VectorCandidates,
		TextCandidates:   src.TextCandidates,
		Reranked:         src.Reranked,
		Results:          make([]types.SearchResult, len(src.Results)),
	}
	for i, result := range src.Results {
		dst.Results[i] = result
		if result.Symbol != nil {
			symbolCopy := *result.Symbol
			dst.Results[i].Symbol = &symbolCopy
		}
		if result.File != nil {
			fileCopy := *result.File
			dst.Results[i].File = &fileCopy
		}
	}
	return dst
}

// computeQueryHash computes a unique cache key for a search request.
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%d", req.ProjectID))
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%d", req.Limit))
	data.WriteString("|filters:")
	data.WriteString(req.Path)
	data.WriteString("|")
	data.WriteString(req.FilePattern)
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%t|%t", req.UseReranking, req.FallbackToKeyword))
	return sha256.Sum256([]byte(data.String()))
}

// InvalidateCache removes all cached queries. The cache doesn't support
// filtering by project, so invalidation purges everything.
func (s *Searcher) InvalidateCache(ctx context.Context) error {
	s.resultCache.Purge()
	return nil
}
