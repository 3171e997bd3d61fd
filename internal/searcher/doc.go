// Package searcher implements the hybrid code search pipeline: embed the
// query, search the vector store and the full-text index concurrently,
// apply a lexical boost, optionally rerank with a cross-encoder, and fall
// back to keyword-only search if the embedder or the combined search
// fails.
//
// # Basic usage
//
//	s := searcher.NewSearcher(store, emb, rr)
//
//	req := searcher.NewSearchRequest("user authentication logic", projectID)
//	resp, err := s.Search(ctx, req)
//
//	for _, result := range resp.Results {
//	    fmt.Printf("[%d] %.2f - %s\n", result.Rank, result.RelevanceScore, result.File.Path)
//	}
//
// # Pipeline
//
// Search runs, in order:
//  1. Embed the query (embedder.TaskQuery, distinct from the document
//     prefix used at index time).
//  2. On embed failure, fall back to full-text search alone (if
//     FallbackToKeyword is set) with results marked FromFallback.
//  3. Otherwise, run vector search and full-text search concurrently
//     (errgroup), fetching Limit*CandidateMultiplier candidates when
//     reranking is enabled.
//  4. Merge candidates by chunk ID and apply the lexical boost
//     (internal/reranker.ApplyLexicalBoost).
//  5. If reranking is enabled and there are more candidates than Limit,
//     rerank with the cross-encoder; a reranker error is non-fatal and
//     falls back to the boosted ordering.
//  6. Trim to Limit and load file/symbol metadata for the response.
//
// # Filtering
//
// Path and FilePattern are passed through internal/filter.Build to produce
// the sanitized predicate spliced into the store's SQL, rather than being
// re-interpreted client-side. A malformed filter returns a
// types.FailureInvalidFilter error immediately; it is never degraded to a
// fallback the way an embedder or reranker failure is.
//
// # Caching
//
// Responses are cached by a 1000-entry LRU keyed on a hash of the request's
// query/filters, with a fixed one-hour TTL.
package searcher
