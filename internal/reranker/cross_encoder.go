package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Cross-encoder provider configuration, mirroring the constants
// internal/embedder/providers.go keeps alongside its HTTP providers.
const (
	DefaultCrossEncoderModel = "jina-reranker-v2-base-multilingual"
	crossEncoderAPIURL       = "https://api.jina.ai/v1/rerank"

	crossEncoderMaxRetries        = 3
	crossEncoderInitialBackoffMs  = 100
	crossEncoderMaxBackoffMs      = 5000
	crossEncoderBackoffMultiplier = 2.0

	// EnvCrossEncoderAPIKey names the environment variable holding the
	// cross-encoder provider's API key.
	EnvCrossEncoderAPIKey = "JINA_API_KEY"
)

// CrossEncoderReranker scores (query, candidate) pairs through an HTTP
// reranking API, following the same client/retry/JSON discipline as
// internal/embedder/providers.go's HTTP-backed Embedder implementations.
type CrossEncoderReranker struct {
	apiKey     string
	model      string
	apiURL     string
	httpClient *http.Client
}

// NewCrossEncoderReranker creates a reranker backed by a hosted
// cross-encoder model. apiKey falls back to EnvCrossEncoderAPIKey when
// empty.
func NewCrossEncoderReranker(apiKey string) (*CrossEncoderReranker, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvCrossEncoderAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("reranker: %s not set", EnvCrossEncoderAPIKey)
	}
	return &CrossEncoderReranker{
		apiKey: apiKey,
		model:  DefaultCrossEncoderModel,
		apiURL: crossEncoderAPIURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank implements Reranker. On any transport, HTTP, or decode failure it
// returns an error; callers are expected to fall back to the lexically
// boosted ordering rather than fail the whole search.
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, candidates []Candidate, k int) ([]Candidate, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = rerankDocumentText(c)
	}

	config := retryConfig{
		maxRetries: crossEncoderMaxRetries,
		baseDelay:  crossEncoderInitialBackoffMs * time.Millisecond,
		maxDelay:   crossEncoderMaxBackoffMs * time.Millisecond,
		multiplier: crossEncoderBackoffMultiplier,
	}

	resp, err := retryWithBackoff(ctx, config, func() (*rerankResponse, error) {
		return r.callAPI(ctx, query, documents, k)
	})
	if err != nil {
		return nil, fmt.Errorf("cross-encoder rerank failed: %w", err)
	}

	scored := make([]Candidate, 0, len(resp.Results))
	for _, res := range resp.Results {
		if res.Index < 0 || res.Index >= len(candidates) {
			continue
		}
		c := candidates[res.Index]
		c.CombinedScore = clamp01(res.RelevanceScore)
		scored = append(scored, c)
	}

	sortByCombinedScore(scored)
	return topK(scored, k), nil
}

func rerankDocumentText(c Candidate) string {
	if c.Signature != "" {
		return c.Name + "\n" + c.Signature + "\n" + c.Content
	}
	return c.Name + "\n" + c.Content
}

func (r *CrossEncoderReranker) callAPI(ctx context.Context, query string, documents []string, topN int) (*rerankResponse, error) {
	reqBody := rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result rerankResponse
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

// retryConfig mirrors internal/embedder.RetryConfig; kept as a private
// copy since the embedder package doesn't export its retry helper.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	multiplier float64
}

func retryWithBackoff[T any](ctx context.Context, config retryConfig, fn func() (T, error)) (T, error) {
	var lastErr error
	var zero T
	backoff := config.baseDelay

	for attempt := 0; attempt < config.maxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if attempt < config.maxRetries-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * config.multiplier)
				if backoff > config.maxDelay {
					backoff = config.maxDelay
				}
			}
		}
	}

	return zero, lastErr
}
