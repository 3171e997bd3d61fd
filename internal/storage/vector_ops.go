package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// searchVector performs vector similarity search using cosine similarity.
// predicate, when non-empty, is spliced verbatim into the WHERE clause; it
// must already be sanitized by internal/filter.
func searchVector(ctx context.Context, db *sql.DB, projectID int64, queryVector []float32, limit int, predicate string, predicateArgs []interface{}) ([]VectorResult, error) {
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, db, projectID, queryVector, limit, predicate, predicateArgs)
	}
	return searchVectorFallback(ctx, db, projectID, queryVector, limit, predicate, predicateArgs)
}

// searchVectorOptimized uses the sqlite-vec extension for SQL-native vector
// similarity search (cgo builds only).
func searchVectorOptimized(ctx context.Context, db *sql.DB, projectID int64, queryVector []float32, limit int, predicate string, predicateArgs []interface{}) ([]VectorResult, error) {
	queryVectorBlob := serializeVector(queryVector)

	query := `
		SELECT
			c.id as chunk_id,
			1.0 - vec_distance_cosine(e.vector, ?) as similarity
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
		INNER JOIN files f ON c.file_id = f.id
		WHERE f.project_id = ?
	`
	args := []interface{}{queryVectorBlob, projectID}
	if predicate != "" {
		query += " AND (" + predicate + ")"
		args = append(args, predicateArgs...)
	}
	query += " ORDER BY similarity DESC LIMIT ?"
	args = append(args, limit)

	if limit <= 0 {
		return []VectorResult{}, nil
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var result VectorResult
		if err := rows.Scan(&result.ChunkID, &result.SimilarityScore); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// searchVectorFallback computes cosine similarity in Go, for purego builds
// where the sqlite-vec extension isn't linked in.
func searchVectorFallback(ctx context.Context, db *sql.DB, projectID int64, queryVector []float32, limit int, predicate string, predicateArgs []interface{}) ([]VectorResult, error) {
	query := `
		SELECT
			c.id as chunk_id,
			e.vector
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
		INNER JOIN files f ON c.file_id = f.id
		WHERE f.project_id = ?
	`
	args := []interface{}{projectID}
	if predicate != "" {
		query += " AND (" + predicate + ")"
		args = append(args, predicateArgs...)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, queryVector)
	if err != nil {
		return nil, err
	}
	sortCandidates(candidates)
	return buildVectorResults(candidates, limit), nil
}

// searchText performs BM25 full-text search using FTS5. text must already be
// sanitized by internal/filter.SanitizeFTSQuery.
func searchText(ctx context.Context, db *sql.DB, projectID int64, text string, limit int, predicate string, predicateArgs []interface{}) ([]TextResult, error) {
	if text == "" {
		return nil, fmt.Errorf("empty search query")
	}

	sqlQuery := `
		SELECT
			c.id as chunk_id,
			bm25(chunks_fts) as score
		FROM chunks_fts
		INNER JOIN chunks c ON chunks_fts.chunk_id = c.id
		INNER JOIN files f ON c.file_id = f.id
		WHERE chunks_fts MATCH ?
		AND f.project_id = ?
	`
	args := []interface{}{text, projectID}
	if predicate != "" {
		sqlQuery += " AND (" + predicate + ")"
		args = append(args, predicateArgs...)
	}
	sqlQuery += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectTextResults(rows)
}

func computeSimilarityScores(rows *sql.Rows, queryVector []float32) ([]candidate, error) {
	candidates := make([]candidate, 0, 1000)
	for rows.Next() {
		var chunkID string
		var vectorBlob []byte
		if err := rows.Scan(&chunkID, &vectorBlob); err != nil {
			return nil, err
		}
		vector := deserializeVector(vectorBlob)
		if len(vector) != len(queryVector) {
			continue
		}
		candidates = append(candidates, candidate{chunkID: chunkID, score: cosineSimilarity(queryVector, vector)})
	}
	return candidates, rows.Err()
}

func buildVectorResults(candidates []candidate, limit int) []VectorResult {
	if limit <= 0 {
		limit = len(candidates)
	}
	if limit > len(candidates) {
		limit = len(candidates)
	}
	results := make([]VectorResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = VectorResult{
			ChunkID:         candidates[i].chunkID,
			SimilarityScore: candidates[i].score,
		}
	}
	return results
}

func collectTextResults(rows *sql.Rows) ([]TextResult, error) {
	results := make([]TextResult, 0)
	for rows.Next() {
		var result TextResult
		if err := rows.Scan(&result.ChunkID, &result.BM25Score); err != nil {
			return nil, err
		}
		// BM25 scores are negative (lower is better); fold into (0, 1].
		result.BM25Score = 1.0 / (1.0 + math.Abs(result.BM25Score)/50.0)
		results = append(results, result)
	}
	return results, rows.Err()
}

// serializeVector converts a float32 slice to a byte blob (little-endian),
// the layout sqlite-vec expects.
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice.
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidate represents a chunk with its similarity score.
type candidate struct {
	chunkID string
	score   float64
}

func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
}

// SerializeVector is an exported helper for testing.
func SerializeVector(vector []float32) []byte { return serializeVector(vector) }

// DeserializeVector is an exported helper for testing.
func DeserializeVector(blob []byte) []float32 { return deserializeVector(blob) }

// CosineSimilarity is an exported helper for testing.
func CosineSimilarity(a, b []float32) float64 { return cosineSimilarity(a, b) }
