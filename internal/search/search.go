package search

import (
	"fmt"
	"math"
	"sort"

	"document-qa/internal/models"
)

// CosineSimilarity returns the cosine of the angle between a and b, in [-1, 1].
// Vectors of different length or with a zero norm score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push parallel vectors just past 1
	return math.Max(-1, math.Min(1, sim))
}

// Search scores every vectorized chunk against query and returns at most topK
// results with similarity >= threshold, highest first. Ties keep chunk order.
func Search(chunks []models.Chunk, query []float32, topK int, threshold float64) ([]models.SearchResult, error) {
	if topK < 1 {
		return nil, models.InvalidArgument("top k must be at least 1, got %d", topK)
	}

	results := make([]models.SearchResult, 0, len(chunks))
	for _, c := range chunks {
		if !c.HasVector() {
			continue
		}
		if len(c.Vector) != len(query) {
			return nil, fmt.Errorf("%w: chunk %s/%d/%d has %d dims, query has %d",
				models.ErrDimensionMismatch, c.SourceID, c.PageNumber, c.ChunkID, len(c.Vector), len(query))
		}

		score := CosineSimilarity(query, c.Vector)
		if score >= threshold {
			results = append(results, models.SearchResult{
				SourceID:   c.SourceID,
				PageNumber: c.PageNumber,
				Text:       c.Text,
				Similarity: score,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}
