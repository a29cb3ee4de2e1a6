package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/embeddings"

	"document-qa/internal/models"
)

// Vectorizer checks embedder output: counts match inputs, vectors are
// non-empty and every vector in the session has the same dimension.
type Vectorizer struct {
	embedder embeddings.Embedder

	mu  sync.Mutex
	dim int
}

func NewVectorizer(embedder embeddings.Embedder) *Vectorizer {
	return &Vectorizer{embedder: embedder}
}

// EmbedBatch returns one vector per text, in input order.
func (v *Vectorizer) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors, err := v.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, &models.EmbeddingError{Op: "embed batch", Err: err}
	}
	if len(vectors) != len(texts) {
		return nil, &models.EmbeddingError{Op: "embed batch", Err: fmt.Errorf("got %d vectors for %d texts", len(vectors), len(texts))}
	}
	for i, vec := range vectors {
		if len(vec) == 0 || len(vec) != len(vectors[0]) {
			return nil, &models.EmbeddingError{Op: "embed batch", Err: fmt.Errorf("%w: text %d has %d dims, text 0 has %d",
				models.ErrDimensionMismatch, i, len(vec), len(vectors[0]))}
		}
	}
	if err := v.pinDim(len(vectors[0])); err != nil {
		return nil, &models.EmbeddingError{Op: "embed batch", Err: err}
	}
	return vectors, nil
}

func (v *Vectorizer) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vec, err := v.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, &models.EmbeddingError{Op: "embed query", Err: err}
	}
	if err := v.pinDim(len(vec)); err != nil {
		return nil, &models.EmbeddingError{Op: "embed query", Err: err}
	}
	return vec, nil
}

// Dimension is the pinned vector length, 0 until the first successful call.
func (v *Vectorizer) Dimension() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dim
}

func (v *Vectorizer) pinDim(n int) error {
	if n == 0 {
		return errors.New("empty vector")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.dim == 0 {
		v.dim = n
		return nil
	}
	if n != v.dim {
		return fmt.Errorf("%w: got %d, want %d", models.ErrDimensionMismatch, n, v.dim)
	}
	return nil
}
