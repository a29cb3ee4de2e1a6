package store

import (
	"fmt"
	"strings"

	"document-qa/internal/models"
)

// Collection is the ordered, append-only chunk list a search runs over.
// It is owned by a single session and is not safe for concurrent mutation.
type Collection struct {
	dimension int
	attached  bool
	chunks    []models.Chunk
}

func NewCollection() *Collection { return &Collection{} }

// Append adds chunks in order. Chunks may already carry vectors, as long as
// every vector in the collection shares one dimension.
func (c *Collection) Append(chunks ...models.Chunk) error {
	dim := c.dimension
	for _, ch := range chunks {
		if strings.TrimSpace(ch.Text) == "" {
			return models.InvalidArgument("chunk %s/%d/%d has no text", ch.SourceID, ch.PageNumber, ch.ChunkID)
		}
		if !ch.HasVector() {
			continue
		}
		if dim == 0 {
			dim = len(ch.Vector)
		} else if len(ch.Vector) != dim {
			return fmt.Errorf("%w: got %d, collection has %d", models.ErrDimensionMismatch, len(ch.Vector), dim)
		}
	}
	c.dimension = dim
	c.chunks = append(c.chunks, chunks...)
	return nil
}

// AttachVectors sets the vector of every chunk, in order. It can run once.
func (c *Collection) AttachVectors(vectors [][]float32) error {
	if c.attached {
		return models.ErrVectorsAttached
	}
	if len(vectors) != len(c.chunks) {
		return models.InvalidArgument("got %d vectors for %d chunks", len(vectors), len(c.chunks))
	}

	dim := c.dimension
	for i, v := range vectors {
		if c.chunks[i].HasVector() {
			return fmt.Errorf("%w: chunk %d", models.ErrVectorsAttached, i)
		}
		if len(v) == 0 {
			return models.InvalidArgument("empty vector for chunk %d", i)
		}
		if dim == 0 {
			dim = len(v)
		} else if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d dims, want %d", models.ErrDimensionMismatch, i, len(v), dim)
		}
	}

	for i, v := range vectors {
		c.chunks[i].Vector = v
	}
	c.dimension = dim
	c.attached = true
	return nil
}

// Chunks returns a copy of the chunk list. Vectors are shared, not copied.
func (c *Collection) Chunks() []models.Chunk {
	out := make([]models.Chunk, len(c.chunks))
	copy(out, c.chunks)
	return out
}

func (c *Collection) Len() int { return len(c.chunks) }

// Dimension is the vector length shared by the collection, 0 before any vector is set.
func (c *Collection) Dimension() int { return c.dimension }

// Sources lists distinct source ids in first-seen order.
func (c *Collection) Sources() []string {
	seen := make(map[string]bool)
	var sources []string
	for _, ch := range c.chunks {
		if !seen[ch.SourceID] {
			seen[ch.SourceID] = true
			sources = append(sources, ch.SourceID)
		}
	}
	return sources
}

// Filter returns the chunks for which keep reports true, in order.
func (c *Collection) Filter(keep func(models.Chunk) bool) []models.Chunk {
	var out []models.Chunk
	for _, ch := range c.chunks {
		if keep(ch) {
			out = append(out, ch)
		}
	}
	return out
}

func (c *Collection) Reset() {
	c.chunks = nil
	c.dimension = 0
	c.attached = false
}
