package models

import "time"

// Page is one page of extracted document text
type Page struct {
	Number int    `json:"page_number"`
	Text   string `json:"text"`
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	SourceID   string    `json:"source_id"`
	PageNumber int       `json:"page_number"`
	ChunkID    int       `json:"chunk_id"`
	Start      int       `json:"start"`
	End        int       `json:"end"`
	Text       string    `json:"text"`
	Vector     []float32 `json:"-"`
}

// HasVector reports whether the chunk has been embedded
func (c Chunk) HasVector() bool {
	return len(c.Vector) > 0
}

// SearchResult is a ranked chunk returned for a query
type SearchResult struct {
	SourceID   string  `json:"source_id"`
	PageNumber int     `json:"page_number"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
}

// IndexStats describes the currently active index
type IndexStats struct {
	Chunks    int       `json:"chunks"`
	Sources   []string  `json:"sources"`
	Dimension int       `json:"dimension"`
	Backend   string    `json:"backend"`
	BuiltAt   time.Time `json:"built_at"`
}
