package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"document-qa/internal/helper"
	"document-qa/internal/models"
)

// metadata keys stored with every document
const (
	metaSourceID   = "source_id"
	metaPageNumber = "page_number"
	metaChunkID    = "chunk_id"
	metaSeq        = "seq"
)

var errNoEmbeddingFunc = errors.New("chromemdb: documents and queries must carry precomputed embeddings")

// VectorDBManager wraps an in-memory chromem-go collection holding one built index.
type VectorDBManager struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewVectorDBManager creates an in-memory database with a single collection.
func NewVectorDBManager(collectionName string) (*VectorDBManager, error) {
	m := &VectorDBManager{db: chromem.NewDB()}
	if _, err := m.GetOrCreateCollection(collectionName); err != nil {
		return nil, err
	}
	return m, nil
}

// create or read collection
func (m *VectorDBManager) GetOrCreateCollection(collectionName string) (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(collectionName, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// add multiple documents
func (m *VectorDBManager) CreateDocs(ctx context.Context, documents []chromem.Document) error {
	err := m.collection.AddDocuments(ctx, documents, runtime.NumCPU())
	if err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// IndexChunks adds vectorized chunks, remembering their collection order in the seq field.
func (m *VectorDBManager) IndexChunks(ctx context.Context, chunks []models.Chunk) error {
	docs := make([]chromem.Document, 0, len(chunks))
	for seq, c := range chunks {
		if !c.HasVector() {
			continue
		}
		id, err := helper.GenerateUUID()
		if err != nil {
			return err
		}
		docs = append(docs, chromem.Document{
			ID:      id,
			Content: c.Text,
			Metadata: map[string]string{
				metaSourceID:   c.SourceID,
				metaPageNumber: strconv.Itoa(c.PageNumber),
				metaChunkID:    strconv.Itoa(c.ChunkID),
				metaSeq:        strconv.Itoa(seq),
			},
			Embedding: append([]float32(nil), c.Vector...),
		})
	}
	if len(docs) == 0 {
		return nil
	}
	log.Debug().Int("documents", len(docs)).Str("collection", m.collection.Name).Msg("Indexing chunks in chromem")
	return m.CreateDocs(ctx, docs)
}

func (m *VectorDBManager) Count() int {
	return m.collection.Count()
}

// Read retrieves documents by ID or performs a similarity search
func (m *VectorDBManager) SearchWithQueryOptions(ctx context.Context, opts chromem.QueryOptions) ([]chromem.Result, error) {
	// exit if query or embedding is not provided
	if opts.QueryText == "" && opts.QueryEmbedding == nil {
		return nil, fmt.Errorf("either query or embedding must be provided")
	}

	results, err := m.collection.QueryWithOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	return results, nil
}

// Search ranks every stored document against query, keeps those at or above
// threshold and returns the best topK. Ties keep collection order. An empty
// sourceID searches all documents.
func (m *VectorDBManager) Search(ctx context.Context, query []float32, topK int, threshold float64, sourceID string) ([]models.SearchResult, error) {
	if topK < 1 {
		return nil, models.InvalidArgument("top k must be at least 1, got %d", topK)
	}
	n := m.Count()
	if n == 0 {
		return []models.SearchResult{}, nil
	}

	opts := chromem.QueryOptions{
		QueryEmbedding: query,
		NResults:       n,
	}
	if sourceID != "" {
		opts.Where = map[string]string{metaSourceID: sourceID}
	}
	found, err := m.SearchWithQueryOptions(ctx, opts)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		seq    int
		result models.SearchResult
	}
	hits := make([]ranked, 0, len(found))
	for _, r := range found {
		sim := float64(r.Similarity)
		if sim < threshold {
			continue
		}
		page, _ := strconv.Atoi(r.Metadata[metaPageNumber])
		seq, _ := strconv.Atoi(r.Metadata[metaSeq])
		hits = append(hits, ranked{
			seq: seq,
			result: models.SearchResult{
				SourceID:   r.Metadata[metaSourceID],
				PageNumber: page,
				Text:       r.Content,
				Similarity: sim,
			},
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].result.Similarity != hits[j].result.Similarity {
			return hits[i].result.Similarity > hits[j].result.Similarity
		}
		return hits[i].seq < hits[j].seq
	})
	if topK < len(hits) {
		hits = hits[:topK]
	}

	results := make([]models.SearchResult, len(hits))
	for i, h := range hits {
		results[i] = h.result
	}
	return results, nil
}

// delete collection
func (m *VectorDBManager) DeleteCollection() error {
	err := m.db.DeleteCollection(m.collection.Name)
	if err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// Representable reports whether chromem can store v. It normalizes every
// vector, so a zero vector has no direction to keep.
func Representable(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return true
		}
	}
	return false
}
