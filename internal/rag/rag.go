package rag

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"document-qa/internal/chromemdb"
	"document-qa/internal/config"
	"document-qa/internal/models"
	"document-qa/internal/parser"
	"document-qa/internal/search"
	"document-qa/internal/store"
)

const collectionName = "documents"

// Vectorizer turns text into vectors of one fixed dimension.
type Vectorizer interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Source is one document to index. ID defaults to the file name.
type Source struct {
	ID   string
	Path string
}

// SourceID is the id chunks of this document carry.
func (s Source) SourceID() string {
	if s.ID != "" {
		return s.ID
	}
	return filepath.Base(s.Path)
}

// SkippedSource records a document that contributed no chunks.
type SkippedSource struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// BuildReport summarizes an index build.
type BuildReport struct {
	Chunks  int             `json:"chunks"`
	Indexed []string        `json:"indexed"`
	Skipped []SkippedSource `json:"skipped,omitempty"`
}

type SearchOptions struct {
	TopK      int
	Threshold float64
	// SourceID restricts the search to one document when set.
	SourceID string
}

// index is an immutable, fully vectorized snapshot.
type index struct {
	collection *store.Collection
	chromem    *chromemdb.VectorDBManager
	builtAt    time.Time
}

// RAG owns the active index of one session.
type RAG struct {
	extractor  parser.Extractor
	vectorizer Vectorizer
	cfg        config.RAGConfig
	index      atomic.Pointer[index]
}

func NewRAG(extractor parser.Extractor, vectorizer Vectorizer, cfg *config.RAGConfig) *RAG {
	r := &RAG{extractor: extractor, vectorizer: vectorizer, cfg: *cfg}
	r.index.Store(&index{collection: store.NewCollection()})
	return r
}

// DefaultSearchOptions returns the configured top-k and threshold.
func (r *RAG) DefaultSearchOptions() SearchOptions {
	return SearchOptions{TopK: r.cfg.TopK, Threshold: r.cfg.Threshold}
}

// BuildIndex chunks and embeds docs and replaces the active index. Documents
// without text are skipped and reported. On error the previous index stays active.
func (r *RAG) BuildIndex(ctx context.Context, docs []Source) (*BuildReport, error) {
	if len(docs) == 0 {
		return nil, models.InvalidArgument("no documents to index")
	}
	if err := parser.ValidateChunking(r.cfg.ChunkSize, r.cfg.ChunkOverlap); err != nil {
		return nil, err
	}

	report := &BuildReport{}
	var chunks []models.Chunk
	for _, doc := range docs {
		id := doc.SourceID()
		docChunks, err := parser.ProcessDocument(r.extractor, doc.Path, id, r.cfg.ChunkSize, r.cfg.ChunkOverlap)
		if errors.Is(err, models.ErrInvalidArgument) {
			return nil, err
		}
		if err == nil && len(docChunks) == 0 {
			err = &models.ExtractionError{Source: id, Err: models.ErrNoText}
		}
		if err != nil {
			log.Warn().Err(err).Str("source", id).Msg("Skipping document")
			report.Skipped = append(report.Skipped, SkippedSource{Source: id, Reason: err.Error()})
			continue
		}
		log.Info().Str("source", id).Int("chunks", len(docChunks)).Msg("Processed document")
		report.Indexed = append(report.Indexed, id)
		chunks = append(chunks, docChunks...)
	}

	if len(chunks) == 0 {
		ids := make([]string, len(docs))
		for i, doc := range docs {
			ids[i] = doc.SourceID()
		}
		return report, &models.ExtractionError{Source: strings.Join(ids, ", "), Err: models.ErrNoText}
	}

	next, err := r.buildIndex(ctx, chunks)
	if err != nil {
		return report, err
	}
	report.Chunks = next.collection.Len()

	old := r.index.Swap(next)
	dropChromem(old)
	log.Info().Int("chunks", report.Chunks).Int("documents", len(report.Indexed)).
		Int("skipped", len(report.Skipped)).Str("backend", next.backend()).Msg("Index built")
	return report, nil
}

func (r *RAG) buildIndex(ctx context.Context, chunks []models.Chunk) (*index, error) {
	collection := store.NewCollection()
	if err := collection.Append(chunks...); err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := r.vectorizer.EmbedBatch(ctx, texts)
	if err != nil {
		var embErr *models.EmbeddingError
		if errors.As(err, &embErr) {
			return nil, err
		}
		return nil, &models.EmbeddingError{Op: "embed batch", Err: err}
	}
	if err := collection.AttachVectors(vectors); err != nil {
		return nil, &models.EmbeddingError{Op: "attach vectors", Err: err}
	}

	next := &index{collection: collection, builtAt: time.Now()}
	if r.cfg.Backend == models.BackendChromem {
		next.chromem, err = r.buildChromem(ctx, collection)
		if err != nil {
			return nil, err
		}
	}
	return next, nil
}

// buildChromem mirrors the collection into chromem. It returns nil when some
// vector cannot be stored there, leaving searches on the builtin engine.
func (r *RAG) buildChromem(ctx context.Context, collection *store.Collection) (*chromemdb.VectorDBManager, error) {
	chunks := collection.Chunks()
	for _, c := range chunks {
		if !chromemdb.Representable(c.Vector) {
			log.Warn().Str("source", c.SourceID).Int("page", c.PageNumber).
				Msg("Zero vector in index, using builtin search instead of chromem")
			return nil, nil
		}
	}

	mgr, err := chromemdb.NewVectorDBManager(collectionName)
	if err != nil {
		return nil, err
	}
	if err := mgr.IndexChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("mirror index to chromem: %w", err)
	}
	return mgr, nil
}

// Search embeds query and returns the most similar chunks of the active index.
func (r *RAG) Search(ctx context.Context, query string, opts SearchOptions) ([]models.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, models.InvalidArgument("empty query")
	}
	if opts.TopK < 1 {
		return nil, models.InvalidArgument("top k must be at least 1, got %d", opts.TopK)
	}

	idx := r.index.Load()
	if idx.collection.Len() == 0 {
		log.Debug().Msg("Search on empty index")
		return []models.SearchResult{}, nil
	}

	vec, err := r.vectorizer.EmbedOne(ctx, query)
	if err != nil {
		return nil, err
	}
	if dim := idx.collection.Dimension(); len(vec) != dim {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d", models.ErrDimensionMismatch, len(vec), dim)
	}

	if idx.chromem != nil && chromemdb.Representable(vec) {
		return idx.chromem.Search(ctx, vec, opts.TopK, opts.Threshold, opts.SourceID)
	}

	chunks := idx.collection.Chunks()
	if opts.SourceID != "" {
		chunks = idx.collection.Filter(func(c models.Chunk) bool { return c.SourceID == opts.SourceID })
	}
	return search.Search(chunks, vec, opts.TopK, opts.Threshold)
}

// Clear drops the active index.
func (r *RAG) Clear() {
	old := r.index.Swap(&index{collection: store.NewCollection()})
	dropChromem(old)
	log.Info().Msg("Index cleared")
}

func (r *RAG) Stats() models.IndexStats {
	idx := r.index.Load()
	return models.IndexStats{
		Chunks:    idx.collection.Len(),
		Sources:   idx.collection.Sources(),
		Dimension: idx.collection.Dimension(),
		Backend:   idx.backend(),
		BuiltAt:   idx.builtAt,
	}
}

func (i *index) backend() string {
	if i.chromem != nil {
		return models.BackendChromem
	}
	return models.BackendBuiltin
}

func dropChromem(i *index) {
	if i == nil || i.chromem == nil {
		return
	}
	if err := i.chromem.DeleteCollection(); err != nil {
		log.Warn().Err(err).Msg("Failed to drop chromem collection")
	}
}
