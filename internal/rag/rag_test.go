package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

// fakeExtractor serves pages keyed by path.
type fakeExtractor map[string][]models.Page

func (f fakeExtractor) ExtractPages(path string) ([]models.Page, error) {
	pages, ok := f[path]
	if !ok {
		return nil, errors.New("cannot open " + path)
	}
	return pages, nil
}

// fakeVectorizer maps each text to a fixed vector, falling back to def.
type fakeVectorizer struct {
	vectors map[string][]float32
	def     []float32
	err     error
	batches int
}

func (f *fakeVectorizer) vec(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		return v
	}
	return f.def
}

func (f *fakeVectorizer) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.batches++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vec(t)
	}
	return out, nil
}

func (f *fakeVectorizer) EmbedOne(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec(text), nil
}

func testConfig(backend string) *config.RAGConfig {
	return &config.RAGConfig{
		ChunkSize:    800,
		ChunkOverlap: 100,
		TopK:         5,
		Threshold:    0.3,
		Backend:      backend,
	}
}

func newTestRAG(backend string) (*RAG, *fakeVectorizer) {
	extractor := fakeExtractor{
		"/docs/a.pdf":    {{Number: 1, Text: "apples"}, {Number: 2, Text: "bananas"}},
		"/docs/b.pdf":    {{Number: 3, Text: "cherries"}},
		"/docs/scan.pdf": nil,
	}
	vectorizer := &fakeVectorizer{
		vectors: map[string][]float32{
			"apples":   {1, 0},
			"bananas":  {0, 1},
			"cherries": {0.9, 0.1},
			"fruit":    {1, 0},
		},
		def: []float32{0.5, 0.5},
	}
	return NewRAG(extractor, vectorizer, testConfig(backend)), vectorizer
}

func TestBuildIndexAndSearch(t *testing.T) {
	for _, backend := range []string{models.BackendBuiltin, models.BackendChromem} {
		t.Run(backend, func(t *testing.T) {
			r, vectorizer := newTestRAG(backend)
			report, err := r.BuildIndex(context.Background(), []Source{{Path: "/docs/a.pdf"}, {Path: "/docs/b.pdf"}})
			if err != nil {
				t.Fatalf("BuildIndex() error = %v", err)
			}
			if report.Chunks != 3 || len(report.Indexed) != 2 || len(report.Skipped) != 0 {
				t.Errorf("report = %+v", report)
			}
			if vectorizer.batches != 1 {
				t.Errorf("EmbedBatch called %d times, want 1", vectorizer.batches)
			}

			results, err := r.Search(context.Background(), "fruit", SearchOptions{TopK: 2, Threshold: 0.5})
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(results) != 2 {
				t.Fatalf("got %d results, want 2", len(results))
			}
			if results[0].Text != "apples" || results[0].SourceID != "a.pdf" || results[0].PageNumber != 1 {
				t.Errorf("first result = %+v", results[0])
			}
			if results[1].Text != "cherries" || results[1].SourceID != "b.pdf" || results[1].PageNumber != 3 {
				t.Errorf("second result = %+v", results[1])
			}

			stats := r.Stats()
			if stats.Backend != backend || stats.Chunks != 3 || stats.Dimension != 2 || stats.BuiltAt.IsZero() {
				t.Errorf("Stats() = %+v", stats)
			}
		})
	}
}

func TestBuildIndex_SkipsFailedDocuments(t *testing.T) {
	r, _ := newTestRAG(models.BackendBuiltin)
	report, err := r.BuildIndex(context.Background(), []Source{
		{Path: "/docs/a.pdf"},
		{ID: "scanned", Path: "/docs/scan.pdf"},
		{Path: "/docs/missing.pdf"},
	})
	if err != nil {
		t.Fatalf("BuildIndex() error = %v", err)
	}
	if report.Chunks != 2 || len(report.Indexed) != 1 {
		t.Errorf("report = %+v", report)
	}
	if len(report.Skipped) != 2 {
		t.Fatalf("skipped = %+v, want 2 entries", report.Skipped)
	}
	if report.Skipped[0].Source != "scanned" || !strings.Contains(report.Skipped[0].Reason, "no extractable text") {
		t.Errorf("skipped[0] = %+v", report.Skipped[0])
	}
	if report.Skipped[1].Source != "missing.pdf" {
		t.Errorf("skipped[1] = %+v", report.Skipped[1])
	}
}

func TestBuildIndex_NoText(t *testing.T) {
	r, vectorizer := newTestRAG(models.BackendBuiltin)
	_, err := r.BuildIndex(context.Background(), []Source{{Path: "/docs/scan.pdf"}})

	var extractErr *models.ExtractionError
	if !errors.As(err, &extractErr) || !errors.Is(err, models.ErrNoText) {
		t.Fatalf("BuildIndex() error = %v, want ExtractionError(ErrNoText)", err)
	}
	if vectorizer.batches != 0 {
		t.Error("nothing should be embedded when no document has text")
	}
}

func TestBuildIndex_NoDocuments(t *testing.T) {
	r, _ := newTestRAG(models.BackendBuiltin)
	if _, err := r.BuildIndex(context.Background(), nil); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("BuildIndex() error = %v, want ErrInvalidArgument", err)
	}
}

func TestBuildIndex_InvalidChunking(t *testing.T) {
	extractor := fakeExtractor{"/a.txt": {{Number: 1, Text: "text"}}}
	cfg := testConfig(models.BackendBuiltin)
	cfg.ChunkOverlap = cfg.ChunkSize
	r := NewRAG(extractor, &fakeVectorizer{def: []float32{1}}, cfg)

	if _, err := r.BuildIndex(context.Background(), []Source{{Path: "/a.txt"}}); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("BuildIndex() error = %v, want ErrInvalidArgument", err)
	}
}

func TestBuildIndex_InvalidChunkingFailsBeforeExtraction(t *testing.T) {
	cfg := testConfig(models.BackendBuiltin)
	cfg.ChunkSize, cfg.ChunkOverlap = 10, 10
	vectorizer := &fakeVectorizer{def: []float32{1}}
	r := NewRAG(fakeExtractor{}, vectorizer, cfg)

	report, err := r.BuildIndex(context.Background(), []Source{{Path: "/a.pdf"}, {Path: "/b.pdf"}})
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Fatalf("BuildIndex() error = %v, want ErrInvalidArgument", err)
	}
	var extractErr *models.ExtractionError
	if errors.As(err, &extractErr) {
		t.Errorf("BuildIndex() error = %v, should not be an extraction error", err)
	}
	if report != nil || vectorizer.batches != 0 {
		t.Errorf("report = %+v, batches = %d, want nothing processed", report, vectorizer.batches)
	}
}

func TestSource_SourceID(t *testing.T) {
	if got := (Source{Path: "/docs/manual.pdf"}).SourceID(); got != "manual.pdf" {
		t.Errorf("SourceID() = %s, want manual.pdf", got)
	}
	if got := (Source{ID: "custom", Path: "/docs/manual.pdf"}).SourceID(); got != "custom" {
		t.Errorf("SourceID() = %s, want custom", got)
	}
}

func TestBuildIndex_EmbeddingFailureKeepsOldIndex(t *testing.T) {
	r, vectorizer := newTestRAG(models.BackendBuiltin)
	if _, err := r.BuildIndex(context.Background(), []Source{{Path: "/docs/a.pdf"}}); err != nil {
		t.Fatalf("BuildIndex() error = %v", err)
	}

	vectorizer.err = errors.New("model offline")
	_, err := r.BuildIndex(context.Background(), []Source{{Path: "/docs/b.pdf"}})
	var embErr *models.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("BuildIndex() error = %v, want EmbeddingError", err)
	}

	stats := r.Stats()
	if stats.Chunks != 2 || len(stats.Sources) != 1 || stats.Sources[0] != "a.pdf" {
		t.Errorf("Stats() = %+v, want the previous index", stats)
	}

	vectorizer.err = nil
	results, err := r.Search(context.Background(), "fruit", r.DefaultSearchOptions())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) == 0 || results[0].Text != "apples" {
		t.Errorf("Search() = %+v, want results from the previous index", results)
	}
}

func TestBuildIndex_ReplacesIndex(t *testing.T) {
	r, _ := newTestRAG(models.BackendChromem)
	ctx := context.Background()
	if _, err := r.BuildIndex(ctx, []Source{{Path: "/docs/a.pdf"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.BuildIndex(ctx, []Source{{Path: "/docs/b.pdf"}}); err != nil {
		t.Fatal(err)
	}

	results, err := r.Search(ctx, "fruit", SearchOptions{TopK: 5, Threshold: -1})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].Text != "cherries" {
		t.Errorf("Search() = %+v, want only the rebuilt index", results)
	}
}

func TestSearch_Validation(t *testing.T) {
	r, _ := newTestRAG(models.BackendBuiltin)
	ctx := context.Background()

	if _, err := r.Search(ctx, "   ", r.DefaultSearchOptions()); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("blank query error = %v, want ErrInvalidArgument", err)
	}
	if _, err := r.Search(ctx, "fruit", SearchOptions{TopK: 0}); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("top k 0 error = %v, want ErrInvalidArgument", err)
	}

	results, err := r.Search(ctx, "fruit", r.DefaultSearchOptions())
	if err != nil {
		t.Fatalf("Search() on empty index error = %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("Search() on empty index = %v, want empty slice", results)
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	for _, backend := range []string{models.BackendBuiltin, models.BackendChromem} {
		t.Run(backend, func(t *testing.T) {
			r, vectorizer := newTestRAG(backend)
			if _, err := r.BuildIndex(context.Background(), []Source{{Path: "/docs/a.pdf"}}); err != nil {
				t.Fatal(err)
			}
			vectorizer.vectors["odd"] = []float32{1, 0, 0}
			if _, err := r.Search(context.Background(), "odd", r.DefaultSearchOptions()); !errors.Is(err, models.ErrDimensionMismatch) {
				t.Errorf("Search() error = %v, want ErrDimensionMismatch", err)
			}
		})
	}
}

func TestSearch_SourceFilter(t *testing.T) {
	for _, backend := range []string{models.BackendBuiltin, models.BackendChromem} {
		t.Run(backend, func(t *testing.T) {
			r, _ := newTestRAG(backend)
			if _, err := r.BuildIndex(context.Background(), []Source{{Path: "/docs/a.pdf"}, {Path: "/docs/b.pdf"}}); err != nil {
				t.Fatal(err)
			}

			results, err := r.Search(context.Background(), "fruit", SearchOptions{TopK: 5, Threshold: -1, SourceID: "b.pdf"})
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(results) != 1 || results[0].SourceID != "b.pdf" {
				t.Errorf("Search() = %+v, want only b.pdf", results)
			}
		})
	}
}

func TestChromemFallsBackOnZeroVectors(t *testing.T) {
	r, vectorizer := newTestRAG(models.BackendChromem)
	vectorizer.vectors["bananas"] = []float32{0, 0}
	if _, err := r.BuildIndex(context.Background(), []Source{{Path: "/docs/a.pdf"}}); err != nil {
		t.Fatalf("BuildIndex() error = %v", err)
	}
	if got := r.Stats().Backend; got != models.BackendBuiltin {
		t.Errorf("Backend = %s, want builtin fallback", got)
	}

	results, err := r.Search(context.Background(), "fruit", SearchOptions{TopK: 5, Threshold: -1})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 || results[1].Similarity != 0 {
		t.Errorf("Search() = %+v, want zero vector scored 0", results)
	}
}

func TestClear(t *testing.T) {
	r, _ := newTestRAG(models.BackendChromem)
	if _, err := r.BuildIndex(context.Background(), []Source{{Path: "/docs/a.pdf"}}); err != nil {
		t.Fatal(err)
	}

	r.Clear()
	stats := r.Stats()
	if stats.Chunks != 0 || len(stats.Sources) != 0 || !stats.BuiltAt.IsZero() {
		t.Errorf("Stats() after Clear = %+v", stats)
	}
	results, err := r.Search(context.Background(), "fruit", r.DefaultSearchOptions())
	if err != nil || len(results) != 0 {
		t.Errorf("Search() after Clear = %v, %v", results, err)
	}
}
