package embedding

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"document-qa/internal/config"
)

// Lazy defers building the underlying embedder until the first call.
// Concurrent first callers share a single initialization. A failed
// initialization is attempted again on the next call.
type Lazy struct {
	mu       sync.Mutex
	build    func() (embeddings.Embedder, error)
	embedder embeddings.Embedder
}

func NewLazy(build func() (embeddings.Embedder, error)) *Lazy {
	return &Lazy{build: build}
}

func (l *Lazy) get() (embeddings.Embedder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.embedder != nil {
		return l.embedder, nil
	}
	e, err := l.build()
	if err != nil {
		return nil, err
	}
	log.Info().Msg("Embedding model initialized")
	l.embedder = e
	return e, nil
}

func (l *Lazy) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	return e.EmbedDocuments(ctx, texts)
}

func (l *Lazy) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	return e.EmbedQuery(ctx, text)
}

var (
	sharedMu sync.Mutex
	shared   *Lazy
)

// Shared returns the process-wide embedder. The config of the first caller wins.
func Shared(cfg *config.LLMConfig) *Lazy {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil {
		c := *cfg
		shared = NewLazy(func() (embeddings.Embedder, error) { return New(&c) })
	}
	return shared
}
