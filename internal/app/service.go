// Package app exposes the document chat operations: ingest, ask, session
// listing, history and deletion.
package app

import (
	"context"
	"time"

	"docchat/internal/chunker"
	"docchat/internal/conversation"
	"docchat/internal/extract"
	"docchat/internal/model"
	"docchat/internal/repository"
	"docchat/internal/summarizer"
)

const (
	defaultSessionListLimit = 20
	defaultIngestTimeout    = 5 * time.Minute
	// DashScope and similar APIs often limit batch size.
	defaultEmbeddingBatchSize   = 10
	defaultEmbeddingConcurrency = 2
)

type Extractor interface {
	Extract(ctx context.Context, src extract.Source) (*extract.Result, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, chunks []chunker.Chunk) (*summarizer.Result, error)
}

type Embedder interface {
	EmbeddingsEnabled() bool
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type IngestPublisher interface {
	PublishIngest(ctx context.Context, job model.IngestJob) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID string) ([]model.Turn, bool, error)
	Version(ctx context.Context, sessionID string) (int64, error)
	FillHistory(ctx context.Context, sessionID string, version int64, turns []model.Turn) (bool, error)
	Invalidate(ctx context.Context, sessionID string) error
}

// Deps are the collaborators of Service. Embedder, Publisher and
// HistoryCache are optional; leave them nil to disable embeddings,
// background ingestion and the history cache.
type Deps struct {
	Sessions     *repository.SessionRepository
	Documents    *repository.DocumentRepository
	Turns        *repository.TurnRepository
	Extractor    Extractor
	Chunker      *chunker.Chunker
	Summarizer   Summarizer
	Engine       *conversation.Engine
	Embedder     Embedder
	Publisher    IngestPublisher
	HistoryCache HistoryCache
}

type Options struct {
	IngestTimeout        time.Duration
	SessionListLimit     int
	EmbeddingBatchSize   int
	EmbeddingConcurrency int
}

type Service struct {
	sessions     *repository.SessionRepository
	documents    *repository.DocumentRepository
	turns        *repository.TurnRepository
	extractor    Extractor
	chunker      *chunker.Chunker
	summarizer   Summarizer
	engine       *conversation.Engine
	embedder     Embedder
	publisher    IngestPublisher
	historyCache HistoryCache
	opts         Options
}

func NewService(deps Deps, opts Options) *Service {
	if opts.IngestTimeout <= 0 {
		opts.IngestTimeout = defaultIngestTimeout
	}
	if opts.SessionListLimit <= 0 {
		opts.SessionListLimit = defaultSessionListLimit
	}
	if opts.EmbeddingBatchSize <= 0 {
		opts.EmbeddingBatchSize = defaultEmbeddingBatchSize
	}
	if opts.EmbeddingConcurrency <= 0 {
		opts.EmbeddingConcurrency = defaultEmbeddingConcurrency
	}
	return &Service{
		sessions:     deps.Sessions,
		documents:    deps.Documents,
		turns:        deps.Turns,
		extractor:    deps.Extractor,
		chunker:      deps.Chunker,
		summarizer:   deps.Summarizer,
		engine:       deps.Engine,
		embedder:     deps.Embedder,
		publisher:    deps.Publisher,
		historyCache: deps.HistoryCache,
		opts:         opts,
	}
}
