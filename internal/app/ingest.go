package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docchat/internal/apperr"
	"docchat/internal/chunker"
	"docchat/internal/extract"
	"docchat/internal/model"
	"docchat/internal/summarizer"
)

const releaseTimeout = 5 * time.Second

type IngestInput struct {
	Source extract.Source
	// SessionID re-ingests into an existing session; empty creates one.
	SessionID string
	// Async queues the work and returns with status pending.
	Async bool
}

type IngestResult struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	Status    string `json:"status"`
	Chunks    int    `json:"chunks"`
}

// Ingest extracts, chunks and summarizes the source and binds the result to a
// session. Nothing is persisted unless every step succeeds.
func (s *Service) Ingest(ctx context.Context, in IngestInput) (*IngestResult, error) {
	if in.Source == nil {
		return nil, fmt.Errorf("%w: no source", apperr.ErrInvalidInput)
	}
	if in.Async {
		return s.enqueue(ctx, in)
	}
	if in.SessionID == "" {
		return s.ingestNew(ctx, in.Source)
	}
	return s.reingest(ctx, in.SessionID, in.Source)
}

func (s *Service) ingestNew(ctx context.Context, src extract.Source) (*IngestResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.IngestTimeout)
	defer cancel()

	bundle, err := s.buildBundle(ctx, src)
	if err != nil {
		return nil, err
	}
	session := &model.Session{ID: uuid.NewString()}
	if err := s.documents.CreateBound(ctx, session, bundle); err != nil {
		return nil, err
	}
	log.Printf("ingested %s %q into session %s (%d chunks)", src.Kind(), src.Ref(), session.ID, len(bundle.Chunks))
	return newIngestResult(session.ID, bundle), nil
}

func (s *Service) reingest(ctx context.Context, sessionID string, src extract.Source) (*IngestResult, error) {
	if err := s.sessions.Transition(ctx, sessionID, model.StateIdle, model.StateIngesting); err != nil {
		return nil, err
	}
	defer s.release(ctx, sessionID, model.StateIngesting)

	ctx, cancel := context.WithTimeout(ctx, s.opts.IngestTimeout)
	defer cancel()

	bundle, err := s.buildBundle(ctx, src)
	if err != nil {
		return nil, err
	}
	if err := s.documents.Bind(ctx, sessionID, bundle); err != nil {
		return nil, err
	}
	s.invalidateHistory(ctx, sessionID)
	log.Printf("re-ingested %s %q into session %s (%d chunks)", src.Kind(), src.Ref(), sessionID, len(bundle.Chunks))
	return newIngestResult(sessionID, bundle), nil
}

func (s *Service) enqueue(ctx context.Context, in IngestInput) (*IngestResult, error) {
	if s.publisher == nil {
		return nil, fmt.Errorf("%w: background ingestion needs rabbitmq", apperr.ErrInvalidConfiguration)
	}
	job := model.IngestJob{
		SessionID:  in.SessionID,
		SourceKind: in.Source.Kind(),
		SourceRef:  in.Source.Ref(),
	}
	switch src := in.Source.(type) {
	case extract.PDFSource:
		job.Data = src.Data
	case *extract.PDFSource:
		job.Data = src.Data
	}

	title := job.SourceRef
	if job.SessionID == "" {
		job.SessionID = uuid.NewString()
		session := &model.Session{
			ID:     job.SessionID,
			Title:  title,
			State:  model.StateIngesting,
			Status: model.StatusPending,
		}
		if err := s.sessions.Create(ctx, session); err != nil {
			return nil, err
		}
	} else {
		if err := s.sessions.BeginIngestion(ctx, job.SessionID); err != nil {
			return nil, err
		}
		if session, err := s.sessions.Get(ctx, job.SessionID); err == nil {
			title = session.Title
		}
	}

	if err := s.publisher.PublishIngest(ctx, job); err != nil {
		s.markFailed(ctx, job.SessionID, err)
		return nil, fmt.Errorf("queue ingestion failed: %w", err)
	}
	return &IngestResult{SessionID: job.SessionID, Title: title, Status: model.StatusPending}, nil
}

// ProcessIngestJob runs a queued ingestion to completion. The job only
// touches a session that is still waiting for it; a stale or duplicate job
// is dropped. The session ends up idle either way: ready with the new
// document, or failed with the reason. An interrupted job leaves the session
// pending for its redelivery.
func (s *Service) ProcessIngestJob(ctx context.Context, job model.IngestJob) error {
	if err := s.sessions.ClaimIngestion(ctx, job.SessionID); err != nil {
		if errors.Is(err, apperr.ErrSessionBusy) || errors.Is(err, apperr.ErrSessionNotFound) {
			log.Printf("drop stale ingest job for session %s: %v", job.SessionID, err)
			return nil
		}
		return err
	}

	src, err := jobSource(job)
	if err != nil {
		s.markFailed(ctx, job.SessionID, err)
		return err
	}

	jobCtx, cancel := context.WithTimeout(ctx, s.opts.IngestTimeout)
	defer cancel()

	bundle, err := s.buildBundle(jobCtx, src)
	if err == nil {
		err = s.documents.Bind(jobCtx, job.SessionID, bundle)
	}
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		s.markFailed(ctx, job.SessionID, err)
		return err
	}
	s.release(ctx, job.SessionID, model.StateIngesting)
	s.invalidateHistory(ctx, job.SessionID)
	log.Printf("background ingestion of %q into session %s done (%d chunks)", job.SourceRef, job.SessionID, len(bundle.Chunks))
	return nil
}

func jobSource(job model.IngestJob) (extract.Source, error) {
	switch job.SourceKind {
	case model.SourcePDF:
		return extract.PDFSource{Name: job.SourceRef, Data: job.Data}, nil
	case model.SourceURL:
		return extract.URLSource{URL: job.SourceRef}, nil
	}
	return nil, fmt.Errorf("%w: unknown source kind %q", apperr.ErrInvalidInput, job.SourceKind)
}

// buildBundle is the ingestion pipeline: extract, chunk, then summaries and
// embeddings side by side. Embeddings are best effort; a document without
// them is ranked by term overlap.
func (s *Service) buildBundle(ctx context.Context, src extract.Source) (*model.DocumentBundle, error) {
	res, err := s.extractor.Extract(ctx, src)
	if err != nil {
		return nil, err
	}
	chunks := s.chunker.Split(res.Text)

	var (
		summary    *summarizer.Result
		embeddings [][]float32
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = s.summarizer.Summarize(gctx, chunks)
		return err
	})
	g.Go(func() error {
		embeddings = s.embedChunks(gctx, chunks)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(summary.ChunkSummaries) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d chunk summaries for %d chunks",
			apperr.ErrSummarizationFailed, len(summary.ChunkSummaries), len(chunks))
	}
	log.Printf("summarized %d chunks of %q in %d reduce rounds", len(chunks), res.SourceRef, summary.Levels)

	bundle := &model.DocumentBundle{
		Document: model.Document{
			SourceKind:  res.SourceKind,
			SourceRef:   res.SourceRef,
			Title:       res.Title,
			RawText:     res.Text,
			Pages:       res.Pages,
			ExtractedAt: time.Now(),
		},
		Chunks:    make([]model.Chunk, len(chunks)),
		Summaries: make([]model.Summary, 0, len(chunks)+1),
	}
	for i, c := range chunks {
		bundle.Chunks[i] = model.Chunk{
			ChunkIndex:  c.Index,
			Text:        c.Text,
			StartOffset: c.Start,
			EndOffset:   c.End,
		}
		if embeddings != nil {
			bundle.Chunks[i].SetEmbedding(embeddings[i])
		}
		index := c.Index
		bundle.Summaries = append(bundle.Summaries, model.Summary{
			Level:      model.SummaryLevelChunk,
			ChunkIndex: &index,
			Text:       summary.ChunkSummaries[i],
		})
	}
	bundle.Summaries = append(bundle.Summaries, model.Summary{
		Level: model.SummaryLevelDocument,
		Text:  summary.Document,
	})
	return bundle, nil
}

// embedChunks returns one vector per chunk, or nil when embeddings are off
// or any batch fails.
func (s *Service) embedChunks(ctx context.Context, chunks []chunker.Chunk) [][]float32 {
	if s.embedder == nil || !s.embedder.EmbeddingsEnabled() || len(chunks) == 0 {
		return nil
	}

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.EmbeddingConcurrency)
	for start := 0; start < len(chunks); start += s.opts.EmbeddingBatchSize {
		start := start
		end := min(start+s.opts.EmbeddingBatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Text)
			}
			batch, err := s.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return err
			}
			if len(batch) != len(texts) {
				return errors.New("embedding count mismatch")
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() == nil {
			log.Printf("embed chunks failed, storing document without vectors: %v", err)
		}
		return nil
	}
	return vectors
}

func newIngestResult(sessionID string, bundle *model.DocumentBundle) *IngestResult {
	return &IngestResult{
		SessionID: sessionID,
		Title:     bundle.Document.Title,
		Summary:   bundle.DocumentSummary(),
		Status:    model.StatusReady,
		Chunks:    len(bundle.Chunks),
	}
}

// release runs detached from the caller so an abandoned request never leaves
// the session stuck in from.
func (s *Service) release(ctx context.Context, sessionID, from string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := s.sessions.Transition(ctx, sessionID, from, model.StateIdle); err != nil {
		log.Printf("release session %s from %s failed: %v", sessionID, from, err)
	}
}

func (s *Service) markFailed(ctx context.Context, sessionID string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	reason := strings.TrimSpace(cause.Error())
	if err := s.sessions.MarkFailed(ctx, sessionID, reason); err != nil {
		log.Printf("record ingestion failure for session %s failed: %v", sessionID, err)
	}
}
