// Package summarizer produces chunk and document summaries with a
// map-reduce over the language model.
package summarizer

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"docchat/internal/ai"
	"docchat/internal/apperr"
	"docchat/internal/chunker"
	"docchat/internal/pkg/tokens"
)

// Completer is the model call the summarizer depends on. Retrying transient
// failures is the completer's job.
type Completer interface {
	Complete(ctx context.Context, messages []ai.ChatMessage, maxTokens int) (string, error)
}

type Options struct {
	Concurrency        int
	ChunkMaxTokens     int
	DocumentMaxTokens  int
	ReduceBudgetTokens int
	MaxDepth           int
}

type Result struct {
	// ChunkSummaries holds one summary per input chunk, in chunk order.
	ChunkSummaries []string
	Document       string
	// Levels counts the pairwise reduce rounds that were needed.
	Levels int
}

type Summarizer struct {
	llm  Completer
	opts Options
}

func New(llm Completer, opts Options) *Summarizer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.ChunkMaxTokens <= 0 {
		opts.ChunkMaxTokens = 300
	}
	if opts.DocumentMaxTokens <= 0 {
		opts.DocumentMaxTokens = 600
	}
	if opts.ReduceBudgetTokens <= 0 {
		opts.ReduceBudgetTokens = 3000
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 8
	}
	return &Summarizer{llm: llm, opts: opts}
}

// Summarize fails as a whole: either every chunk summary and the document
// summary are produced, or the error matches apperr.ErrSummarizationFailed.
func (s *Summarizer) Summarize(ctx context.Context, chunks []chunker.Chunk) (*Result, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks", apperr.ErrSummarizationFailed)
	}

	summaries, err := s.mapChunks(ctx, chunks)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrSummarizationFailed, "summarize chunks", err)
	}
	res := &Result{ChunkSummaries: summaries}

	if len(summaries) == 1 {
		res.Document = tokens.Truncate(summaries[0], s.opts.DocumentMaxTokens)
		return res, nil
	}

	doc, levels, err := s.reduce(ctx, summaries)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrSummarizationFailed, "reduce summaries", err)
	}
	res.Document = doc
	res.Levels = levels
	return res, nil
}

func (s *Summarizer) mapChunks(ctx context.Context, chunks []chunker.Chunk) ([]string, error) {
	out := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i := range chunks {
		i := i
		g.Go(func() error {
			text, err := s.complete(gctx, chunkPrompt(chunks[i], len(chunks)), s.opts.ChunkMaxTokens)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", chunks[i].Index, err)
			}
			out[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// reduce folds the level until its concatenation fits the reduce budget,
// combining adjacent summaries so document order is kept, then asks for the
// final summary.
func (s *Summarizer) reduce(ctx context.Context, level []string) (string, int, error) {
	depth := 0
	for {
		joined := joinSummaries(level)
		if tokens.Estimate(joined) <= s.opts.ReduceBudgetTokens {
			break
		}
		if len(level) == 1 {
			level[0] = tokens.Truncate(level[0], s.opts.ReduceBudgetTokens)
			break
		}
		if depth >= s.opts.MaxDepth {
			return "", depth, fmt.Errorf("summaries still exceed %d tokens after %d levels", s.opts.ReduceBudgetTokens, depth)
		}

		next, err := s.combinePairs(ctx, level)
		if err != nil {
			return "", depth, fmt.Errorf("level %d: %w", depth+1, err)
		}
		level = next
		depth++
	}

	doc, err := s.complete(ctx, finalPrompt(joinSummaries(level)), s.opts.DocumentMaxTokens)
	if err != nil {
		return "", depth, fmt.Errorf("document summary: %w", err)
	}
	return tokens.Truncate(doc, s.opts.DocumentMaxTokens), depth, nil
}

func (s *Summarizer) combinePairs(ctx context.Context, level []string) ([]string, error) {
	next := make([]string, (len(level)+1)/2)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i := 0; i < len(level); i += 2 {
		if i+1 == len(level) {
			next[i/2] = level[i]
			continue
		}
		i := i
		g.Go(func() error {
			text, err := s.complete(gctx, combinePrompt(level[i], level[i+1]), s.opts.ChunkMaxTokens)
			if err != nil {
				return err
			}
			next[i/2] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *Summarizer) complete(ctx context.Context, messages []ai.ChatMessage, maxTokens int) (string, error) {
	text, err := s.llm.Complete(ctx, messages, maxTokens)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("model returned an empty summary")
	}
	return text, nil
}

func joinSummaries(parts []string) string {
	return strings.Join(parts, "\n\n")
}
