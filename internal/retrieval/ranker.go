// Package retrieval ranks a document's chunks against a question and
// assembles the bounded context handed to the model.
package retrieval

import (
	"context"
	"log"
	"math"

	"docchat/internal/model"
)

// Ranker scores every chunk against the question. Higher is more relevant;
// the result has one score per chunk, in input order.
type Ranker interface {
	Rank(ctx context.Context, question string, chunks []model.Chunk) ([]float64, error)
}

// QueryEmbedder embeds a question with the same model used for chunks.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingRanker scores chunks by cosine similarity between the question
// embedding and the stored chunk embeddings. When any chunk has no vector,
// or the question cannot be embedded, the whole ranking falls back so that
// scores stay comparable.
type EmbeddingRanker struct {
	embedder QueryEmbedder
	fallback Ranker
}

func NewEmbeddingRanker(embedder QueryEmbedder, fallback Ranker) *EmbeddingRanker {
	if fallback == nil {
		fallback = NewTFIDFRanker()
	}
	return &EmbeddingRanker{embedder: embedder, fallback: fallback}
}

func (r *EmbeddingRanker) Rank(ctx context.Context, question string, chunks []model.Chunk) ([]float64, error) {
	vectors := make([][]float32, len(chunks))
	for i := range chunks {
		vectors[i] = chunks[i].EmbeddingVector()
		if len(vectors[i]) == 0 {
			return r.fallback.Rank(ctx, question, chunks)
		}
	}

	query, err := r.embedder.Embed(ctx, question)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("embed question failed, ranking with tf-idf: %v", err)
		return r.fallback.Rank(ctx, question, chunks)
	}

	scores := make([]float64, len(chunks))
	for i := range vectors {
		scores[i] = cosineSimilarity(query, vectors[i])
	}
	return scores, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
