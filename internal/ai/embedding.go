package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// EmbeddingsEnabled reports whether an embedding model is configured.
func (c *OpenAICompatibleClient) EmbeddingsEnabled() bool {
	return c.cfg.EmbeddingModel != ""
}

// Embed returns the embedding vector for the given text.
func (c *OpenAICompatibleClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors[0]) == 0 {
		return nil, errors.New("empty embedding in response")
	}
	return vectors[0], nil
}

// EmbedBatch returns one embedding per input, in input order. Blank inputs
// are rejected rather than skipped so the result lines up with texts.
func (c *OpenAICompatibleClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.EmbeddingsEnabled() {
		return nil, errors.New("no embedding model configured")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = strings.TrimSpace(t)
		if input[i] == "" {
			return nil, fmt.Errorf("embedding input %d is empty", i)
		}
	}

	reqBody := map[string]interface{}{
		"model": c.cfg.EmbeddingModel,
		"input": input,
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	err := c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		return c.postJSON(ctx, "/embeddings", reqBody, &parsed)
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(parsed.Data) != len(input) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(parsed.Data), len(input))
	}

	result := make([][]float32, len(input))
	for i, d := range parsed.Data {
		idx := d.Index
		if idx < 0 || idx >= len(result) {
			idx = i
		}
		result[idx] = d.Embedding
	}
	return result, nil
}
