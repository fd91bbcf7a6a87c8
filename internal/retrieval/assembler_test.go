package retrieval

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/model"
	"docchat/internal/pkg/tokens"
)

type fixedRanker struct {
	scores []float64
	err    error
	calls  int
}

func (r *fixedRanker) Rank(context.Context, string, []model.Chunk) ([]float64, error) {
	r.calls++
	return r.scores, r.err
}

func chunksOf(texts ...string) []model.Chunk {
	out := make([]model.Chunk, len(texts))
	for i, t := range texts {
		out[i] = model.Chunk{ChunkIndex: i, Text: t}
	}
	return out
}

func TestAssembleUsesRawTextWhenItFits(t *testing.T) {
	ranker := &fixedRanker{}
	a := NewAssembler(ranker)

	out, err := a.Assemble(context.Background(), Input{
		RawText:      "short document body",
		Summary:      "a summary",
		Chunks:       chunksOf("short document body"),
		Question:     "what?",
		BudgetTokens: 200,
	})
	require.NoError(t, err)
	assert.True(t, out.FullText)
	assert.Equal(t, "short document body", out.Body)
	assert.Equal(t, "a summary", out.Summary)
	assert.Zero(t, ranker.calls)
	assert.True(t, strings.HasPrefix(out.Text(), "Document summary:\na summary"))
}

func TestAssembleRanksChunks(t *testing.T) {
	chunks := chunksOf(
		strings.Repeat("weather forecast rain clouds ", 10),
		strings.Repeat("stock market shares prices ", 10),
		strings.Repeat("goroutines channels scheduler ", 10),
		strings.Repeat("football league match goals ", 10),
	)
	raw := ""
	for _, c := range chunks {
		raw += c.Text
	}

	out, err := NewAssembler(nil).Assemble(context.Background(), Input{
		RawText:      raw,
		Chunks:       chunks,
		Question:     "How does the Go scheduler treat goroutines and channels?",
		BudgetTokens: 170,
	})
	require.NoError(t, err)
	assert.False(t, out.FullText)
	require.NotEmpty(t, out.ChunkIndexes)
	assert.Equal(t, 2, out.ChunkIndexes[0])
	assert.Len(t, out.ChunkIndexes, 2)
	assert.LessOrEqual(t, tokens.Estimate(out.Text()), 170)
}

func TestAssembleTiesPreferLowerIndex(t *testing.T) {
	chunks := chunksOf(strings.Repeat("a", 40), strings.Repeat("b", 40), strings.Repeat("c", 40), strings.Repeat("d", 40))
	ranker := &fixedRanker{scores: []float64{0.5, 0.9, 0.5, 0.5}}

	out, err := NewAssembler(ranker).Assemble(context.Background(), Input{
		RawText:      "x" + strings.Repeat("y", 400),
		Chunks:       chunks,
		BudgetTokens: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 2}, out.ChunkIndexes)
	assert.Equal(t, strings.Repeat("b", 40)+excerptSeparator+strings.Repeat("a", 40)+excerptSeparator+strings.Repeat("c", 40), out.Body)
}

func TestAssembleStopsAtFirstChunkThatDoesNotFit(t *testing.T) {
	chunks := chunksOf(strings.Repeat("a", 20), strings.Repeat("b", 400), strings.Repeat("c", 20))
	ranker := &fixedRanker{scores: []float64{0.9, 0.8, 0.7}}

	out, err := NewAssembler(ranker).Assemble(context.Background(), Input{
		RawText:      strings.Repeat("z", 1000),
		Chunks:       chunks,
		BudgetTokens: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, out.ChunkIndexes)
}

func TestAssembleSummaryAlwaysLeads(t *testing.T) {
	out, err := NewAssembler(&fixedRanker{scores: []float64{1}}).Assemble(context.Background(), Input{
		RawText:      strings.Repeat("w", 2000),
		Summary:      strings.Repeat("s", 2000),
		Chunks:       chunksOf(strings.Repeat("w", 2000)),
		BudgetTokens: 100,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Summary)
	assert.Empty(t, out.Body)
	assert.LessOrEqual(t, tokens.Estimate(out.Text()), 100)
}

func TestAssembleRankerError(t *testing.T) {
	_, err := NewAssembler(&fixedRanker{err: errors.New("boom")}).Assemble(context.Background(), Input{
		RawText:      strings.Repeat("w", 2000),
		Chunks:       chunksOf("a", "b"),
		BudgetTokens: 100,
	})
	assert.Error(t, err)
}

func TestAssembleNeverExceedsBudget(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := NewAssembler(nil)
	for iter := 0; iter < 200; iter++ {
		var texts []string
		for i := rng.Intn(8) + 1; i > 0; i-- {
			texts = append(texts, strings.Repeat("lorem ipsum ", rng.Intn(60)+1))
		}
		in := Input{
			RawText:      strings.Join(texts, ""),
			Summary:      strings.Repeat("sum ", rng.Intn(80)),
			Chunks:       chunksOf(texts...),
			Question:     "lorem?",
			BudgetTokens: rng.Intn(300),
		}
		out, err := a.Assemble(context.Background(), in)
		require.NoError(t, err)
		assert.LessOrEqual(t, tokens.Estimate(out.Text()), in.BudgetTokens)
	}
}
