package retrieval

import (
	"context"
	"math"
	"regexp"
	"strings"

	"docchat/internal/model"
)

var termPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

var stopwords = func() map[string]struct{} {
	words := strings.Fields(`a an and are as at be by for from has have how i in is it its of on or
		that the this to was were what when where which who why will with you your do does did can`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// TFIDFRanker scores chunks by TF-IDF cosine similarity, with document
// frequencies taken from the chunks of the one document being ranked.
type TFIDFRanker struct{}

func NewTFIDFRanker() *TFIDFRanker {
	return &TFIDFRanker{}
}

func (r *TFIDFRanker) Rank(_ context.Context, question string, chunks []model.Chunk) ([]float64, error) {
	termCounts := make([]map[string]int, len(chunks))
	df := make(map[string]int)
	for i := range chunks {
		termCounts[i] = countTerms(chunks[i].Text)
		for term := range termCounts[i] {
			df[term]++
		}
	}

	n := float64(len(chunks))
	idf := func(term string) float64 {
		return math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	query := weigh(countTerms(question), idf)
	scores := make([]float64, len(chunks))
	if len(query) == 0 {
		return scores, nil
	}
	for i := range chunks {
		scores[i] = sparseCosine(query, weigh(termCounts[i], idf))
	}
	return scores, nil
}

func countTerms(text string) map[string]int {
	counts := make(map[string]int)
	for _, tok := range termPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		counts[tok]++
	}
	return counts
}

func weigh(counts map[string]int, idf func(string) float64) map[string]float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	vec := make(map[string]float64, len(counts))
	for term, c := range counts {
		vec[term] = float64(c) / float64(total) * idf(term)
	}
	return vec
}

func sparseCosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for term, va := range a {
		normA += va * va
		if vb, ok := b[term]; ok {
			dot += va * vb
		}
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
