// Package chunker splits document text into bounded, overlapping chunks.
package chunker

import (
	"fmt"
	"unicode"

	"docchat/internal/apperr"
)

// Chunk is a contiguous rune range [Start, End) of the source text.
type Chunk struct {
	Index int
	Text  string
	Start int
	End   int
}

type Chunker struct {
	maxChars  int
	overlap   int
	tolerance int
}

// New validates the sizes. overlap must be strictly below maxChars or the
// split could not make progress.
func New(maxChars, overlap int) (*Chunker, error) {
	if maxChars <= 0 {
		return nil, fmt.Errorf("%w: max chunk size %d must be positive", apperr.ErrInvalidConfiguration, maxChars)
	}
	if overlap < 0 || overlap >= maxChars {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", apperr.ErrInvalidConfiguration, overlap, maxChars)
	}
	return &Chunker{maxChars: maxChars, overlap: overlap, tolerance: maxChars / 5}, nil
}

// Split is New followed by Chunker.Split.
func Split(text string, maxChars, overlap int) ([]Chunk, error) {
	c, err := New(maxChars, overlap)
	if err != nil {
		return nil, err
	}
	return c.Split(text), nil
}

// Split cuts text into chunks of at most maxChars runes. Each chunk after the
// first starts exactly overlap runes before the previous one ended, so
// dropping those runes and concatenating gives back the input.
func (c *Chunker) Split(text string) []Chunk {
	runes := []rune(text)
	n := len(runes)
	if n <= c.maxChars {
		return []Chunk{{Index: 0, Text: text, Start: 0, End: n}}
	}

	var chunks []Chunk
	start := 0
	for {
		end := start + c.maxChars
		if end >= n {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: string(runes[start:n]), Start: start, End: n})
			return chunks
		}
		lo := end - c.tolerance
		if floor := start + c.overlap + 1; lo < floor {
			lo = floor
		}
		end = breakPoint(runes, lo, end)
		chunks = append(chunks, Chunk{Index: len(chunks), Text: string(runes[start:end]), Start: start, End: end})
		start = end - c.overlap
	}
}

// breakPoint picks a cut position in [lo, hi]. A cut at p ends the chunk
// after runes[p-1]. Paragraph breaks win over sentence ends, which win over
// line breaks, which win over any whitespace; the latest cut of the best
// class is used. Without any candidate the cut is hi.
func breakPoint(runes []rune, lo, hi int) int {
	if lo > hi || lo < 1 {
		return hi
	}
	best, bestRank := hi, 0
	for p := hi; p >= lo; p-- {
		rank := cutRank(runes, p)
		if rank > bestRank {
			best, bestRank = p, rank
			if rank == rankParagraph {
				break
			}
		}
	}
	return best
}

const (
	rankSpace = iota + 1
	rankLine
	rankSentence
	rankParagraph
)

func cutRank(runes []rune, p int) int {
	prev := runes[p-1]
	switch {
	case prev == '\n' && p >= 2 && runes[p-2] == '\n':
		return rankParagraph
	case isSentenceEnd(prev) && p < len(runes) && unicode.IsSpace(runes[p]):
		return rankSentence
	case prev == '\n':
		return rankLine
	case unicode.IsSpace(prev):
		return rankSpace
	}
	return 0
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}
