package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"docchat/internal/model"
	"docchat/internal/pkg/tokens"
)

const (
	summaryHeading   = "Document summary:\n"
	excerptHeading   = "Relevant excerpts:\n"
	excerptSeparator = "\n\n---\n\n"
)

type Input struct {
	RawText      string
	Summary      string
	Chunks       []model.Chunk
	Question     string
	BudgetTokens int
}

// Assembled is the context for one question: the summary lead-in and a body
// that is either the full document text or the best ranked chunks.
type Assembled struct {
	Summary  string
	Body     string
	FullText bool
	// ChunkIndexes lists the chunks used for Body, in the order used.
	ChunkIndexes []int
}

// Text is the whole context as one block, summary first.
func (a *Assembled) Text() string {
	var sb strings.Builder
	if a.Summary != "" {
		sb.WriteString(summaryHeading)
		sb.WriteString(a.Summary)
	}
	if a.Body != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(excerptHeading)
		sb.WriteString(a.Body)
	}
	return sb.String()
}

type Assembler struct {
	ranker Ranker
}

func NewAssembler(ranker Ranker) *Assembler {
	if ranker == nil {
		ranker = NewTFIDFRanker()
	}
	return &Assembler{ranker: ranker}
}

// SummaryTokens is what the summary lead-in costs when it is kept whole.
func SummaryTokens(summary string) int {
	if summary == "" {
		return 0
	}
	return tokens.Estimate(summaryHeading + summary + "\n\n")
}

// Assemble keeps Text() within in.BudgetTokens. The summary always leads;
// the rest of the budget goes to the raw text when it fits whole, otherwise
// to chunks in descending score order (ties by lower index) until the next
// chunk would not fit.
func (a *Assembler) Assemble(ctx context.Context, in Input) (*Assembled, error) {
	out := &Assembled{}
	budget := in.BudgetTokens
	if budget <= 0 {
		return out, nil
	}

	if in.Summary != "" {
		headroom := budget - tokens.Estimate(summaryHeading)
		out.Summary = tokens.Truncate(in.Summary, headroom)
		budget -= SummaryTokens(out.Summary)
	}
	remaining := budget - tokens.Estimate(excerptHeading)
	if remaining <= 0 {
		return out, nil
	}

	if in.RawText != "" && tokens.Estimate(in.RawText) <= remaining {
		out.Body = in.RawText
		out.FullText = true
		return out, nil
	}
	if len(in.Chunks) == 0 {
		return out, nil
	}

	scores, err := a.ranker.Rank(ctx, in.Question, in.Chunks)
	if err != nil {
		return nil, fmt.Errorf("rank chunks failed: %w", err)
	}
	if len(scores) != len(in.Chunks) {
		return nil, fmt.Errorf("ranker returned %d scores for %d chunks", len(scores), len(in.Chunks))
	}

	order := make([]int, len(in.Chunks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool {
		i, j := order[x], order[y]
		if scores[i] != scores[j] {
			return scores[i] > scores[j]
		}
		return in.Chunks[i].ChunkIndex < in.Chunks[j].ChunkIndex
	})

	var parts []string
	used := 0
	for _, i := range order {
		cost := tokens.Estimate(in.Chunks[i].Text)
		if len(parts) > 0 {
			cost += tokens.Estimate(excerptSeparator)
		}
		if used+cost > remaining {
			break
		}
		parts = append(parts, in.Chunks[i].Text)
		out.ChunkIndexes = append(out.ChunkIndexes, in.Chunks[i].ChunkIndex)
		used += cost
	}
	out.Body = strings.Join(parts, excerptSeparator)
	return out, nil
}
