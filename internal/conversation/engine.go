// Package conversation runs question/answer exchanges against a session's
// bound document.
package conversation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"docchat/internal/ai"
	"docchat/internal/apperr"
	"docchat/internal/model"
	"docchat/internal/pkg/tokens"
	"docchat/internal/retrieval"
)

const releaseTimeout = 5 * time.Second

type Completer interface {
	Complete(ctx context.Context, messages []ai.ChatMessage, maxTokens int) (string, error)
}

type SessionStore interface {
	Get(ctx context.Context, id string) (*model.Session, error)
	Transition(ctx context.Context, id, from, to string) error
}

type DocumentStore interface {
	Load(ctx context.Context, sessionID string) (*model.DocumentBundle, error)
}

type TurnStore interface {
	ListBySession(ctx context.Context, sessionID string) ([]model.Turn, error)
	AppendExchange(ctx context.Context, sessionID, question, answer string) ([]model.Turn, error)
}

type Options struct {
	// ContextBudgetTokens bounds the whole request: prompt plus answer.
	ContextBudgetTokens int
	HistoryBudgetTokens int
	MaxHistoryPairs     int
	KeepRecentPairs     int
	AnswerMaxTokens     int
	AnswerTimeout       time.Duration
	// MaxQuestionTokens caps one question. Zero means half of what the
	// answer leaves of the context budget.
	MaxQuestionTokens   int
}

type Answer struct {
	Text  string       `json:"answer"`
	Turns []model.Turn `json:"turns"`
	// ChunkIndexes are the excerpts shown to the model; empty when the whole
	// document text was used.
	ChunkIndexes []int `json:"chunk_indexes,omitempty"`
	FullText     bool  `json:"full_text"`
}

// Engine moves a session idle -> awaiting_answer -> idle around each
// question. The state lives in the session row, so a second question on the
// same session fails with ErrSessionBusy instead of interleaving history.
type Engine struct {
	sessions  SessionStore
	documents DocumentStore
	turns     TurnStore
	assembler *retrieval.Assembler
	llm       Completer
	opts      Options
}

func NewEngine(
	sessions SessionStore,
	documents DocumentStore,
	turns TurnStore,
	assembler *retrieval.Assembler,
	llm Completer,
	opts Options,
) *Engine {
	if assembler == nil {
		assembler = retrieval.NewAssembler(nil)
	}
	if opts.MaxQuestionTokens <= 0 {
		opts.MaxQuestionTokens = (opts.ContextBudgetTokens - opts.AnswerMaxTokens) / 2
	}
	return &Engine{
		sessions:  sessions,
		documents: documents,
		turns:     turns,
		assembler: assembler,
		llm:       llm,
		opts:      opts,
	}
}

// Ask answers question within the session and appends the exchange. A failed
// ask leaves the turn history untouched.
func (e *Engine) Ask(ctx context.Context, sessionID, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", apperr.ErrInvalidInput)
	}
	if n := tokens.Estimate(question); n > e.opts.MaxQuestionTokens {
		return nil, fmt.Errorf("%w: question is about %d tokens, limit is %d",
			apperr.ErrInvalidInput, n, e.opts.MaxQuestionTokens)
	}

	session, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.HasDocument() {
		return nil, fmt.Errorf("%w: %s", apperr.ErrNoDocumentBound, sessionID)
	}

	if err := e.sessions.Transition(ctx, sessionID, model.StateIdle, model.StateAwaitingAnswer); err != nil {
		return nil, err
	}
	defer e.release(ctx, sessionID)

	return e.answer(ctx, sessionID, question)
}

func (e *Engine) answer(ctx context.Context, sessionID, question string) (*Answer, error) {
	bundle, err := e.documents.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	turns, err := e.turns.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrAnswerFailed, "load history", err)
	}

	history := NewWindow(e.opts.MaxHistoryPairs, e.opts.HistoryBudgetTokens, e.opts.KeepRecentPairs)
	history.Load(turns)

	// Old exchanges give way before the summary does.
	summary := bundle.DocumentSummary()
	for history.Len() > 0 && e.contextBudget(history, question) < retrieval.SummaryTokens(summary) {
		history.dropOldest()
	}

	assembled, err := e.assembler.Assemble(ctx, retrieval.Input{
		RawText:      bundle.Document.RawText,
		Summary:      summary,
		Chunks:       bundle.Chunks,
		Question:     question,
		BudgetTokens: e.contextBudget(history, question),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrAnswerFailed, "assemble context", err)
	}

	text, err := e.complete(ctx, buildPrompt(assembled, history, question))
	if err != nil {
		return nil, err
	}

	stored, err := e.turns.AppendExchange(ctx, sessionID, question, text)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrAnswerFailed, "store exchange", err)
	}
	return &Answer{
		Text:         text,
		Turns:        stored,
		ChunkIndexes: assembled.ChunkIndexes,
		FullText:     assembled.FullText,
	}, nil
}

func (e *Engine) complete(ctx context.Context, messages []ai.ChatMessage) (string, error) {
	if e.opts.AnswerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.AnswerTimeout)
		defer cancel()
	}
	text, err := e.llm.Complete(ctx, messages, e.opts.AnswerMaxTokens)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrAnswerFailed, "complete answer", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: model returned an empty answer", apperr.ErrAnswerFailed)
	}
	return text, nil
}

// contextBudget is what is left for summary and document text once the
// answer, instructions, history and question are accounted for.
func (e *Engine) contextBudget(history *Window, question string) int {
	budget := e.opts.ContextBudgetTokens -
		e.opts.AnswerMaxTokens -
		tokens.Estimate(systemInstructions) -
		history.Tokens() -
		tokens.Estimate(question) -
		promptOverhead
	if budget < 0 {
		return 0
	}
	return budget
}

// release runs even when the caller gave up, so the session never stays
// stuck in awaiting_answer.
func (e *Engine) release(ctx context.Context, sessionID string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := e.sessions.Transition(releaseCtx, sessionID, model.StateAwaitingAnswer, model.StateIdle); err != nil {
		log.Printf("release session %s failed: %v", sessionID, err)
	}
}
