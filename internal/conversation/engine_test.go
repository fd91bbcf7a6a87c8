package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/ai"
	"docchat/internal/apperr"
	"docchat/internal/model"
	"docchat/internal/platform/sqlite"
	"docchat/internal/repository"
	"docchat/internal/retrieval"
)

type fakeLLM struct {
	mu        sync.Mutex
	prompts   [][]ai.ChatMessage
	maxTokens []int
	answer    func(ctx context.Context, messages []ai.ChatMessage) (string, error)
}

func (f *fakeLLM) Complete(ctx context.Context, messages []ai.ChatMessage, maxTokens int) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, messages)
	f.maxTokens = append(f.maxTokens, maxTokens)
	f.mu.Unlock()
	if f.answer != nil {
		return f.answer(ctx, messages)
	}
	return "answer to " + messages[len(messages)-1].Content[strings.LastIndex(messages[len(messages)-1].Content, "Question: ")+10:], nil
}

func (f *fakeLLM) lastPrompt() []ai.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[len(f.prompts)-1]
}

type fixture struct {
	sessions  *repository.SessionRepository
	documents *repository.DocumentRepository
	turns     *repository.TurnRepository
	llm       *fakeLLM
	engine    *Engine
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	db, err := sqlite.New(context.Background(), sqlite.MemoryDSN(uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, model.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	f := &fixture{
		sessions:  repository.NewSessionRepository(db),
		documents: repository.NewDocumentRepository(db),
		turns:     repository.NewTurnRepository(db),
		llm:       &fakeLLM{},
	}
	if opts.ContextBudgetTokens == 0 {
		opts = Options{
			ContextBudgetTokens: 4000,
			HistoryBudgetTokens: 1000,
			MaxHistoryPairs:     5,
			KeepRecentPairs:     1,
			AnswerMaxTokens:     500,
			AnswerTimeout:       time.Second,
		}
	}
	f.engine = NewEngine(f.sessions, f.documents, f.turns, retrieval.NewAssembler(nil), f.llm, opts)
	return f
}

func (f *fixture) boundSession(t *testing.T) string {
	t.Helper()
	session := &model.Session{ID: uuid.NewString()}
	bundle := &model.DocumentBundle{
		Document: model.Document{
			SourceKind: model.SourcePDF,
			SourceRef:  "report.pdf",
			Title:      "report",
			RawText:    "The quarterly report covers revenue growth in Europe.",
		},
		Chunks: []model.Chunk{{ChunkIndex: 0, Text: "The quarterly report covers revenue growth in Europe.", EndOffset: 53}},
		Summaries: []model.Summary{
			{Level: model.SummaryLevelDocument, Text: "A quarterly revenue report."},
		},
	}
	require.NoError(t, f.documents.CreateBound(context.Background(), session, bundle))
	return session.ID
}

func (f *fixture) state(t *testing.T, id string) string {
	t.Helper()
	s, err := f.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	return s.State
}

func (f *fixture) history(t *testing.T, id string) []model.Turn {
	t.Helper()
	turns, err := f.turns.ListBySession(context.Background(), id)
	require.NoError(t, err)
	return turns
}

func TestAskAppendsExchange(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.boundSession(t)

	answer, err := f.engine.Ask(context.Background(), id, "  What is this document about?  ")
	require.NoError(t, err)
	assert.Equal(t, "answer to What is this document about?", answer.Text)
	assert.True(t, answer.FullText)

	turns := f.history(t, id)
	require.Len(t, turns, 2)
	assert.Equal(t, model.RoleUser, turns[0].Role)
	assert.Equal(t, "What is this document about?", turns[0].Text)
	assert.Equal(t, model.RoleAssistant, turns[1].Role)
	assert.Equal(t, answer.Text, turns[1].Text)
	assert.Equal(t, model.StateIdle, f.state(t, id))

	prompt := f.llm.lastPrompt()
	require.Len(t, prompt, 3)
	assert.Equal(t, systemInstructions, prompt[0].Content)
	assert.Equal(t, "Document summary:\nA quarterly revenue report.", prompt[1].Content)
	assert.Contains(t, prompt[2].Content, "Document text:\nThe quarterly report")
	assert.Equal(t, []int{500}, f.llm.maxTokens)
}

func TestAskCarriesHistory(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.boundSession(t)

	_, err := f.engine.Ask(context.Background(), id, "first?")
	require.NoError(t, err)
	_, err = f.engine.Ask(context.Background(), id, "second?")
	require.NoError(t, err)

	prompt := f.llm.lastPrompt()
	require.Len(t, prompt, 5)
	assert.Equal(t, ai.ChatMessage{Role: ai.RoleUser, Content: "first?"}, prompt[2])
	assert.Equal(t, ai.ChatMessage{Role: ai.RoleAssistant, Content: "answer to first?"}, prompt[3])

	turns := f.history(t, id)
	require.Len(t, turns, 4)
	for i, turn := range turns {
		assert.Equal(t, i, turn.TurnIndex)
	}
}

func TestAskWithoutDocument(t *testing.T) {
	f := newFixture(t, Options{})
	session := &model.Session{ID: uuid.NewString(), State: model.StateIdle, Status: model.StatusEmpty}
	require.NoError(t, f.sessions.Create(context.Background(), session))

	_, err := f.engine.Ask(context.Background(), session.ID, "anything?")
	assert.ErrorIs(t, err, apperr.ErrNoDocumentBound)
	assert.Empty(t, f.history(t, session.ID))
	assert.Equal(t, model.StateIdle, f.state(t, session.ID))
	assert.Empty(t, f.llm.prompts)
}

func TestAskUnknownSession(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.engine.Ask(context.Background(), uuid.NewString(), "anything?")
	assert.ErrorIs(t, err, apperr.ErrSessionNotFound)
}

func TestAskEmptyQuestion(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.boundSession(t)
	_, err := f.engine.Ask(context.Background(), id, "   ")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestAskFailureAppendsNothing(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.boundSession(t)
	f.llm.answer = func(context.Context, []ai.ChatMessage) (string, error) {
		return "", errors.New("upstream exploded")
	}

	_, err := f.engine.Ask(context.Background(), id, "question?")
	assert.ErrorIs(t, err, apperr.ErrAnswerFailed)
	assert.NotErrorIs(t, err, apperr.ErrTimeout)
	assert.Empty(t, f.history(t, id))
	assert.Equal(t, model.StateIdle, f.state(t, id))

	f.llm.answer = func(context.Context, []ai.ChatMessage) (string, error) {
		return "   ", nil
	}
	_, err = f.engine.Ask(context.Background(), id, "question?")
	assert.ErrorIs(t, err, apperr.ErrAnswerFailed)
	assert.Empty(t, f.history(t, id))
}

func TestAskTimeout(t *testing.T) {
	f := newFixture(t, Options{
		ContextBudgetTokens: 4000,
		HistoryBudgetTokens: 1000,
		MaxHistoryPairs:     5,
		KeepRecentPairs:     1,
		AnswerMaxTokens:     500,
		AnswerTimeout:       20 * time.Millisecond,
	})
	id := f.boundSession(t)
	f.llm.answer = func(ctx context.Context, _ []ai.ChatMessage) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	_, err := f.engine.Ask(context.Background(), id, "slow?")
	assert.ErrorIs(t, err, apperr.ErrAnswerFailed)
	assert.ErrorIs(t, err, apperr.ErrTimeout)
	assert.Equal(t, apperr.ClassRetry, apperr.ClassOf(err))
	assert.Empty(t, f.history(t, id))
	assert.Equal(t, model.StateIdle, f.state(t, id))
}

func TestAskCallerCancelReleasesSession(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.boundSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	f.llm.answer = func(ctx context.Context, _ []ai.ChatMessage) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	}

	_, err := f.engine.Ask(ctx, id, "abandoned?")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.history(t, id))
	assert.Equal(t, model.StateIdle, f.state(t, id))
}

func TestConcurrentAskOnOneSession(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.boundSession(t)

	started := make(chan struct{})
	unblock := make(chan struct{})
	f.llm.answer = func(context.Context, []ai.ChatMessage) (string, error) {
		close(started)
		<-unblock
		return "the only answer", nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.engine.Ask(context.Background(), id, "first?")
		done <- err
	}()

	<-started
	_, err := f.engine.Ask(context.Background(), id, "second?")
	assert.ErrorIs(t, err, apperr.ErrSessionBusy)
	assert.Equal(t, apperr.ClassRetry, apperr.ClassOf(err))

	close(unblock)
	require.NoError(t, <-done)

	turns := f.history(t, id)
	require.Len(t, turns, 2)
	assert.Equal(t, "first?", turns[0].Text)
	assert.Equal(t, "the only answer", turns[1].Text)
	assert.Equal(t, model.StateIdle, f.state(t, id))
}

func TestAskRanksChunksWhenDocumentIsLarge(t *testing.T) {
	f := newFixture(t, Options{
		ContextBudgetTokens: 700,
		HistoryBudgetTokens: 100,
		MaxHistoryPairs:     2,
		KeepRecentPairs:     1,
		AnswerMaxTokens:     200,
	})

	filler := strings.Repeat("Unrelated filler about gardening and tomatoes. ", 20)
	target := "The launch date of the rocket is set for March."
	texts := []string{filler, filler, target, filler}
	bundle := &model.DocumentBundle{Document: model.Document{SourceKind: model.SourceURL, SourceRef: "https://example.com"}}
	for i, text := range texts {
		bundle.Document.RawText += text
		bundle.Chunks = append(bundle.Chunks, model.Chunk{ChunkIndex: i, Text: text})
	}
	session := &model.Session{ID: uuid.NewString()}
	require.NoError(t, f.documents.CreateBound(context.Background(), session, bundle))

	answer, err := f.engine.Ask(context.Background(), session.ID, "When is the rocket launch date?")
	require.NoError(t, err)
	assert.False(t, answer.FullText)
	require.NotEmpty(t, answer.ChunkIndexes)
	assert.Equal(t, 2, answer.ChunkIndexes[0])
	assert.Contains(t, f.llm.lastPrompt()[1].Content, "Relevant excerpts:\n"+target)
}

func TestAskRejectsOversizedQuestion(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.boundSession(t)

	_, err := f.engine.Ask(context.Background(), id, strings.Repeat("why ", 2000))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Empty(t, f.llm.prompts)
	assert.Empty(t, f.history(t, id))
	assert.Equal(t, model.StateIdle, f.state(t, id))
}

func TestAskDropsHistoryBeforeSummary(t *testing.T) {
	f := newFixture(t, Options{
		ContextBudgetTokens: 1000,
		HistoryBudgetTokens: 2000,
		MaxHistoryPairs:     5,
		KeepRecentPairs:     1,
		AnswerMaxTokens:     100,
		MaxQuestionTokens:   400,
	})
	id := f.boundSession(t)
	_, err := f.turns.AppendExchange(context.Background(), id, strings.Repeat("x", 3600), "ok")
	require.NoError(t, err)

	answer, err := f.engine.Ask(context.Background(), id, "What changed?")
	require.NoError(t, err)
	assert.True(t, answer.FullText)

	prompt := f.llm.lastPrompt()
	require.Len(t, prompt, 3)
	assert.Equal(t, "Document summary:\nA quarterly revenue report.", prompt[1].Content)
	assert.Contains(t, prompt[2].Content, "Question: What changed?")
}
