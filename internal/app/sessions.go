package app

import (
	"context"
	"errors"
	"log"
	"time"

	"docchat/internal/apperr"
	"docchat/internal/conversation"
	"docchat/internal/model"
)

type SessionInfo struct {
	SessionID  string    `json:"session_id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	Status     string    `json:"status"`
	State      string    `json:"state"`
	SourceKind string    `json:"source_kind,omitempty"`
	Source     string    `json:"source,omitempty"`
}

// SessionDetail is the status poll for a session: its ingestion status and,
// once a document is bound, the document summary.
type SessionDetail struct {
	SessionInfo
	Summary   string `json:"summary,omitempty"`
	Pages     int    `json:"pages,omitempty"`
	Chunks    int64  `json:"chunks"`
	LastError string `json:"last_error,omitempty"`
}

type AskResult struct {
	Answer       string       `json:"answer"`
	Turns        []model.Turn `json:"turns"`
	ChunkIndexes []int        `json:"chunk_indexes,omitempty"`
	FullText     bool         `json:"full_text"`
}

func (s *Service) Ask(ctx context.Context, sessionID, question string) (*AskResult, error) {
	answer, err := s.engine.Ask(ctx, sessionID, question)
	if err != nil {
		return nil, err
	}
	s.invalidateHistory(ctx, sessionID)
	return newAskResult(answer), nil
}

// ListSessions returns the newest sessions first. limit <= 0 uses the
// configured default.
func (s *Service) ListSessions(ctx context.Context, limit int) ([]SessionInfo, error) {
	if limit <= 0 {
		limit = s.opts.SessionListLimit
	}
	sessions, err := s.sessions.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(sessions))
	for i := range sessions {
		ids[i] = sessions[i].ID
	}
	sources, err := s.documents.SourcesBySession(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]SessionInfo, len(sessions))
	for i := range sessions {
		out[i] = newSessionInfo(&sessions[i])
		if doc, ok := sources[sessions[i].ID]; ok {
			out[i].SourceKind = doc.SourceKind
			out[i].Source = doc.SourceRef
		}
	}
	return out, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*SessionDetail, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	detail := &SessionDetail{
		SessionInfo: newSessionInfo(session),
		LastError:   session.LastError,
	}
	if !session.HasDocument() {
		return detail, nil
	}

	overview, err := s.documents.Describe(ctx, sessionID)
	if errors.Is(err, apperr.ErrNoDocumentBound) {
		return detail, nil
	}
	if err != nil {
		return nil, err
	}
	detail.SourceKind = overview.Document.SourceKind
	detail.Source = overview.Document.SourceRef
	detail.Summary = overview.Summary
	detail.Pages = overview.Document.Pages
	detail.Chunks = overview.ChunkCount
	return detail, nil
}

// GetHistory returns the session's turns in conversation order.
func (s *Service) GetHistory(ctx context.Context, sessionID string) ([]model.Turn, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	var version int64
	fill := false
	if s.historyCache != nil {
		cached, hit, err := s.historyCache.GetHistory(ctx, sessionID)
		if err != nil {
			log.Printf("read history cache for session %s failed: %v", sessionID, err)
		} else if hit {
			return cached, nil
		}
		if version, err = s.historyCache.Version(ctx, sessionID); err == nil {
			fill = true
		}
	}

	turns, err := s.turns.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if turns == nil {
		turns = []model.Turn{}
	}
	if fill {
		if _, err := s.historyCache.FillHistory(ctx, sessionID, version, turns); err != nil {
			log.Printf("fill history cache for session %s failed: %v", sessionID, err)
		}
	}
	return turns, nil
}

// ClearHistory deletes every turn of the session but keeps its document.
func (s *Service) ClearHistory(ctx context.Context, sessionID string) (int64, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return 0, err
	}
	n, err := s.turns.DeleteBySession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	s.invalidateHistory(ctx, sessionID)
	return n, nil
}

// DeleteSession removes the session and everything it owns.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.invalidateHistory(ctx, sessionID)
	return nil
}

func (s *Service) invalidateHistory(ctx context.Context, sessionID string) {
	if s.historyCache == nil {
		return
	}
	if err := s.historyCache.Invalidate(context.WithoutCancel(ctx), sessionID); err != nil {
		log.Printf("invalidate history cache for session %s failed: %v", sessionID, err)
	}
}

func newSessionInfo(session *model.Session) SessionInfo {
	return SessionInfo{
		SessionID: session.ID,
		Title:     session.Title,
		CreatedAt: session.CreatedAt,
		Status:    session.Status,
		State:     session.State,
	}
}

func newAskResult(answer *conversation.Answer) *AskResult {
	return &AskResult{
		Answer:       answer.Text,
		Turns:        answer.Turns,
		ChunkIndexes: answer.ChunkIndexes,
		FullText:     answer.FullText,
	}
}
