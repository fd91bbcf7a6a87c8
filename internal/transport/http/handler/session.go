package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"docchat/internal/app"
	"docchat/internal/extract"
	"docchat/internal/model"
	"docchat/internal/transport/http/response"
)

// SessionService is the part of app.Service the HTTP layer calls.
type SessionService interface {
	Ingest(ctx context.Context, in app.IngestInput) (*app.IngestResult, error)
	Ask(ctx context.Context, sessionID, question string) (*app.AskResult, error)
	ListSessions(ctx context.Context, limit int) ([]app.SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*app.SessionDetail, error)
	GetHistory(ctx context.Context, sessionID string) ([]model.Turn, error)
	ClearHistory(ctx context.Context, sessionID string) (int64, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

type SessionHandler struct {
	service     SessionService
	maxPDFBytes int64
}

type IngestURLRequest struct {
	URL       string `json:"url" binding:"required"`
	SessionID string `json:"session_id"`
	Async     bool   `json:"async"`
}

type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

func NewSessionHandler(service SessionService, maxPDFBytes int64) *SessionHandler {
	return &SessionHandler{service: service, maxPDFBytes: maxPDFBytes}
}

// IngestPDF accepts a multipart form with "file" and optional "session_id"
// and "async" fields.
func (h *SessionHandler) IngestPDF(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if h.maxPDFBytes > 0 && file.Size > h.maxPDFBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeDocumentTooLarge,
			fmt.Sprintf("file too large (max %d bytes)", h.maxPDFBytes))
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}

	async, _ := strconv.ParseBool(c.PostForm("async"))
	result, err := h.service.Ingest(c.Request.Context(), app.IngestInput{
		Source:    extract.PDFSource{Name: file.Filename, Data: data},
		SessionID: strings.TrimSpace(c.PostForm("session_id")),
		Async:     async,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *SessionHandler) IngestURL(c *gin.Context) {
	var req IngestURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.service.Ingest(c.Request.Context(), app.IngestInput{
		Source:    extract.URLSource{URL: strings.TrimSpace(req.URL)},
		SessionID: strings.TrimSpace(req.SessionID),
		Async:     req.Async,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *SessionHandler) ListSessions(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	sessions, err := h.service.ListSessions(c.Request.Context(), limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, sessions)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	detail, err := h.service.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, detail)
}

func (h *SessionHandler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.service.DeleteSession(c.Request.Context(), sessionID); err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"deleted_session_id": sessionID})
}

func (h *SessionHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.service.Ask(c.Request.Context(), c.Param("id"), req.Question)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *SessionHandler) GetHistory(c *gin.Context) {
	turns, err := h.service.GetHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, turns)
}

func (h *SessionHandler) ClearHistory(c *gin.Context) {
	n, err := h.service.ClearHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"deleted_turns": n})
}
