package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"docchat/internal/apperr"
	"docchat/internal/model"
)

const insertBatchSize = 100

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// CreateBound creates a session that already owns its document. Nothing is
// written unless every row is.
func (r *DocumentRepository) CreateBound(ctx context.Context, session *model.Session, bundle *model.DocumentBundle) error {
	ensureDocumentID(bundle)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session.DocumentID = &bundle.Document.ID
		session.Status = model.StatusReady
		if session.State == "" {
			session.State = model.StateIdle
		}
		if session.Title == "" {
			session.Title = bundle.Document.Title
		}
		if err := tx.Create(session).Error; err != nil {
			return fmt.Errorf("create session failed: %w", err)
		}
		return insertBundle(tx, session.ID, bundle)
	})
}

// Bind replaces whatever the session owned with bundle and clears its turn
// history. The session state is left to the caller.
func (r *DocumentRepository) Bind(ctx context.Context, sessionID string, bundle *model.DocumentBundle) error {
	ensureDocumentID(bundle)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockSession(tx, sessionID); err != nil {
			return err
		}
		if err := deleteDocuments(tx, sessionID); err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&model.Turn{}).Error; err != nil {
			return fmt.Errorf("clear session turns failed: %w", err)
		}
		if err := insertBundle(tx, sessionID, bundle); err != nil {
			return err
		}
		err := tx.Model(&model.Session{}).
			Where("id = ?", sessionID).
			Updates(map[string]any{
				"document_id": bundle.Document.ID,
				"title":       bundle.Document.Title,
				"status":      model.StatusReady,
				"last_error":  "",
			}).Error
		if err != nil {
			return fmt.Errorf("bind document to session failed: %w", err)
		}
		return nil
	})
}

// Load returns the session's document with chunks in index order.
func (r *DocumentRepository) Load(ctx context.Context, sessionID string) (*model.DocumentBundle, error) {
	db := r.db.WithContext(ctx)

	var bundle model.DocumentBundle
	if err := db.Where("session_id = ?", sessionID).First(&bundle.Document).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", apperr.ErrNoDocumentBound, sessionID)
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	if err := db.Where("document_id = ?", bundle.Document.ID).Order("chunk_index").Find(&bundle.Chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks failed: %w", err)
	}
	if err := db.Where("document_id = ?", bundle.Document.ID).Order("id").Find(&bundle.Summaries).Error; err != nil {
		return nil, fmt.Errorf("list summaries failed: %w", err)
	}
	return &bundle, nil
}

// DocumentOverview is a bound document without its text and chunks.
type DocumentOverview struct {
	Document   model.Document
	Summary    string
	ChunkCount int64
}

// Describe returns what a status poll needs about the session's document.
func (r *DocumentRepository) Describe(ctx context.Context, sessionID string) (*DocumentOverview, error) {
	db := r.db.WithContext(ctx)

	var out DocumentOverview
	err := db.Omit("raw_text").Where("session_id = ?", sessionID).First(&out.Document).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", apperr.ErrNoDocumentBound, sessionID)
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}

	var summary model.Summary
	err = db.Where("document_id = ? AND level = ?", out.Document.ID, model.SummaryLevelDocument).First(&summary).Error
	switch {
	case err == nil:
		out.Summary = summary.Text
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("get document summary failed: %w", err)
	}

	if err := db.Model(&model.Chunk{}).Where("document_id = ?", out.Document.ID).Count(&out.ChunkCount).Error; err != nil {
		return nil, fmt.Errorf("count chunks failed: %w", err)
	}
	return &out, nil
}

// SourcesBySession maps session ids to their document, raw text left out.
// Sessions without a document are absent from the map.
func (r *DocumentRepository) SourcesBySession(ctx context.Context, sessionIDs []string) (map[string]model.Document, error) {
	out := make(map[string]model.Document, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return out, nil
	}
	var docs []model.Document
	if err := r.db.WithContext(ctx).
		Select("id", "session_id", "source_kind", "source_ref", "title", "extracted_at").
		Where("session_id IN ?", sessionIDs).
		Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list session sources failed: %w", err)
	}
	for _, d := range docs {
		out[d.SessionID] = d
	}
	return out, nil
}

func insertBundle(tx *gorm.DB, sessionID string, bundle *model.DocumentBundle) error {
	doc := &bundle.Document
	doc.SessionID = sessionID
	if err := tx.Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}

	for i := range bundle.Chunks {
		bundle.Chunks[i].DocumentID = doc.ID
	}
	if len(bundle.Chunks) > 0 {
		if err := tx.CreateInBatches(&bundle.Chunks, insertBatchSize).Error; err != nil {
			return fmt.Errorf("create chunks failed: %w", err)
		}
	}

	for i := range bundle.Summaries {
		bundle.Summaries[i].DocumentID = doc.ID
	}
	if len(bundle.Summaries) > 0 {
		if err := tx.CreateInBatches(&bundle.Summaries, insertBatchSize).Error; err != nil {
			return fmt.Errorf("create summaries failed: %w", err)
		}
	}
	return nil
}

func ensureDocumentID(bundle *model.DocumentBundle) {
	if bundle.Document.ID == "" {
		bundle.Document.ID = uuid.NewString()
	}
}

func deleteDocuments(tx *gorm.DB, sessionID string) error {
	var ids []string
	if err := tx.Model(&model.Document{}).Where("session_id = ?", sessionID).Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("list session documents failed: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("document_id IN ?", ids).Delete(&model.Chunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks failed: %w", err)
	}
	if err := tx.Where("document_id IN ?", ids).Delete(&model.Summary{}).Error; err != nil {
		return fmt.Errorf("delete summaries failed: %w", err)
	}
	if err := tx.Where("id IN ?", ids).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete documents failed: %w", err)
	}
	return nil
}
