package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"docchat/internal/apperr"
	"docchat/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create session failed: %w", err)
	}
	return nil
}

// Get never returns a zero session: a missing row is ErrSessionNotFound.
func (r *SessionRepository) Get(ctx context.Context, id string) (*model.Session, error) {
	return getSession(r.db.WithContext(ctx), id)
}

func (r *SessionRepository) List(ctx context.Context, limit int) ([]model.Session, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var sessions []model.Session
	if err := q.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	return sessions, nil
}

// Delete removes the session with its document, chunks, summaries and turns.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockSession(tx, id); err != nil {
			return err
		}
		if err := deleteDocuments(tx, id); err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", id).Delete(&model.Turn{}).Error; err != nil {
			return fmt.Errorf("delete session turns failed: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&model.Session{}).Error; err != nil {
			return fmt.Errorf("delete session failed: %w", err)
		}
		return nil
	})
}

// Transition moves the session from one state to another only if it is
// currently in from. A lost race reports ErrSessionBusy.
func (r *SessionRepository) Transition(ctx context.Context, id, from, to string) error {
	db := r.db.WithContext(ctx)
	res := db.Model(&model.Session{}).
		Where("id = ? AND state = ?", id, from).
		Update("state", to)
	if res.Error != nil {
		return fmt.Errorf("transition session state failed: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := getSession(db, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: session %s is not %s", apperr.ErrSessionBusy, id, from)
}

// BeginIngestion claims an idle session for a background ingestion and marks
// it pending in the same statement.
func (r *SessionRepository) BeginIngestion(ctx context.Context, id string) error {
	db := r.db.WithContext(ctx)
	res := db.Model(&model.Session{}).
		Where("id = ? AND state = ?", id, model.StateIdle).
		Updates(map[string]any{
			"state":      model.StateIngesting,
			"status":     model.StatusPending,
			"last_error": "",
		})
	if res.Error != nil {
		return fmt.Errorf("begin session ingestion failed: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := getSession(db, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: session %s is not idle", apperr.ErrSessionBusy, id)
}

// ClaimIngestion confirms a queued job still owns the session: it must be
// ingesting with status pending. Anything else reports ErrSessionBusy.
func (r *SessionRepository) ClaimIngestion(ctx context.Context, id string) error {
	db := r.db.WithContext(ctx)
	res := db.Model(&model.Session{}).
		Where("id = ? AND state = ? AND status = ?", id, model.StateIngesting, model.StatusPending).
		Update("updated_at", time.Now())
	if res.Error != nil {
		return fmt.Errorf("claim session ingestion failed: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := getSession(db, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: session %s has no pending ingestion", apperr.ErrSessionBusy, id)
}

// MarkFailed records a failed ingestion and returns the session to idle. It
// only touches a session that is still ingesting.
func (r *SessionRepository) MarkFailed(ctx context.Context, id, reason string) error {
	db := r.db.WithContext(ctx)
	res := db.Model(&model.Session{}).
		Where("id = ? AND state = ?", id, model.StateIngesting).
		Updates(map[string]any{
			"status":     model.StatusFailed,
			"last_error": reason,
			"state":      model.StateIdle,
		})
	if res.Error != nil {
		return fmt.Errorf("record ingestion failure failed: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := getSession(db, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: session %s is not ingesting", apperr.ErrSessionBusy, id)
}

// ResetStates returns sessions left mid-exchange by a crash to idle. Pending
// background ingestions keep their state; the queue still owns them.
func (r *SessionRepository) ResetStates(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("state <> ? AND status <> ?", model.StateIdle, model.StatusPending).
		Update("state", model.StateIdle)
	if res.Error != nil {
		return 0, fmt.Errorf("reset session states failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func getSession(db *gorm.DB, id string) (*model.Session, error) {
	var session model.Session
	if err := db.Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", apperr.ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

// lockSession reads the session row FOR UPDATE so writers that add or remove
// rows owned by the session are serialised against each other.
func lockSession(tx *gorm.DB, id string) (*model.Session, error) {
	return getSession(tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}), id)
}
