package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"docchat/internal/model"
)

type TurnRepository struct {
	db *gorm.DB
}

func NewTurnRepository(db *gorm.DB) *TurnRepository {
	return &TurnRepository{db: db}
}

// AppendExchange writes a user turn and the assistant turn answering it.
// Both rows land or neither does.
func (r *TurnRepository) AppendExchange(ctx context.Context, sessionID, question, answer string) ([]model.Turn, error) {
	var turns []model.Turn
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockSession(tx, sessionID); err != nil {
			return err
		}

		var last int
		if err := tx.Model(&model.Turn{}).
			Where("session_id = ?", sessionID).
			Select("COALESCE(MAX(turn_index), -1)").
			Scan(&last).Error; err != nil {
			return fmt.Errorf("read last turn index failed: %w", err)
		}

		now := time.Now()
		turns = []model.Turn{
			{SessionID: sessionID, TurnIndex: last + 1, Role: model.RoleUser, Text: question, CreatedAt: now},
			{SessionID: sessionID, TurnIndex: last + 2, Role: model.RoleAssistant, Text: answer, CreatedAt: now},
		}
		if err := tx.Create(&turns).Error; err != nil {
			return fmt.Errorf("create turns failed: %w", err)
		}
		return tx.Model(&model.Session{}).Where("id = ?", sessionID).Update("updated_at", now).Error
	})
	if err != nil {
		return nil, err
	}
	return turns, nil
}

func (r *TurnRepository) ListBySession(ctx context.Context, sessionID string) ([]model.Turn, error) {
	var turns []model.Turn
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("turn_index").
		Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("list turns failed: %w", err)
	}
	return turns, nil
}

func (r *TurnRepository) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&model.Turn{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete turns failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}
