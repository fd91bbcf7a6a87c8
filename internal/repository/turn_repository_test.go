package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/apperr"
	"docchat/internal/model"
)

func TestAppendExchangeKeepsPairs(t *testing.T) {
	db := newTestDB(t)
	s := newIdleSession(t, NewSessionRepository(db))
	turns := NewTurnRepository(db)
	ctx := context.Background()

	first, err := turns.AppendExchange(ctx, s.ID, "q1", "a1")
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 0, first[0].TurnIndex)
	assert.Equal(t, 1, first[1].TurnIndex)

	_, err = turns.AppendExchange(ctx, s.ID, "q2", "a2")
	require.NoError(t, err)

	history, err := turns.ListBySession(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i, turn := range history {
		assert.Equal(t, i, turn.TurnIndex)
		if i%2 == 0 {
			assert.Equal(t, model.RoleUser, turn.Role)
		} else {
			assert.Equal(t, model.RoleAssistant, turn.Role)
		}
	}
	assert.Equal(t, "a2", history[3].Text)
}

func TestAppendExchangeMissingSession(t *testing.T) {
	turns := NewTurnRepository(newTestDB(t))

	_, err := turns.AppendExchange(context.Background(), "ghost", "q", "a")
	assert.ErrorIs(t, err, apperr.ErrSessionNotFound)

	history, err := turns.ListBySession(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestDeleteBySession(t *testing.T) {
	db := newTestDB(t)
	s := newIdleSession(t, NewSessionRepository(db))
	turns := NewTurnRepository(db)
	ctx := context.Background()

	_, err := turns.AppendExchange(ctx, s.ID, "q", "a")
	require.NoError(t, err)

	n, err := turns.DeleteBySession(ctx, s.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = turns.AppendExchange(ctx, s.ID, "q", "a")
	require.NoError(t, err)
	history, err := turns.ListBySession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, history[0].TurnIndex)
}

func TestAppendExchangeRacingDeleteLeavesNoOrphans(t *testing.T) {
	db := newTestDB(t)
	sessions := NewSessionRepository(db)
	turns := NewTurnRepository(db)
	ctx := context.Background()

	for round := 0; round < 10; round++ {
		s := newIdleSession(t, sessions)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := turns.AppendExchange(ctx, s.ID, "q", "a")
				if err != nil {
					assert.ErrorIs(t, err, apperr.ErrSessionNotFound)
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sessions.Delete(ctx, s.ID))
		}()
		wg.Wait()

		var orphans int64
		require.NoError(t, db.Model(&model.Turn{}).Where("session_id = ?", s.ID).Count(&orphans).Error)
		assert.Zero(t, orphans, "round %d", round)
	}
}
