package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"docchat/internal/model"
	"docchat/internal/platform/sqlite"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := sqlite.New(context.Background(), sqlite.MemoryDSN(uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, model.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newIdleSession(t *testing.T, repo *SessionRepository) *model.Session {
	t.Helper()
	s := &model.Session{
		ID:     uuid.NewString(),
		State:  model.StateIdle,
		Status: model.StatusEmpty,
	}
	require.NoError(t, repo.Create(context.Background(), s))
	return s
}

func sampleBundle(title string, texts ...string) *model.DocumentBundle {
	b := &model.DocumentBundle{
		Document: model.Document{
			SourceKind: model.SourceURL,
			SourceRef:  "https://example.com/" + title,
			Title:      title,
		},
	}
	for i, text := range texts {
		idx := i
		b.Document.RawText += text
		b.Chunks = append(b.Chunks, model.Chunk{ChunkIndex: i, Text: text})
		b.Summaries = append(b.Summaries, model.Summary{Level: model.SummaryLevelChunk, ChunkIndex: &idx, Text: "sum " + text})
	}
	b.Summaries = append(b.Summaries, model.Summary{Level: model.SummaryLevelDocument, Text: "doc " + title})
	return b
}
