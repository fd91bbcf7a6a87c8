package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/apperr"
	"docchat/internal/config"
)

func sqliteOnlyConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "docchat.db"))
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("RABBITMQ_URL", "")

	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestNewWithSQLiteOnly(t *testing.T) {
	cfg := sqliteOnlyConfig(t)

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)

	assert.NotNil(t, a.DB)
	assert.NotNil(t, a.Service)
	assert.Nil(t, a.Redis)
	assert.Nil(t, a.MQConn)

	require.NoError(t, a.StartWorker(context.Background()))
	assert.Nil(t, a.IngestWorker)

	sessions, err := a.Service.ListSessions(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	assert.NoError(t, a.Close())
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := sqliteOnlyConfig(t)
	cfg.Database.Driver = "postgres"

	_, err := New(context.Background(), cfg)
	assert.ErrorIs(t, err, apperr.ErrInvalidConfiguration)
}
