package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"docchat/internal/model"
)

// HistoryCache keeps a short-lived copy of each session's turns. Writers
// bump a per-session version, delete the copy and set a dirty marker in one
// transaction. Readers fill the cache only when the version they read before
// loading from the database is still current.
type HistoryCache struct {
	client         *redisv9.Client
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

// versionTTL outlives any single read by a wide margin, so a version key
// never expires and reappears at the value a reader started from.
const versionTTL = 24 * time.Hour

var errStaleFill = errors.New("history changed since it was read")

func NewHistoryCache(client *redisv9.Client, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &HistoryCache{
		client:         client,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *HistoryCache) GetHistory(ctx context.Context, sessionID string) ([]model.Turn, bool, error) {
	dirty, err := c.isDirty(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if dirty {
		return nil, false, nil
	}

	raw, err := c.client.Get(ctx, c.historyKey(sessionID)).Result()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var turns []model.Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return turns, true, nil
}

// Version is the session's write counter. Read it before loading history
// from the database and hand it back to FillHistory.
func (c *HistoryCache) Version(ctx context.Context, sessionID string) (int64, error) {
	v, err := c.client.Get(ctx, c.versionKey(sessionID)).Int64()
	if errors.Is(err, redisv9.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get history version failed: %w", err)
	}
	return v, nil
}

// FillHistory caches turns unless a writer invalidated the session after
// version was read. It reports whether the copy was stored.
func (c *HistoryCache) FillHistory(ctx context.Context, sessionID string, version int64, turns []model.Turn) (bool, error) {
	payload, err := json.Marshal(turns)
	if err != nil {
		return false, fmt.Errorf("marshal history cache failed: %w", err)
	}

	versionKey, dirtyKey := c.versionKey(sessionID), c.dirtyKey(sessionID)
	err = c.client.Watch(ctx, func(tx *redisv9.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && !errors.Is(err, redisv9.Nil) {
			return err
		}
		if current != version {
			return errStaleFill
		}
		dirty, err := tx.Exists(ctx, dirtyKey).Result()
		if err != nil {
			return err
		}
		if dirty > 0 {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
			pipe.Set(ctx, c.historyKey(sessionID), payload, c.historyTTL)
			return nil
		})
		return err
	}, versionKey, dirtyKey)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errStaleFill), errors.Is(err, redisv9.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("redis fill history failed: %w", err)
	}
}

// Invalidate drops the cached history, bumps the version and marks the
// session dirty in one round trip.
func (c *HistoryCache) Invalidate(ctx context.Context, sessionID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.Incr(ctx, c.versionKey(sessionID))
		pipe.Expire(ctx, c.versionKey(sessionID), versionTTL)
		pipe.Del(ctx, c.historyKey(sessionID))
		pipe.Set(ctx, c.dirtyKey(sessionID), "1", c.dirtyMarkerTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) isDirty(ctx context.Context, sessionID string) (bool, error) {
	exists, err := c.client.Exists(ctx, c.dirtyKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func (c *HistoryCache) historyKey(sessionID string) string {
	return "docchat:history:" + sessionID
}

func (c *HistoryCache) dirtyKey(sessionID string) string {
	return "docchat:history:dirty:" + sessionID
}

func (c *HistoryCache) versionKey(sessionID string) string {
	return "docchat:history:version:" + sessionID
}
