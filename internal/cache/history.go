package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"pairchat/internal/model"
)

// HistoryCache keeps recently fetched conversations in redis. Entries are
// invalidated on every append and on every read transition; writers also set
// a short-lived dirty marker so a slow reader cannot re-cache a snapshot it
// took before the write.
type HistoryCache struct {
	client         *redisv9.Client
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

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

func (c *HistoryCache) Get(ctx context.Context, userA, userB uint) ([]model.Message, bool, error) {
	key := historyKey(userA, userB)
	raw, err := c.client.Get(ctx, key).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var messages []model.Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return messages, true, nil
}

func (c *HistoryCache) Set(ctx context.Context, userA, userB uint, messages []model.Message) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, historyKey(userA, userB), payload, c.historyTTL).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) Invalidate(ctx context.Context, userA, userB uint) error {
	if err := c.client.Del(ctx, historyKey(userA, userB)).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

// MarkDirty flags the pair as written-to. The marker outlives the write by
// dirtyMarkerTTL, long enough for any reader that started before the write
// to reach its re-check and refuse to cache its stale snapshot.
func (c *HistoryCache) MarkDirty(ctx context.Context, userA, userB uint) error {
	if err := c.client.Set(ctx, dirtyKey(userA, userB), "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) IsDirty(ctx context.Context, userA, userB uint) (bool, error) {
	exists, err := c.client.Exists(ctx, dirtyKey(userA, userB)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

// historyKey is symmetric in the pair so both participants share one entry.
func historyKey(userA, userB uint) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("chat:history:%d:%d", userA, userB)
}

func dirtyKey(userA, userB uint) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("chat:history:dirty:%d:%d", userA, userB)
}
