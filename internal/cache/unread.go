package cache

import (
	"context"
	"fmt"
	"strconv"

	redisv9 "github.com/redis/go-redis/v9"
)

// UnreadCounters tracks per-sender unread badges in redis so listing a
// contact page does not fan out COUNT queries against the message table. The
// counters are incremented by the notification worker and cleared when the
// receiver fetches history; the store stays the source of truth.
type UnreadCounters struct {
	client *redisv9.Client
}

func NewUnreadCounters(client *redisv9.Client) *UnreadCounters {
	return &UnreadCounters{client: client}
}

func (c *UnreadCounters) Incr(ctx context.Context, receiverID, senderID uint) error {
	if err := c.client.Incr(ctx, unreadKey(receiverID, senderID)).Err(); err != nil {
		return fmt.Errorf("redis incr unread failed: %w", err)
	}
	return nil
}

func (c *UnreadCounters) Get(ctx context.Context, receiverID, senderID uint) (int64, error) {
	raw, err := c.client.Get(ctx, unreadKey(receiverID, senderID)).Result()
	if err == redisv9.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get unread failed: %w", err)
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse unread counter failed: %w", err)
	}
	return count, nil
}

func (c *UnreadCounters) Clear(ctx context.Context, receiverID, senderID uint) error {
	if err := c.client.Del(ctx, unreadKey(receiverID, senderID)).Err(); err != nil {
		return fmt.Errorf("redis clear unread failed: %w", err)
	}
	return nil
}

func unreadKey(receiverID, senderID uint) string {
	return fmt.Sprintf("chat:unread:%d:%d", receiverID, senderID)
}
