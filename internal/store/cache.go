package store

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	conversationMembersKeyFmt = "conversations:members:%s"
	profileStatusKeyFmt       = "profiles:status:%s"

	// members change rarely relative to message volume; reads renew the TTL.
	defaultMemberTTL = 10 * time.Minute
	statusTTL        = 24 * time.Hour
)

func conversationMembersKey(conversationID string) string {
	return fmt.Sprintf(conversationMembersKeyFmt, conversationID)
}

func profileStatusKey(userID string) string {
	return fmt.Sprintf(profileStatusKeyFmt, userID)
}

// CachedStore decorates a MySQLStore with a Redis read-through cache for the
// hot lookups on the broadcast path: conversation membership and status.
// Cache failures degrade to the database, never to an error.
type CachedStore struct {
	*MySQLStore
	rdb *goredis.Client
	ttl time.Duration
}

func NewCachedStore(inner *MySQLStore, rdb *goredis.Client) *CachedStore {
	return &CachedStore{MySQLStore: inner, rdb: rdb, ttl: defaultMemberTTL}
}

func (c *CachedStore) ConversationMembers(ctx context.Context, conversationID string) ([]string, error) {
	key := conversationMembersKey(conversationID)
	members, err := c.rdb.SMembers(ctx, key).Result()
	if err == nil && len(members) > 0 {
		c.rdb.Expire(ctx, key, c.ttl)
		return members, nil
	}
	if err != nil {
		zap.L().Warn("conversation member cache read failed, falling back to db",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}

	members, err = c.MySQLStore.ConversationMembers(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(members) > 0 {
		args := make([]interface{}, len(members))
		for i, m := range members {
			args[i] = m
		}
		pipe := c.rdb.TxPipeline()
		pipe.SAdd(ctx, key, args...)
		pipe.Expire(ctx, key, c.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			zap.L().Warn("conversation member cache fill failed",
				zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}
	return members, nil
}

func (c *CachedStore) UpdateStatus(ctx context.Context, id, status string) error {
	if err := c.rdb.Set(ctx, profileStatusKey(id), status, statusTTL).Err(); err != nil {
		zap.L().Warn("status cache write failed", zap.String("user_id", id), zap.Error(err))
	}
	return c.MySQLStore.UpdateStatus(ctx, id, status)
}
