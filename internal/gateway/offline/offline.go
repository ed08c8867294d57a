// Package offline queues frames for users with no live connection and
// replays them on the next successful authentication. Runs on the legacy
// redis client; best-effort on both ends.
package offline

import (
	"encoding/json"

	"AuroraGate/internal/gateway/connmgr"

	legacy "github.com/go-redis/redis"
	"go.uber.org/zap"
)

const queueKeyPrefix = "offline:push:"

// Queue wraps the redis list holding pending frames per user.
type Queue struct {
	rdb *legacy.Client
	max int64
}

// maxPending caps the per-user backlog; older entries are trimmed away.
const maxPending = 500

func NewQueue(rdb *legacy.Client) *Queue {
	return &Queue{rdb: rdb, max: maxPending}
}

// Push appends a frame to the user's pending list.
func (q *Queue) Push(userID string, frame interface{}) {
	raw, err := json.Marshal(frame)
	if err != nil {
		zap.L().Error("offline frame marshal failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	key := queueKeyPrefix + userID
	pipe := q.rdb.TxPipeline()
	pipe.RPush(key, raw)
	pipe.LTrim(key, -q.max, -1)
	if _, err := pipe.Exec(); err != nil {
		zap.L().Warn("offline frame enqueue failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// Flush drains the user's pending frames to the given session in order.
// Frames that fail to send stay dropped; the queue is cleared either way.
func (q *Queue) Flush(userID string, s connmgr.Session) {
	key := queueKeyPrefix + userID
	pending, err := q.rdb.LRange(key, 0, -1).Result()
	if err != nil {
		zap.L().Warn("offline queue read failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}
	if err := q.rdb.Del(key).Err(); err != nil {
		zap.L().Warn("offline queue clear failed", zap.String("user_id", userID), zap.Error(err))
	}
	for _, raw := range pending {
		if err := s.Send(json.RawMessage(raw)); err != nil {
			zap.L().Info("offline frame replay dropped",
				zap.String("user_id", userID), zap.Error(err))
		}
	}
	zap.L().Info("replayed offline frames",
		zap.String("user_id", userID), zap.Int("count", len(pending)))
}
