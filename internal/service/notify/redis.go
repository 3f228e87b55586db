package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"arena-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventChannel carries match-found events to whoever pushes them to
// players (the ws hub on each node subscribes here).
const EventChannel = "match:events"

type MatchEvent struct {
	MatchID   string    `json:"matchId"`
	Players   []string  `json:"players"`
	Region    string    `json:"region"`
	CreatedAt time.Time `json:"createdAt"`
}

// Redis implements the session/notification hand-off: a pending-match
// key per player (polled by queue status) plus a pub/sub fan-out.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

func (n *Redis) MatchFound(ctx context.Context, matchID string, players [2]string, region string) error {
	event := MatchEvent{
		MatchID:   matchID,
		Players:   players[:],
		Region:    region,
		CreatedAt: time.Now(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	for _, playerID := range players {
		if err := n.rdb.Set(ctx, buildPendingKey(playerID), data, n.ttl).Err(); err != nil {
			return err
		}
	}

	if err := n.rdb.Publish(ctx, EventChannel, data).Err(); err != nil {
		logger.Log.Warn("match event publish failed",
			zap.String("matchID", matchID),
			zap.Error(err),
		)
	}
	return nil
}

func (n *Redis) Pending(ctx context.Context, playerID string) (string, bool, error) {
	data, err := n.rdb.Get(ctx, buildPendingKey(playerID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	var event MatchEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return "", false, nil
	}
	return event.MatchID, true, nil
}

func (n *Redis) Clear(ctx context.Context, playerID string) error {
	return n.rdb.Del(ctx, buildPendingKey(playerID)).Err()
}

func buildPendingKey(playerID string) string {
	return fmt.Sprintf("match:pending:%s", playerID)
}
