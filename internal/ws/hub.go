package ws

import (
	"context"
	"encoding/json"
	"sync"

	"arena-service/internal/service/notify"
	"arena-service/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Hub fans match-found events out to connected players. It subscribes
// to the cluster-wide redis channel, so a player connected to this
// node hears about a match committed on any node.
type Hub struct {
	rdb *redis.Client

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		rdb:   rdb,
		conns: make(map[string]*websocket.Conn),
	}
}

func (h *Hub) Run(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, notify.EventChannel)
	defer pubsub.Close()

	logger.Log.Info("notification hub started", zap.String("channel", notify.EventChannel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("notification hub stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event notify.MatchEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Log.Warn("bad match event payload", zap.Error(err))
				continue
			}
			h.deliver(event)
		}
	}
}

func (h *Hub) deliver(event notify.MatchEvent) {
	payload := struct {
		Type string `json:"type"`
		notify.MatchEvent
	}{Type: "match_found", MatchEvent: event}

	for _, playerID := range event.Players {
		h.mu.Lock()
		conn := h.conns[playerID]
		h.mu.Unlock()
		if conn == nil {
			continue
		}
		if err := conn.WriteJSON(payload); err != nil {
			logger.Log.Warn("ws push failed",
				zap.String("playerID", playerID),
				zap.Error(err),
			)
			h.Unregister(playerID)
		}
	}
}

func (h *Hub) Register(playerID string, conn *websocket.Conn) {
	h.mu.Lock()
	old := h.conns[playerID]
	h.conns[playerID] = conn
	h.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

func (h *Hub) Unregister(playerID string) {
	h.mu.Lock()
	conn := h.conns[playerID]
	delete(h.conns, playerID)
	h.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}
