package cluster

import (
	"context"
	"errors"
	"sync"
	"time"

	"arena-service/internal/service/match"
	appErr "arena-service/pkg/errors"
	"arena-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type NodeStatus string

const (
	NodeHealthy   NodeStatus = "healthy"
	NodeUnhealthy NodeStatus = "unhealthy"
)

// QueueBackend is one queue-server instance as seen by the router:
// the local coordinator in-process, or a peer over HTTP. Rehome is
// the failover enqueue: it takes over the player's cluster-wide owner
// claim instead of contending for it.
type QueueBackend interface {
	Enqueue(ctx context.Context, playerID string) (match.QueueResult, error)
	Rehome(ctx context.Context, playerID string) (match.QueueResult, error)
	Withdraw(ctx context.Context, playerID string) error
	Players(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

type ServerNode struct {
	ID      string
	Addr    string
	backend QueueBackend
	status  NodeStatus
}

type NodeHealth struct {
	ID     string     `json:"id"`
	Addr   string     `json:"addr"`
	Status NodeStatus `json:"status"`
}

type Config struct {
	HealthInterval time.Duration
	ProbeTimeout   time.Duration
	VirtualNodes   int
}

// Router spreads players across queue nodes with a consistent-hash
// ring and keeps the tier available through node failure: a dead node
// costs capacity and some wait time, never queued players.
type Router struct {
	cfg  Config
	ring *Ring
	rdb  *redis.Client

	mu    sync.Mutex
	nodes map[string]*ServerNode

	startOnce sync.Once
}

// NewRouter builds a router. rdb may be nil in single-node setups; it
// is only read during failover, to enumerate a dead node's players
// from the ownership records the queue tier maintains.
func NewRouter(cfg Config, rdb *redis.Client) *Router {
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 10 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	return &Router{
		cfg:   cfg,
		ring:  NewRing(cfg.VirtualNodes),
		rdb:   rdb,
		nodes: make(map[string]*ServerNode),
	}
}

func (r *Router) AddNode(id, addr string, backend QueueBackend) {
	r.mu.Lock()
	r.nodes[id] = &ServerNode{
		ID:      id,
		Addr:    addr,
		backend: backend,
		status:  NodeHealthy,
	}
	r.mu.Unlock()

	r.ring.Add(id)
	logger.Log.Info("queue node added",
		zap.String("nodeID", id),
		zap.String("addr", addr),
	)
}

// AddPlayerToQueue routes an enqueue to the player's primary node and
// retries once on the deterministic backup if the primary errors.
// Caller-fault errors pass through untouched; only infrastructure
// failures trigger the retry.
func (r *Router) AddPlayerToQueue(ctx context.Context, playerID string) (match.QueueResult, error) {
	primaryID, ok := r.ring.Locate(playerID)
	if !ok {
		return match.QueueResult{}, appErr.ErrNoHealthyNodes
	}

	res, err := r.enqueueOn(ctx, primaryID, playerID)
	if err == nil || isCallerFault(err) {
		return res, err
	}

	logger.Log.Warn("primary enqueue failed, trying backup",
		zap.String("playerID", playerID),
		zap.String("primary", primaryID),
		zap.Error(err),
	)

	backupID, ok := r.ring.LocateBackup(playerID)
	if !ok {
		r.markUnhealthy(primaryID)
		return match.QueueResult{}, err
	}

	res, err = r.enqueueOn(ctx, backupID, playerID)
	if err != nil && !isCallerFault(err) {
		r.markUnhealthy(primaryID)
	}
	return res, err
}

// RemovePlayerFromQueue forwards a leave to every node; removal is
// idempotent so over-delivery is harmless.
func (r *Router) RemovePlayerFromQueue(ctx context.Context, playerID string) {
	for _, node := range r.nodeList() {
		if err := node.backend.Withdraw(ctx, playerID); err != nil {
			logger.Log.Warn("withdraw failed",
				zap.String("nodeID", node.ID),
				zap.String("playerID", playerID),
				zap.Error(err),
			)
		}
	}
}

// Start runs the background health-check loop.
func (r *Router) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		go r.runHealthLoop(ctx)
	})
}

func (r *Router) runHealthLoop(ctx context.Context) {
	logger.Log.Info("cluster health loop started",
		zap.Duration("interval", r.cfg.HealthInterval),
	)

	ticker := time.NewTicker(r.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("cluster health loop stopped")
			return
		case <-ticker.C:
			r.CheckNodes(ctx)
		}
	}
}

// CheckNodes probes every node once and runs failover for any that
// fail the probe.
func (r *Router) CheckNodes(ctx context.Context) {
	for _, node := range r.nodeList() {
		r.mu.Lock()
		down := node.status == NodeUnhealthy
		r.mu.Unlock()
		if down {
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
		err := node.backend.Ping(probeCtx)
		cancel()

		if err == nil {
			continue
		}
		logger.Log.Warn("node failed health probe",
			zap.String("nodeID", node.ID),
			zap.Error(err),
		)
		if ferr := r.HandleServerFailure(ctx, node.ID); ferr != nil {
			logger.Log.Error("failover failed",
				zap.String("nodeID", node.ID),
				zap.Error(ferr),
			)
		}
	}
}

// HandleServerFailure migrates every player owned by the failed node
// to its ring backup, then drops the node from the ring. Re-running it
// is safe: already-migrated players no-op on re-enqueue and removing
// an absent ring node no-ops too.
func (r *Router) HandleServerFailure(ctx context.Context, nodeID string) error {
	r.mu.Lock()
	node, exists := r.nodes[nodeID]
	r.mu.Unlock()
	if !exists {
		return nil
	}

	r.markUnhealthy(nodeID)

	players, err := node.backend.Players(ctx)
	if err != nil {
		// A crashed node can't list its own players; fall back to the
		// ownership records the queue tier keeps in redis.
		logger.Log.Warn("failed node unreachable, enumerating from ownership records",
			zap.String("nodeID", nodeID),
			zap.Error(err),
		)
		players = r.memberRecords(ctx, nodeID)
	}

	migrated := 0
	for _, playerID := range players {
		// Send the player where the ring will route them once the
		// failed node is gone: their owner's successor if the failed
		// node owned their range, their owner otherwise. Resolved
		// before the ring removal so the target is deterministic.
		backupID, ok := r.ring.Locate(playerID)
		if ok && backupID == nodeID {
			backupID, ok = r.ring.LocateBackup(playerID)
		}
		if !ok || backupID == nodeID {
			logger.Log.Error("no backup node for player",
				zap.String("playerID", playerID),
			)
			continue
		}

		if _, err := r.rehomeOn(ctx, backupID, playerID); err != nil {
			if isCallerFault(err) {
				// Already queued on the backup: an earlier (partial)
				// migration got there first.
				continue
			}
			logger.Log.Error("player migration failed",
				zap.String("playerID", playerID),
				zap.String("backup", backupID),
				zap.Error(err),
			)
			continue
		}
		migrated++

		// Best effort: a dead node won't answer, but a merely slow
		// one must not keep owning the player.
		node.backend.Withdraw(ctx, playerID)
	}

	r.ring.Remove(nodeID)

	logger.Log.Info("node failover complete",
		zap.String("nodeID", nodeID),
		zap.Int("migrated", migrated),
	)
	return nil
}

func (r *Router) Stats() []NodeHealth {
	nodes := r.nodeList()
	out := make([]NodeHealth, 0, len(nodes))
	for _, node := range nodes {
		r.mu.Lock()
		status := node.status
		r.mu.Unlock()
		out = append(out, NodeHealth{ID: node.ID, Addr: node.Addr, Status: status})
	}
	return out
}

func (r *Router) enqueueOn(ctx context.Context, nodeID, playerID string) (match.QueueResult, error) {
	r.mu.Lock()
	node, exists := r.nodes[nodeID]
	r.mu.Unlock()
	if !exists {
		return match.QueueResult{}, appErr.ErrNodeUnavailable
	}
	return node.backend.Enqueue(ctx, playerID)
}

func (r *Router) rehomeOn(ctx context.Context, nodeID, playerID string) (match.QueueResult, error) {
	r.mu.Lock()
	node, exists := r.nodes[nodeID]
	r.mu.Unlock()
	if !exists {
		return match.QueueResult{}, appErr.ErrNodeUnavailable
	}
	return node.backend.Rehome(ctx, playerID)
}

// memberRecords lists the players a node owned according to the redis
// member set the queue tier maintains alongside the owner keys.
func (r *Router) memberRecords(ctx context.Context, nodeID string) []string {
	if r.rdb == nil {
		return nil
	}
	members, err := r.rdb.SMembers(ctx, match.NodeMembersKey(nodeID)).Result()
	if err != nil {
		logger.Log.Warn("could not read ownership records",
			zap.String("nodeID", nodeID),
			zap.Error(err),
		)
		return nil
	}
	return members
}

func (r *Router) markUnhealthy(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if node, exists := r.nodes[nodeID]; exists {
		node.status = NodeUnhealthy
	}
}

func (r *Router) nodeList() []*ServerNode {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*ServerNode, 0, len(r.nodes))
	for _, node := range r.nodes {
		out = append(out, node)
	}
	return out
}

// isCallerFault reports whether an enqueue error is the caller's
// problem rather than a node problem; those never trigger failover.
func isCallerFault(err error) bool {
	return errors.Is(err, appErr.ErrAlreadyInQueue) ||
		errors.Is(err, appErr.ErrRegionUnavailable) ||
		errors.Is(err, appErr.ErrPlayerNotFound)
}
