package cluster_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"arena-service/internal/service/cluster"
	"arena-service/internal/service/match"
	appErr "arena-service/pkg/errors"
)

// fakeBackend is an in-memory queue node for router tests.
type fakeBackend struct {
	mu       sync.Mutex
	players  map[string]bool
	down     bool
	failNext bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{players: map[string]bool{}}
}

func (b *fakeBackend) Enqueue(ctx context.Context, playerID string) (match.QueueResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down || b.failNext {
		b.failNext = false
		return match.QueueResult{}, appErr.ErrNodeUnavailable
	}
	if b.players[playerID] {
		return match.QueueResult{}, appErr.ErrAlreadyInQueue
	}
	b.players[playerID] = true
	return match.QueueResult{PlayerID: playerID, Position: len(b.players)}, nil
}

func (b *fakeBackend) Rehome(ctx context.Context, playerID string) (match.QueueResult, error) {
	return b.Enqueue(ctx, playerID)
}

func (b *fakeBackend) Withdraw(ctx context.Context, playerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.players, playerID)
	return nil
}

func (b *fakeBackend) Players(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, appErr.ErrNodeUnavailable
	}
	out := make([]string, 0, len(b.players))
	for id := range b.players {
		out = append(out, id)
	}
	return out, nil
}

func (b *fakeBackend) Ping(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return appErr.ErrNodeUnavailable
	}
	return nil
}

func (b *fakeBackend) has(playerID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.players[playerID]
}

func (b *fakeBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.players)
}

func newTestCluster(t *testing.T) (*cluster.Router, map[string]*fakeBackend) {
	t.Helper()

	router := cluster.NewRouter(cluster.Config{}, nil)
	backends := map[string]*fakeBackend{
		"n1": newFakeBackend(),
		"n2": newFakeBackend(),
		"n3": newFakeBackend(),
	}
	for id, backend := range backends {
		router.AddNode(id, "http://"+id, backend)
	}
	return router, backends
}

func TestAddPlayerRoutesToOwner(t *testing.T) {
	ctx := context.Background()
	router, backends := newTestCluster(t)

	if _, err := router.AddPlayerToQueue(ctx, "p1"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	owners := 0
	for _, backend := range backends {
		owners += backend.count()
	}
	if owners != 1 {
		t.Fatalf("player should live on exactly one node, found %d", owners)
	}

	// Same caller-fault error surfaces, no backup retry.
	if _, err := router.AddPlayerToQueue(ctx, "p1"); !errors.Is(err, appErr.ErrAlreadyInQueue) {
		t.Fatalf("expected ErrAlreadyInQueue, got %v", err)
	}
}

func TestEnqueueRetriesOnBackup(t *testing.T) {
	ctx := context.Background()
	router, backends := newTestCluster(t)

	// Find p1's primary with a probe enqueue, then arm exactly that
	// node to fail the real one. Routing is deterministic, so the
	// retry must land on the backup.
	if _, err := router.AddPlayerToQueue(ctx, "p1"); err != nil {
		t.Fatalf("probe enqueue failed: %v", err)
	}
	var primary *fakeBackend
	for _, backend := range backends {
		if backend.has("p1") {
			primary = backend
		}
	}
	primary.mu.Lock()
	delete(primary.players, "p1")
	primary.failNext = true
	primary.mu.Unlock()

	if _, err := router.AddPlayerToQueue(ctx, "p1"); err != nil {
		t.Fatalf("backup retry should succeed: %v", err)
	}

	total := 0
	for _, backend := range backends {
		total += backend.count()
	}
	if total != 1 {
		t.Fatalf("player duplicated across nodes: %d copies", total)
	}
}

func TestHandleServerFailureMigratesPlayers(t *testing.T) {
	ctx := context.Background()
	router, backends := newTestCluster(t)

	ids := []string{"p1", "p2", "p3", "p4", "p5", "p6"}
	for _, id := range ids {
		if _, err := router.AddPlayerToQueue(ctx, id); err != nil {
			t.Fatalf("enqueue %s failed: %v", id, err)
		}
	}

	// Pick a node that actually owns someone and kill it.
	var failedID string
	for id, backend := range backends {
		if backend.count() > 0 {
			failedID = id
			break
		}
	}
	failed := backends[failedID]
	lost, _ := failed.Players(ctx)

	if err := router.HandleServerFailure(ctx, failedID); err != nil {
		t.Fatalf("failover failed: %v", err)
	}

	for _, playerID := range lost {
		found := 0
		for id, backend := range backends {
			if id == failedID {
				continue
			}
			if backend.has(playerID) {
				found++
			}
		}
		if found != 1 {
			t.Fatalf("player %s should live on exactly one surviving node, found %d", playerID, found)
		}
	}

	for _, health := range router.Stats() {
		if health.ID == failedID && health.Status != cluster.NodeUnhealthy {
			t.Fatalf("failed node should be unhealthy, got %s", health.Status)
		}
	}

	// The failed node owns nobody once migration completes.
	if failed.count() != 0 {
		t.Fatalf("failed node still owns %d players", failed.count())
	}

	// New lookups never land on the removed node.
	for _, id := range []string{"x1", "x2", "x3", "x4"} {
		router.AddPlayerToQueue(ctx, id)
	}
	if failed.count() != 0 {
		t.Fatal("removed node received new players")
	}
}

func TestHandleServerFailureIdempotent(t *testing.T) {
	ctx := context.Background()
	router, backends := newTestCluster(t)

	for _, id := range []string{"p1", "p2", "p3", "p4", "p5", "p6"} {
		router.AddPlayerToQueue(ctx, id)
	}

	var failedID string
	for id, backend := range backends {
		if backend.count() > 0 {
			failedID = id
			break
		}
	}

	if err := router.HandleServerFailure(ctx, failedID); err != nil {
		t.Fatalf("first failover failed: %v", err)
	}

	assignment := func() map[string]string {
		out := map[string]string{}
		for id, backend := range backends {
			players, _ := backend.Players(ctx)
			for _, p := range players {
				out[p+"@"+id] = id
			}
		}
		return out
	}
	first := assignment()

	if err := router.HandleServerFailure(ctx, failedID); err != nil {
		t.Fatalf("second failover failed: %v", err)
	}
	second := assignment()

	if len(first) != len(second) {
		t.Fatalf("assignment changed on repeat failover: %d vs %d entries", len(first), len(second))
	}
	for key := range first {
		if _, ok := second[key]; !ok {
			t.Fatalf("assignment entry %s lost on repeat failover", key)
		}
	}
}

func TestCheckNodesTriggersFailover(t *testing.T) {
	ctx := context.Background()
	router, backends := newTestCluster(t)

	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		router.AddPlayerToQueue(ctx, id)
	}

	var failedID string
	for id, backend := range backends {
		if backend.count() > 0 {
			failedID = id
			break
		}
	}
	failed := backends[failedID]
	failed.mu.Lock()
	failed.down = true
	failed.mu.Unlock()

	router.CheckNodes(ctx)

	for _, health := range router.Stats() {
		if health.ID == failedID && health.Status != cluster.NodeUnhealthy {
			t.Fatalf("probe failure should mark node unhealthy")
		}
	}
}
