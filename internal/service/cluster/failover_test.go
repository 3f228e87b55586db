package cluster_test

import (
	"context"
	"fmt"
	"testing"

	"arena-service/internal/model"
	"arena-service/internal/service/cluster"
	"arena-service/internal/service/match"
	"arena-service/internal/service/rating"
	appErr "arena-service/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fixedDirectory struct {
	profiles map[string]match.PlayerProfile
}

func (d *fixedDirectory) GetProfile(ctx context.Context, playerID string) (match.PlayerProfile, error) {
	p, ok := d.profiles[playerID]
	if !ok {
		return match.PlayerProfile{}, appErr.ErrPlayerNotFound
	}
	return p, nil
}

func (d *fixedDirectory) ResolveRegion(profile match.PlayerProfile) (string, error) {
	return profile.Region, nil
}

type flatPing struct{}

func (flatPing) EstimatePing(a, b match.Location) float64 { return 40 }

type flatStyles struct{}

func (flatStyles) StyleCompatibility(a, b match.PlayerProfile) float64 { return 0.8 }

type silentNotifier struct{}

func (silentNotifier) MatchFound(ctx context.Context, matchID string, players [2]string, region string) error {
	return nil
}
func (silentNotifier) Pending(ctx context.Context, playerID string) (string, bool, error) {
	return "", false, nil
}
func (silentNotifier) Clear(ctx context.Context, playerID string) error { return nil }

// unreachableBackend stands in for a crashed peer: every call fails.
type unreachableBackend struct{}

func (unreachableBackend) Enqueue(ctx context.Context, playerID string) (match.QueueResult, error) {
	return match.QueueResult{}, appErr.ErrNodeUnavailable
}
func (unreachableBackend) Rehome(ctx context.Context, playerID string) (match.QueueResult, error) {
	return match.QueueResult{}, appErr.ErrNodeUnavailable
}
func (unreachableBackend) Withdraw(ctx context.Context, playerID string) error {
	return appErr.ErrNodeUnavailable
}
func (unreachableBackend) Players(ctx context.Context) ([]string, error) {
	return nil, appErr.ErrNodeUnavailable
}
func (unreachableBackend) Ping(ctx context.Context) error {
	return appErr.ErrNodeUnavailable
}

var failoverDBSeq int

func newQueueNode(t *testing.T, rdb *redis.Client, nodeID string, profiles map[string]match.PlayerProfile) *match.Service {
	t.Helper()

	failoverDBSeq++
	dsn := fmt.Sprintf("file:failover%d?mode=memory&cache=shared", failoverDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.Player{}, &model.Match{}, &model.RatingHistory{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return match.NewService(db, rdb, &fixedDirectory{profiles: profiles}, flatPing{}, flatStyles{}, silentNotifier{}, rating.NewService(), match.Config{
		NodeID:  nodeID,
		Regions: []string{"NA"},
	})
}

func newMiniRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

// A queued player's cluster-wide owner claim must not block their own
// migration: failover transfers the claim to the backup node.
func TestFailoverTransfersOwnerClaim(t *testing.T) {
	ctx := context.Background()
	rdb := newMiniRedis(t)

	profiles := map[string]match.PlayerProfile{
		"p1": {ID: "p1", Rating: 1200, Level: 10, Region: "NA", Styles: []float64{0.5, 0.5, 0.5}},
	}
	nodes := map[string]*match.Service{
		"n1": newQueueNode(t, rdb, "n1", profiles),
		"n2": newQueueNode(t, rdb, "n2", profiles),
	}

	router := cluster.NewRouter(cluster.Config{}, rdb)
	for id, svc := range nodes {
		router.AddNode(id, "", cluster.NewLocalBackend(svc))
	}

	if _, err := router.AddPlayerToQueue(ctx, "p1"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	var primaryID, backupID string
	for id, svc := range nodes {
		if len(svc.QueuedPlayerIDs()) == 1 {
			primaryID = id
		} else {
			backupID = id
		}
	}
	if primaryID == "" {
		t.Fatal("player landed on no node")
	}
	if owner, _ := rdb.Get(ctx, "queue:player:p1").Result(); owner != primaryID {
		t.Fatalf("owner claim should be %s, got %q", primaryID, owner)
	}

	if err := router.HandleServerFailure(ctx, primaryID); err != nil {
		t.Fatalf("failover failed: %v", err)
	}

	if got := nodes[backupID].QueuedPlayerIDs(); len(got) != 1 || got[0] != "p1" {
		t.Fatalf("player should be queued on backup %s, got %v", backupID, got)
	}
	if got := nodes[primaryID].QueuedPlayerIDs(); len(got) != 0 {
		t.Fatalf("failed node should own nobody, got %v", got)
	}
	if owner, _ := rdb.Get(ctx, "queue:player:p1").Result(); owner != backupID {
		t.Fatalf("owner claim should follow the player to %s, got %q", backupID, owner)
	}
	if members, _ := rdb.SMembers(ctx, match.NodeMembersKey(primaryID)).Result(); len(members) != 0 {
		t.Fatalf("failed node's ownership records should be empty, got %v", members)
	}
}

// A crashed node cannot list its own players, so failover enumerates
// them from the ownership records in redis instead.
func TestFailoverEnumeratesFromOwnershipRecords(t *testing.T) {
	ctx := context.Background()
	rdb := newMiniRedis(t)

	profiles := map[string]match.PlayerProfile{
		"p1": {ID: "p1", Rating: 1200, Level: 10, Region: "NA", Styles: []float64{0.5, 0.5, 0.5}},
	}
	crashed := newQueueNode(t, rdb, "n1", profiles)
	survivor := newQueueNode(t, rdb, "n2", profiles)

	// The player joined n1 before it crashed.
	if _, err := crashed.JoinQueue(ctx, "p1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	router := cluster.NewRouter(cluster.Config{}, rdb)
	router.AddNode("n1", "", unreachableBackend{})
	router.AddNode("n2", "", cluster.NewLocalBackend(survivor))

	if err := router.HandleServerFailure(ctx, "n1"); err != nil {
		t.Fatalf("failover failed: %v", err)
	}

	if got := survivor.QueuedPlayerIDs(); len(got) != 1 || got[0] != "p1" {
		t.Fatalf("player should be rescued onto n2, got %v", got)
	}
	if owner, _ := rdb.Get(ctx, "queue:player:p1").Result(); owner != "n2" {
		t.Fatalf("owner claim should be n2, got %q", owner)
	}
	if members, _ := rdb.SMembers(ctx, match.NodeMembersKey("n1")).Result(); len(members) != 0 {
		t.Fatalf("crashed node's records should be cleared, got %v", members)
	}

	// A repeat failover run finds the records empty and changes
	// nothing.
	if err := router.HandleServerFailure(ctx, "n1"); err != nil {
		t.Fatalf("repeat failover failed: %v", err)
	}
	if got := survivor.QueuedPlayerIDs(); len(got) != 1 {
		t.Fatalf("repeat failover duplicated the player: %v", got)
	}
}
