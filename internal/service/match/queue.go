package match

import (
	"sync"
	"time"

	appErr "arena-service/pkg/errors"
)

// RegionQueue is the holding area for one region's waiting players.
// All mutation goes through its mutex; matching passes operate on
// point-in-time snapshots and commit through CommitPair, so a player
// removed mid-pass can never end up in two matches.
type RegionQueue struct {
	region string

	mu      sync.Mutex
	players map[string]*QueuedPlayer
}

func NewRegionQueue(region string) *RegionQueue {
	return &RegionQueue{
		region:  region,
		players: make(map[string]*QueuedPlayer),
	}
}

func (q *RegionQueue) Region() string {
	return q.region
}

// AddPlayer inserts a player and returns the queue size as an
// approximate position. Matching is quality-ordered, not FIFO-ordered,
// so the position is a UX hint only.
func (q *RegionQueue) AddPlayer(profile PlayerProfile, criteria MatchCriteria, now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.players[profile.ID]; exists {
		return 0, appErr.ErrAlreadyInQueue
	}
	q.players[profile.ID] = &QueuedPlayer{
		Profile:  profile,
		Criteria: criteria,
		JoinedAt: now,
	}
	return len(q.players), nil
}

// Remove drops a player if present. Absent ids are a no-op.
func (q *RegionQueue) Remove(playerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.players[playerID]; !exists {
		return false
	}
	delete(q.players, playerID)
	return true
}

// CommitPair atomically re-validates and removes both players. The
// validate callback runs under the queue lock against the live
// entries, so a pass working from a stale snapshot cannot commit a
// pair that a concurrent removal or another pass already broke up.
func (q *RegionQueue) CommitPair(aID, bID string, validate func(a, b *QueuedPlayer) bool) (QueuedPlayer, QueuedPlayer, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	a, okA := q.players[aID]
	b, okB := q.players[bID]
	if !okA || !okB {
		return QueuedPlayer{}, QueuedPlayer{}, false
	}
	if validate != nil && !validate(a, b) {
		return QueuedPlayer{}, QueuedPlayer{}, false
	}
	delete(q.players, aID)
	delete(q.players, bID)
	return *a, *b, true
}

// Snapshot returns a consistent point-in-time copy of the queue for a
// matching pass. The copies share nothing with the live entries.
func (q *RegionQueue) Snapshot() []QueuedPlayer {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]QueuedPlayer, 0, len(q.players))
	for _, qp := range q.players {
		out = append(out, *qp)
	}
	return out
}

func (q *RegionQueue) Contains(playerID string) (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	qp, ok := q.players[playerID]
	if !ok {
		return time.Time{}, false
	}
	return qp.JoinedAt, true
}

func (q *RegionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.players)
}

// PlayerIDs lists current members, used by cluster failover to
// enumerate what needs re-homing.
func (q *RegionQueue) PlayerIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]string, 0, len(q.players))
	for id := range q.players {
		ids = append(ids, id)
	}
	return ids
}
