package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"arena-service/internal/model"
	"arena-service/internal/service/rating"
	appErr "arena-service/pkg/errors"
	"arena-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Config struct {
	NodeID                  string
	Regions                 []string
	GameMode                string
	MatcherInterval         time.Duration
	Finder                  FinderConfig
	MinCommitNetworkQuality float64
	OwnerLockTTL            time.Duration
	WaitSampleWindow        int
	DefaultWaitEstimate     time.Duration
}

func defaultConfig() Config {
	return Config{
		NodeID:                  "local",
		GameMode:                "duel",
		MatcherInterval:         1 * time.Second,
		Finder:                  DefaultFinderConfig(),
		MinCommitNetworkQuality: 0.7,
		OwnerLockTTL:            10 * time.Minute,
		WaitSampleWindow:        32,
		DefaultWaitEstimate:     30 * time.Second,
	}
}

// Service is the match coordinator: it owns the per-region queues,
// drives the periodic matching passes, commits matches, and settles
// results through the rating engine.
type Service struct {
	db       *gorm.DB
	rdb      *redis.Client
	cfg      Config
	finder   *Finder
	profiles ProfileDirectory
	notifier Notifier
	ratings  *rating.Service
	queues   map[string]*RegionQueue
	stats    *waitStats

	// now is swapped out by tests to drive the widening window.
	now func() time.Time

	startOnce sync.Once
}

func NewService(
	db *gorm.DB,
	rdb *redis.Client,
	profiles ProfileDirectory,
	ping PingEstimator,
	styles StyleScorer,
	notifier Notifier,
	ratings *rating.Service,
	cfg Config,
) *Service {
	def := defaultConfig()
	if cfg.NodeID == "" {
		cfg.NodeID = def.NodeID
	}
	if cfg.GameMode == "" {
		cfg.GameMode = def.GameMode
	}
	if cfg.MatcherInterval <= 0 {
		cfg.MatcherInterval = def.MatcherInterval
	}
	if cfg.Finder == (FinderConfig{}) {
		cfg.Finder = def.Finder
	}
	if cfg.MinCommitNetworkQuality <= 0 {
		cfg.MinCommitNetworkQuality = def.MinCommitNetworkQuality
	}
	if cfg.OwnerLockTTL <= 0 {
		cfg.OwnerLockTTL = def.OwnerLockTTL
	}
	if cfg.DefaultWaitEstimate <= 0 {
		cfg.DefaultWaitEstimate = def.DefaultWaitEstimate
	}

	queues := make(map[string]*RegionQueue, len(cfg.Regions))
	for _, region := range cfg.Regions {
		queues[region] = NewRegionQueue(region)
	}

	return &Service{
		db:       db,
		rdb:      rdb,
		cfg:      cfg,
		finder:   NewFinder(cfg.Finder, ping, styles),
		profiles: profiles,
		notifier: notifier,
		ratings:  ratings,
		queues:   queues,
		stats:    newWaitStats(cfg.WaitSampleWindow, cfg.DefaultWaitEstimate),
		now:      time.Now,
	}
}

// Start launches one matcher goroutine per region. Regions are
// independent and never share a lock.
func (s *Service) Start(ctx context.Context) error {
	s.startOnce.Do(func() {
		for region := range s.queues {
			go s.runMatcher(ctx, region)
		}
	})
	return nil
}

func (s *Service) runMatcher(ctx context.Context, region string) {
	logger.Log.Info("matcher started",
		zap.String("region", region),
		zap.Duration("interval", s.cfg.MatcherInterval),
	)

	ticker := time.NewTicker(s.cfg.MatcherInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("matcher stopped", zap.String("region", region))
			return
		case <-ticker.C:
			s.AttemptMatching(ctx, region)
		}
	}
}

// JoinQueue resolves the player's region, enqueues them there, and
// immediately runs one matching attempt for the region.
func (s *Service) JoinQueue(ctx context.Context, playerID string) (QueueResult, error) {
	profile, err := s.profiles.GetProfile(ctx, playerID)
	if err != nil {
		return QueueResult{}, err
	}

	region, err := s.profiles.ResolveRegion(profile)
	if err != nil {
		return QueueResult{}, err
	}
	queue, ok := s.queues[region]
	if !ok {
		return QueueResult{}, appErr.ErrRegionUnavailable
	}

	// Already queued on this node, in any region.
	for _, q := range s.queues {
		if _, queued := q.Contains(playerID); queued {
			return QueueResult{}, appErr.ErrAlreadyInQueue
		}
	}

	if err := s.acquireOwner(ctx, playerID); err != nil {
		return QueueResult{}, err
	}

	position, err := queue.AddPlayer(profile, s.defaultCriteria(), s.now())
	if err != nil {
		s.releaseOwner(ctx, playerID)
		return QueueResult{}, err
	}

	logger.Log.Info("player joined queue",
		zap.String("playerID", playerID),
		zap.String("region", region),
		zap.Int("position", position),
	)

	s.AttemptMatching(ctx, region)

	return QueueResult{
		PlayerID:      playerID,
		Region:        region,
		Position:      position,
		EstimatedWait: s.stats.Estimate(region, profile.Rating),
	}, nil
}

// Rehome enqueues a player migrated off a failed node. Unlike
// JoinQueue it takes over the cluster-wide owner claim instead of
// contending for it: the player's existing claim points at the dead
// node and must not block their rescue. Re-homing a player this node
// already holds returns ErrAlreadyInQueue, which keeps failover
// re-runs idempotent.
func (s *Service) Rehome(ctx context.Context, playerID string) (QueueResult, error) {
	profile, err := s.profiles.GetProfile(ctx, playerID)
	if err != nil {
		return QueueResult{}, err
	}

	region, err := s.profiles.ResolveRegion(profile)
	if err != nil {
		return QueueResult{}, err
	}
	queue, ok := s.queues[region]
	if !ok {
		return QueueResult{}, appErr.ErrRegionUnavailable
	}

	for _, q := range s.queues {
		if _, queued := q.Contains(playerID); queued {
			return QueueResult{}, appErr.ErrAlreadyInQueue
		}
	}

	s.takeOwner(ctx, playerID)

	position, err := queue.AddPlayer(profile, s.defaultCriteria(), s.now())
	if err != nil {
		return QueueResult{}, err
	}

	logger.Log.Info("player re-homed",
		zap.String("playerID", playerID),
		zap.String("region", region),
	)

	s.AttemptMatching(ctx, region)

	return QueueResult{
		PlayerID:      playerID,
		Region:        region,
		Position:      position,
		EstimatedWait: s.stats.Estimate(region, profile.Rating),
	}, nil
}

func (s *Service) defaultCriteria() MatchCriteria {
	return MatchCriteria{
		BaseRatingDiff: s.cfg.Finder.BaseRatingDiff,
		PingCeilingMs:  s.cfg.Finder.PingCeilingMs,
	}
}

// LeaveQueue removes the player from whichever region holds them.
// Absent players are a no-op; the removal cooperates with in-flight
// matching passes the same way failure-driven removal does.
func (s *Service) LeaveQueue(ctx context.Context, playerID string) error {
	removed := false
	for _, queue := range s.queues {
		if queue.Remove(playerID) {
			removed = true
			break
		}
	}
	s.releaseOwner(ctx, playerID)

	if removed {
		logger.Log.Info("player left queue", zap.String("playerID", playerID))
	}
	return nil
}

// AttemptMatching runs one matching pass over the region's queue and
// returns how many matches it committed. Stale candidates are skipped
// silently; that is an expected race outcome, not a fault.
func (s *Service) AttemptMatching(ctx context.Context, region string) int {
	queue, ok := s.queues[region]
	if !ok {
		return 0
	}

	snapshot := queue.Snapshot()
	if len(snapshot) < 2 {
		return 0
	}

	pairs := s.finder.FindCandidatePairs(snapshot, s.now())

	created := 0
	for _, pm := range pairs {
		commitAt := s.now()
		a, b, ok := queue.CommitPair(pm.A.Profile.ID, pm.B.Profile.ID, func(a, b *QueuedPlayer) bool {
			return s.stillValid(a, b, commitAt)
		})
		if !ok {
			continue
		}

		m, err := s.createMatch(ctx, region, a, b, pm.Quality)
		if err != nil {
			// Put both players back with their original join time so
			// no one is silently dropped over a storage hiccup.
			queue.AddPlayer(a.Profile, a.Criteria, a.JoinedAt)
			queue.AddPlayer(b.Profile, b.Criteria, b.JoinedAt)
			logger.Log.Error("match create failed",
				zap.String("region", region),
				zap.Error(err),
			)
			continue
		}
		created++

		s.stats.Record(region, a.Profile.Rating, a.WaitTime(commitAt))
		s.stats.Record(region, b.Profile.Rating, b.WaitTime(commitAt))
		s.releaseOwner(ctx, a.Profile.ID)
		s.releaseOwner(ctx, b.Profile.ID)

		// The queue lock is long released here; notification never
		// holds up the region.
		s.notifyMatch(ctx, m)

		logger.Log.Info("match created",
			zap.String("matchID", m.ID),
			zap.String("region", region),
			zap.String("playerA", m.PlayerAID),
			zap.String("playerB", m.PlayerBID),
			zap.Float64("quality", pm.Quality),
		)
	}
	return created
}

// stillValid re-checks a candidate pair against the live entries at
// commit time: the snapshot it was scored on may be arbitrarily stale.
func (s *Service) stillValid(a, b *QueuedPlayer, now time.Time) bool {
	maxWait := a.WaitTime(now)
	if w := b.WaitTime(now); w > maxWait {
		maxWait = w
	}
	if absInt(a.Profile.Rating-b.Profile.Rating) > s.finder.MaxRatingDiff(maxWait) {
		return false
	}
	return NetworkQuality(s.finder.EstimatePing(a, b)) >= s.cfg.MinCommitNetworkQuality
}

func (s *Service) createMatch(ctx context.Context, region string, a, b QueuedPlayer, quality float64) (*model.Match, error) {
	players, err := json.Marshal([]PlayerProfile{a.Profile, b.Profile})
	if err != nil {
		return nil, err
	}

	m := &model.Match{
		ID:           uuid.NewString(),
		PlayerAID:    a.Profile.ID,
		PlayerBID:    b.Profile.ID,
		Region:       region,
		Mode:         s.cfg.GameMode,
		State:        model.MatchStateCreated,
		QualityScore: quality,
		PlayersJSON:  datatypes.JSON(players),
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) notifyMatch(ctx context.Context, m *model.Match) {
	err := s.notifier.MatchFound(ctx, m.ID, [2]string{m.PlayerAID, m.PlayerBID}, m.Region)
	if err != nil {
		// Fire-and-forget: delivery is the session layer's problem.
		logger.Log.Warn("match notify failed",
			zap.String("matchID", m.ID),
			zap.Error(err),
		)
		return
	}
	s.db.WithContext(ctx).Model(m).Update("state", model.MatchStateNotified)
}

// GetStatus reports whether the player is matched, queued, or idle.
func (s *Service) GetStatus(ctx context.Context, playerID string) (*StatusResult, error) {
	matchID, pending, err := s.notifier.Pending(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if pending {
		return &StatusResult{
			Status:  QueueStatusMatched,
			MatchID: matchID,
		}, nil
	}

	for region, queue := range s.queues {
		if joinedAt, ok := queue.Contains(playerID); ok {
			joined := joinedAt
			return &StatusResult{
				Status:   QueueStatusQueued,
				Region:   region,
				JoinedAt: &joined,
			}, nil
		}
	}

	return &StatusResult{Status: QueueStatusIdle}, nil
}

// ReportMatchResult settles a match: applies the rating engine,
// persists both new ratings plus history rows, and transitions the
// match to completed. A second settle is rejected.
func (s *Service) ReportMatchResult(ctx context.Context, matchID string, result rating.Result) (*ResultSummary, error) {
	var m model.Match
	if err := s.db.WithContext(ctx).First(&m, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ErrMatchNotFound
		}
		return nil, err
	}
	var summary ResultSummary
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var playerA, playerB model.Player
		if err := tx.First(&playerA, "id = ?", m.PlayerAID).Error; err != nil {
			return appErr.ErrPlayerNotFound
		}
		if err := tx.First(&playerB, "id = ?", m.PlayerBID).Error; err != nil {
			return appErr.ErrPlayerNotFound
		}

		newA, newB := s.ratings.CalculateNewRatingsWithMatchCounts(
			playerA.Rating, playerB.Rating,
			playerA.MatchesPlayed, playerB.MatchesPlayed,
			result,
		)
		deltaA := newA - playerA.Rating
		deltaB := newB - playerB.Rating

		// Claim the settlement inside the transaction. Two concurrent
		// reports both reach here; only the one that flips the state
		// row gets to apply ratings.
		now := time.Now()
		claim := tx.Model(&model.Match{}).
			Where("id = ? AND state <> ?", m.ID, model.MatchStateCompleted).
			Updates(map[string]interface{}{
				"state":          model.MatchStateCompleted,
				"rating_delta_a": deltaA,
				"rating_delta_b": deltaB,
				"completed_at":   &now,
			})
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return appErr.ErrMatchAlreadySettled
		}

		histories := []model.RatingHistory{
			{PlayerID: playerA.ID, MatchID: m.ID, OldRating: playerA.Rating, NewRating: newA, Reason: "match"},
			{PlayerID: playerB.ID, MatchID: m.ID, OldRating: playerB.Rating, NewRating: newB, Reason: "match"},
		}
		if err := tx.Create(&histories).Error; err != nil {
			return err
		}

		if err := tx.Model(&playerA).Updates(map[string]interface{}{
			"rating":         newA,
			"matches_played": playerA.MatchesPlayed + 1,
		}).Error; err != nil {
			return err
		}
		if err := tx.Model(&playerB).Updates(map[string]interface{}{
			"rating":         newB,
			"matches_played": playerB.MatchesPlayed + 1,
		}).Error; err != nil {
			return err
		}

		summary = ResultSummary{
			MatchID:    m.ID,
			NewRatingA: newA,
			NewRatingB: newB,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Clear(ctx, m.PlayerAID)
	s.notifier.Clear(ctx, m.PlayerBID)

	logger.Log.Info("match settled",
		zap.String("matchID", m.ID),
		zap.Int("newRatingA", summary.NewRatingA),
		zap.Int("newRatingB", summary.NewRatingB),
	)
	return &summary, nil
}

// Queue exposes a region's queue to the cluster tier (player
// enumeration during failover) and to tests.
func (s *Service) Queue(region string) *RegionQueue {
	return s.queues[region]
}

func (s *Service) Regions() []string {
	out := make([]string, 0, len(s.queues))
	for region := range s.queues {
		out = append(out, region)
	}
	return out
}

// QueuedPlayerIDs lists every player currently queued on this node.
func (s *Service) QueuedPlayerIDs() []string {
	var out []string
	for _, queue := range s.queues {
		out = append(out, queue.PlayerIDs()...)
	}
	return out
}

func (s *Service) Stats() []RegionStats {
	out := make([]RegionStats, 0, len(s.queues))
	for region, queue := range s.queues {
		out = append(out, RegionStats{Region: region, QueueDepth: queue.Len()})
	}
	return out
}

// acquireOwner claims the cluster-wide single-queue slot for a player.
// The key's value is the owning node and the node's member set mirrors
// the claim, so failover can enumerate a dead node's players without
// asking it. With redis configured the claim spans nodes; without it
// the local queue check alone enforces the invariant.
func (s *Service) acquireOwner(ctx context.Context, playerID string) error {
	if s.rdb == nil {
		return nil
	}
	ok, err := s.rdb.SetNX(ctx, buildOwnerKey(playerID), s.cfg.NodeID, s.cfg.OwnerLockTTL).Result()
	if err != nil {
		logger.Log.Warn("owner lock unavailable",
			zap.String("playerID", playerID),
			zap.Error(err),
		)
		return nil
	}
	if !ok {
		return appErr.ErrAlreadyInQueue
	}
	s.rdb.SAdd(ctx, NodeMembersKey(s.cfg.NodeID), playerID)
	return nil
}

// takeOwner transfers the owner claim to this node unconditionally.
// Migration uses it: the previous owner is dead or dying, so there is
// nobody to contend with, only a stale claim to supersede.
func (s *Service) takeOwner(ctx context.Context, playerID string) {
	if s.rdb == nil {
		return
	}
	prev, err := s.rdb.Get(ctx, buildOwnerKey(playerID)).Result()
	if err == nil && prev != "" && prev != s.cfg.NodeID {
		s.rdb.SRem(ctx, NodeMembersKey(prev), playerID)
	}
	if err := s.rdb.Set(ctx, buildOwnerKey(playerID), s.cfg.NodeID, s.cfg.OwnerLockTTL).Err(); err != nil {
		logger.Log.Warn("owner takeover failed",
			zap.String("playerID", playerID),
			zap.Error(err),
		)
		return
	}
	s.rdb.SAdd(ctx, NodeMembersKey(s.cfg.NodeID), playerID)
}

// releaseOwner drops the claim only if this node still holds it: after
// a migration the key already points at the player's new node and must
// survive the old node's cleanup.
func (s *Service) releaseOwner(ctx context.Context, playerID string) {
	if s.rdb == nil {
		return
	}
	owner, err := s.rdb.Get(ctx, buildOwnerKey(playerID)).Result()
	if err == nil && owner == s.cfg.NodeID {
		s.rdb.Del(ctx, buildOwnerKey(playerID))
	}
	s.rdb.SRem(ctx, NodeMembersKey(s.cfg.NodeID), playerID)
}

func buildOwnerKey(playerID string) string {
	return fmt.Sprintf("queue:player:%s", playerID)
}

// NodeMembersKey is the redis set of players queued on a node. The
// cluster router reads it during failover when the node itself can no
// longer answer.
func NodeMembersKey(nodeID string) string {
	return fmt.Sprintf("queue:node:%s", nodeID)
}
