package match

import (
	"context"
	"time"
)

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PlayerProfile is the matchmaking view of a player, snapshotted from
// the profile store at enqueue time.
type PlayerProfile struct {
	ID            string   `json:"id"`
	Nickname      string   `json:"nickname"`
	Rating        int      `json:"rating"`
	Level         int      `json:"level"`
	MatchesPlayed int      `json:"matchesPlayed"`
	Region        string   `json:"region"`
	Location      Location `json:"location"`
	IP            string   `json:"ip"`
	// Style dimensions in [0,1]: aggression, tempo, risk.
	Styles []float64 `json:"styles"`
}

// MatchCriteria is computed once at enqueue time from the profile.
type MatchCriteria struct {
	BaseRatingDiff int
	PingCeilingMs  float64
}

type QueuedPlayer struct {
	Profile  PlayerProfile
	Criteria MatchCriteria
	JoinedAt time.Time
}

// WaitTime is always derived from JoinedAt, never stored.
func (qp *QueuedPlayer) WaitTime(now time.Time) time.Duration {
	d := now.Sub(qp.JoinedAt)
	if d < 0 {
		return 0
	}
	return d
}

// PotentialMatch is an ephemeral pairing produced by one finder pass
// and discarded after the pass commits or skips it.
type PotentialMatch struct {
	A            *QueuedPlayer
	B            *QueuedPlayer
	Quality      float64
	CombinedWait time.Duration
}

type QueueResult struct {
	PlayerID      string        `json:"playerId"`
	Region        string        `json:"region"`
	Position      int           `json:"position"`
	EstimatedWait time.Duration `json:"estimatedWait"`
}

type QueueStatus string

const (
	QueueStatusIdle    QueueStatus = "idle"
	QueueStatusQueued  QueueStatus = "queued"
	QueueStatusMatched QueueStatus = "matched"
)

type StatusResult struct {
	Status   QueueStatus `json:"status"`
	Region   string      `json:"region,omitempty"`
	MatchID  string      `json:"matchId,omitempty"`
	JoinedAt *time.Time  `json:"joinedAt,omitempty"`
}

type ResultSummary struct {
	MatchID    string `json:"matchId"`
	NewRatingA int    `json:"newRatingA"`
	NewRatingB int    `json:"newRatingB"`
}

type RegionStats struct {
	Region     string `json:"region"`
	QueueDepth int    `json:"queueDepth"`
}

// ProfileDirectory is the external profile/location collaborator.
type ProfileDirectory interface {
	GetProfile(ctx context.Context, playerID string) (PlayerProfile, error)
	ResolveRegion(profile PlayerProfile) (string, error)
}

// PingEstimator predicts latency in milliseconds between two declared
// locations.
type PingEstimator interface {
	EstimatePing(a, b Location) float64
}

// StyleScorer rates play-style compatibility of two profiles in [0,1].
type StyleScorer interface {
	StyleCompatibility(a, b PlayerProfile) float64
}

// Notifier is the session/notification collaborator. Delivery and
// retries are its problem, not this package's.
type Notifier interface {
	MatchFound(ctx context.Context, matchID string, players [2]string, region string) error
	Pending(ctx context.Context, playerID string) (string, bool, error)
	Clear(ctx context.Context, playerID string) error
}
