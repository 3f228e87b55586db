package match

import (
	"math"
	"sort"
	"time"

	netutil "arena-service/pkg/utils/net"
)

const (
	// Weighted contributions to the pair quality score.
	weightRatingBalance = 0.4
	weightStyle         = 0.3
	weightNetwork       = 0.2
	weightLevelBalance  = 0.1

	// Rating balance bottoms out at a 200-point gap, level balance at
	// a 20-level gap.
	ratingBalanceSpan = 200.0
	levelBalanceSpan  = 20.0

	// Network quality spans 0..500ms, which puts the 150ms ping
	// ceiling exactly at quality 0.7.
	networkQualitySpan = 500.0

	// Two peers on the same /24 are assumed to be LAN-close.
	lanPingMs = 5.0
)

type FinderConfig struct {
	BaseRatingDiff  int
	WidenStepRating int
	WidenWindow     time.Duration
	MaxRatingDiff   int
	PingCeilingMs   float64
}

func DefaultFinderConfig() FinderConfig {
	return FinderConfig{
		BaseRatingDiff:  100,
		WidenStepRating: 50,
		WidenWindow:     30 * time.Second,
		MaxRatingDiff:   500,
		PingCeilingMs:   150,
	}
}

// Finder scores pairwise compatibility over a queue snapshot. It holds
// no queue state and is safe to share across regions.
type Finder struct {
	cfg    FinderConfig
	ping   PingEstimator
	styles StyleScorer
}

func NewFinder(cfg FinderConfig, ping PingEstimator, styles StyleScorer) *Finder {
	return &Finder{cfg: cfg, ping: ping, styles: styles}
}

// MaxRatingDiff widens the acceptable rating band as a pair waits:
// base + step per elapsed window, capped. Long waiters trade fairness
// for a match instead of waiting forever.
func (f *Finder) MaxRatingDiff(wait time.Duration) int {
	if wait < 0 {
		wait = 0
	}
	windows := int(wait / f.cfg.WidenWindow)
	diff := f.cfg.BaseRatingDiff + windows*f.cfg.WidenStepRating
	if diff > f.cfg.MaxRatingDiff {
		return f.cfg.MaxRatingDiff
	}
	return diff
}

// FindCandidatePairs runs the O(n^2) pairwise pass over a snapshot and
// returns surviving pairs ordered best-first. Ties on quality go to
// the pair that has waited longer combined.
func (f *Finder) FindCandidatePairs(snapshot []QueuedPlayer, now time.Time) []PotentialMatch {
	var out []PotentialMatch
	for i := 0; i < len(snapshot); i++ {
		for j := i + 1; j < len(snapshot); j++ {
			a, b := &snapshot[i], &snapshot[j]
			pm, ok := f.Evaluate(a, b, now)
			if !ok {
				continue
			}
			out = append(out, pm)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Quality != out[j].Quality {
			return out[i].Quality > out[j].Quality
		}
		return out[i].CombinedWait > out[j].CombinedWait
	})
	return out
}

// Evaluate applies the rating and network gates to one unordered pair
// and scores it if both pass.
func (f *Finder) Evaluate(a, b *QueuedPlayer, now time.Time) (PotentialMatch, bool) {
	waitA := a.WaitTime(now)
	waitB := b.WaitTime(now)
	maxWait := waitA
	if waitB > maxWait {
		maxWait = waitB
	}

	diff := absInt(a.Profile.Rating - b.Profile.Rating)
	if diff > f.MaxRatingDiff(maxWait) {
		return PotentialMatch{}, false
	}

	ping := f.EstimatePing(a, b)
	if ping > f.pingCeiling(a, b) {
		return PotentialMatch{}, false
	}

	return PotentialMatch{
		A:            a,
		B:            b,
		Quality:      f.quality(a, b, ping),
		CombinedWait: waitA + waitB,
	}, true
}

// EstimatePing shortcuts to a LAN figure for same-/24 peers before
// falling back to the location-based collaborator estimate.
func (f *Finder) EstimatePing(a, b *QueuedPlayer) float64 {
	if netutil.SameSubnet24(a.Profile.IP, b.Profile.IP) {
		return lanPingMs
	}
	return f.ping.EstimatePing(a.Profile.Location, b.Profile.Location)
}

// NetworkQuality maps an estimated ping to [0,1].
func NetworkQuality(pingMs float64) float64 {
	return clamp01(1.0 - pingMs/networkQualitySpan)
}

func (f *Finder) pingCeiling(a, b *QueuedPlayer) float64 {
	ceiling := f.cfg.PingCeilingMs
	if a.Criteria.PingCeilingMs > 0 && a.Criteria.PingCeilingMs < ceiling {
		ceiling = a.Criteria.PingCeilingMs
	}
	if b.Criteria.PingCeilingMs > 0 && b.Criteria.PingCeilingMs < ceiling {
		ceiling = b.Criteria.PingCeilingMs
	}
	return ceiling
}

func (f *Finder) quality(a, b *QueuedPlayer, ping float64) float64 {
	ratingBalance := clamp01(1.0 - float64(absInt(a.Profile.Rating-b.Profile.Rating))/ratingBalanceSpan)
	style := clamp01(f.styles.StyleCompatibility(a.Profile, b.Profile))
	network := NetworkQuality(ping)
	levelBalance := clamp01(1.0 - math.Abs(float64(a.Profile.Level-b.Profile.Level))/levelBalanceSpan)

	score := weightRatingBalance*ratingBalance +
		weightStyle*style +
		weightNetwork*network +
		weightLevelBalance*levelBalance
	return clamp01(score)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
