package rating

import "math"

// Result is a match outcome from player A's perspective.
type Result int

const (
	ResultAWin Result = iota
	ResultBWin
	ResultDraw
)

func (r Result) score() float64 {
	switch r {
	case ResultAWin:
		return 1.0
	case ResultBWin:
		return 0.0
	default:
		return 0.5
	}
}

type Config struct {
	KFactor      int
	SeasonAnchor int
	SeasonRetain float64
}

func defaultConfig() Config {
	return Config{
		KFactor:      32,
		SeasonAnchor: 1200,
		SeasonRetain: 0.75,
	}
}

// Service computes ELO-style rating updates. It is pure and holds no
// mutable state, so a single instance is safe for concurrent use.
type Service struct {
	cfg Config
}

func NewService() *Service {
	return &Service{cfg: defaultConfig()}
}

func NewServiceWithConfig(cfg Config) *Service {
	if cfg.KFactor <= 0 {
		cfg.KFactor = 32
	}
	if cfg.SeasonAnchor <= 0 {
		cfg.SeasonAnchor = 1200
	}
	if cfg.SeasonRetain <= 0 || cfg.SeasonRetain > 1 {
		cfg.SeasonRetain = 0.75
	}
	return &Service{cfg: cfg}
}

// CalculateNewRatings returns the post-match ratings for both players.
// Expected scores are computed symmetrically (expectedB = 1-expectedA)
// so with a shared K the two deltas cancel out exactly.
func (s *Service) CalculateNewRatings(ratingA, ratingB int, result Result) (int, int) {
	return s.calculate(ratingA, ratingB, float64(s.cfg.KFactor), float64(s.cfg.KFactor), result)
}

// CalculateNewRatingsWithMatchCounts applies per-player provisional
// K-factors based on how many matches each player has completed.
func (s *Service) CalculateNewRatingsWithMatchCounts(ratingA, ratingB, matchesA, matchesB int, result Result) (int, int) {
	return s.calculate(ratingA, ratingB, KFactorFor(matchesA), KFactorFor(matchesB), result)
}

func (s *Service) calculate(ratingA, ratingB int, kA, kB float64, result Result) (int, int) {
	expectedA := ExpectedScore(ratingA, ratingB)
	expectedB := 1.0 - expectedA

	scoreA := result.score()
	scoreB := 1.0 - scoreA

	newA := int(math.Round(float64(ratingA) + kA*(scoreA-expectedA)))
	newB := int(math.Round(float64(ratingB) + kB*(scoreB-expectedB)))
	return newA, newB
}

// ExpectedScore is the classic ELO win expectancy for A against B.
func ExpectedScore(ratingA, ratingB int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(ratingB-ratingA)/400.0))
}

// KFactorFor returns a provisional K for new players so their rating
// converges quickly, settling down as matches accumulate.
func KFactorFor(matchesPlayed int) float64 {
	if matchesPlayed < 10 {
		return 40.0
	}
	if matchesPlayed < 20 {
		return 32.0
	}
	return 24.0
}

// ApplySeasonReset blends a rating toward the season anchor, keeping
// cfg.SeasonRetain of the distance from the anchor.
func (s *Service) ApplySeasonReset(rating int) int {
	anchor := float64(s.cfg.SeasonAnchor)
	blended := anchor + s.cfg.SeasonRetain*(float64(rating)-anchor)
	return int(math.Round(blended))
}
