package profile

import (
	"context"
	"errors"
	"math"

	"arena-service/internal/model"
	"arena-service/internal/service/match"
	appErr "arena-service/pkg/errors"
	"arena-service/pkg/utils/geo"
	"arena-service/pkg/utils/random"

	"gorm.io/gorm"
)

const (
	// Ping model: base RTT plus ~1ms per 50km of great-circle
	// distance. Deterministic on purpose.
	basePingMs   = 8.0
	kmPerPingMs  = 50.0
	neutralStyle = 0.5
)

type Region struct {
	Name string
	Lat  float64
	Lng  float64
}

// Service is the profile/location collaborator: player lookup, region
// resolution, ping estimation, and play-style compatibility.
type Service struct {
	db      *gorm.DB
	regions []Region
}

func NewService(db *gorm.DB, regions []Region) *Service {
	return &Service{db: db, regions: regions}
}

func (s *Service) GetProfile(ctx context.Context, playerID string) (match.PlayerProfile, error) {
	var player model.Player
	if err := s.db.WithContext(ctx).First(&player, "id = ?", playerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return match.PlayerProfile{}, appErr.ErrPlayerNotFound
		}
		return match.PlayerProfile{}, err
	}
	return toProfile(player), nil
}

// EnsurePlayer returns the existing player or creates a fresh one with
// default rating and a readable guest nickname.
func (s *Service) EnsurePlayer(ctx context.Context, playerID string) (match.PlayerProfile, error) {
	profile, err := s.GetProfile(ctx, playerID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, appErr.ErrPlayerNotFound) {
		return match.PlayerProfile{}, err
	}

	player := model.Player{
		ID:              playerID,
		Nickname:        "guest-" + random.Code(6),
		Rating:          1200,
		Level:           1,
		StyleAggression: neutralStyle,
		StyleTempo:      neutralStyle,
		StyleRisk:       neutralStyle,
	}
	if err := s.db.WithContext(ctx).Create(&player).Error; err != nil {
		return match.PlayerProfile{}, err
	}
	return toProfile(player), nil
}

// ResolveRegion prefers the player's declared region and falls back to
// the nearest configured region centroid.
func (s *Service) ResolveRegion(profile match.PlayerProfile) (string, error) {
	if len(s.regions) == 0 {
		return "", appErr.ErrRegionUnavailable
	}

	for _, region := range s.regions {
		if region.Name == profile.Region {
			return region.Name, nil
		}
	}

	best := s.regions[0]
	bestDist := math.MaxFloat64
	for _, region := range s.regions {
		d := geo.HaversineDistance(profile.Location.Lat, profile.Location.Lng, region.Lat, region.Lng)
		if d < bestDist {
			best = region
			bestDist = d
		}
	}
	return best.Name, nil
}

func (s *Service) EstimatePing(a, b match.Location) float64 {
	dist := geo.HaversineDistance(a.Lat, a.Lng, b.Lat, b.Lng)
	return basePingMs + dist/kmPerPingMs
}

// StyleCompatibility is 1 minus the mean absolute difference across
// style dimensions; unknown styles score neutral.
func (s *Service) StyleCompatibility(a, b match.PlayerProfile) float64 {
	n := len(a.Styles)
	if len(b.Styles) < n {
		n = len(b.Styles)
	}
	if n == 0 {
		return neutralStyle
	}

	var total float64
	for i := 0; i < n; i++ {
		total += math.Abs(a.Styles[i] - b.Styles[i])
	}
	return 1.0 - total/float64(n)
}

func toProfile(p model.Player) match.PlayerProfile {
	return match.PlayerProfile{
		ID:            p.ID,
		Nickname:      p.Nickname,
		Rating:        p.Rating,
		Level:         p.Level,
		MatchesPlayed: p.MatchesPlayed,
		Region:        p.Region,
		Location:      match.Location{Lat: p.GPSLat, Lng: p.GPSLng},
		IP:            p.IP,
		Styles:        []float64{p.StyleAggression, p.StyleTempo, p.StyleRisk},
	}
}
