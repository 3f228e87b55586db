package profile_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"arena-service/internal/model"
	"arena-service/internal/service/match"
	"arena-service/internal/service/profile"
	appErr "arena-service/pkg/errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testRegions = []profile.Region{
	{Name: "NA", Lat: 39.0, Lng: -98.0},
	{Name: "EU", Lat: 50.0, Lng: 10.0},
	{Name: "APAC", Lat: 35.0, Lng: 139.0},
}

func newService(t *testing.T) (*gorm.DB, *profile.Service) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.Player{}); err != nil {
		t.Fatalf("failed to migrate players: %v", err)
	}
	return db, profile.NewService(db, testRegions)
}

func TestGetProfile(t *testing.T) {
	ctx := context.Background()
	db, svc := newService(t)

	player := model.Player{
		ID: "p1", Nickname: "ace", Rating: 1450, Level: 22,
		Region: "EU", GPSLat: 48.8, GPSLng: 2.3,
		StyleAggression: 0.9, StyleTempo: 0.4, StyleRisk: 0.6,
	}
	if err := db.Create(&player).Error; err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	got, err := svc.GetProfile(ctx, "p1")
	if err != nil {
		t.Fatalf("get profile failed: %v", err)
	}
	if got.Rating != 1450 || got.Region != "EU" || len(got.Styles) != 3 {
		t.Fatalf("unexpected profile: %+v", got)
	}

	if _, err := svc.GetProfile(ctx, "ghost"); !errors.Is(err, appErr.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestEnsurePlayerCreatesOnce(t *testing.T) {
	ctx := context.Background()
	_, svc := newService(t)

	first, err := svc.EnsurePlayer(ctx, "new-player")
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if first.Rating != 1200 {
		t.Fatalf("new player should start at 1200, got %d", first.Rating)
	}

	second, err := svc.EnsurePlayer(ctx, "new-player")
	if err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}
	if second.Nickname != first.Nickname {
		t.Fatal("ensure must not recreate an existing player")
	}
}

func TestResolveRegion(t *testing.T) {
	_, svc := newService(t)

	// Declared region wins.
	declared := match.PlayerProfile{Region: "APAC"}
	if region, err := svc.ResolveRegion(declared); err != nil || region != "APAC" {
		t.Fatalf("expected APAC, got %s err=%v", region, err)
	}

	// Unknown declared region falls back to the nearest centroid:
	// Paris is closest to the EU centroid.
	paris := match.PlayerProfile{Region: "MOON", Location: match.Location{Lat: 48.8, Lng: 2.3}}
	if region, err := svc.ResolveRegion(paris); err != nil || region != "EU" {
		t.Fatalf("expected EU for Paris, got %s err=%v", region, err)
	}

	empty := profile.NewService(nil, nil)
	if _, err := empty.ResolveRegion(declared); !errors.Is(err, appErr.ErrRegionUnavailable) {
		t.Fatalf("expected ErrRegionUnavailable, got %v", err)
	}
}

func TestEstimatePing(t *testing.T) {
	_, svc := newService(t)

	same := svc.EstimatePing(match.Location{Lat: 40, Lng: -74}, match.Location{Lat: 40, Lng: -74})
	if same != 8 {
		t.Fatalf("co-located ping should be the base RTT, got %v", same)
	}

	// NYC to Tokyo is ~10800km; the estimate must grow with distance
	// and stay deterministic.
	far := svc.EstimatePing(match.Location{Lat: 40.7, Lng: -74.0}, match.Location{Lat: 35.7, Lng: 139.7})
	if far <= same {
		t.Fatal("distant pair must have higher ping")
	}
	if again := svc.EstimatePing(match.Location{Lat: 40.7, Lng: -74.0}, match.Location{Lat: 35.7, Lng: 139.7}); again != far {
		t.Fatal("estimate must be deterministic")
	}
}

func TestStyleCompatibility(t *testing.T) {
	_, svc := newService(t)

	a := match.PlayerProfile{Styles: []float64{0.5, 0.5, 0.5}}
	if got := svc.StyleCompatibility(a, a); got != 1.0 {
		t.Fatalf("identical styles should score 1, got %v", got)
	}

	b := match.PlayerProfile{Styles: []float64{1.0, 0.0, 1.0}}
	c := match.PlayerProfile{Styles: []float64{0.0, 1.0, 0.0}}
	if got := svc.StyleCompatibility(b, c); math.Abs(got-0.0) > 1e-9 {
		t.Fatalf("opposite styles should score 0, got %v", got)
	}

	// Unknown styles score neutral.
	if got := svc.StyleCompatibility(match.PlayerProfile{}, b); got != 0.5 {
		t.Fatalf("missing styles should score 0.5, got %v", got)
	}
}
