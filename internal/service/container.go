package service

import (
	"context"
	"time"

	"arena-service/internal/config"
	"arena-service/internal/service/cluster"
	"arena-service/internal/service/match"
	"arena-service/internal/service/notify"
	"arena-service/internal/service/profile"
	"arena-service/internal/service/rating"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	Rating  *rating.Service
	Profile *profile.Service
	Match   *match.Service
	Cluster *cluster.Router
	Notify  *notify.Redis
}

func NewContainer(db *gorm.DB, rdb *redis.Client) *Container {
	cfg := config.GlobalConfig

	regions := make([]profile.Region, 0, len(cfg.Matchmaking.Regions))
	regionNames := make([]string, 0, len(cfg.Matchmaking.Regions))
	for _, r := range cfg.Matchmaking.Regions {
		regions = append(regions, profile.Region{Name: r.Name, Lat: r.Lat, Lng: r.Lng})
		regionNames = append(regionNames, r.Name)
	}

	ratingSvc := rating.NewServiceWithConfig(rating.Config{
		KFactor:      cfg.Matchmaking.KFactor,
		SeasonAnchor: cfg.Matchmaking.SeasonAnchorRating,
		SeasonRetain: cfg.Matchmaking.SeasonRetain,
	})
	profileSvc := profile.NewService(db, regions)
	notifySvc := notify.NewRedis(rdb, 5*time.Minute)

	matchSvc := match.NewService(db, rdb, profileSvc, profileSvc, profileSvc, notifySvc, ratingSvc, match.Config{
		NodeID:          cfg.Cluster.NodeID,
		Regions:         regionNames,
		GameMode:        cfg.Matchmaking.GameMode,
		MatcherInterval: time.Duration(cfg.Matchmaking.MatcherIntervalMs) * time.Millisecond,
		Finder:          finderConfig(cfg.Matchmaking),
	})

	router := cluster.NewRouter(cluster.Config{
		HealthInterval: time.Duration(cfg.Cluster.HealthIntervalSec) * time.Second,
		VirtualNodes:   cfg.Cluster.VirtualNodes,
	}, rdb)
	router.AddNode(cfg.Cluster.NodeID, cfg.Cluster.AdvertiseAddr, cluster.NewLocalBackend(matchSvc))
	for _, peer := range cfg.Cluster.Peers {
		router.AddNode(peer.ID, peer.Addr, cluster.NewHTTPBackend(peer.Addr))
	}

	return &Container{
		Rating:  ratingSvc,
		Profile: profileSvc,
		Match:   matchSvc,
		Cluster: router,
		Notify:  notifySvc,
	}
}

func (c *Container) Start(ctx context.Context) error {
	if err := c.Match.Start(ctx); err != nil {
		return err
	}
	c.Cluster.Start(ctx)
	return nil
}

func finderConfig(mc config.MatchmakingConfig) match.FinderConfig {
	fc := match.DefaultFinderConfig()
	if mc.BaseRatingDiff > 0 {
		fc.BaseRatingDiff = mc.BaseRatingDiff
	}
	if mc.WidenStepRating > 0 {
		fc.WidenStepRating = mc.WidenStepRating
	}
	if mc.WidenWindowSec > 0 {
		fc.WidenWindow = time.Duration(mc.WidenWindowSec) * time.Second
	}
	if mc.MaxRatingDiff > 0 {
		fc.MaxRatingDiff = mc.MaxRatingDiff
	}
	if mc.PingCeilingMs > 0 {
		fc.PingCeilingMs = mc.PingCeilingMs
	}
	return fc
}
