package config

import (
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Matchmaking MatchmakingConfig `mapstructure:"matchmaking"`
	Cluster     ClusterConfig     `mapstructure:"cluster"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int    `mapstructure:"expire"` // hours
}

type MatchmakingConfig struct {
	Regions            []RegionConfig `mapstructure:"regions"`
	GameMode           string         `mapstructure:"gameMode"`
	MatcherIntervalMs  int            `mapstructure:"matcherIntervalMs"`
	BaseRatingDiff     int            `mapstructure:"baseRatingDiff"`
	WidenStepRating    int            `mapstructure:"widenStepRating"`
	WidenWindowSec     int            `mapstructure:"widenWindowSec"`
	MaxRatingDiff      int            `mapstructure:"maxRatingDiff"`
	PingCeilingMs      float64        `mapstructure:"pingCeilingMs"`
	KFactor            int            `mapstructure:"kFactor"`
	SeasonAnchorRating int            `mapstructure:"seasonAnchorRating"`
	SeasonRetain       float64        `mapstructure:"seasonRetain"`
}

type RegionConfig struct {
	Name string  `mapstructure:"name"`
	Lat  float64 `mapstructure:"lat"`
	Lng  float64 `mapstructure:"lng"`
}

type ClusterConfig struct {
	NodeID            string       `mapstructure:"nodeId"`
	AdvertiseAddr     string       `mapstructure:"advertiseAddr"`
	Peers             []PeerConfig `mapstructure:"peers"`
	HealthIntervalSec int          `mapstructure:"healthIntervalSec"`
	VirtualNodes      int          `mapstructure:"virtualNodes"`
}

type PeerConfig struct {
	ID   string `mapstructure:"id"`
	Addr string `mapstructure:"addr"`
}

var GlobalConfig *Config

func LoadConfig(path string) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	viper.SetDefault("matchmaking.gameMode", "duel")
	viper.SetDefault("matchmaking.matcherIntervalMs", 1000)
	viper.SetDefault("cluster.healthIntervalSec", 10)
	viper.SetDefault("cluster.virtualNodes", 128)

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file, %s", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}
	GlobalConfig = &cfg
}
