package model

import (
	"time"

	"gorm.io/datatypes"
)

type Player struct {
	ID            string `gorm:"primaryKey"`
	Nickname      string
	Rating        int `gorm:"default:1200;not null"`
	Level         int `gorm:"default:1;not null"`
	MatchesPlayed int `gorm:"default:0;not null"`
	Region        string
	GPSLat        float64
	GPSLng        float64
	IP            string
	// Play-style dimensions in [0,1], used for pairing compatibility.
	StyleAggression float64 `gorm:"default:0.5"`
	StyleTempo      float64 `gorm:"default:0.5"`
	StyleRisk       float64 `gorm:"default:0.5"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const (
	MatchStateCreated   = "created"
	MatchStateNotified  = "notified"
	MatchStateCompleted = "completed"
)

type Match struct {
	ID           string `gorm:"primaryKey"`
	PlayerAID    string `gorm:"index;not null"`
	PlayerBID    string `gorm:"index;not null"`
	Region       string `gorm:"index"`
	Mode         string
	State        string `gorm:"default:created;not null"`
	QualityScore float64
	PlayersJSON  datatypes.JSON
	RatingDeltaA int
	RatingDeltaB int
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

type RatingHistory struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	PlayerID  string `gorm:"index;not null"`
	MatchID   string `gorm:"index"`
	OldRating int
	NewRating int
	Reason    string // match/season_reset
	CreatedAt time.Time
}
