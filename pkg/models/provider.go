package models

import (
	"time"
)

// ProviderID identifies an ad source.
type ProviderID string

const (
	ProviderPersonal ProviderID = "personal"
	ProviderAdMob    ProviderID = "admob"
	ProviderUnity    ProviderID = "unity"
	ProviderFacebook ProviderID = "facebook"
	ProviderAppLovin ProviderID = "applovin"
)

// ProviderConfig is the per-source mediation configuration. Owned by
// the settings store; read-only to the mediation path.
type ProviderConfig struct {
	ID           ProviderID        `json:"id" mapstructure:"id"`
	Enabled      bool              `json:"enabled" mapstructure:"enabled"`
	Priority     int               `json:"priority" mapstructure:"priority"` // lower = tried first
	RewardPoints int64             `json:"reward_points" mapstructure:"rewardPoints"`
	MinDuration  int               `json:"min_duration" mapstructure:"minDuration"` // seconds
	MaxDuration  int               `json:"max_duration" mapstructure:"maxDuration"` // seconds
	Credentials  map[string]string `json:"credentials,omitempty" mapstructure:"credentials"`
}

// AdSettings is the hot-reloadable rewarded-ads configuration surface.
type AdSettings struct {
	RewardPoints    int64            `json:"points_per_rewarded_ad" mapstructure:"rewardPoints"`
	DailyLimit      int              `json:"daily_rewarded_limit" mapstructure:"dailyLimit"`
	CooldownSeconds int              `json:"cooldown_seconds" mapstructure:"cooldownSeconds"`
	DefaultDuration int              `json:"default_duration" mapstructure:"defaultDuration"` // seconds
	GraceSeconds    int              `json:"grace_seconds" mapstructure:"graceSeconds"`
	Providers       []ProviderConfig `json:"providers" mapstructure:"providers"`
	UpdatedAt       time.Time        `json:"updated_at,omitempty" mapstructure:"-"`
}

// Cooldown returns the configured cooldown as a duration.
func (s *AdSettings) Cooldown() time.Duration {
	return time.Duration(s.CooldownSeconds) * time.Second
}

// Provider returns the config for id, or nil when absent.
func (s *AdSettings) Provider(id ProviderID) *ProviderConfig {
	for i := range s.Providers {
		if s.Providers[i].ID == id {
			return &s.Providers[i]
		}
	}
	return nil
}

// PersonalAd is an advertiser-owned creative served by the personal
// provider. The video object lives in object storage under VideoKey.
type PersonalAd struct {
	ID             string    `json:"id" db:"id"`
	Title          string    `json:"title" db:"title"`
	AdvertiserName string    `json:"advertiser_name" db:"advertiser_name"`
	WebsiteURL     string    `json:"website_url,omitempty" db:"website_url"`
	VideoKey       string    `json:"-" db:"video_key"`
	Duration       int       `json:"duration" db:"duration"` // seconds
	Status         string    `json:"status" db:"status"`
	Views          int64     `json:"views" db:"views"`
	CompletedViews int64     `json:"completed_views" db:"completed_views"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Personal ad statuses
const (
	AdStatusActive = "active"
	AdStatusPaused = "paused"
)
