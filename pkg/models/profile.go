package models

import (
	"time"
)

// RewardProfile tracks a user's reward balance and daily watch counters.
// Created lazily on the user's first ad request. Balances are mutated
// only by the reward ledger; cooldown/daily fields by issuance and credit.
type RewardProfile struct {
	UserID          string     `json:"user_id" db:"user_id"`
	PointsBalance   int64      `json:"points_balance" db:"points_balance"`
	AdsWatchedToday int        `json:"ads_watched_today" db:"ads_watched_today"`
	TotalAdsWatched int64      `json:"total_ads_watched" db:"total_ads_watched"`
	TotalPointsEarned int64    `json:"total_points_earned" db:"total_points_earned"`
	LastAdAt        *time.Time `json:"last_ad_at,omitempty" db:"last_ad_at"`
	DailyResetAt    time.Time  `json:"daily_reset_at" db:"daily_reset_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// DayStart returns the UTC midnight boundary containing t. The daily
// watch window is anchored to UTC midnight, not a rolling 24h.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WatchedToday returns the effective daily counter at time now,
// treating a counter from a previous day window as zero without
// mutating the profile.
func (p *RewardProfile) WatchedToday(now time.Time) int {
	if p.DailyResetAt.Before(DayStart(now)) {
		return 0
	}
	return p.AdsWatchedToday
}
