package ratelimit

import (
	"time"

	"github.com/toop9472-lang/Sgr2040-sub001/pkg/models"
)

// Decision is the outcome of one eligibility check.
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// Checker decides whether a user may be offered another rewarded ad.
// It is a pure function of (profile, open-session flag, settings,
// clock): checks never mutate counters. The daily window is anchored
// to UTC midnight; a profile whose daily_reset_at predates today's
// boundary reads as zero watched. Counters advance only when the
// ledger credits, and last_ad_at is stamped at issuance.
type Checker struct{}

// NewChecker creates an eligibility checker
func NewChecker() *Checker {
	return &Checker{}
}

// CheckEligibility evaluates the daily cap, cooldown and open-session
// invariant, in that order of severity: an open session dominates
// (the client should resume it), then the daily cap, then cooldown.
func (c *Checker) CheckEligibility(profile *models.RewardProfile, hasOpenSession bool, settings *models.AdSettings, now time.Time) Decision {
	if hasOpenSession {
		return Decision{Reason: models.DenyReasonSessionOpen}
	}

	if settings.DailyLimit > 0 && profile.WatchedToday(now) >= settings.DailyLimit {
		return Decision{
			Reason:     models.DenyReasonDailyLimit,
			RetryAfter: models.DayStart(now).Add(24 * time.Hour).Sub(now),
		}
	}

	if profile.LastAdAt != nil {
		remaining := settings.Cooldown() - now.Sub(*profile.LastAdAt)
		if remaining > 0 {
			return Decision{
				Reason:     models.DenyReasonCooldown,
				RetryAfter: remaining,
			}
		}
	}

	return Decision{Allowed: true}
}
