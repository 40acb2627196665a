package models

import (
	"time"
)

// AdSession tracks one offered ad from issuance to a terminal state.
// The session is the unit of idempotency for reward crediting.
type AdSession struct {
	ID               string     `json:"session_id" db:"id"`
	UserID           string     `json:"user_id" db:"user_id"`
	ProviderID       ProviderID `json:"provider_id" db:"provider_id"`
	AdRef            string     `json:"ad_ref,omitempty" db:"ad_ref"`
	RewardPoints     int64      `json:"reward_points" db:"reward_points"`
	ExpectedDuration int        `json:"expected_duration" db:"expected_duration"` // seconds
	GracePeriod      int        `json:"grace_period" db:"grace_period"`           // seconds
	State            string     `json:"state" db:"state"`
	WatchDuration    int        `json:"watch_duration" db:"watch_duration"`
	Verified         bool       `json:"verified" db:"verified"` // provider-confirmed (S2S)
	IssuedAt         time.Time  `json:"issued_at" db:"issued_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// Session states
const (
	SessionStateIssued    = "issued"
	SessionStateWatching  = "watching"
	SessionStateCompleted = "completed"
	SessionStateRejected  = "rejected"
	SessionStateExpired   = "expired"
)

// IsTerminal reports whether the session has reached a final state.
func (s *AdSession) IsTerminal() bool {
	switch s.State {
	case SessionStateCompleted, SessionStateRejected, SessionStateExpired:
		return true
	}
	return false
}

// Deadline returns the instant after which an open session expires.
func (s *AdSession) Deadline() time.Time {
	return s.IssuedAt.Add(time.Duration(s.ExpectedDuration+s.GracePeriod) * time.Second)
}

// Expired reports whether an open session has passed its deadline.
func (s *AdSession) Expired(now time.Time) bool {
	return !s.IsTerminal() && now.After(s.Deadline())
}
