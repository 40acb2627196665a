package models

import (
	"time"
)

// LedgerEntry is an immutable reward-credit record. The unique
// session_id key is the single source of truth for "this view was
// already paid".
type LedgerEntry struct {
	SessionID  string    `json:"session_id" db:"session_id"`
	UserID     string    `json:"user_id" db:"user_id"`
	ProviderID ProviderID `json:"provider_id" db:"provider_id"`
	Points     int64     `json:"points" db:"points"`
	CreditedAt time.Time `json:"credited_at" db:"credited_at"`
}

// CreditResult is the outcome of a ledger credit attempt.
type CreditResult struct {
	SessionID       string `json:"session_id"`
	PointsEarned    int64  `json:"points_earned"`
	TotalPoints     int64  `json:"total_points"`
	AlreadyCredited bool   `json:"already_credited"`
}

// RewardEvent is published to the event bus after a session reaches a
// terminal state. Consumed by the worker for leaderboard and stats.
type RewardEvent struct {
	Type       string     `json:"type"`
	SessionID  string     `json:"session_id"`
	UserID     string     `json:"user_id"`
	ProviderID ProviderID `json:"provider_id"`
	Points     int64      `json:"points,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Reward event types
const (
	EventRewardCredited = "reward.credited"
	EventSessionRejected = "session.rejected"
	EventSessionExpired  = "session.expired"
)
