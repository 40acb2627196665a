package models

// AdOffer is returned to the player UI for one issued session.
// Personal ads carry a playable VideoURL; network ads carry the
// client-side SDK config instead.
type AdOffer struct {
	SessionID        string            `json:"session_id"`
	ProviderID       ProviderID        `json:"ad_type"`
	AdRef            string            `json:"ad_id,omitempty"`
	Title            string            `json:"title,omitempty"`
	Advertiser       string            `json:"advertiser,omitempty"`
	VideoURL         string            `json:"video_url,omitempty"`
	WebsiteURL       string            `json:"website_url,omitempty"`
	Duration         int               `json:"duration"` // seconds
	RewardPoints     int64             `json:"reward_points"`
	NetworkConfig    map[string]string `json:"network_config,omitempty"`
}

// Denial reasons surfaced to the client alongside retry hints.
const (
	DenyReasonDailyLimit      = "daily_limit_reached"
	DenyReasonCooldown        = "cooldown_active"
	DenyReasonSessionOpen     = "session_already_open"
	DenyReasonNoAdsAvailable  = "no_ads_available"
)

// CompleteAdRequest is the client's playback report for a session.
type CompleteAdRequest struct {
	Completed     bool `json:"completed"`
	WatchDuration int  `json:"watch_duration"` // seconds
}

// CompleteAdResponse reports the crediting outcome.
type CompleteAdResponse struct {
	Success      bool   `json:"success"`
	State        string `json:"state"`
	PointsEarned int64  `json:"points_earned"`
	TotalPoints  int64  `json:"total_points"`
}
