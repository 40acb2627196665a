package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/toop9472-lang/Sgr2040-sub001/pkg/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Repository provides database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Health checks database connectivity
func (r *Repository) Health(ctx context.Context) error {
	return r.db.Health(ctx)
}

// Reward profiles

// GetOrCreateProfile returns the user's reward profile, creating it
// lazily on first ad request.
func (r *Repository) GetOrCreateProfile(ctx context.Context, userID string, now time.Time) (*models.RewardProfile, error) {
	query := `
		INSERT INTO reward_profiles (user_id, points_balance, ads_watched_today, daily_reset_at)
		VALUES ($1, 0, 0, $2)
		ON CONFLICT (user_id) DO NOTHING
	`

	if _, err := r.db.Pool.Exec(ctx, query, userID, models.DayStart(now)); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	return r.GetProfile(ctx, userID)
}

// GetProfile retrieves a reward profile by user ID
func (r *Repository) GetProfile(ctx context.Context, userID string) (*models.RewardProfile, error) {
	var profile models.RewardProfile

	query := `
		SELECT user_id, points_balance, ads_watched_today, total_ads_watched,
		       total_points_earned, last_ad_at, daily_reset_at, created_at, updated_at
		FROM reward_profiles
		WHERE user_id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(
		&profile.UserID, &profile.PointsBalance, &profile.AdsWatchedToday,
		&profile.TotalAdsWatched, &profile.TotalPointsEarned, &profile.LastAdAt,
		&profile.DailyResetAt, &profile.CreatedAt, &profile.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return &profile, nil
}

// Ad sessions

// IssueSession inserts a new issued session and reserves the cooldown
// by stamping last_ad_at in the same transaction.
func (r *Repository) IssueSession(ctx context.Context, session *models.AdSession) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO ad_sessions (id, user_id, provider_id, ad_ref, reward_points,
		                         expected_duration, grace_period, state, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = tx.Exec(ctx, query,
		session.ID, session.UserID, session.ProviderID, session.AdRef,
		session.RewardPoints, session.ExpectedDuration, session.GracePeriod,
		session.State, session.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE reward_profiles SET last_ad_at = $2, updated_at = now() WHERE user_id = $1`,
		session.UserID, session.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to stamp last_ad_at: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}

	return nil
}

// GetSession retrieves a session by ID
func (r *Repository) GetSession(ctx context.Context, id string) (*models.AdSession, error) {
	var session models.AdSession

	query := `
		SELECT id, user_id, provider_id, ad_ref, reward_points, expected_duration,
		       grace_period, state, watch_duration, verified, issued_at, completed_at
		FROM ad_sessions
		WHERE id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&session.ID, &session.UserID, &session.ProviderID, &session.AdRef,
		&session.RewardPoints, &session.ExpectedDuration, &session.GracePeriod,
		&session.State, &session.WatchDuration, &session.Verified,
		&session.IssuedAt, &session.CompletedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &session, nil
}

// TransitionSession atomically moves an open session to a new state.
// Returns false when the session was already terminal (or already in
// the requested state), leaving the row untouched.
func (r *Repository) TransitionSession(ctx context.Context, id, newState string, watchDuration int, verified bool, at time.Time) (bool, error) {
	var completedAt interface{}
	switch newState {
	case models.SessionStateCompleted, models.SessionStateRejected, models.SessionStateExpired:
		completedAt = at
	default:
		completedAt = nil
	}

	query := `
		UPDATE ad_sessions
		SET state = $2, watch_duration = GREATEST(watch_duration, $3),
		    verified = verified OR $4, completed_at = $5
		WHERE id = $1 AND state IN ('issued', 'watching') AND state <> $2
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, newState, watchDuration, verified, completedAt)
	if err != nil {
		return false, fmt.Errorf("failed to transition session: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ExpireSessions marks open sessions past their deadline as expired
// and returns them so callers can release the per-user locks.
func (r *Repository) ExpireSessions(ctx context.Context, now time.Time, limit int) ([]*models.AdSession, error) {
	query := `
		UPDATE ad_sessions
		SET state = 'expired', completed_at = $1
		WHERE id IN (
			SELECT id FROM ad_sessions
			WHERE state IN ('issued', 'watching')
			  AND issued_at + make_interval(secs => expected_duration + grace_period) < $1
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, user_id, provider_id, ad_ref, reward_points, expected_duration,
		          grace_period, state, watch_duration, verified, issued_at, completed_at
	`

	rows, err := r.db.Pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to expire sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.AdSession
	for rows.Next() {
		var session models.AdSession
		err := rows.Scan(
			&session.ID, &session.UserID, &session.ProviderID, &session.AdRef,
			&session.RewardPoints, &session.ExpectedDuration, &session.GracePeriod,
			&session.State, &session.WatchDuration, &session.Verified,
			&session.IssuedAt, &session.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, &session)
	}

	return sessions, nil
}

// Reward ledger

// CreditSession inserts the ledger entry and applies the balance and
// daily-counter updates in one transaction. The unique session_id key
// makes retries and racing callbacks collapse to a single credit:
// when the entry already exists nothing is written and the current
// balance is returned unchanged.
func (r *Repository) CreditSession(ctx context.Context, entry *models.LedgerEntry, windowStart time.Time) (bool, int64, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO reward_ledger (session_id, user_id, provider_id, points, credited_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO NOTHING
	`, entry.SessionID, entry.UserID, entry.ProviderID, entry.Points, entry.CreditedAt)
	if err != nil {
		return false, 0, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Already paid; report the balance as-is.
		var balance int64
		err := r.db.Pool.QueryRow(ctx,
			`SELECT points_balance FROM reward_profiles WHERE user_id = $1`,
			entry.UserID,
		).Scan(&balance)
		if err != nil {
			return false, 0, fmt.Errorf("failed to read balance: %w", err)
		}
		return false, balance, nil
	}

	var balance int64
	err = tx.QueryRow(ctx, `
		UPDATE reward_profiles
		SET points_balance = points_balance + $2,
		    total_ads_watched = total_ads_watched + 1,
		    total_points_earned = total_points_earned + $2,
		    ads_watched_today = CASE WHEN daily_reset_at < $3 THEN 1 ELSE ads_watched_today + 1 END,
		    daily_reset_at = CASE WHEN daily_reset_at < $3 THEN $3 ELSE daily_reset_at END,
		    updated_at = now()
		WHERE user_id = $1
		RETURNING points_balance
	`, entry.UserID, entry.Points, windowStart).Scan(&balance)
	if err != nil {
		return false, 0, fmt.Errorf("failed to apply credit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to commit credit: %w", err)
	}

	return true, balance, nil
}

// GetLedgerEntry retrieves a ledger entry by session ID
func (r *Repository) GetLedgerEntry(ctx context.Context, sessionID string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry

	query := `
		SELECT session_id, user_id, provider_id, points, credited_at
		FROM reward_ledger
		WHERE session_id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, sessionID).Scan(
		&entry.SessionID, &entry.UserID, &entry.ProviderID, &entry.Points, &entry.CreditedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	return &entry, nil
}

// UserStats aggregates a user's rewarded-ad history
type UserStats struct {
	TodayViews  int   `json:"today_views"`
	TodayPoints int64 `json:"today_points"`
	TotalViews  int64 `json:"total_views"`
	TotalPoints int64 `json:"total_points"`
}

// GetUserStats returns today's and all-time crediting totals for a user
func (r *Repository) GetUserStats(ctx context.Context, userID string, dayStart time.Time) (*UserStats, error) {
	var stats UserStats

	query := `
		SELECT count(*) FILTER (WHERE credited_at >= $2),
		       coalesce(sum(points) FILTER (WHERE credited_at >= $2), 0),
		       count(*),
		       coalesce(sum(points), 0)
		FROM reward_ledger
		WHERE user_id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, userID, dayStart).Scan(
		&stats.TodayViews, &stats.TodayPoints, &stats.TotalViews, &stats.TotalPoints,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}

	return &stats, nil
}

// Personal ads

// CreatePersonalAd creates a new advertiser creative record
func (r *Repository) CreatePersonalAd(ctx context.Context, ad *models.PersonalAd) error {
	if ad.ID == "" {
		ad.ID = uuid.New().String()
	}

	query := `
		INSERT INTO personal_ads (id, title, advertiser_name, website_url, video_key, duration, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		ad.ID, ad.Title, ad.AdvertiserName, ad.WebsiteURL, ad.VideoKey, ad.Duration, ad.Status,
	).Scan(&ad.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create personal ad: %w", err)
	}

	return nil
}

// ListPersonalAds retrieves advertiser creatives with pagination
func (r *Repository) ListPersonalAds(ctx context.Context, limit, offset int) ([]*models.PersonalAd, error) {
	query := `
		SELECT id, title, advertiser_name, website_url, video_key, duration,
		       status, views, completed_views, created_at
		FROM personal_ads
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list personal ads: %w", err)
	}
	defer rows.Close()

	var ads []*models.PersonalAd
	for rows.Next() {
		var ad models.PersonalAd
		err := rows.Scan(
			&ad.ID, &ad.Title, &ad.AdvertiserName, &ad.WebsiteURL, &ad.VideoKey,
			&ad.Duration, &ad.Status, &ad.Views, &ad.CompletedViews, &ad.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan personal ad: %w", err)
		}
		ads = append(ads, &ad)
	}

	return ads, nil
}

// NextPersonalAd picks an active creative the user has not been served
// since the given horizon, oldest first; when every active creative
// has been seen recently it falls back to an arbitrary active one.
func (r *Repository) NextPersonalAd(ctx context.Context, userID string, since time.Time) (*models.PersonalAd, error) {
	query := `
		SELECT id, title, advertiser_name, website_url, video_key, duration,
		       status, views, completed_views, created_at
		FROM personal_ads
		WHERE status = 'active'
		  AND id NOT IN (
			SELECT ad_ref FROM ad_sessions
			WHERE user_id = $1 AND provider_id = 'personal' AND issued_at >= $2
		  )
		ORDER BY created_at
		LIMIT 1
	`

	ad, err := r.scanPersonalAd(r.db.Pool.QueryRow(ctx, query, userID, since))
	if err == nil {
		return ad, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	fallback := `
		SELECT id, title, advertiser_name, website_url, video_key, duration,
		       status, views, completed_views, created_at
		FROM personal_ads
		WHERE status = 'active'
		ORDER BY random()
		LIMIT 1
	`

	return r.scanPersonalAd(r.db.Pool.QueryRow(ctx, fallback))
}

func (r *Repository) scanPersonalAd(row pgx.Row) (*models.PersonalAd, error) {
	var ad models.PersonalAd
	err := row.Scan(
		&ad.ID, &ad.Title, &ad.AdvertiserName, &ad.WebsiteURL, &ad.VideoKey,
		&ad.Duration, &ad.Status, &ad.Views, &ad.CompletedViews, &ad.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan personal ad: %w", err)
	}
	return &ad, nil
}

// RecordAdView bumps view counters on a personal ad
func (r *Repository) RecordAdView(ctx context.Context, adID string, completed bool) error {
	query := `
		UPDATE personal_ads
		SET views = views + 1,
		    completed_views = completed_views + CASE WHEN $2 THEN 1 ELSE 0 END
		WHERE id = $1
	`

	if _, err := r.db.Pool.Exec(ctx, query, adID, completed); err != nil {
		return fmt.Errorf("failed to record ad view: %w", err)
	}

	return nil
}

// Ad settings

// GetAdSettings loads the persisted rewarded-ads settings. Returns
// ErrNotFound when no settings row has been saved yet.
func (r *Repository) GetAdSettings(ctx context.Context) (*models.AdSettings, error) {
	var data []byte
	var updatedAt time.Time

	err := r.db.Pool.QueryRow(ctx,
		`SELECT data, updated_at FROM ad_settings WHERE id = 1`,
	).Scan(&data, &updatedAt)

	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ad settings: %w", err)
	}

	var settings models.AdSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ad settings: %w", err)
	}
	settings.UpdatedAt = updatedAt

	return &settings, nil
}

// SaveAdSettings upserts the rewarded-ads settings row
func (r *Repository) SaveAdSettings(ctx context.Context, settings *models.AdSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal ad settings: %w", err)
	}

	query := `
		INSERT INTO ad_settings (id, data, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET data = $1, updated_at = now()
	`

	if _, err := r.db.Pool.Exec(ctx, query, data); err != nil {
		return fmt.Errorf("failed to save ad settings: %w", err)
	}

	return nil
}
