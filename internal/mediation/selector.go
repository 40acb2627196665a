package mediation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"

	"github.com/toop9472-lang/Sgr2040-sub001/internal/logging"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/metrics"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/provider"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/ratelimit"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/tracing"
	"github.com/toop9472-lang/Sgr2040-sub001/pkg/models"
)

// DeniedError tells the client why no ad was served and when to retry.
type DeniedError struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("ad request denied: %s", e.Reason)
}

// Denied extracts a DeniedError from err, or nil.
func Denied(err error) *DeniedError {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied
	}
	return nil
}

// ProfileStore persists reward profiles and issued sessions.
type ProfileStore interface {
	GetOrCreateProfile(ctx context.Context, userID string, now time.Time) (*models.RewardProfile, error)
	IssueSession(ctx context.Context, session *models.AdSession) error
}

// SessionLocker is the per-user open-session slot. Acquire must be
// atomic so two parallel requests from one user cannot both win.
type SessionLocker interface {
	GetOpenSession(ctx context.Context, userID string) (string, error)
	AcquireOpenSession(ctx context.Context, userID, sessionID string, ttl time.Duration) (bool, error)
	ReleaseOpenSession(ctx context.Context, userID, sessionID string) error
}

// Waterfall yields the ordered provider sequence for one mediation pass.
type Waterfall interface {
	Available() []provider.Provider
}

// Settings supplies the live rewarded-ads settings snapshot.
type Settings interface {
	Current() *models.AdSettings
}

// Selector runs the mediation waterfall: rate limit first, then the
// ordered providers until one fills, then atomically open the session.
type Selector struct {
	store    ProfileStore
	locker   SessionLocker
	registry Waterfall
	checker  *ratelimit.Checker
	settings Settings
	log      *logging.Logger
	now      func() time.Time
}

// NewSelector creates a mediation selector
func NewSelector(store ProfileStore, locker SessionLocker, registry Waterfall, checker *ratelimit.Checker, settings Settings, log *logging.Logger) *Selector {
	return &Selector{
		store:    store,
		locker:   locker,
		registry: registry,
		checker:  checker,
		settings: settings,
		log:      log,
		now:      time.Now,
	}
}

// RequestNextAd picks exactly one ad for the user or explains the
// denial. Provider failures are absorbed: a broken network is
// indistinguishable from no-fill within a single pass.
func (s *Selector) RequestNextAd(ctx context.Context, userID string) (*models.AdOffer, error) {
	span, ctx := tracing.StartSpan(ctx, "mediation.request_next_ad")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "user_id", userID)

	now := s.now()
	cfg := s.settings.Current()

	profile, err := s.store.GetOrCreateProfile(ctx, userID, now)
	if err != nil {
		tracing.LogError(span, err)
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	openSID, err := s.locker.GetOpenSession(ctx, userID)
	if err != nil {
		tracing.LogError(span, err)
		return nil, fmt.Errorf("failed to check open session: %w", err)
	}

	decision := s.checker.CheckEligibility(profile, openSID != "", cfg, now)
	if !decision.Allowed {
		return nil, s.deny(span, userID, decision.Reason, decision.RetryAfter)
	}

	prov, reservation := s.runWaterfall(ctx, userID)
	if reservation == nil {
		return nil, s.deny(span, userID, models.DenyReasonNoAdsAvailable, 0)
	}

	session := &models.AdSession{
		ID:               uuid.New().String(),
		UserID:           userID,
		ProviderID:       prov.ID(),
		AdRef:            reservation.AdRef,
		RewardPoints:     reservation.RewardPoints,
		ExpectedDuration: reservation.Duration,
		GracePeriod:      cfg.GraceSeconds,
		State:            models.SessionStateIssued,
		IssuedAt:         now,
	}

	// The slot TTL outlives the session deadline; the sweeper or a
	// terminal report normally releases it first.
	ttl := session.Deadline().Sub(now) + time.Minute

	acquired, err := s.locker.AcquireOpenSession(ctx, userID, session.ID, ttl)
	if err != nil {
		tracing.LogError(span, err)
		return nil, fmt.Errorf("failed to acquire open session: %w", err)
	}
	if !acquired {
		// A parallel request won the slot between check and acquire.
		return nil, s.deny(span, userID, models.DenyReasonSessionOpen, 0)
	}

	if err := s.store.IssueSession(ctx, session); err != nil {
		// Roll the slot back so the user is not stuck on a session
		// that never existed.
		_ = s.locker.ReleaseOpenSession(ctx, userID, session.ID)
		tracing.LogError(span, err)
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	metrics.AdsServedTotal.WithLabelValues(string(prov.ID())).Inc()
	metrics.SessionsOpen.Inc()
	tracing.SetTag(span, "provider", string(prov.ID()))
	s.log.LogAdServed(userID, session.ID, prov.ID(), session.RewardPoints)

	return &models.AdOffer{
		SessionID:     session.ID,
		ProviderID:    prov.ID(),
		AdRef:         reservation.AdRef,
		Title:         reservation.Title,
		Advertiser:    reservation.Advertiser,
		VideoURL:      reservation.VideoURL,
		WebsiteURL:    reservation.WebsiteURL,
		Duration:      reservation.Duration,
		RewardPoints:  reservation.RewardPoints,
		NetworkConfig: reservation.NetworkConfig,
	}, nil
}

// runWaterfall walks the ordered providers and returns the first fill.
// Errors count as no-fill for this pass; no per-provider retries.
func (s *Selector) runWaterfall(ctx context.Context, userID string) (provider.Provider, *provider.Reservation) {
	for _, p := range s.registry.Available() {
		name := string(p.ID())

		start := time.Now()
		fillable, err := p.Probe(ctx, userID)
		metrics.ProviderProbeDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

		if err != nil {
			metrics.ProviderErrorsTotal.WithLabelValues(name).Inc()
			s.log.WithError(err).WithProvider(p.ID()).Debug("Provider probe failed")
			continue
		}
		if !fillable {
			metrics.ProviderNoFillTotal.WithLabelValues(name).Inc()
			continue
		}

		reservation, err := p.Reserve(ctx, userID)
		if err != nil {
			metrics.ProviderErrorsTotal.WithLabelValues(name).Inc()
			s.log.WithError(err).WithProvider(p.ID()).Debug("Provider reserve failed")
			continue
		}

		return p, reservation
	}

	return nil, nil
}

func (s *Selector) deny(span opentracing.Span, userID, reason string, retryAfter time.Duration) error {
	tracing.SetTag(span, "denied", reason)
	metrics.AdDenialsTotal.WithLabelValues(reason).Inc()
	s.log.LogDenial(userID, reason, retryAfter)
	return &DeniedError{Reason: reason, RetryAfter: retryAfter}
}
