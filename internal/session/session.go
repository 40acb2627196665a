package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/toop9472-lang/Sgr2040-sub001/internal/database"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/logging"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/metrics"
	"github.com/toop9472-lang/Sgr2040-sub001/pkg/models"
)

// ErrForeignSession is returned when a report references a session
// that does not exist or belongs to another user. Callers log it as
// potential abuse.
var ErrForeignSession = errors.New("unknown or foreign session")

// Store is the durable session state. TransitionSession must be a
// conditional update that only fires while the row is still open, so
// racing reports collapse to a single terminal transition.
type Store interface {
	GetSession(ctx context.Context, id string) (*models.AdSession, error)
	TransitionSession(ctx context.Context, id, newState string, watchDuration int, verified bool, at time.Time) (bool, error)
	ExpireSessions(ctx context.Context, now time.Time, limit int) ([]*models.AdSession, error)
	RecordAdView(ctx context.Context, adID string, completed bool) error
}

// Locker releases the per-user open-session slot on terminal states.
type Locker interface {
	ReleaseOpenSession(ctx context.Context, userID, sessionID string) error
}

// Crediter pays out a completed session idempotently.
type Crediter interface {
	Credit(ctx context.Context, session *models.AdSession) (*models.CreditResult, error)
}

// Publisher emits reward events for downstream consumers. May be nil.
type Publisher interface {
	PublishRewardEvent(ctx context.Context, event *models.RewardEvent) error
}

// Report is a completion claim for a session: the client's playback
// report, or a provider's verified server-side confirmation (which
// bypasses the watch-duration check).
type Report struct {
	Completed     bool
	WatchDuration int // seconds
	Verified      bool
}

// Manager drives ad sessions through their lifecycle and triggers the
// single ledger credit when one completes.
type Manager struct {
	store     Store
	locker    Locker
	crediter  Crediter
	publisher Publisher
	log       *logging.Logger
	now       func() time.Time
}

// NewManager creates a session manager
func NewManager(store Store, locker Locker, crediter Crediter, publisher Publisher, log *logging.Logger) *Manager {
	return &Manager{
		store:     store,
		locker:    locker,
		crediter:  crediter,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// Get loads a session owned by userID, lazily expiring it when its
// deadline has passed. Pass userID "" to skip the ownership check
// (provider callbacks identify sessions, not users).
func (m *Manager) Get(ctx context.Context, id, userID string) (*models.AdSession, error) {
	session, err := m.store.GetSession(ctx, id)
	if errors.Is(err, database.ErrNotFound) || errors.Is(err, ErrForeignSession) {
		return nil, ErrForeignSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if userID != "" && session.UserID != userID {
		return nil, ErrForeignSession
	}

	if session.Expired(m.now()) {
		if err := m.expire(ctx, session); err != nil {
			return nil, err
		}
	}

	return session, nil
}

// Start records the playback-start signal. Purely observational: it
// never gates the reward, and reports against terminal sessions are
// ignored.
func (m *Manager) Start(ctx context.Context, id, userID string) (*models.AdSession, error) {
	session, err := m.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if session.State == models.SessionStateIssued {
		ok, err := m.store.TransitionSession(ctx, id, models.SessionStateWatching, 0, false, m.now())
		if err != nil {
			return nil, err
		}
		if ok {
			session.State = models.SessionStateWatching
		}
	}

	return session, nil
}

// Complete settles a session from a completion claim. Terminal
// sessions answer idempotently with their previous outcome; open
// sessions transition exactly once even under racing reports, and a
// completed transition triggers the ledger credit.
func (m *Manager) Complete(ctx context.Context, id, userID string, report Report) (*models.CompleteAdResponse, error) {
	session, err := m.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if session.IsTerminal() {
		return m.priorOutcome(ctx, session)
	}

	newState := models.SessionStateRejected
	if report.Completed && (report.Verified || report.WatchDuration >= session.ExpectedDuration) {
		newState = models.SessionStateCompleted
	}

	ok, err := m.store.TransitionSession(ctx, id, newState, report.WatchDuration, report.Verified, m.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race against another report or the sweeper; answer
		// with whatever outcome won.
		session, err = m.store.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		return m.priorOutcome(ctx, session)
	}

	session.State = newState
	m.settle(ctx, session)

	if newState != models.SessionStateCompleted {
		return &models.CompleteAdResponse{Success: false, State: newState}, nil
	}

	result, err := m.crediter.Credit(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to credit session: %w", err)
	}

	m.publish(ctx, session, models.EventRewardCredited, result.PointsEarned)

	return &models.CompleteAdResponse{
		Success:      true,
		State:        newState,
		PointsEarned: result.PointsEarned,
		TotalPoints:  result.TotalPoints,
	}, nil
}

// priorOutcome answers a late report against a terminal session
// without re-crediting or re-rejecting.
func (m *Manager) priorOutcome(ctx context.Context, session *models.AdSession) (*models.CompleteAdResponse, error) {
	if session.State != models.SessionStateCompleted {
		return &models.CompleteAdResponse{Success: false, State: session.State}, nil
	}

	// The ledger is idempotent: this returns the existing entry.
	result, err := m.crediter.Credit(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve prior credit: %w", err)
	}

	return &models.CompleteAdResponse{
		Success:      true,
		State:        session.State,
		PointsEarned: result.PointsEarned,
		TotalPoints:  result.TotalPoints,
	}, nil
}

// settle performs the terminal-state bookkeeping shared by reports and
// expiry: releasing the user's open-session slot and view counters.
func (m *Manager) settle(ctx context.Context, session *models.AdSession) {
	if err := m.locker.ReleaseOpenSession(ctx, session.UserID, session.ID); err != nil {
		m.log.WithError(err).WithSessionID(session.ID).Warn("Failed to release open-session slot")
	}

	metrics.SessionsOpen.Dec()
	metrics.SessionsTerminalTotal.WithLabelValues(session.State).Inc()

	if session.ProviderID == models.ProviderPersonal && session.AdRef != "" {
		completed := session.State == models.SessionStateCompleted
		if err := m.store.RecordAdView(ctx, session.AdRef, completed); err != nil {
			m.log.WithError(err).WithSessionID(session.ID).Warn("Failed to record ad view")
		}
	}

	switch session.State {
	case models.SessionStateRejected:
		m.publish(ctx, session, models.EventSessionRejected, 0)
	case models.SessionStateExpired:
		m.publish(ctx, session, models.EventSessionExpired, 0)
	}
}

func (m *Manager) expire(ctx context.Context, session *models.AdSession) error {
	ok, err := m.store.TransitionSession(ctx, session.ID, models.SessionStateExpired, 0, false, m.now())
	if err != nil {
		return err
	}
	if !ok {
		// Someone else settled it first; reload the winning state.
		fresh, err := m.store.GetSession(ctx, session.ID)
		if err != nil {
			return err
		}
		*session = *fresh
		return nil
	}

	session.State = models.SessionStateExpired
	m.settle(ctx, session)
	return nil
}

func (m *Manager) publish(ctx context.Context, session *models.AdSession, eventType string, points int64) {
	if m.publisher == nil {
		return
	}

	event := &models.RewardEvent{
		Type:       eventType,
		SessionID:  session.ID,
		UserID:     session.UserID,
		ProviderID: session.ProviderID,
		Points:     points,
		OccurredAt: m.now().UTC(),
	}

	if err := m.publisher.PublishRewardEvent(ctx, event); err != nil {
		m.log.WithError(err).WithSessionID(session.ID).Warn("Failed to publish reward event")
	}
}
