package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/toop9472-lang/Sgr2040-sub001/internal/logging"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/metrics"
	"github.com/toop9472-lang/Sgr2040-sub001/pkg/models"
)

// ErrNotCompleted is returned when a credit is attempted for a session
// that never reached the completed state.
var ErrNotCompleted = errors.New("session not completed")

// Store is the durable side of the ledger. CreditSession must insert
// the entry and apply the balance update atomically, reporting
// credited=false without writing anything when the entry already
// exists.
type Store interface {
	CreditSession(ctx context.Context, entry *models.LedgerEntry, windowStart time.Time) (credited bool, totalPoints int64, err error)
	GetLedgerEntry(ctx context.Context, sessionID string) (*models.LedgerEntry, error)
}

// Ledger credits reward points exactly once per completed session.
type Ledger struct {
	store Store
	log   *logging.Logger
}

// New creates a reward ledger
func New(store Store, log *logging.Logger) *Ledger {
	return &Ledger{store: store, log: log}
}

// Credit pays out the session's snapshotted reward. Calling it any
// number of times, concurrently or not, yields one ledger entry and
// one balance increment; duplicates return the prior result.
func (l *Ledger) Credit(ctx context.Context, session *models.AdSession) (*models.CreditResult, error) {
	if session.State != models.SessionStateCompleted {
		return nil, fmt.Errorf("credit session %s: %w", session.ID, ErrNotCompleted)
	}

	entry := &models.LedgerEntry{
		SessionID:  session.ID,
		UserID:     session.UserID,
		ProviderID: session.ProviderID,
		Points:     session.RewardPoints,
		CreditedAt: time.Now().UTC(),
	}

	credited, total, err := l.store.CreditSession(ctx, entry, models.DayStart(entry.CreditedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to credit session %s: %w", session.ID, err)
	}

	if credited {
		metrics.CreditsTotal.WithLabelValues(metrics.CreditOutcomeCredited).Inc()
		metrics.PointsCreditedTotal.Add(float64(entry.Points))
	} else {
		// Duplicate report (client retry or racing S2S callback):
		// neutralized by the unique session_id, worth observing only.
		metrics.CreditsTotal.WithLabelValues(metrics.CreditOutcomeDuplicate).Inc()
	}
	l.log.LogCredit(session.UserID, session.ID, entry.Points, !credited)

	return &models.CreditResult{
		SessionID:       session.ID,
		PointsEarned:    entry.Points,
		TotalPoints:     total,
		AlreadyCredited: !credited,
	}, nil
}

// Lookup returns the ledger entry for a session, if it was ever paid.
func (l *Ledger) Lookup(ctx context.Context, sessionID string) (*models.LedgerEntry, error) {
	return l.store.GetLedgerEntry(ctx, sessionID)
}
