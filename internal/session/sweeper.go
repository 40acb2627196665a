package session

import (
	"context"
	"time"
)

// Sweeper moves sessions past their deadline to expired in the
// background, releasing the per-user slot so abandoned sessions never
// block the next ad. Lazy expiry on access covers the gap between
// ticks.
type Sweeper struct {
	manager   *Manager
	interval  time.Duration
	batchSize int
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSweeper creates an expiry sweeper
func NewSweeper(manager *Manager, interval time.Duration, batchSize int) *Sweeper {
	return &Sweeper{
		manager:   manager,
		interval:  interval,
		batchSize: batchSize,
		done:      make(chan struct{}),
	}
}

// Start begins the sweep loop
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()

	s.manager.log.Infof("Session sweeper started (interval %s)", s.interval)
}

// Stop stops the sweep loop and waits for the current pass to finish
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.manager.log.Info("Session sweeper stopped")
}

func (s *Sweeper) sweep(ctx context.Context) {
	m := s.manager

	for {
		expired, err := m.store.ExpireSessions(ctx, m.now(), s.batchSize)
		if err != nil {
			m.log.ErrorWithErr("Sweep pass failed", err)
			return
		}
		if len(expired) == 0 {
			return
		}

		for _, session := range expired {
			m.settle(ctx, session)
			m.log.WithSessionID(session.ID).WithUserID(session.UserID).Debug("Session expired")
		}

		// A full batch may mean more are waiting
		if len(expired) < s.batchSize {
			return
		}
	}
}
