package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toop9472-lang/Sgr2040-sub001/internal/logging"
	"github.com/toop9472-lang/Sgr2040-sub001/pkg/models"
)

type memStore struct {
	mu       sync.Mutex
	sessions map[string]*models.AdSession
	views    map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*models.AdSession),
		views:    make(map[string]int),
	}
}

func (m *memStore) put(s *models.AdSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.sessions[s.ID] = &copied
}

func (m *memStore) GetSession(ctx context.Context, id string) (*models.AdSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrForeignSession
	}
	copied := *s
	return &copied, nil
}

func (m *memStore) TransitionSession(ctx context.Context, id, newState string, watchDuration int, verified bool, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false, nil
	}
	if s.State != models.SessionStateIssued && s.State != models.SessionStateWatching {
		return false, nil
	}
	if s.State == newState {
		return false, nil
	}

	s.State = newState
	if watchDuration > s.WatchDuration {
		s.WatchDuration = watchDuration
	}
	s.Verified = s.Verified || verified
	switch newState {
	case models.SessionStateCompleted, models.SessionStateRejected, models.SessionStateExpired:
		t := at
		s.CompletedAt = &t
	}
	return true, nil
}

func (m *memStore) ExpireSessions(ctx context.Context, now time.Time, limit int) ([]*models.AdSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []*models.AdSession
	for _, s := range m.sessions {
		if len(expired) >= limit {
			break
		}
		if !s.IsTerminal() && now.After(s.Deadline()) {
			s.State = models.SessionStateExpired
			t := now
			s.CompletedAt = &t
			copied := *s
			expired = append(expired, &copied)
		}
	}
	return expired, nil
}

func (m *memStore) RecordAdView(ctx context.Context, adID string, completed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[adID]++
	return nil
}

type memLocker struct {
	mu    sync.Mutex
	slots map[string]string
}

func newMemLocker() *memLocker {
	return &memLocker{slots: make(map[string]string)}
}

func (m *memLocker) hold(userID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[userID] = sessionID
}

func (m *memLocker) held(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[userID]
}

func (m *memLocker) ReleaseOpenSession(ctx context.Context, userID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slots[userID] == sessionID {
		delete(m.slots, userID)
	}
	return nil
}

type memCrediter struct {
	mu      sync.Mutex
	credits map[string]int64
	balance map[string]int64
}

func newMemCrediter() *memCrediter {
	return &memCrediter{credits: make(map[string]int64), balance: make(map[string]int64)}
}

func (m *memCrediter) Credit(ctx context.Context, session *models.AdSession) (*models.CreditResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if points, ok := m.credits[session.ID]; ok {
		return &models.CreditResult{
			SessionID: session.ID, PointsEarned: points,
			TotalPoints: m.balance[session.UserID], AlreadyCredited: true,
		}, nil
	}

	m.credits[session.ID] = session.RewardPoints
	m.balance[session.UserID] += session.RewardPoints
	return &models.CreditResult{
		SessionID: session.ID, PointsEarned: session.RewardPoints,
		TotalPoints: m.balance[session.UserID],
	}, nil
}

type memPublisher struct {
	mu     sync.Mutex
	events []*models.RewardEvent
}

func (m *memPublisher) PublishRewardEvent(ctx context.Context, event *models.RewardEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memPublisher) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

var issuedAt = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memStore
	locker    *memLocker
	crediter  *memCrediter
	publisher *memPublisher
	manager   *Manager
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, err := logging.NewDefaultLogger()
	require.NoError(t, err)

	f := &fixture{
		store:     newMemStore(),
		locker:    newMemLocker(),
		crediter:  newMemCrediter(),
		publisher: &memPublisher{},
		now:       issuedAt,
	}
	f.manager = NewManager(f.store, f.locker, f.crediter, f.publisher, log)
	f.manager.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) issue(id string) *models.AdSession {
	s := &models.AdSession{
		ID:               id,
		UserID:           "user-1",
		ProviderID:       models.ProviderPersonal,
		AdRef:            "ad-1",
		RewardPoints:     5,
		ExpectedDuration: 30,
		GracePeriod:      30,
		State:            models.SessionStateIssued,
		IssuedAt:         issuedAt,
	}
	f.store.put(s)
	f.locker.hold(s.UserID, s.ID)
	return s
}

func TestStart_MovesIssuedToWatching(t *testing.T) {
	f := newFixture(t)
	f.issue("sess-1")

	s, err := f.manager.Start(context.Background(), "sess-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateWatching, s.State)

	// Starting twice is harmless
	s, err = f.manager.Start(context.Background(), "sess-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateWatching, s.State)
}

func TestComplete_SuccessCreditsOnce(t *testing.T) {
	f := newFixture(t)
	f.issue("sess-1")
	f.now = issuedAt.Add(35 * time.Second)

	resp, err := f.manager.Complete(context.Background(), "sess-1", "user-1",
		Report{Completed: true, WatchDuration: 32})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, models.SessionStateCompleted, resp.State)
	assert.Equal(t, int64(5), resp.PointsEarned)
	assert.Equal(t, int64(5), resp.TotalPoints)
	assert.Empty(t, f.locker.held("user-1"), "slot must be released")
	assert.Equal(t, 1, f.store.views["ad-1"])
	assert.Equal(t, []string{models.EventRewardCredited}, f.publisher.types())
}

func TestComplete_ShortWatchRejects(t *testing.T) {
	f := newFixture(t)
	f.issue("sess-1")

	resp, err := f.manager.Complete(context.Background(), "sess-1", "user-1",
		Report{Completed: true, WatchDuration: 12})
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, models.SessionStateRejected, resp.State)
	assert.Zero(t, resp.PointsEarned)
	assert.Empty(t, f.locker.held("user-1"))
	assert.Empty(t, f.crediter.credits)
}

func TestComplete_NotCompletedFlagRejects(t *testing.T) {
	f := newFixture(t)
	f.issue("sess-1")

	resp, err := f.manager.Complete(context.Background(), "sess-1", "user-1",
		Report{Completed: false, WatchDuration: 60})
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, models.SessionStateRejected, resp.State)
}

func TestComplete_VerifiedBypassesDurationCheck(t *testing.T) {
	f := newFixture(t)
	f.issue("sess-1")

	resp, err := f.manager.Complete(context.Background(), "sess-1", "user-1",
		Report{Completed: true, WatchDuration: 0, Verified: true})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, int64(5), resp.PointsEarned)
}

func TestComplete_LateReportIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.issue("sess-1")

	first, err := f.manager.Complete(context.Background(), "sess-1", "user-1",
		Report{Completed: true, WatchDuration: 30})
	require.NoError(t, err)
	require.True(t, first.Success)

	// A duplicate completion (client retry after timeout) must return
	// the prior outcome without a second balance increment.
	second, err := f.manager.Complete(context.Background(), "sess-1", "user-1",
		Report{Completed: true, WatchDuration: 30})
	require.NoError(t, err)

	assert.True(t, second.Success)
	assert.Equal(t, int64(5), second.TotalPoints)
	assert.Equal(t, int64(5), f.crediter.balance["user-1"])

	// A late failure report against the completed session changes nothing.
	third, err := f.manager.Complete(context.Background(), "sess-1", "user-1",
		Report{Completed: false})
	require.NoError(t, err)
	assert.True(t, third.Success)
	assert.Equal(t, models.SessionStateCompleted, third.State)
}

func TestComplete_ForeignSession(t *testing.T) {
	f := newFixture(t)
	f.issue("sess-1")

	_, err := f.manager.Complete(context.Background(), "sess-1", "user-2",
		Report{Completed: true, WatchDuration: 30})
	assert.ErrorIs(t, err, ErrForeignSession)

	_, err = f.manager.Complete(context.Background(), "sess-unknown", "user-1",
		Report{Completed: true, WatchDuration: 30})
	assert.ErrorIs(t, err, ErrForeignSession)
}

func TestGet_LazyExpiryReleasesSlot(t *testing.T) {
	f := newFixture(t)
	f.issue("sess-1")

	// Past the deadline (30s expected + 30s grace)
	f.now = issuedAt.Add(61 * time.Second)

	s, err := f.manager.Get(context.Background(), "sess-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateExpired, s.State)
	assert.Empty(t, f.locker.held("user-1"))
	assert.Equal(t, []string{models.EventSessionExpired}, f.publisher.types())
}

func TestComplete_AfterExpiryDoesNotCredit(t *testing.T) {
	f := newFixture(t)
	f.issue("sess-1")
	f.now = issuedAt.Add(61 * time.Second)

	resp, err := f.manager.Complete(context.Background(), "sess-1", "user-1",
		Report{Completed: true, WatchDuration: 30})
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, models.SessionStateExpired, resp.State)
	assert.Empty(t, f.crediter.credits)
}

func TestSweeper_ExpiresPastDeadline(t *testing.T) {
	f := newFixture(t)
	f.issue("sess-1")

	sweeper := NewSweeper(f.manager, time.Minute, 10)

	f.now = issuedAt.Add(61 * time.Second)
	sweeper.sweep(context.Background())

	s, err := f.store.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateExpired, s.State)
	assert.Empty(t, f.locker.held("user-1"))
}

func TestComplete_ConcurrentReportsSettleOnce(t *testing.T) {
	f := newFixture(t)
	f.issue("sess-1")

	const n = 16
	var wg sync.WaitGroup
	responses := make([]*models.CompleteAdResponse, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := f.manager.Complete(context.Background(), "sess-1", "user-1",
				Report{Completed: true, WatchDuration: 30})
			if err != nil {
				t.Error(err)
				return
			}
			responses[i] = resp
		}(i)
	}
	wg.Wait()

	for _, resp := range responses {
		require.NotNil(t, resp)
		assert.True(t, resp.Success)
		assert.Equal(t, int64(5), resp.TotalPoints)
	}
	assert.Equal(t, int64(5), f.crediter.balance["user-1"])
}
