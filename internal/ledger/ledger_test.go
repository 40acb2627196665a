package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toop9472-lang/Sgr2040-sub001/internal/database"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/logging"
	"github.com/toop9472-lang/Sgr2040-sub001/pkg/models"
)

// memStore mirrors the repository's credit transaction: insert the
// entry under a uniqueness guard, then apply the balance update.
type memStore struct {
	mu       sync.Mutex
	entries  map[string]*models.LedgerEntry
	balances map[string]int64
}

func newMemStore() *memStore {
	return &memStore{
		entries:  make(map[string]*models.LedgerEntry),
		balances: make(map[string]int64),
	}
}

func (m *memStore) CreditSession(ctx context.Context, entry *models.LedgerEntry, windowStart time.Time) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[entry.SessionID]; exists {
		return false, m.balances[entry.UserID], nil
	}

	m.entries[entry.SessionID] = entry
	m.balances[entry.UserID] += entry.Points
	return true, m.balances[entry.UserID], nil
}

func (m *memStore) GetLedgerEntry(ctx context.Context, sessionID string) (*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[sessionID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return entry, nil
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.NewDefaultLogger()
	require.NoError(t, err)
	return log
}

func completedSession() *models.AdSession {
	return &models.AdSession{
		ID:           "sess-1",
		UserID:       "user-1",
		ProviderID:   models.ProviderPersonal,
		RewardPoints: 5,
		State:        models.SessionStateCompleted,
		IssuedAt:     time.Now(),
	}
}

func TestCredit_Once(t *testing.T) {
	store := newMemStore()
	l := New(store, testLogger(t))

	result, err := l.Credit(context.Background(), completedSession())
	require.NoError(t, err)

	assert.False(t, result.AlreadyCredited)
	assert.Equal(t, int64(5), result.PointsEarned)
	assert.Equal(t, int64(5), result.TotalPoints)
}

func TestCredit_DuplicateReturnsPriorResult(t *testing.T) {
	store := newMemStore()
	l := New(store, testLogger(t))

	_, err := l.Credit(context.Background(), completedSession())
	require.NoError(t, err)

	result, err := l.Credit(context.Background(), completedSession())
	require.NoError(t, err)

	assert.True(t, result.AlreadyCredited)
	assert.Equal(t, int64(5), result.TotalPoints, "balance must not move twice")
}

func TestCredit_RejectsNonCompletedSession(t *testing.T) {
	l := New(newMemStore(), testLogger(t))

	for _, state := range []string{
		models.SessionStateIssued,
		models.SessionStateWatching,
		models.SessionStateRejected,
		models.SessionStateExpired,
	} {
		s := completedSession()
		s.State = state
		_, err := l.Credit(context.Background(), s)
		assert.ErrorIs(t, err, ErrNotCompleted, "state %s must not credit", state)
	}
}

func TestCredit_ConcurrentCallsCreditExactlyOnce(t *testing.T) {
	store := newMemStore()
	l := New(store, testLogger(t))

	const n = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	credited := 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := l.Credit(context.Background(), completedSession())
			if err != nil {
				t.Error(err)
				return
			}
			if !result.AlreadyCredited {
				mu.Lock()
				credited++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, credited, "exactly one call may report a fresh credit")
	assert.Equal(t, int64(5), store.balances["user-1"])
	assert.Len(t, store.entries, 1)
}

func TestLookup(t *testing.T) {
	store := newMemStore()
	l := New(store, testLogger(t))

	_, err := l.Lookup(context.Background(), "sess-1")
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = l.Credit(context.Background(), completedSession())
	require.NoError(t, err)

	entry, err := l.Lookup(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), entry.Points)
}
