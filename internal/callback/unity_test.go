package callback

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toop9472-lang/Sgr2040-sub001/internal/logging"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/session"
	"github.com/toop9472-lang/Sgr2040-sub001/pkg/models"
)

func signParams(secret string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "sig" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, params[k]))
	}
	mac := hmac.New(md5.New, []byte(secret))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestUnityVerifier(t *testing.T) {
	v := NewUnityVerifier("s2s-secret")
	params := map[string]string{
		"sid":       "session-1",
		"oid":       "order-9",
		"productid": "rewardedVideo",
	}
	params["sig"] = signParams("s2s-secret", params)

	assert.True(t, v.Verify(params))

	tampered := map[string]string{
		"sid":       "session-2",
		"oid":       params["oid"],
		"productid": params["productid"],
		"sig":       params["sig"],
	}
	assert.False(t, v.Verify(tampered), "changing a signed param must invalidate the digest")

	delete(params, "sig")
	assert.False(t, v.Verify(params))
}

func TestUnityVerifier_EmptySecretSkipsCheck(t *testing.T) {
	v := NewUnityVerifier("")
	assert.True(t, v.Verify(map[string]string{"sid": "session-1"}))
}

type cbStore struct {
	mu      sync.Mutex
	session *models.AdSession
}

func (s *cbStore) GetSession(_ context.Context, id string) (*models.AdSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.session.ID != id {
		return nil, session.ErrForeignSession
	}
	cp := *s.session
	return &cp, nil
}

func (s *cbStore) TransitionSession(_ context.Context, id, newState string, watchDuration int, verified bool, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.session.ID != id || s.session.IsTerminal() {
		return false, nil
	}
	s.session.State = newState
	if watchDuration > s.session.WatchDuration {
		s.session.WatchDuration = watchDuration
	}
	s.session.Verified = s.session.Verified || verified
	s.session.CompletedAt = &at
	return true, nil
}

func (s *cbStore) ExpireSessions(context.Context, time.Time, int) ([]*models.AdSession, error) {
	return nil, nil
}

func (s *cbStore) RecordAdView(context.Context, string, bool) error { return nil }

type cbLocker struct{ released int }

func (l *cbLocker) ReleaseOpenSession(context.Context, string, string) error {
	l.released++
	return nil
}

type cbCrediter struct{ credits int }

func (c *cbCrediter) Credit(_ context.Context, s *models.AdSession) (*models.CreditResult, error) {
	c.credits++
	return &models.CreditResult{
		PointsEarned:    s.RewardPoints,
		TotalPoints:     s.RewardPoints,
		AlreadyCredited: c.credits > 1,
	}, nil
}

func newCallbackFixture(t *testing.T) (*UnityCallback, *cbStore, *cbCrediter) {
	t.Helper()
	log, err := logging.NewDefaultLogger()
	require.NoError(t, err)

	store := &cbStore{session: &models.AdSession{
		ID:               "session-1",
		UserID:           "user-1",
		ProviderID:       models.ProviderUnity,
		RewardPoints:     5,
		ExpectedDuration: 30,
		GracePeriod:      30,
		State:            models.SessionStateWatching,
		IssuedAt:         time.Now().UTC(),
	}}
	crediter := &cbCrediter{}
	manager := session.NewManager(store, &cbLocker{}, crediter, nil, log)

	return NewUnityCallback(NewUnityVerifier("s2s-secret"), manager, log), store, crediter
}

func TestUnityCallback_CreditsVerifiedSession(t *testing.T) {
	cb, store, crediter := newCallbackFixture(t)

	// No watch duration in the callback: the verified flag bypasses
	// the duration check.
	params := map[string]string{"sid": "session-1", "oid": "order-9"}
	params["sig"] = signParams("s2s-secret", params)

	result, err := cb.Process(context.Background(), params)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, models.SessionStateCompleted, result.State)
	assert.Equal(t, int64(5), result.PointsEarned)
	assert.Equal(t, 1, crediter.credits)
	assert.True(t, store.session.Verified)
}

func TestUnityCallback_RetryIsIdempotent(t *testing.T) {
	cb, _, crediter := newCallbackFixture(t)

	params := map[string]string{"sid": "session-1", "oid": "order-9"}
	params["sig"] = signParams("s2s-secret", params)

	first, err := cb.Process(context.Background(), params)
	require.NoError(t, err)

	second, err := cb.Process(context.Background(), params)
	require.NoError(t, err)

	assert.True(t, second.Success)
	assert.Equal(t, first.PointsEarned, second.PointsEarned)
	assert.Equal(t, 2, crediter.credits, "second credit resolves through the idempotent ledger")
}

func TestUnityCallback_BadSignature(t *testing.T) {
	cb, _, crediter := newCallbackFixture(t)

	params := map[string]string{"sid": "session-1", "sig": "deadbeef"}
	_, err := cb.Process(context.Background(), params)

	assert.ErrorIs(t, err, ErrBadSignature)
	assert.Equal(t, 0, crediter.credits)
}

func TestUnityCallback_MissingSession(t *testing.T) {
	cb, _, _ := newCallbackFixture(t)

	params := map[string]string{"oid": "order-9"}
	params["sig"] = signParams("s2s-secret", params)

	_, err := cb.Process(context.Background(), params)
	assert.ErrorIs(t, err, ErrMissingSession)
}

func TestUnityCallback_UnknownSession(t *testing.T) {
	cb, _, _ := newCallbackFixture(t)

	params := map[string]string{"sid": "missing"}
	params["sig"] = signParams("s2s-secret", params)

	_, err := cb.Process(context.Background(), params)
	assert.Error(t, err)
}
