package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toop9472-lang/Sgr2040-sub001/internal/database"
	"github.com/toop9472-lang/Sgr2040-sub001/pkg/models"
)

type fakeCatalog struct {
	ad  *models.PersonalAd
	err error
}

func (f *fakeCatalog) NextPersonalAd(ctx context.Context, userID string, since time.Time) (*models.PersonalAd, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.ad == nil {
		return nil, database.ErrNotFound
	}
	return f.ad, nil
}

type fakeSigner struct{}

func (fakeSigner) PresignedURL(ctx context.Context, key string) (string, error) {
	return "https://cdn.example.com/" + key + "?sig=abc", nil
}

type fakeProber struct {
	fills map[models.ProviderID]bool
	errs  map[models.ProviderID]error
}

func (f *fakeProber) HasFill(ctx context.Context, id models.ProviderID, userID string) (bool, error) {
	if err := f.errs[id]; err != nil {
		return false, err
	}
	return f.fills[id], nil
}

func testSettings(providers ...models.ProviderConfig) *models.AdSettings {
	return &models.AdSettings{
		RewardPoints:    5,
		DailyLimit:      50,
		CooldownSeconds: 30,
		DefaultDuration: 30,
		GraceSeconds:    30,
		Providers:       providers,
	}
}

func adMobCreds() map[string]string {
	return map[string]string{"appId": "ca-app-pub-1", "unitId": "unit-1"}
}

func unityCreds() map[string]string {
	return map[string]string{"gameId": "game-1", "placementId": "rewardedVideo"}
}

func TestRegistry_Order(t *testing.T) {
	settings := testSettings(
		models.ProviderConfig{ID: models.ProviderUnity, Enabled: true, Priority: 2, Credentials: unityCreds()},
		models.ProviderConfig{ID: models.ProviderPersonal, Enabled: true, Priority: 9},
		models.ProviderConfig{ID: models.ProviderAdMob, Enabled: true, Priority: 1, Credentials: adMobCreds()},
	)

	r := NewRegistry(&fakeCatalog{}, fakeSigner{}, nil, settings)

	var order []models.ProviderID
	for _, p := range r.Available() {
		order = append(order, p.ID())
	}

	// Personal always leads regardless of its priority value
	assert.Equal(t, []models.ProviderID{
		models.ProviderPersonal, models.ProviderAdMob, models.ProviderUnity,
	}, order)
}

func TestRegistry_SkipsDisabled(t *testing.T) {
	settings := testSettings(
		models.ProviderConfig{ID: models.ProviderPersonal, Enabled: false},
		models.ProviderConfig{ID: models.ProviderAdMob, Enabled: true, Priority: 1, Credentials: adMobCreds()},
		models.ProviderConfig{ID: models.ProviderUnity, Enabled: false, Priority: 2, Credentials: unityCreds()},
	)

	r := NewRegistry(&fakeCatalog{}, fakeSigner{}, nil, settings)

	providers := r.Available()
	require.Len(t, providers, 1)
	assert.Equal(t, models.ProviderAdMob, providers[0].ID())
}

func TestRegistry_StableTieBreak(t *testing.T) {
	settings := testSettings(
		models.ProviderConfig{ID: models.ProviderFacebook, Enabled: true, Priority: 1,
			Credentials: map[string]string{"appId": "fb-1", "placementId": "pl-1"}},
		models.ProviderConfig{ID: models.ProviderAdMob, Enabled: true, Priority: 1, Credentials: adMobCreds()},
		models.ProviderConfig{ID: models.ProviderUnity, Enabled: true, Priority: 0, Credentials: unityCreds()},
	)

	r := NewRegistry(&fakeCatalog{}, fakeSigner{}, nil, settings)

	var order []models.ProviderID
	for _, p := range r.Available() {
		order = append(order, p.ID())
	}

	// Unity wins on priority; facebook precedes admob by config order
	assert.Equal(t, []models.ProviderID{
		models.ProviderUnity, models.ProviderFacebook, models.ProviderAdMob,
	}, order)
}

func TestRegistry_Rebuild(t *testing.T) {
	settings := testSettings(
		models.ProviderConfig{ID: models.ProviderAdMob, Enabled: true, Priority: 1, Credentials: adMobCreds()},
	)

	r := NewRegistry(&fakeCatalog{}, fakeSigner{}, nil, settings)
	require.Len(t, r.Available(), 1)

	r.Rebuild(testSettings(
		models.ProviderConfig{ID: models.ProviderAdMob, Enabled: false, Priority: 1, Credentials: adMobCreds()},
		models.ProviderConfig{ID: models.ProviderUnity, Enabled: true, Priority: 2, Credentials: unityCreds()},
	))

	providers := r.Available()
	require.Len(t, providers, 1)
	assert.Equal(t, models.ProviderUnity, providers[0].ID())
}

func TestNetworkProvider_Probe(t *testing.T) {
	cfg := models.ProviderConfig{ID: models.ProviderAdMob, Enabled: true, Credentials: adMobCreds()}

	t.Run("configured without prober fills", func(t *testing.T) {
		p := NewNetworkProvider(cfg, 5, 30, nil)
		ok, err := p.Probe(context.Background(), "user-1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("missing credentials never fill", func(t *testing.T) {
		p := NewNetworkProvider(models.ProviderConfig{ID: models.ProviderAdMob, Enabled: true}, 5, 30, nil)
		ok, err := p.Probe(context.Background(), "user-1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("prober decides fill", func(t *testing.T) {
		prober := &fakeProber{fills: map[models.ProviderID]bool{models.ProviderAdMob: false}}
		p := NewNetworkProvider(cfg, 5, 30, prober)
		ok, err := p.Probe(context.Background(), "user-1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("prober error propagates", func(t *testing.T) {
		prober := &fakeProber{errs: map[models.ProviderID]error{models.ProviderAdMob: errors.New("timeout")}}
		p := NewNetworkProvider(cfg, 5, 30, prober)
		_, err := p.Probe(context.Background(), "user-1")
		assert.Error(t, err)
	})
}

func TestNetworkProvider_Reserve(t *testing.T) {
	cfg := models.ProviderConfig{ID: models.ProviderUnity, Enabled: true, RewardPoints: 7, Credentials: unityCreds()}
	p := NewNetworkProvider(cfg, 7, 30, nil)

	res, err := p.Reserve(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, int64(7), res.RewardPoints)
	assert.Equal(t, 30, res.Duration)
	assert.Contains(t, res.AdRef, "unity:")
	assert.Equal(t, "unity", res.NetworkConfig["type"])
	assert.Equal(t, "game-1", res.NetworkConfig["gameId"])
	assert.Empty(t, res.VideoURL)
}

func TestPersonalProvider(t *testing.T) {
	ad := &models.PersonalAd{
		ID:             "ad-1",
		Title:          "Launch sale",
		AdvertiserName: "Acme",
		WebsiteURL:     "https://acme.example.com",
		VideoKey:       "creatives/ad-1.mp4",
		Duration:       20,
		Status:         models.AdStatusActive,
	}

	p := NewPersonalProvider(&fakeCatalog{ad: ad}, fakeSigner{}, 5, 30)

	ok, err := p.Probe(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, ok)

	res, err := p.Reserve(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "ad-1", res.AdRef)
	assert.Equal(t, int64(5), res.RewardPoints)
	assert.Equal(t, 20, res.Duration)
	assert.Equal(t, "Acme", res.Advertiser)
	assert.Contains(t, res.VideoURL, "creatives/ad-1.mp4")
}

func TestPersonalProvider_NoInventory(t *testing.T) {
	p := NewPersonalProvider(&fakeCatalog{err: database.ErrNotFound}, fakeSigner{}, 5, 30)

	ok, err := p.Probe(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
