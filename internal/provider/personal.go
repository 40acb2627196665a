package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/toop9472-lang/Sgr2040-sub001/internal/database"
	"github.com/toop9472-lang/Sgr2040-sub001/pkg/models"
)

// personalRotation is how long a served creative is held back from the
// same user before it can repeat.
const personalRotation = 24 * time.Hour

// PersonalProvider serves advertiser-owned creatives from our own
// inventory. Advertisers pay for priority, so the registry always
// places this provider first when enabled.
type PersonalProvider struct {
	catalog  AdCatalog
	signer   URLSigner
	reward   int64
	duration int
}

// NewPersonalProvider builds the personal-ads source for one settings
// snapshot. duration is the fallback for creatives without their own.
func NewPersonalProvider(catalog AdCatalog, signer URLSigner, reward int64, duration int) *PersonalProvider {
	return &PersonalProvider{catalog: catalog, signer: signer, reward: reward, duration: duration}
}

// ID returns the personal provider identifier
func (p *PersonalProvider) ID() models.ProviderID {
	return models.ProviderPersonal
}

// Probe checks whether any active creative is available for this user
func (p *PersonalProvider) Probe(ctx context.Context, userID string) (bool, error) {
	_, err := p.catalog.NextPersonalAd(ctx, userID, time.Now().Add(-personalRotation))
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Reserve picks the next creative for the user and signs its playback URL
func (p *PersonalProvider) Reserve(ctx context.Context, userID string) (*Reservation, error) {
	ad, err := p.catalog.NextPersonalAd(ctx, userID, time.Now().Add(-personalRotation))
	if err != nil {
		return nil, fmt.Errorf("failed to pick personal ad: %w", err)
	}

	videoURL, err := p.signer.PresignedURL(ctx, ad.VideoKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign creative URL: %w", err)
	}

	duration := ad.Duration
	if duration <= 0 {
		duration = p.duration
	}

	return &Reservation{
		AdRef:        ad.ID,
		RewardPoints: p.reward,
		Duration:     duration,
		Title:        ad.Title,
		Advertiser:   ad.AdvertiserName,
		VideoURL:     videoURL,
		WebsiteURL:   ad.WebsiteURL,
	}, nil
}
