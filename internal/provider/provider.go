package provider

import (
	"context"
	"time"

	"github.com/toop9472-lang/Sgr2040-sub001/pkg/models"
)

// Reservation is a concrete ad held for one session. AdRef identifies
// the creative (personal ads) or the network placement instance.
type Reservation struct {
	AdRef         string
	RewardPoints  int64
	Duration      int // seconds
	Title         string
	Advertiser    string
	VideoURL      string
	WebsiteURL    string
	NetworkConfig map[string]string
}

// Provider is a single ad source in the mediation waterfall. Probe
// answers "is there an ad right now" cheaply; Reserve commits to a
// concrete creative and its reward snapshot. Probe and Reserve errors
// are treated as no-fill by the selector, never surfaced to clients.
type Provider interface {
	ID() models.ProviderID
	Probe(ctx context.Context, userID string) (bool, error)
	Reserve(ctx context.Context, userID string) (*Reservation, error)
}

// AdCatalog supplies advertiser creatives for the personal provider.
type AdCatalog interface {
	NextPersonalAd(ctx context.Context, userID string, since time.Time) (*models.PersonalAd, error)
}

// URLSigner issues time-limited playback URLs for stored creatives.
type URLSigner interface {
	PresignedURL(ctx context.Context, key string) (string, error)
}

// FillProber asks an external ad-network collaborator whether it can
// fill for this user right now. A nil prober means "assume fill when
// configured", since the client SDK performs the real load.
type FillProber interface {
	HasFill(ctx context.Context, provider models.ProviderID, userID string) (bool, error)
}
