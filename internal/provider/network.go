package provider

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/toop9472-lang/Sgr2040-sub001/pkg/models"
)

// requiredCredentials lists the credential keys a network needs before
// it can serve; a network missing any of them never fills.
var requiredCredentials = map[models.ProviderID][]string{
	models.ProviderAdMob:    {"appId", "unitId"},
	models.ProviderUnity:    {"gameId", "placementId"},
	models.ProviderFacebook: {"appId", "placementId"},
	models.ProviderAppLovin: {"sdkKey", "unitId"},
}

// NetworkProvider mediates one third-party ad network. The network's
// SDK runs on the client; server-side the provider checks configured
// credentials, optionally consults an external fill probe, and hands
// the client the SDK config it needs to load the ad.
type NetworkProvider struct {
	cfg      models.ProviderConfig
	reward   int64
	duration int
	prober   FillProber
}

// NewNetworkProvider builds a provider for one configured network.
// reward and duration are the resolved values for this settings
// snapshot (per-network override or the flat default).
func NewNetworkProvider(cfg models.ProviderConfig, reward int64, duration int, prober FillProber) *NetworkProvider {
	return &NetworkProvider{cfg: cfg, reward: reward, duration: duration, prober: prober}
}

// ID returns the network identifier
func (p *NetworkProvider) ID() models.ProviderID {
	return p.cfg.ID
}

// Probe reports whether the network can fill for this user
func (p *NetworkProvider) Probe(ctx context.Context, userID string) (bool, error) {
	if !p.configured() {
		return false, nil
	}
	if p.prober != nil {
		return p.prober.HasFill(ctx, p.cfg.ID, userID)
	}
	return true, nil
}

// Reserve hands out the client SDK config for one rewarded load
func (p *NetworkProvider) Reserve(ctx context.Context, userID string) (*Reservation, error) {
	if !p.configured() {
		return nil, fmt.Errorf("provider %s not configured", p.cfg.ID)
	}

	network := map[string]string{"type": string(p.cfg.ID)}
	for k, v := range p.cfg.Credentials {
		network[k] = v
	}

	return &Reservation{
		AdRef:         fmt.Sprintf("%s:%s", p.cfg.ID, uuid.New().String()),
		RewardPoints:  p.reward,
		Duration:      p.duration,
		NetworkConfig: network,
	}, nil
}

func (p *NetworkProvider) configured() bool {
	for _, key := range requiredCredentials[p.cfg.ID] {
		if p.cfg.Credentials[key] == "" {
			return false
		}
	}
	return true
}
