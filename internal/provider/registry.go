package provider

import (
	"sort"
	"sync"

	"github.com/toop9472-lang/Sgr2040-sub001/pkg/models"
)

// Registry holds the ordered mediation waterfall. The order is:
// personal ads first when enabled, then networks by ascending
// priority; equal priorities keep their configuration order. The
// provider list is rebuilt atomically whenever settings change.
type Registry struct {
	catalog AdCatalog
	signer  URLSigner
	prober  FillProber

	mu        sync.RWMutex
	providers []Provider
}

// NewRegistry creates a registry and builds the initial waterfall
func NewRegistry(catalog AdCatalog, signer URLSigner, prober FillProber, settings *models.AdSettings) *Registry {
	r := &Registry{catalog: catalog, signer: signer, prober: prober}
	r.Rebuild(settings)
	return r
}

// Rebuild swaps in a new waterfall derived from the given settings
func (r *Registry) Rebuild(settings *models.AdSettings) {
	var personal Provider
	var networks []Provider

	for _, cfg := range settings.Providers {
		if !cfg.Enabled {
			continue
		}

		switch cfg.ID {
		case models.ProviderPersonal:
			personal = NewPersonalProvider(r.catalog, r.signer,
				resolveReward(cfg, settings), resolveDuration(cfg, settings))
		default:
			networks = append(networks, NewNetworkProvider(cfg,
				resolveReward(cfg, settings), resolveDuration(cfg, settings), r.prober))
		}
	}

	// Stable sort keeps configuration order for equal priorities
	sort.SliceStable(networks, func(i, j int) bool {
		return priorityOf(networks[i], settings) < priorityOf(networks[j], settings)
	})

	providers := make([]Provider, 0, len(networks)+1)
	if personal != nil {
		providers = append(providers, personal)
	}
	providers = append(providers, networks...)

	r.mu.Lock()
	r.providers = providers
	r.mu.Unlock()
}

// Available returns the current waterfall, in mediation order
func (r *Registry) Available() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

func priorityOf(p Provider, settings *models.AdSettings) int {
	if cfg := settings.Provider(p.ID()); cfg != nil {
		return cfg.Priority
	}
	return 0
}

// resolveReward applies the per-network override over the flat default
func resolveReward(cfg models.ProviderConfig, settings *models.AdSettings) int64 {
	if cfg.RewardPoints > 0 {
		return cfg.RewardPoints
	}
	return settings.RewardPoints
}

// resolveDuration clamps the default ad duration to the provider's
// content-policy bounds when they are set
func resolveDuration(cfg models.ProviderConfig, settings *models.AdSettings) int {
	d := settings.DefaultDuration
	if cfg.MinDuration > 0 && d < cfg.MinDuration {
		d = cfg.MinDuration
	}
	if cfg.MaxDuration > 0 && d > cfg.MaxDuration {
		d = cfg.MaxDuration
	}
	return d
}
