package settings

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/toop9472-lang/Sgr2040-sub001/internal/database"
	"github.com/toop9472-lang/Sgr2040-sub001/pkg/models"
)

// Repository persists the admin-edited settings across restarts.
type Repository interface {
	GetAdSettings(ctx context.Context) (*models.AdSettings, error)
	SaveAdSettings(ctx context.Context, settings *models.AdSettings) error
}

// Store holds the live rewarded-ads settings as an immutable snapshot.
// Reads are lock-free; updates (admin API or config-file reload) swap
// the whole snapshot so the mediation path never sees a partial
// config. Subscribers are notified after each swap so the provider
// registry can rebuild its waterfall.
type Store struct {
	repo        Repository
	current     atomic.Pointer[models.AdSettings]
	subscribers []func(*models.AdSettings)
}

// NewStore builds a store seeded from the config file, preferring a
// previously persisted admin version when one exists.
func NewStore(ctx context.Context, repo Repository, fromConfig *models.AdSettings) (*Store, error) {
	s := &Store{repo: repo}

	initial := fromConfig
	if repo != nil {
		persisted, err := repo.GetAdSettings(ctx)
		if err == nil {
			initial = persisted
		} else if !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
	}

	s.current.Store(initial)
	return s, nil
}

// Current returns the live settings snapshot. Callers must not mutate it.
func (s *Store) Current() *models.AdSettings {
	return s.current.Load()
}

// Subscribe registers a callback invoked after every settings swap.
// Must be called during startup, before concurrent updates begin.
func (s *Store) Subscribe(fn func(*models.AdSettings)) {
	s.subscribers = append(s.subscribers, fn)
	fn(s.Current())
}

// Update applies an admin edit: masked credential values are replaced
// with the currently stored ones, the result is persisted and the
// snapshot swapped.
func (s *Store) Update(ctx context.Context, updated *models.AdSettings) (*models.AdSettings, error) {
	merged := mergeMasked(s.Current(), updated)
	merged.UpdatedAt = time.Now().UTC()

	if s.repo != nil {
		if err := s.repo.SaveAdSettings(ctx, merged); err != nil {
			return nil, err
		}
	}

	s.swap(merged)
	return merged, nil
}

// Reload swaps in settings re-read from the config file. Persisted
// admin edits win over file contents, so a file touch only applies
// when no admin version exists.
func (s *Store) Reload(ctx context.Context, fromConfig *models.AdSettings) {
	if s.repo != nil {
		if _, err := s.repo.GetAdSettings(ctx); err == nil {
			return
		}
	}
	s.swap(fromConfig)
}

func (s *Store) swap(settings *models.AdSettings) {
	s.current.Store(settings)
	for _, fn := range s.subscribers {
		fn(settings)
	}
}

// Masked returns a deep copy safe to show to admins: credential
// values keep only their last four characters.
func Masked(settings *models.AdSettings) *models.AdSettings {
	out := *settings
	out.Providers = make([]models.ProviderConfig, len(settings.Providers))

	for i, p := range settings.Providers {
		out.Providers[i] = p
		if len(p.Credentials) == 0 {
			continue
		}
		masked := make(map[string]string, len(p.Credentials))
		for k, v := range p.Credentials {
			masked[k] = maskValue(v)
		}
		out.Providers[i].Credentials = masked
	}

	return &out
}

func maskValue(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}

// mergeMasked keeps the stored credential wherever the update still
// carries a masked placeholder, so an admin round-tripping the masked
// form never wipes real keys.
func mergeMasked(current, updated *models.AdSettings) *models.AdSettings {
	out := *updated
	out.Providers = make([]models.ProviderConfig, len(updated.Providers))

	for i, p := range updated.Providers {
		out.Providers[i] = p
		if len(p.Credentials) == 0 {
			continue
		}

		var stored map[string]string
		if cur := current.Provider(p.ID); cur != nil {
			stored = cur.Credentials
		}

		creds := make(map[string]string, len(p.Credentials))
		for k, v := range p.Credentials {
			if strings.HasPrefix(v, "****") {
				creds[k] = stored[k]
			} else {
				creds[k] = v
			}
		}
		out.Providers[i].Credentials = creds
	}

	return &out
}
