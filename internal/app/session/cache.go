// Package session owns the live-view path: relay-config caching, the
// coordinator state machine and the quality sampler.
package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/lchou/Shopwatch/internal/core"
	"github.com/lchou/Shopwatch/internal/domain"
)

// ConfigCache caches the short-lived relay configuration. Any caller may
// invalidate, any caller may repopulate; repopulation is not guarded against
// concurrent fetches because the fetch is cheap and staleness is the real
// risk, not duplication.
type ConfigCache struct {
	fetcher core.ConfigFetcher

	mu     sync.Mutex
	cached *domain.RelayConfig
}

func NewConfigCache(fetcher core.ConfigFetcher) *ConfigCache {
	return &ConfigCache{fetcher: fetcher}
}

// Get returns the cached config, fetching it on a miss.
func (c *ConfigCache) Get(ctx context.Context) (domain.RelayConfig, error) {
	c.mu.Lock()
	if c.cached != nil {
		cfg := *c.cached
		c.mu.Unlock()
		return cfg, nil
	}
	c.mu.Unlock()

	cfg, err := c.fetcher.RelayConfig(ctx)
	if err != nil {
		return domain.RelayConfig{}, err
	}

	c.mu.Lock()
	c.cached = &cfg
	c.mu.Unlock()

	log.Debug().Str("module", "session").Int("ice_servers", len(cfg.ICEServers)).Msg("relay config cached")
	return cfg, nil
}

// Invalidate drops the cached config. Credentials inside it are short-lived,
// so every reconnect and camera switch invalidates before fetching again.
func (c *ConfigCache) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}
