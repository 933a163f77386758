// Package universe maintains the in-memory cache of broker-tradable assets.
// The order validator consults it for its tradability gate; the
// ASSET_UNIVERSE_SYNC processor refreshes it.
package universe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"autotrader/internal/core"
)

// DefaultTTL is how long a refresh stays fresh before Stale reports true
const DefaultTTL = 24 * time.Hour

// Universe is a concurrency-safe cache of tradable assets keyed by symbol
type Universe struct {
	mu          sync.RWMutex
	assets      map[string]*core.Asset
	lastRefresh time.Time

	lister core.AssetLister
	clock  core.Clock
	logger core.ILogger
	ttl    time.Duration
}

// NewUniverse creates an empty universe backed by the given asset lister
func NewUniverse(lister core.AssetLister, clock core.Clock, logger core.ILogger, ttl time.Duration) *Universe {
	if clock == nil {
		clock = core.SystemClock{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Universe{
		assets: make(map[string]*core.Asset),
		lister: lister,
		clock:  clock,
		logger: logger.WithField("component", "asset_universe"),
		ttl:    ttl,
	}
}

// Refresh replaces the cache with the broker's current tradable assets.
// Non-tradable assets are dropped so lookups stay a single map hit.
func (u *Universe) Refresh(ctx context.Context, assetClass string) (int, error) {
	assets, err := u.lister.GetAssets(ctx, assetClass)
	if err != nil {
		return 0, fmt.Errorf("failed to list assets: %w", err)
	}

	next := make(map[string]*core.Asset, len(assets))
	for _, asset := range assets {
		if !asset.Tradable {
			continue
		}
		copied := *asset
		next[asset.Symbol] = &copied
	}

	u.mu.Lock()
	u.assets = next
	u.lastRefresh = u.clock.Now()
	u.mu.Unlock()

	u.logger.Info("Tradable universe refreshed",
		"asset_class", assetClass,
		"listed", len(assets),
		"tradable", len(next))
	return len(next), nil
}

// Get returns the asset for symbol, or nil when it is not in the universe
func (u *Universe) Get(symbol string) *core.Asset {
	u.mu.RLock()
	defer u.mu.RUnlock()

	asset, ok := u.assets[symbol]
	if !ok {
		return nil
	}
	copied := *asset
	return &copied
}

// IsTradable reports whether symbol is in the current tradable universe
func (u *Universe) IsTradable(symbol string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.assets[symbol]
	return ok
}

// Count returns the number of tradable symbols cached
func (u *Universe) Count() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.assets)
}

// Stale reports whether the cache has never been refreshed or has outlived its TTL
func (u *Universe) Stale() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.lastRefresh.IsZero() {
		return true
	}
	return u.clock.Now().Sub(u.lastRefresh) > u.ttl
}
