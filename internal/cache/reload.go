package cache

import (
	"context"
	"time"

	"github.com/vsr83/WebGLGlobeTest/internal/metrics"
)

// catalogChanged reports whether the store holds a catalog other than the
// one the window was generated from.
func (c *KeyframeCache) catalogChanged() bool {
	cat := c.store.Get()
	if cat == nil {
		return false
	}
	c.mu.RLock()
	set := c.set
	c.mu.RUnlock()
	return set == nil || !cat.LoadedAt.Equal(set.LoadedAt)
}

// rebuild regenerates the window, trailing buffer included, for the
// catalog now in the store. The object set is pinned for the whole run so
// one window never mixes catalogs; a reload during the run is picked up by
// the next tick. Reads keep hitting the old window until the swap.
func (c *KeyframeCache) rebuild(ctx context.Context, now time.Time) {
	set, err := c.prop.Current()
	if err != nil {
		return
	}

	c.mu.RLock()
	var oldLoadedAt time.Time
	if c.set != nil {
		oldLoadedAt = c.set.LoadedAt
	}
	c.mu.RUnlock()

	c.logger.Info("catalog reloaded, rebuilding position window",
		"old_catalog_loaded_at", oldLoadedAt.UTC().Format(time.RFC3339),
		"new_catalog_loaded_at", set.LoadedAt.UTC().Format(time.RFC3339),
		"objects", set.Len(),
	)

	c.rebuilding.Store(true)
	metrics.SetCacheRebuildActive(true)
	defer func() {
		c.rebuilding.Store(false)
		metrics.SetCacheRebuildActive(false)
	}()

	start := time.Now()
	steps, err := c.fill(ctx, set, c.windowStart(now), c.RoundToStep(now.Add(c.config.Horizon)))
	if err != nil {
		c.logger.Warn("position window rebuild cancelled", "error", err)
		return
	}
	c.swap(steps, set)

	duration := time.Since(start)
	c.logger.Info("position window rebuilt",
		"steps", len(steps),
		"duration_ms", duration.Milliseconds(),
	)
	metrics.ObserveCacheRegenerationDuration(duration)
}
