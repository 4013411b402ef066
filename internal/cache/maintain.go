package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/vsr83/WebGLGlobeTest/internal/metrics"
	"github.com/vsr83/WebGLGlobeTest/internal/propagation"
)

// Start fills the window once a catalog is available, then on every step
// extends the leading edge, evicts behind the buffer and rebuilds after a
// catalog reload. Blocks until ctx is cancelled.
func (c *KeyframeCache) Start(ctx context.Context) {
	if !c.waitForCatalog(ctx) {
		return
	}

	c.warmup(ctx)

	ticker := time.NewTicker(c.config.Step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("position window stopped")
			return
		case <-ticker.C:
			c.tick(ctx, time.Now())
		}
	}
}

// waitForCatalog polls the store every second. Returns false if ctx is
// cancelled first.
func (c *KeyframeCache) waitForCatalog(ctx context.Context) bool {
	if c.store.Get() != nil {
		return true
	}

	c.logger.Info("position window waiting for catalog")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if c.store.Get() != nil {
				return true
			}
		}
	}
}

// warmup generates the whole window, trailing buffer included, so trails
// are available from the first frame.
func (c *KeyframeCache) warmup(ctx context.Context) {
	set, err := c.prop.Current()
	if err != nil {
		c.logger.Warn("position window warmup skipped", "error", err)
		return
	}

	now := time.Now()
	start := time.Now()
	steps, err := c.fill(ctx, set, c.windowStart(now), c.RoundToStep(now.Add(c.config.Horizon)))
	if err != nil {
		c.logger.Warn("position window warmup cancelled", "error", err)
		return
	}
	c.swap(steps, set)

	c.logger.Info("position window warm",
		"steps", len(steps),
		"objects", set.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// tick runs one iteration of the maintenance loop at now.
func (c *KeyframeCache) tick(ctx context.Context, now time.Time) {
	if c.catalogChanged() {
		c.rebuild(ctx, now)
		return
	}

	c.extend(ctx, now)
	c.evictBefore(now.Add(-c.config.Buffer))
}

// extend generates every step missing between the newest cached step and
// now+horizon. A slow tick is caught up on the next one.
func (c *KeyframeCache) extend(ctx context.Context, now time.Time) {
	c.mu.RLock()
	set := c.set
	c.mu.RUnlock()
	if set == nil {
		return
	}

	edge := c.RoundToStep(now.Add(c.config.Horizon))
	from := c.windowStart(now)
	if newest := c.newest(); !newest.Before(from) {
		from = newest.Add(c.config.Step)
	}

	for at := from; !at.After(edge); at = at.Add(c.config.Step) {
		start := time.Now()
		p, err := c.generate(ctx, set, at)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("leading edge generation failed",
				"timestamp", at.Format(time.RFC3339),
				"error", err,
			)
			metrics.IncCacheRegenerationErrors()
			continue
		}
		if !c.insert(at, set, p) {
			return
		}
		metrics.ObserveCacheRegenerationDuration(time.Since(start))
	}
}

// fill generates the steps in [from, to] for one object set. Only
// cancellation is an error; steps that fail otherwise are left out.
func (c *KeyframeCache) fill(ctx context.Context, set *propagation.ObjectSet, from, to time.Time) (map[time.Time]positions, error) {
	n := int(to.Sub(from)/c.config.Step) + 1
	if n < 0 {
		n = 0
	}
	steps := make(map[time.Time]positions, n)
	for at := from; !at.After(to); at = at.Add(c.config.Step) {
		p, err := c.generate(ctx, set, at)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			c.logger.Warn("position generation failed",
				"timestamp", at.Format(time.RFC3339),
				"error", err,
			)
			metrics.IncCacheRegenerationErrors()
			continue
		}
		steps[at] = p
	}
	return steps, nil
}

func (c *KeyframeCache) generate(ctx context.Context, set *propagation.ObjectSet, at time.Time) (positions, error) {
	kf, err := c.prop.PropagateSet(ctx, set, at)
	if err != nil {
		return nil, fmt.Errorf("positions at %s: %w", at.Format(time.RFC3339), err)
	}
	return compact(kf), nil
}
