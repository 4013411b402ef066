// Package cache keeps a rolling window of Earth-fixed object positions at a
// fixed step, covering [now-buffer, now+horizon]. Streams read trails from
// the window so past positions are never propagated on the request path.
//
// Start owns generation; every other method only reads.
package cache

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vsr83/WebGLGlobeTest/internal/catalog"
	"github.com/vsr83/WebGLGlobeTest/internal/metrics"
	"github.com/vsr83/WebGLGlobeTest/internal/propagation"
)

// pointBytes approximates one cached position: an ID and three float64s.
const pointBytes = 32

// Config holds cache configuration.
type Config struct {
	Step    time.Duration // spacing of cached positions
	Horizon time.Duration // generated ahead of now
	Buffer  time.Duration // kept behind now for trails
}

// positions is one cached step: Earth-fixed positions in km by object ID.
// Objects that failed to propagate have no entry. Never modified once stored.
type positions map[int][3]float64

func compact(kf *propagation.Keyframe) positions {
	p := make(positions, len(kf.Objects))
	for _, o := range kf.Objects {
		p[o.ID] = o.PositionECF
	}
	return p
}

// KeyframeCache is the position window. Safe for concurrent use.
type KeyframeCache struct {
	mu    sync.RWMutex
	steps map[time.Time]positions
	// set is the object set the steps were generated from.
	set *propagation.ObjectSet

	config Config
	prop   *propagation.Propagator
	store  *catalog.Store
	logger *slog.Logger

	rebuilding atomic.Bool
}

// NewKeyframeCache creates an empty window. A non-positive step falls back
// to the propagation step.
func NewKeyframeCache(config Config, prop *propagation.Propagator, store *catalog.Store, logger *slog.Logger) *KeyframeCache {
	if config.Step <= 0 {
		config.Step = prop.Config().Step
	}
	if config.Step <= 0 {
		config.Step = 5 * time.Second
	}

	logger.Info("position window configured",
		"step_seconds", config.Step.Seconds(),
		"horizon_seconds", config.Horizon.Seconds(),
		"buffer_seconds", config.Buffer.Seconds(),
	)

	return &KeyframeCache{
		steps:  make(map[time.Time]positions),
		config: config,
		prop:   prop,
		store:  store,
		logger: logger,
	}
}

// RoundToStep rounds t down to a step boundary, in UTC.
func (c *KeyframeCache) RoundToStep(t time.Time) time.Time {
	return t.UTC().Truncate(c.config.Step)
}

// windowStart is the first step boundary not older than now-buffer.
func (c *KeyframeCache) windowStart(now time.Time) time.Time {
	cutoff := now.Add(-c.config.Buffer)
	start := c.RoundToStep(cutoff)
	if start.Before(cutoff) {
		start = start.Add(c.config.Step)
	}
	return start
}

// Positions returns the cached Earth-fixed positions at t rounded down to
// the step. The map must not be modified.
func (c *KeyframeCache) Positions(t time.Time) (map[int][3]float64, bool) {
	c.mu.RLock()
	p, ok := c.steps[c.RoundToStep(t)]
	c.mu.RUnlock()

	if ok {
		metrics.IncCacheHits()
	} else {
		metrics.IncCacheMisses()
	}
	return p, ok
}

// Trails returns, per object, up to count cached Earth-fixed positions
// ending at now, oldest first. Steps missing from the window are skipped.
func (c *KeyframeCache) Trails(now time.Time, count int) map[int][][3]float64 {
	if count <= 0 {
		return nil
	}
	end := c.RoundToStep(now)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var trails map[int][][3]float64
	for i := count - 1; i >= 0; i-- {
		p, ok := c.steps[end.Add(-time.Duration(i)*c.config.Step)]
		if !ok {
			continue
		}
		if trails == nil {
			trails = make(map[int][][3]float64, len(p))
		}
		for id, pos := range p {
			trails[id] = append(trails[id], pos)
		}
	}

	if trails == nil {
		metrics.IncCacheMisses()
	} else {
		metrics.IncCacheHits()
	}
	return trails
}

// Latest returns the newest cached step that is not after now.
func (c *KeyframeCache) Latest(now time.Time) (time.Time, bool) {
	var latest time.Time
	end := c.RoundToStep(now)

	c.mu.RLock()
	defer c.mu.RUnlock()
	for at := range c.steps {
		if !at.After(end) && at.After(latest) {
			latest = at
		}
	}
	return latest, !latest.IsZero()
}

// newest returns the last generated step, zero when empty.
func (c *KeyframeCache) newest() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var newest time.Time
	for at := range c.steps {
		if at.After(newest) {
			newest = at
		}
	}
	return newest
}

// insert adds one generated step. Steps generated from a set other than
// the window's are dropped.
func (c *KeyframeCache) insert(at time.Time, set *propagation.ObjectSet, p positions) bool {
	c.mu.Lock()
	if c.set != set {
		c.mu.Unlock()
		return false
	}
	c.steps[at] = p
	c.mu.Unlock()
	c.publish()
	return true
}

// swap replaces the whole window with steps generated from set.
func (c *KeyframeCache) swap(steps map[time.Time]positions, set *propagation.ObjectSet) {
	c.mu.Lock()
	c.steps = steps
	c.set = set
	c.mu.Unlock()
	c.publish()
}

// evictBefore drops steps older than cutoff.
func (c *KeyframeCache) evictBefore(cutoff time.Time) int {
	var removed int
	c.mu.Lock()
	for at := range c.steps {
		if at.Before(cutoff) {
			delete(c.steps, at)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		metrics.AddCacheEvictions(removed)
		c.publish()
		c.logger.Debug("positions evicted", "steps", removed, "cutoff", cutoff.UTC().Format(time.RFC3339))
	}
	return removed
}

// Stats describes the window for the stats endpoint and readiness.
type Stats struct {
	Entries         int       `json:"entries"`
	Objects         int       `json:"objects"`
	Points          int       `json:"points"`
	SizeBytes       int64     `json:"size_bytes"`
	Oldest          time.Time `json:"oldest"`
	Newest          time.Time `json:"newest"`
	StepSeconds     float64   `json:"step_seconds"`
	CatalogLoadedAt time.Time `json:"catalog_loaded_at"`
	Rebuilding      bool      `json:"rebuilding"`
}

// Stats returns current window statistics.
func (c *KeyframeCache) Stats() Stats {
	c.mu.RLock()
	s := Stats{
		Entries:     len(c.steps),
		StepSeconds: c.config.Step.Seconds(),
		Rebuilding:  c.rebuilding.Load(),
	}
	if c.set != nil {
		s.Objects = c.set.Len()
		s.CatalogLoadedAt = c.set.LoadedAt
	}
	for at, p := range c.steps {
		s.Points += len(p)
		if s.Oldest.IsZero() || at.Before(s.Oldest) {
			s.Oldest = at
		}
		if at.After(s.Newest) {
			s.Newest = at
		}
	}
	c.mu.RUnlock()

	s.SizeBytes = int64(s.Points) * pointBytes
	return s
}

func (c *KeyframeCache) publish() {
	s := c.Stats()
	metrics.SetCacheEntries(s.Entries)
	metrics.SetCacheSizeBytes(s.SizeBytes)
}
