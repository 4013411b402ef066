package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/vsr83/WebGLGlobeTest/internal/metrics"
	"github.com/vsr83/WebGLGlobeTest/internal/orbit"
	"gonum.org/v1/gonum/spatial/r3"
)

// Default object used when nothing else is configured.
const (
	defaultName  = "ISS (ZARYA)"
	defaultLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	defaultLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

// ErrEmpty is returned when no source produced a usable object.
var ErrEmpty = errors.New("catalog: no usable objects")

// Source describes where tracked objects come from.
type Source struct {
	Objects   []ObjectSpec `mapstructure:"objects"`
	TLEFile   string       `mapstructure:"tle_file"`
	TLEURL    string       `mapstructure:"tle_url"`
	ExtraURLs []string     `mapstructure:"tle_extra_urls"`
	CacheDir  string       `mapstructure:"cache_dir"`
	// Mu is the gravitational parameter in km³/s². Zero means EarthMu.
	Mu float64 `mapstructure:"mu"`
}

// Load builds the catalog from every configured source. Objects with a
// duplicate ID are skipped with a warning; the first occurrence wins. With
// no configured source, a built-in ISS element set is used.
func Load(ctx context.Context, src Source, logger *slog.Logger) (*Catalog, error) {
	mu := src.Mu
	if mu <= 0 {
		mu = orbit.EarthMu
	}

	var (
		objects []Object
		sources []string
		seen    = make(map[int]bool)
	)
	add := func(o Object) {
		if seen[o.ID] {
			logger.Warn("skipping duplicate object id", "id", o.ID, "name", o.Name)
			return
		}
		seen[o.ID] = true
		objects = append(objects, o)
	}

	for _, spec := range src.Objects {
		o, err := objectFromSpec(spec, mu)
		if err != nil {
			logger.Warn("skipping configured object", "id", spec.ID, "name", spec.Name, "error", err)
			continue
		}
		add(o)
	}
	if len(src.Objects) > 0 {
		sources = append(sources, "config")
	}

	if src.TLEFile != "" {
		data, err := os.ReadFile(src.TLEFile)
		if err != nil {
			return nil, fmt.Errorf("reading TLE file: %w", err)
		}
		for _, o := range objectsFromTLE(data, mu, logger) {
			add(o)
		}
		sources = append(sources, src.TLEFile)
	}

	if src.TLEURL != "" {
		data, err := fetchWithFallback(ctx, src, logger)
		if err != nil {
			return nil, err
		}
		for _, o := range objectsFromTLE(data, mu, logger) {
			add(o)
		}
		sources = append(sources, src.TLEURL)
	}

	if len(sources) == 0 {
		entry, err := parseEntry(defaultName, defaultLine1, defaultLine2)
		if err != nil {
			return nil, fmt.Errorf("default element set: %w", err)
		}
		o, err := objectFromTLE(entry, mu)
		if err != nil {
			return nil, fmt.Errorf("default element set: %w", err)
		}
		add(o)
		sources = append(sources, "builtin")
	}

	if len(objects) == 0 {
		return nil, ErrEmpty
	}

	metrics.SetCatalogObjects(len(objects))
	logger.Info("catalog loaded", "objects", len(objects), "source", strings.Join(sources, ","))

	return &Catalog{
		Source:   strings.Join(sources, ","),
		LoadedAt: time.Now(),
		Objects:  objects,
	}, nil
}

// staleCopyAge is the age past which a cached copy is still used but flagged.
const staleCopyAge = 7 * 24 * time.Hour

// fetchWithFallback fetches the remote element sets and stores them in the
// disk cache. When the fetch fails, the newest cached copy of the same URL
// set is used instead.
func fetchWithFallback(ctx context.Context, src Source, logger *slog.Logger) ([]byte, error) {
	fetcher := NewFetcher(src.TLEURL, logger, src.ExtraURLs...)
	source := strings.Join(append([]string{src.TLEURL}, src.ExtraURLs...), " ")
	var cache *DiskCache
	if src.CacheDir != "" {
		cache = NewDiskCache(src.CacheDir, 5, logger)
	}

	data, err := fetcher.Fetch(ctx)
	if err == nil {
		if cache != nil {
			if n, werr := cache.Save(source, data, time.Now()); werr != nil {
				logger.Warn("TLE download not cached", "dir", src.CacheDir, "error", werr)
			} else {
				logger.Debug("TLE download cached", "dir", src.CacheDir, "entries", n)
			}
		}
		return data, nil
	}
	if cache == nil {
		return nil, fmt.Errorf("fetching %s: %w", src.TLEURL, err)
	}

	logger.Warn("TLE fetch failed, using disk cache", "source", src.TLEURL, "error", err)
	cached, cerr := cache.Latest(source)
	if cerr != nil {
		return nil, fmt.Errorf("fetching %s: %w (cache: %v)", src.TLEURL, err, cerr)
	}
	age := time.Since(cached.FetchedAt)
	if age > staleCopyAge {
		logger.Warn("cached element sets are stale", "fetched_at", cached.FetchedAt, "age_hours", int(age.Hours()))
	}
	logger.Info("loaded TLE data from disk cache",
		"fetched_at", cached.FetchedAt,
		"entries", cached.Entries,
		"bytes", len(cached.Data),
	)
	return cached.Data, nil
}

func objectsFromTLE(data []byte, mu float64, logger *slog.Logger) []Object {
	entries, err := ParseTLE(bytes.NewReader(data), logger)
	if err != nil {
		logger.Warn("failed to parse TLE data", "error", err)
		return nil
	}
	objects := make([]Object, 0, len(entries))
	for _, e := range entries {
		o, err := objectFromTLE(e, mu)
		if err != nil {
			logger.Warn("skipping TLE object", "id", e.ID, "name", e.Name, "error", err)
			continue
		}
		objects = append(objects, o)
	}
	return objects
}

func objectFromTLE(e TLEEntry, mu float64) (Object, error) {
	state, err := StateFromTLE(e)
	if err != nil {
		return Object{}, err
	}
	return Object{ID: e.ID, Name: e.Name, Source: "tle", State: state, Mu: mu}, nil
}

func objectFromSpec(spec ObjectSpec, mu float64) (Object, error) {
	if spec.TLE1 != "" || spec.TLE2 != "" {
		entry, err := parseEntry(spec.Name, spec.TLE1, spec.TLE2)
		if err != nil {
			return Object{}, err
		}
		if spec.ID != 0 {
			entry.ID = spec.ID
		}
		return objectFromTLE(entry, mu)
	}

	if len(spec.Position) != 3 || len(spec.Velocity) != 3 {
		return Object{}, fmt.Errorf("position and velocity need 3 components, got %d and %d",
			len(spec.Position), len(spec.Velocity))
	}
	epoch, err := time.Parse(time.RFC3339, spec.Epoch)
	if err != nil {
		return Object{}, fmt.Errorf("invalid epoch %q: %w", spec.Epoch, err)
	}
	state := orbit.StateVector{
		R:     r3.Vec{X: spec.Position[0], Y: spec.Position[1], Z: spec.Position[2]},
		V:     r3.Vec{X: spec.Velocity[0], Y: spec.Velocity[1], Z: spec.Velocity[2]},
		Epoch: epoch.UTC(),
	}
	if err := checkState(state); err != nil {
		return Object{}, err
	}
	return Object{ID: spec.ID, Name: spec.Name, Source: "state", State: state, Mu: mu}, nil
}
