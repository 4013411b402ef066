package propagation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vsr83/WebGLGlobeTest/internal/catalog"
	"github.com/vsr83/WebGLGlobeTest/internal/metrics"
	"github.com/vsr83/WebGLGlobeTest/internal/observability"
	"github.com/vsr83/WebGLGlobeTest/internal/orbit"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNoCatalog is returned when the store has no catalog loaded.
	ErrNoCatalog = errors.New("no catalog loaded")
	// ErrUnknownObject is returned for IDs not in the catalog.
	ErrUnknownObject = errors.New("unknown object")
)

// ObjectSet is the Kepler propagators of one catalog. Immutable after
// construction; safe for concurrent reads.
type ObjectSet struct {
	props    []*KeplerPropagator
	byID     map[int]*KeplerPropagator
	LoadedAt time.Time
}

// Len returns the number of propagatable objects.
func (s *ObjectSet) Len() int { return len(s.props) }

// Propagator orchestrates keyframe generation for the tracked objects.
type Propagator struct {
	store  *catalog.Store
	pool   *WorkerPool
	config PropConfig
	logger *slog.Logger
	set    atomic.Pointer[ObjectSet]
	setMu  sync.Mutex // serializes set rebuilds
}

// NewPropagator creates a new propagation orchestrator.
func NewPropagator(store *catalog.Store, config PropConfig, logger *slog.Logger) *Propagator {
	return &Propagator{
		store:  store,
		pool:   NewWorkerPool(config.Workers, logger),
		config: config,
		logger: logger,
	}
}

// Config returns the propagation configuration.
func (p *Propagator) Config() PropConfig {
	return p.config
}

// objectSet returns the propagators for the given catalog, deriving them
// again if the catalog has changed (double-checked locking).
func (p *Propagator) objectSet(c *catalog.Catalog) *ObjectSet {
	if s := p.set.Load(); s != nil && s.LoadedAt.Equal(c.LoadedAt) {
		return s
	}

	p.setMu.Lock()
	defer p.setMu.Unlock()

	if s := p.set.Load(); s != nil && s.LoadedAt.Equal(c.LoadedAt) {
		return s
	}

	s := &ObjectSet{
		props:    make([]*KeplerPropagator, 0, len(c.Objects)),
		byID:     make(map[int]*KeplerPropagator, len(c.Objects)),
		LoadedAt: c.LoadedAt,
	}
	var skipped int
	for _, o := range c.Objects {
		if _, ok := s.byID[o.ID]; ok {
			continue
		}
		kp, err := NewKeplerPropagator(o)
		if err != nil {
			p.logger.Warn("orbit elements init failed", "object_id", o.ID, "error", err)
			skipped++
			continue
		}
		s.props = append(s.props, kp)
		s.byID[o.ID] = kp
	}

	p.logger.Info("kepler propagators derived",
		"objects", len(s.props),
		"skipped", skipped,
		"catalog_loaded_at", c.LoadedAt.UTC().Format(time.RFC3339),
	)
	p.set.Store(s)
	return s
}

// Current returns the object set of the catalog in the store. Callers that
// generate several keyframes from one catalog hold on to the returned set.
func (p *Propagator) Current() (*ObjectSet, error) {
	c := p.store.Get()
	if c == nil {
		return nil, ErrNoCatalog
	}
	return p.objectSet(c), nil
}

// Propagators returns the propagators of the current catalog ordered as
// in the catalog.
func (p *Propagator) Propagators() ([]*KeplerPropagator, error) {
	s, err := p.Current()
	if err != nil {
		return nil, err
	}
	return s.props, nil
}

// Lookup returns the propagator of one object.
func (p *Propagator) Lookup(id int) (*KeplerPropagator, error) {
	s, err := p.Current()
	if err != nil {
		return nil, err
	}
	kp, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownObject, id)
	}
	return kp, nil
}

// Elements returns the osculating elements of one object.
func (p *Propagator) Elements(id int) (orbit.Elements, error) {
	kp, err := p.Lookup(id)
	if err != nil {
		return orbit.Elements{}, err
	}
	return kp.Elements(), nil
}

// PropagateToTime generates a single keyframe at the given target time
// for every object in the current catalog.
func (p *Propagator) PropagateToTime(ctx context.Context, targetTime time.Time) (*Keyframe, error) {
	s, err := p.Current()
	if err != nil {
		return nil, err
	}
	return p.PropagateSet(ctx, s, targetTime)
}

// PropagateSet generates a keyframe for the objects of s. If ctx is done by
// the time the batch returns, the keyframe may be partial and the context
// error is returned instead.
func (p *Propagator) PropagateSet(ctx context.Context, s *ObjectSet, targetTime time.Time) (*Keyframe, error) {
	ctx, span := observability.Tracer().Start(ctx, "propagation.batch",
		trace.WithAttributes(
			attribute.Int("objects", len(s.props)),
			attribute.String("target_time", targetTime.UTC().Format(time.RFC3339)),
		))
	defer span.End()

	p.logger.Debug("propagating",
		"object_count", len(s.props),
		"target_time", targetTime.UTC().Format(time.RFC3339),
		"workers", p.pool.workers,
	)

	start := time.Now()
	positions, failures := p.pool.PropagateBatch(ctx, s.props, targetTime)
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch cancelled")
		return nil, fmt.Errorf("propagating %d objects: %w", len(s.props), err)
	}
	duration := time.Since(start)
	successCount, errorCount := len(positions), len(failures)

	metrics.RecordPropagation(duration, successCount, errorCount)
	span.SetAttributes(attribute.Int("success", successCount), attribute.Int("errors", errorCount))
	if errorCount > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d objects failed", errorCount))
	}

	p.logger.Debug("propagation complete",
		"success", successCount,
		"errors", errorCount,
		"duration_ms", duration.Milliseconds(),
	)

	return &Keyframe{
		Timestamp: targetTime,
		Objects:   positions,
		Failed:    failures,
	}, nil
}

// GenerateKeyframes generates keyframes from startTime over the configured horizon
// at the configured step interval.
func (p *Propagator) GenerateKeyframes(ctx context.Context, startTime time.Time) ([]*Keyframe, error) {
	set, err := p.Current()
	if err != nil {
		return nil, err
	}
	if p.config.Step <= 0 {
		return nil, fmt.Errorf("invalid keyframe step %s", p.config.Step)
	}

	numFrames := int(p.config.Horizon/p.config.Step) + 1
	keyframes := make([]*Keyframe, 0, numFrames)

	for i := 0; i < numFrames; i++ {
		select {
		case <-ctx.Done():
			return keyframes, ctx.Err()
		default:
		}

		targetTime := startTime.Add(time.Duration(i) * p.config.Step)
		kf, err := p.PropagateSet(ctx, set, targetTime)
		if err != nil {
			return keyframes, fmt.Errorf("keyframe %d at %s: %w", i, targetTime.Format(time.RFC3339), err)
		}
		keyframes = append(keyframes, kf)
	}

	return keyframes, nil
}
