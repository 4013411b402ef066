package propagation

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vsr83/WebGLGlobeTest/internal/ephemeris"
	"github.com/vsr83/WebGLGlobeTest/internal/illumination"
	"github.com/vsr83/WebGLGlobeTest/internal/metrics"
	"github.com/vsr83/WebGLGlobeTest/internal/timescale"
	"github.com/vsr83/WebGLGlobeTest/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// batchEnv is the per-target-time environment shared by every job.
type batchEnv struct {
	target   time.Time
	sidereal float64
	sun      ephemeris.Equatorial
	sunDir   r3.Vec
}

func newBatchEnv(t time.Time) batchEnv {
	jt := timescale.FromTime(t)
	sun := ephemeris.Sun(jt)
	return batchEnv{
		target:   t,
		sidereal: timescale.SiderealAngle(jt),
		sun:      sun,
		sunDir:   sun.Direction(),
	}
}

// propagateResult is the output of a single object propagation.
type propagateResult struct {
	position ObjectPosition
	err      error
	id       int
}

// WorkerPool manages a fixed number of goroutines for parallel propagation.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
	active  atomic.Int64
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// PropagateBatch propagates all objects to the target time using the worker
// pool. Returns positions ordered by object ID for every object that
// succeeded and one Failure per object that did not. Failed objects are
// logged and never affect the others.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, props []*KeplerPropagator, targetTime time.Time) ([]ObjectPosition, []Failure) {
	if len(props) == 0 {
		return nil, nil
	}

	// Sidereal angle and Sun position are the same for every object.
	env := newBatchEnv(targetTime)

	jobs := make(chan *KeplerPropagator, wp.workers*2)
	results := make(chan propagateResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metrics.SetPropagationWorkersActive(int(wp.active.Add(1)))
			defer func() { metrics.SetPropagationWorkersActive(int(wp.active.Add(-1))) }()
			for p := range jobs {
				result := propagateSingle(p, env)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, p := range props {
			select {
			case jobs <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	positions := make([]ObjectPosition, 0, len(props))
	var failures []Failure

	for result := range results {
		if result.err != nil {
			wp.logger.Warn("propagation failed",
				"object_id", result.id,
				"error", result.err,
			)
			failures = append(failures, Failure{ID: result.id, Error: result.err.Error()})
			continue
		}
		positions = append(positions, result.position)
	}

	slices.SortFunc(positions, func(a, b ObjectPosition) int { return a.ID - b.ID })
	slices.SortFunc(failures, func(a, b Failure) int { return a.ID - b.ID })
	return positions, failures
}

// propagateSingle runs Kepler propagation, the Earth-fixed transform and the
// illumination lookup for one object.
func propagateSingle(p *KeplerPropagator, env batchEnv) propagateResult {
	eci, err := p.Propagate(env.target)
	if err != nil {
		return propagateResult{id: p.ID(), err: err}
	}

	ecf := transform.ToEarthFixed(eci, env.sidereal)
	geo := transform.ToGeodetic(ecf.R)
	band := illumination.Classify(illumination.LocalAltitude(geo.Lon, geo.Lat, env.sun.RA, env.sun.Decl, env.sidereal))

	return propagateResult{
		id: p.ID(),
		position: ObjectPosition{
			ID:          p.ID(),
			Name:        p.Name(),
			PositionECI: vec3(eci.R),
			VelocityECI: vec3(eci.V),
			PositionECF: vec3(ecf.R),
			VelocityECF: vec3(ecf.V),
			SubPoint:    geo,
			Sunlit:      !illumination.InShadow(eci.R, env.sunDir),
			Band:        band,
		},
	}
}

func vec3(v r3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}
