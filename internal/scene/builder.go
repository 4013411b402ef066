package scene

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vsr83/WebGLGlobeTest/internal/cache"
	"github.com/vsr83/WebGLGlobeTest/internal/geometry"
	"github.com/vsr83/WebGLGlobeTest/internal/metrics"
	"github.com/vsr83/WebGLGlobeTest/internal/observability"
	"github.com/vsr83/WebGLGlobeTest/internal/orbit"
	"github.com/vsr83/WebGLGlobeTest/internal/propagation"
	"github.com/vsr83/WebGLGlobeTest/internal/timescale"
	"github.com/vsr83/WebGLGlobeTest/internal/transform"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxTrajectorySamples bounds the samples of one trajectory request.
const MaxTrajectorySamples = 4096

// ErrInvalidRequest marks errors caused by the caller's parameters.
var ErrInvalidRequest = errors.New("invalid request")

// Textures names the day and night images the renderer blends. The
// renderer draws nothing until both are loaded.
type Textures struct {
	Day   string `json:"day"`
	Night string `json:"night"`
}

// DefaultTextures are the images shipped next to the web host.
var DefaultTextures = Textures{Day: "8k_earth_daymap.jpg", Night: "8k_earth_nightmap.jpg"}

// ObjectView is a tracked object with its position in scene units.
type ObjectView struct {
	propagation.ObjectPosition
	Scene [3]float32 `json:"scene"`
}

// Frame is everything the renderer needs to draw one frame.
type Frame struct {
	Env      Env                   `json:"environment"`
	View     geometry.ViewState    `json:"view"`
	Uniforms geometry.Uniforms     `json:"uniforms"`
	Objects  []ObjectView          `json:"objects"`
	Failed   []propagation.Failure `json:"failed,omitempty"`
	Textures Textures              `json:"textures"`
}

// Trajectory is one orbital period of an object. Ring is the inertial orbit
// rotated into the Earth-fixed frame of the request time; GroundTrack uses
// the sidereal angle of each sample.
type Trajectory struct {
	ID            int                  `json:"id"`
	Name          string               `json:"name"`
	Start         time.Time            `json:"start"`
	PeriodSeconds float64              `json:"period_seconds"`
	Elements      ElementsView         `json:"elements"`
	Ring          [][3]float64         `json:"ring"`
	Scene         [][3]float32         `json:"scene"`
	GroundTrack   []transform.Geodetic `json:"ground_track"`
}

// ElementsView is the JSON form of orbit.Elements.
type ElementsView struct {
	A            float64   `json:"a"`
	E            float64   `json:"e"`
	I            float64   `json:"i"`
	RAAN         float64   `json:"raan"`
	ArgPeriapsis float64   `json:"arg_periapsis"`
	MeanAnomaly  float64   `json:"mean_anomaly"`
	Epoch        time.Time `json:"epoch"`
	Singular     string    `json:"singular,omitempty"`
}

// NewElementsView converts orbital elements for output.
func NewElementsView(el orbit.Elements) ElementsView {
	v := ElementsView{
		A:            el.A,
		E:            el.E,
		I:            el.I,
		RAAN:         el.RAAN,
		ArgPeriapsis: el.ArgPeriapsis,
		MeanAnomaly:  el.MeanAnomaly,
		Epoch:        el.Epoch,
	}
	if el.Singular != 0 {
		v.Singular = el.Singular.String()
	}
	return v
}

// Builder builds frames and trajectories. It holds no per-frame state, so
// one Builder serves any number of sessions concurrently.
type Builder struct {
	prop     *propagation.Propagator
	cache    *cache.KeyframeCache
	globe    geometry.Ellipsoid
	textures Textures
	logger   *slog.Logger
}

// NewBuilder creates a Builder. kc may be nil, in which case trails are
// not available.
func NewBuilder(prop *propagation.Propagator, kc *cache.KeyframeCache, globe geometry.Ellipsoid, textures Textures, logger *slog.Logger) *Builder {
	return &Builder{
		prop:     prop,
		cache:    kc,
		globe:    globe,
		textures: textures,
		logger:   logger,
	}
}

// Textures returns the texture pair served with every frame.
func (b *Builder) Textures() Textures {
	return b.textures
}

// Frame builds the frame for now as seen through view. The stages run in
// order: time, ephemeris, orbit propagation, Earth-fixed transform,
// illumination, uniforms. Objects that fail to propagate are listed in
// Failed and leave the rest of the frame intact.
func (b *Builder) Frame(ctx context.Context, now time.Time, view geometry.ViewState) (f *Frame, err error) {
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "scene.frame",
		trace.WithAttributes(attribute.String("time", now.UTC().Format(time.RFC3339Nano))))
	defer func() {
		metrics.ObserveFrame(time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	matrix, err := geometry.ViewProjection(view)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	env := Environment(now)

	kf, err := b.prop.PropagateToTime(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("propagating objects: %w", err)
	}

	scale := geometry.SceneScale(b.globe.A, transform.WGS84A)
	objects := make([]ObjectView, len(kf.Objects))
	for i, o := range kf.Objects {
		objects[i] = ObjectView{
			ObjectPosition: o,
			Scene:          geometry.ToScene(vecOf(o.PositionECF), scale),
		}
	}
	span.SetAttributes(attribute.Int("objects", len(objects)), attribute.Int("failed", len(kf.Failed)))

	return &Frame{
		Env:      env,
		View:     view,
		Uniforms: geometry.NewUniforms(matrix, env.Sun, env.SiderealRad),
		Objects:  objects,
		Failed:   kf.Failed,
		Textures: b.textures,
	}, nil
}

// Trajectory samples one orbital period of object id starting at now.
func (b *Builder) Trajectory(ctx context.Context, id int, now time.Time, samples int) (tr *Trajectory, err error) {
	_, span := observability.Tracer().Start(ctx, "scene.trajectory",
		trace.WithAttributes(attribute.Int("object_id", id), attribute.Int("samples", samples)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if samples < 2 || samples > MaxTrajectorySamples {
		return nil, fmt.Errorf("%w: samples must be in [2, %d], got %d", ErrInvalidRequest, MaxTrajectorySamples, samples)
	}

	kp, err := b.prop.Lookup(id)
	if err != nil {
		return nil, err
	}
	el := kp.Elements()
	period := el.Period()

	states, err := orbit.Sample(el, now, period, samples)
	if err != nil {
		return nil, fmt.Errorf("sampling object %d: %w", id, err)
	}

	θ := timescale.SiderealAngle(timescale.FromTime(now))
	scale := geometry.SceneScale(b.globe.A, transform.WGS84A)

	tr = &Trajectory{
		ID:            id,
		Name:          kp.Name(),
		Start:         now.UTC(),
		PeriodSeconds: period.Seconds(),
		Elements:      NewElementsView(el),
		Ring:          make([][3]float64, len(states)),
		Scene:         make([][3]float32, len(states)),
		GroundTrack:   make([]transform.Geodetic, len(states)),
	}
	for i, s := range states {
		ring := transform.RotateToEarthFixed(s.R, θ)
		tr.Ring[i] = [3]float64{ring.X, ring.Y, ring.Z}
		tr.Scene[i] = geometry.ToScene(ring, scale)

		fixed := transform.RotateToEarthFixed(s.R, timescale.SiderealAngle(timescale.FromTime(s.Epoch)))
		tr.GroundTrack[i] = transform.ToGeodetic(fixed)
	}
	return tr, nil
}

// Trails returns, per object, up to count cached Earth-fixed positions
// ending at now, oldest first.
func (b *Builder) Trails(now time.Time, count int) map[int][][3]float64 {
	if b.cache == nil || count <= 0 {
		return nil
	}
	return b.cache.Trails(now, count)
}
