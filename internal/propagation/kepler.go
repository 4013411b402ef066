package propagation

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vsr83/WebGLGlobeTest/internal/catalog"
	"github.com/vsr83/WebGLGlobeTest/internal/metrics"
	"github.com/vsr83/WebGLGlobeTest/internal/orbit"
	"github.com/vsr83/WebGLGlobeTest/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// KeplerPropagator evaluates one object's two-body orbit. The elements are
// derived once from the catalog state; each call is a pure function of t.
type KeplerPropagator struct {
	id       int
	name     string
	elements orbit.Elements
}

// NewKeplerPropagator derives the orbital elements for a catalog object.
func NewKeplerPropagator(o catalog.Object) (*KeplerPropagator, error) {
	mu := o.Mu
	if mu <= 0 {
		mu = orbit.EarthMu
	}
	el, err := orbit.StateToElements(o.State, mu)
	if err != nil {
		return nil, fmt.Errorf("object %d: %w", o.ID, err)
	}
	return &KeplerPropagator{id: o.ID, name: o.Name, elements: el}, nil
}

// ID returns the object ID.
func (p *KeplerPropagator) ID() int { return p.id }

// Name returns the object name.
func (p *KeplerPropagator) Name() string { return p.name }

// Elements returns the osculating elements at the catalog epoch.
func (p *KeplerPropagator) Elements() orbit.Elements { return p.elements }

// Propagate returns the inertial state at t.
func (p *KeplerPropagator) Propagate(t time.Time) (orbit.StateVector, error) {
	s, err := orbit.Propagate(p.elements, t)
	if err != nil {
		if errors.Is(err, orbit.ErrNoConvergence) {
			metrics.IncKeplerFailures()
		}
		return orbit.StateVector{}, fmt.Errorf("object %d: %w", p.id, err)
	}

	if !finiteVec(s.R) || !finiteVec(s.V) {
		return orbit.StateVector{}, fmt.Errorf("object %d: state is NaN/Inf", p.id)
	}
	// Rotation preserves the norm, so the inertial position can be checked
	// against the Earth-fixed bounds directly.
	if !transform.ValidateECEF(s.R) {
		return orbit.StateVector{}, fmt.Errorf("object %d: unreasonable position magnitude %.1f km", p.id, r3.Norm(s.R))
	}
	return s, nil
}

func finiteVec(v r3.Vec) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
