// Package orbit converts between inertial state vectors and classical
// orbital elements and propagates bound two-body orbits with Kepler's
// equation.
//
// Distances are km, velocities km/s, angles radians. The inertial frame is
// whatever frame the input state is expressed in; for catalog objects that
// is the mean equator and equinox of date.
package orbit

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// EarthMu is the Earth's gravitational parameter in km³/s² (WGS-84).
const EarthMu = 398600.4418

const (
	// eccentricityε is the eccentricity below which an orbit is treated as circular.
	eccentricityε = 1e-11
	// angleε is the |n|/|h| ratio below which an orbit is treated as equatorial.
	angleε = 1e-11
	// rectilinearε is the |h|/(|r||v|) ratio below which the orbit is rectilinear.
	rectilinearε = 1e-12
)

var (
	// ErrInvalidState is returned for zero or non-finite vectors or a non-positive mu.
	ErrInvalidState = errors.New("orbit: invalid state vector")
	// ErrRectilinear is returned when the angular momentum vanishes.
	ErrRectilinear = errors.New("orbit: rectilinear trajectory")
	// ErrUnbound is returned for parabolic and hyperbolic trajectories.
	ErrUnbound = errors.New("orbit: trajectory is not a bound ellipse")
	// ErrNoConvergence is returned when Kepler's equation cannot be solved.
	ErrNoConvergence = errors.New("orbit: kepler solver did not converge")
)

// Singularity flags element sets where some angles are undefined and a
// convention was applied instead.
type Singularity uint8

const (
	// Equatorial means Ω is fixed to 0 and ω is measured from the x axis.
	Equatorial Singularity = 1 << iota
	// Circular means ω is fixed to 0 and the anomaly is measured from the
	// node line (argument of latitude) or from the x axis (true longitude).
	Circular
)

func (s Singularity) String() string {
	switch s {
	case 0:
		return "none"
	case Equatorial:
		return "equatorial"
	case Circular:
		return "circular"
	case Equatorial | Circular:
		return "equatorial|circular"
	}
	return fmt.Sprintf("Singularity(%d)", uint8(s))
}

// StateVector is an inertial position and velocity at an epoch.
type StateVector struct {
	R     r3.Vec // km
	V     r3.Vec // km/s
	Epoch time.Time
}

// Elements is a classical element set for a bound orbit.
type Elements struct {
	A            float64 // semi-major axis, km
	E            float64 // eccentricity, [0, 1)
	I            float64 // inclination, [0, π]
	RAAN         float64 // right ascension of the ascending node, [0, 2π)
	ArgPeriapsis float64 // argument of periapsis, [0, 2π)
	MeanAnomaly  float64 // mean anomaly at Epoch, [0, 2π)
	Mu           float64 // gravitational parameter, km³/s²
	Epoch        time.Time
	Singular     Singularity
}

// MeanMotion returns the mean motion in rad/s.
func (el Elements) MeanMotion() float64 {
	return math.Sqrt(el.Mu / (el.A * el.A * el.A))
}

// Period returns the orbital period.
func (el Elements) Period() time.Duration {
	return time.Duration(Period(el.A, el.Mu) * float64(time.Second))
}

// Period returns the period in seconds of an orbit with semi-major axis a.
func Period(a, mu float64) float64 {
	return 2 * math.Pi * math.Sqrt(a*a*a/mu)
}

// StateToElements converts an inertial state vector to classical elements
// (Vallado RV2COE).
//
// Equatorial orbits get Ω = 0 with ω measured from the x axis. Circular
// orbits get ω = 0 and carry the argument of latitude (or, when also
// equatorial, the true longitude) in the anomaly. Singular records which
// convention applied. No output is ever NaN.
func StateToElements(s StateVector, mu float64) (Elements, error) {
	if !(mu > 0) || math.IsInf(mu, 0) || !finite(s.R) || !finite(s.V) {
		return Elements{}, ErrInvalidState
	}
	rMag := r3.Norm(s.R)
	vMag := r3.Norm(s.V)
	if rMag == 0 || vMag == 0 {
		return Elements{}, ErrInvalidState
	}

	h := r3.Cross(s.R, s.V)
	hMag := r3.Norm(h)
	if hMag <= rectilinearε*rMag*vMag {
		return Elements{}, ErrRectilinear
	}

	eVec := r3.Sub(r3.Scale(1/mu, r3.Cross(s.V, h)), r3.Scale(1/rMag, s.R))
	e := r3.Norm(eVec)
	inv := 2/rMag - vMag*vMag/mu
	if e >= 1 || inv <= 0 {
		return Elements{}, fmt.Errorf("%w: e=%.6f, 1/a=%.3e", ErrUnbound, e, inv)
	}
	a := 1 / inv

	n := r3.Vec{X: -h.Y, Y: h.X}
	nMag := r3.Norm(n)
	xHat := r3.Vec{X: 1}
	hSign := math.Copysign(1, h.Z)

	el := Elements{
		A:     a,
		E:     e,
		I:     math.Acos(clamp(h.Z / hMag)),
		Mu:    mu,
		Epoch: s.Epoch,
	}
	equatorial := nMag/hMag < angleε
	circular := e < eccentricityε
	if equatorial {
		el.Singular |= Equatorial
	}
	if circular {
		el.Singular |= Circular
		el.E = 0
	}

	if !equatorial {
		el.RAAN = AngleBetween(xHat, n, n.Y)
	}

	var nu float64
	switch {
	case !circular && !equatorial:
		el.ArgPeriapsis = AngleBetween(n, eVec, eVec.Z)
		nu = AngleBetween(eVec, s.R, r3.Dot(s.R, s.V))
	case !circular && equatorial:
		el.ArgPeriapsis = AngleBetween(xHat, eVec, eVec.Y*hSign)
		nu = AngleBetween(eVec, s.R, r3.Dot(s.R, s.V))
	case circular && !equatorial:
		nu = AngleBetween(n, s.R, s.R.Z)
	default:
		nu = AngleBetween(xHat, s.R, s.R.Y*hSign)
	}

	el.MeanAnomaly = TrueToMean(nu, el.E)
	return el, nil
}

// AngleBetween returns the angle from a to b in [0, 2π). The unsigned angle
// in [0, π] is taken to the other half-plane when sign is negative.
func AngleBetween(a, b r3.Vec, sign float64) float64 {
	cos := r3.Dot(a, b) / (r3.Norm(a) * r3.Norm(b))
	θ := math.Acos(clamp(cos))
	if sign < 0 {
		θ = 2*math.Pi - θ
	}
	if θ >= 2*math.Pi {
		θ = 0
	}
	return θ
}

// TrueToMean converts a true anomaly to the mean anomaly in [0, 2π).
func TrueToMean(nu, e float64) float64 {
	sinNu, cosNu := math.Sincos(nu)
	ea := math.Atan2(math.Sqrt(1-e*e)*sinNu, e+cosNu)
	return wrap2π(ea - e*math.Sin(ea))
}

func clamp(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}

func finite(v r3.Vec) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func wrap2π(x float64) float64 {
	x = math.Mod(x, 2*math.Pi)
	if x < 0 {
		x += 2 * math.Pi
	}
	if x >= 2*math.Pi {
		x = 0
	}
	return x
}
