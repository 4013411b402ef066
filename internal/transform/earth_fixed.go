// Package transform rotates inertial states into the Earth-fixed frame and
// converts Earth-fixed positions to and from WGS-84 geodetic coordinates.
//
// The inertial to Earth-fixed rotation uses the sidereal angle only
// (mean-of-date simplification): precession, nutation and polar motion are
// ignored. The error is well below a pixel on a rendered globe.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"math"

	"github.com/vsr83/WebGLGlobeTest/internal/orbit"
	"gonum.org/v1/gonum/spatial/r3"
)

// OmegaEarth is Earth's rotation rate in rad/s (IAU value).
const OmegaEarth = 7.292115146706979e-5

// ToEarthFixed rotates an inertial state into the Earth-fixed frame at the
// given sidereal angle (radians).
//
// Position: r_fixed = R3(θ)·r
// Velocity: v_fixed = R3(θ)·v − ω × r_fixed
//
// where ω = [0, 0, ω⊕]. The epoch is carried over unchanged.
func ToEarthFixed(s orbit.StateVector, siderealAngle float64) orbit.StateVector {
	sinG, cosG := math.Sincos(siderealAngle)

	r := rotZ(s.R, sinG, cosG)
	v := rotZ(s.V, sinG, cosG)

	// ω × r = [-ω·y, ω·x, 0]
	v.X += OmegaEarth * r.Y
	v.Y -= OmegaEarth * r.X

	return orbit.StateVector{R: r, V: v, Epoch: s.Epoch}
}

// ToInertial is the inverse of ToEarthFixed.
func ToInertial(s orbit.StateVector, siderealAngle float64) orbit.StateVector {
	v := s.V
	v.X -= OmegaEarth * s.R.Y
	v.Y += OmegaEarth * s.R.X

	sinG, cosG := math.Sincos(-siderealAngle)
	return orbit.StateVector{
		R:     rotZ(s.R, sinG, cosG),
		V:     rotZ(v, sinG, cosG),
		Epoch: s.Epoch,
	}
}

// RotateToEarthFixed rotates a position only. Used for directions such as the
// Sun vector and for trajectory rings.
func RotateToEarthFixed(r r3.Vec, siderealAngle float64) r3.Vec {
	sinG, cosG := math.Sincos(siderealAngle)
	return rotZ(r, sinG, cosG)
}

// rotZ applies the frame rotation R3(θ) given sin θ and cos θ.
func rotZ(p r3.Vec, sinG, cosG float64) r3.Vec {
	return r3.Vec{
		X: p.X*cosG + p.Y*sinG,
		Y: -p.X*sinG + p.Y*cosG,
		Z: p.Z,
	}
}

// Radius bounds accepted by ValidateECEF, km. Low orbits down to 6200 km
// (below the polar radius for margin) up to beyond the Moon's distance.
const (
	minRadiusKm = 6200.0
	maxRadiusKm = 500000.0
)

// ValidateECEF checks that an Earth-fixed position is physically reasonable
// for a tracked object. Returns true if valid.
func ValidateECEF(r r3.Vec) bool {
	for _, c := range []float64{r.X, r.Y, r.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	mag := r3.Norm(r)
	return mag >= minRadiusKm && mag <= maxRadiusKm
}
