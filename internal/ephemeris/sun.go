// Package ephemeris computes low-precision geocentric positions of the Sun
// and the Moon in the mean equatorial frame of date.
//
// Accuracy targets are those of a visualisation: a few hundredths of a
// degree for the Sun over 1950-2050 and about a tenth of a degree for the
// Moon. All functions are pure.
package ephemeris

import (
	"math"

	"github.com/vsr83/WebGLGlobeTest/internal/timescale"
	"gonum.org/v1/gonum/spatial/r3"
)

const deg = math.Pi / 180.0

// Equatorial holds right ascension and declination in radians.
type Equatorial struct {
	RA   float64 `json:"ra"`   // [0, 2π)
	Decl float64 `json:"decl"` // [-π/2, π/2]
}

// Direction returns the unit vector pointing at (RA, Decl) in the inertial frame.
func (e Equatorial) Direction() r3.Vec {
	sinD, cosD := math.Sincos(e.Decl)
	sinA, cosA := math.Sincos(e.RA)
	return r3.Vec{X: cosD * cosA, Y: cosD * sinA, Z: sinD}
}

// Sun returns the apparent equatorial coordinates of the Sun.
//
// Low-precision formulae of the Astronomical Almanac:
//
//	L = 280.460° + 0.9856474°·n        mean longitude
//	g = 357.528° + 0.9856003°·n        mean anomaly
//	λ = L + 1.915°·sin g + 0.020°·sin 2g
//	ε = 23.439° − 0.0000004°·n
//
// with n days since J2000.0.
func Sun(jt timescale.JulianTime) Equatorial {
	days, frac := jt.DaysSinceJ2000()
	n := float64(days) + frac

	l := 280.460 + 0.9856474*n
	g := (357.528 + 0.9856003*n) * deg
	lambda := (l + 1.915*math.Sin(g) + 0.020*math.Sin(2*g)) * deg
	eps := (23.439 - 0.0000004*n) * deg

	sinL, cosL := math.Sincos(lambda)
	return Equatorial{
		RA:   timescale.ReduceRad(math.Atan2(math.Cos(eps)*sinL, cosL)),
		Decl: math.Asin(math.Sin(eps) * sinL),
	}
}

// SunDirection returns the unit vector from the Earth's centre to the Sun.
func SunDirection(jt timescale.JulianTime) r3.Vec {
	return Sun(jt).Direction()
}
