// Package illumination classifies points on the Earth by solar altitude into
// day, the three twilight bands and night, and provides the day/night blend
// weights the renderer mixes its two textures with.
package illumination

import (
	"fmt"
	"math"

	"github.com/vsr83/WebGLGlobeTest/internal/ephemeris"
	"github.com/vsr83/WebGLGlobeTest/internal/timescale"
	"github.com/vsr83/WebGLGlobeTest/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// Band is an illumination band.
type Band int

const (
	Day Band = iota
	CivilTwilight
	NauticalTwilight
	AstronomicalTwilight
	Night
)

var bandNames = [...]string{"day", "civil_twilight", "nautical_twilight", "astronomical_twilight", "night"}

func (b Band) String() string {
	if b < Day || b > Night {
		return fmt.Sprintf("Band(%d)", int(b))
	}
	return bandNames[b]
}

// MarshalText encodes the band by name.
func (b Band) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Weights returns the day and night texture weights for the band. They
// always sum to one.
func (b Band) Weights() (day, night float64) {
	switch b {
	case Day:
		return 1, 0
	case CivilTwilight:
		return 0.75, 0.25
	case NauticalTwilight:
		return 0.5, 0.5
	case AstronomicalTwilight:
		return 0.25, 0.75
	}
	return 0, 1
}

// Classify maps a solar altitude in degrees to its band. Boundaries are
// strict: exactly 0° is civil twilight, exactly −18° is night.
func Classify(altDeg float64) Band {
	switch {
	case altDeg > 0:
		return Day
	case altDeg > -6:
		return CivilTwilight
	case altDeg > -12:
		return NauticalTwilight
	case altDeg > -18:
		return AstronomicalTwilight
	}
	return Night
}

// LocalAltitude returns the solar altitude in degrees at geographic
// longitude lon and latitude lat (radians), given the Sun's right ascension
// and declination and the Greenwich sidereal angle lst (radians).
func LocalAltitude(lon, lat, sunRA, sunDecl, lst float64) float64 {
	h := lst + lon - sunRA
	sinD, cosD := math.Sincos(sunDecl)
	sinP, cosP := math.Sincos(lat)
	s := math.Cos(h)*cosD*cosP + sinD*sinP
	return math.Asin(math.Max(-1, math.Min(1, s))) * 180.0 / math.Pi
}

// Sample is the illumination at one surface point.
type Sample struct {
	AltitudeDeg float64 `json:"altitude_deg"`
	Band        Band    `json:"band"`
	Day         float64 `json:"day_weight"`
	Night       float64 `json:"night_weight"`
}

// Evaluate computes altitude, band and blend weights at (lon, lat).
func Evaluate(lon, lat float64, sun ephemeris.Equatorial, lst float64) Sample {
	alt := LocalAltitude(lon, lat, sun.RA, sun.Decl, lst)
	band := Classify(alt)
	day, night := band.Weights()
	return Sample{AltitudeDeg: alt, Band: band, Day: day, Night: night}
}

// Subsolar returns the geographic longitude in (−π, π] and latitude of the
// point with the Sun at the zenith.
func Subsolar(sun ephemeris.Equatorial, lst float64) (lon, lat float64) {
	lon = math.Remainder(sun.RA-lst, 2*math.Pi)
	if lon <= -math.Pi {
		lon += 2 * math.Pi
	}
	return lon, sun.Decl
}

// Terminator returns n points of the great circle 90° from the subsolar
// point, on a spherical Earth. Refraction and the solar disc are ignored.
func Terminator(sun ephemeris.Equatorial, lst float64, n int) []transform.Geodetic {
	if n < 1 {
		return nil
	}
	lon, lat := Subsolar(sun, lst)
	s := ephemeris.Equatorial{RA: lon, Decl: lat}.Direction()

	// Basis of the plane perpendicular to s.
	u := r3.Cross(r3.Vec{Z: 1}, s)
	if r3.Norm(u) < 1e-9 {
		u = r3.Vec{X: 1}
	}
	u = r3.Unit(u)
	w := r3.Cross(s, u)

	out := make([]transform.Geodetic, n)
	for k := range out {
		sinT, cosT := math.Sincos(2 * math.Pi * float64(k) / float64(n))
		p := r3.Add(r3.Scale(cosT, u), r3.Scale(sinT, w))
		out[k] = transform.Geodetic{
			Lon: math.Atan2(p.Y, p.X),
			Lat: math.Asin(math.Max(-1, math.Min(1, p.Z))),
		}
	}
	return out
}

// InShadow reports whether an inertial position (km) lies in the Earth's
// cylindrical shadow for the given unit Sun direction.
func InShadow(r, sunDir r3.Vec) bool {
	along := r3.Dot(r, sunDir)
	if along >= 0 {
		return false
	}
	perp := r3.Sub(r, r3.Scale(along, sunDir))
	return r3.Norm(perp) < transform.WGS84A
}

// At evaluates the illumination at (lon, lat) for a wall-clock time.
func At(jt timescale.JulianTime, lon, lat float64) Sample {
	return Evaluate(lon, lat, ephemeris.Sun(jt), timescale.SiderealAngle(jt))
}
