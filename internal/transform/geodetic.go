package transform

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// WGS-84 ellipsoid parameters.
const (
	WGS84A  = 6378.137              // semi-major axis (km)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
	// WGS84B is the polar semi-axis (km).
	WGS84B = WGS84A * (1 - wgs84F)
)

const (
	geodeticTol     = 1e-12
	geodeticMaxIter = 10
)

// Geodetic is a WGS-84 geodetic position.
type Geodetic struct {
	Lon float64 `json:"lon"` // radians, (-π, π]
	Lat float64 `json:"lat"` // radians, [-π/2, π/2]
	Alt float64 `json:"alt"` // km above the ellipsoid
}

// LonDeg returns the longitude in degrees.
func (g Geodetic) LonDeg() float64 { return g.Lon * 180.0 / math.Pi }

// LatDeg returns the latitude in degrees.
func (g Geodetic) LatDeg() float64 { return g.Lat * 180.0 / math.Pi }

// ToGeodetic converts an Earth-fixed position (km) to geodetic coordinates.
//
// The latitude is seeded with Bowring's estimate and refined by fixed-point
// iteration until it changes by less than 1e-12 rad. Altitude is taken along
// the dominant axis so the poles never divide by cos(lat).
func ToGeodetic(r r3.Vec) Geodetic {
	lon := math.Atan2(r.Y, r.X)
	p := math.Hypot(r.X, r.Y)

	if p == 0 {
		// On the polar axis.
		lat := math.Copysign(math.Pi/2, r.Z)
		if r.Z == 0 {
			return Geodetic{Lon: lon, Lat: 0, Alt: -WGS84A}
		}
		return Geodetic{Lon: lon, Lat: lat, Alt: math.Abs(r.Z) - WGS84B}
	}

	lat := math.Atan2(r.Z, p*(1-wgs84E2))
	for i := 0; i < geodeticMaxIter; i++ {
		sinLat := math.Sin(lat)
		N := WGS84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		next := math.Atan2(r.Z+wgs84E2*N*sinLat, p)
		done := math.Abs(next-lat) < geodeticTol
		lat = next
		if done {
			break
		}
	}

	sinLat, cosLat := math.Sincos(lat)
	N := WGS84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > math.Abs(sinLat) {
		alt = p/cosLat - N
	} else {
		alt = r.Z/sinLat - N*(1-wgs84E2)
	}

	return Geodetic{Lon: lon, Lat: lat, Alt: alt}
}

// FromGeodetic converts geodetic coordinates to an Earth-fixed position (km).
func FromGeodetic(g Geodetic) r3.Vec {
	sinLat, cosLat := math.Sincos(g.Lat)
	sinLon, cosLon := math.Sincos(g.Lon)

	// Radius of curvature in the prime vertical.
	N := WGS84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return r3.Vec{
		X: (N + g.Alt) * cosLat * cosLon,
		Y: (N + g.Alt) * cosLat * sinLon,
		Z: (N*(1-wgs84E2) + g.Alt) * sinLat,
	}
}
