package transform

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Observer is a ground observer. The Earth-fixed position is precomputed
// once so it can be reused across many look-angle evaluations.
type Observer struct {
	Geodetic
	ECEF r3.Vec // km
}

// LookAngles holds azimuth, elevation, and range from observer to object.
type LookAngles struct {
	AzimuthDeg   float64 `json:"azimuth_deg"`   // 0 = North, clockwise
	ElevationDeg float64 `json:"elevation_deg"` // 0 = horizon, 90 = zenith
	RangeKm      float64 `json:"range_km"`
}

// NewObserver creates an Observer from latitude and longitude in degrees and
// altitude in km above the WGS-84 ellipsoid.
func NewObserver(latDeg, lonDeg, altKm float64) Observer {
	g := Geodetic{
		Lat: latDeg * math.Pi / 180.0,
		Lon: lonDeg * math.Pi / 180.0,
		Alt: altKm,
	}
	return Observer{Geodetic: g, ECEF: FromGeodetic(g)}
}

// Look computes azimuth, elevation and range from the observer to an
// Earth-fixed position in km.
//
// Uses the SEZ (South-East-Zenith) topocentric rotation per Vallado Section 4.4.
func (o Observer) Look(r r3.Vec) LookAngles {
	rho := r3.Sub(r, o.ECEF)

	sinLat, cosLat := math.Sincos(o.Lat)
	sinLon, cosLon := math.Sincos(o.Lon)

	south := sinLat*cosLon*rho.X + sinLat*sinLon*rho.Y - cosLat*rho.Z
	east := -sinLon*rho.X + cosLon*rho.Y
	zenith := cosLat*cosLon*rho.X + cosLat*sinLon*rho.Y + sinLat*rho.Z

	rangeKm := math.Sqrt(south*south + east*east + zenith*zenith)
	if rangeKm == 0 {
		return LookAngles{ElevationDeg: 90}
	}

	el := math.Asin(zenith / rangeKm)

	// North is -South in SEZ.
	az := math.Atan2(east, -south)
	if az < 0 {
		az += 2 * math.Pi
	}

	return LookAngles{
		AzimuthDeg:   az * 180.0 / math.Pi,
		ElevationDeg: el * 180.0 / math.Pi,
		RangeKm:      rangeKm,
	}
}
