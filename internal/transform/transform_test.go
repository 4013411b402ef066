package transform

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/vsr83/WebGLGlobeTest/internal/orbit"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r3"
)

// TestToEarthFixedMatchesGoSatellite validates the rotation against
// go-satellite's ECIToECEF using the same sidereal angle.
func TestToEarthFixedMatchesGoSatellite(t *testing.T) {
	tests := []struct {
		name string
		s    orbit.StateVector
		time time.Time
	}{
		{
			// Vallado Example 3-15
			name: "Vallado example 3-15",
			s: orbit.StateVector{
				R: r3.Vec{X: 5094.18016, Y: 6127.64465, Z: 6380.34453},
				V: r3.Vec{X: -4.746131487, Y: 0.786598499, Z: 5.531931288},
			},
			time: time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
		},
		{
			name: "LEO equatorial",
			s:    orbit.StateVector{R: r3.Vec{X: 6778}, V: r3.Vec{Y: 7.5}},
			time: time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "LEO polar",
			s:    orbit.StateVector{R: r3.Vec{Z: 6978}, V: r3.Vec{X: 7.4}},
			time: time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gmst := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)

			got := ToEarthFixed(tt.s, gmst)
			ref := satellite.ECIToECEF(satellite.Vector3{X: tt.s.R.X, Y: tt.s.R.Y, Z: tt.s.R.Z}, gmst)

			// 1 m tolerance.
			want := r3.Vec{X: ref.X, Y: ref.Y, Z: ref.Z}
			if d := r3.Norm(r3.Sub(got.R, want)); d > 1e-3 {
				t.Errorf("position mismatch %.6f km:\n  ours: %+v\n  ref:  %+v", d, got.R, want)
			}
			if !ValidateECEF(got.R) {
				t.Errorf("position failed validation: %+v", got.R)
			}
		})
	}
}

// TestToEarthFixedVelocity verifies the velocity transform includes Earth rotation correction.
func TestToEarthFixedVelocity(t *testing.T) {
	s := orbit.StateVector{R: r3.Vec{X: 6778}, V: r3.Vec{Y: 7.5}}
	got := ToEarthFixed(s, 0)

	// ω·R at 6778 km is 0.4943 km/s.
	want := 7.5 - OmegaEarth*6778.0
	if !scalar.EqualWithinAbs(got.V.Y, want, 1e-9) {
		t.Errorf("VY = %.6f km/s, want %.6f km/s", got.V.Y, want)
	}

	// A geostationary object has zero Earth-fixed velocity.
	r := 42164.17
	geo := orbit.StateVector{R: r3.Vec{X: r}, V: r3.Vec{Y: OmegaEarth * r}}
	for _, θ := range []float64{0, 1, 4} {
		if v := r3.Norm(ToEarthFixed(geo, θ).V); v > 1e-9 {
			t.Errorf("θ=%f: geostationary fixed velocity = %e km/s", θ, v)
		}
	}
}

func TestToInertialInverse(t *testing.T) {
	s := orbit.StateVector{
		R:     r3.Vec{X: 5094.18016, Y: 6127.64465, Z: 6380.34453},
		V:     r3.Vec{X: -4.746131487, Y: 0.786598499, Z: 5.531931288},
		Epoch: time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
	}
	for _, θ := range []float64{0, 0.5, math.Pi, 5.9} {
		back := ToInertial(ToEarthFixed(s, θ), θ)
		if d := r3.Norm(r3.Sub(back.R, s.R)); d > 1e-9 {
			t.Errorf("θ=%f: R diff %e", θ, d)
		}
		if d := r3.Norm(r3.Sub(back.V, s.V)); d > 1e-12 {
			t.Errorf("θ=%f: V diff %e", θ, d)
		}
		if !back.Epoch.Equal(s.Epoch) {
			t.Errorf("epoch changed")
		}
	}
}

func TestRotateToEarthFixed(t *testing.T) {
	// A direction on the inertial x axis appears at longitude −θ.
	θ := 1.0
	got := RotateToEarthFixed(r3.Vec{X: 1}, θ)
	if lon := math.Atan2(got.Y, got.X); !scalar.EqualWithinAbs(lon, -θ, 1e-12) {
		t.Errorf("lon = %f, want %f", lon, -θ)
	}
}

func TestValidateECEF(t *testing.T) {
	tests := []struct {
		name  string
		pos   r3.Vec
		valid bool
	}{
		{"LEO", r3.Vec{X: 6778}, true},
		{"GEO", r3.Vec{X: 42164}, true},
		{"lunar distance", r3.Vec{X: 384400}, true},
		{"too low", r3.Vec{X: 5000}, false},
		{"too high", r3.Vec{X: 600000}, false},
		{"NaN", r3.Vec{X: math.NaN()}, false},
		{"Inf", r3.Vec{X: math.Inf(1)}, false},
		{"zero", r3.Vec{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateECEF(tt.pos); got != tt.valid {
				t.Errorf("ValidateECEF(%v) = %v, want %v", tt.pos, got, tt.valid)
			}
		})
	}
}

func TestGeodeticRoundTrip(t *testing.T) {
	for latDeg := -90.0; latDeg <= 90; latDeg += 7.5 {
		for lonDeg := -180.0; lonDeg < 180; lonDeg += 30 {
			for _, alt := range []float64{0, 0.4, 400, 35786} {
				g := Geodetic{Lat: latDeg * math.Pi / 180, Lon: lonDeg * math.Pi / 180, Alt: alt}
				back := ToGeodetic(FromGeodetic(g))

				if !scalar.EqualWithinAbs(back.Lat, g.Lat, 1e-11) {
					t.Errorf("lat %.1f alt %.1f: got %.12f want %.12f", latDeg, alt, back.Lat, g.Lat)
				}
				if !scalar.EqualWithinAbs(back.Alt, alt, 1e-6) {
					t.Errorf("lat %.1f alt %.1f: alt = %.9f", latDeg, alt, back.Alt)
				}
				if math.Abs(latDeg) < 90 {
					if d := math.Abs(math.Remainder(back.Lon-g.Lon, 2*math.Pi)); d > 1e-12 {
						t.Errorf("lat %.1f lon %.1f: lon diff %e", latDeg, lonDeg, d)
					}
				}
			}
		}
	}
}

func TestToGeodeticPoles(t *testing.T) {
	tests := []struct {
		name    string
		r       r3.Vec
		wantLat float64
		wantAlt float64
	}{
		{"north pole surface", r3.Vec{Z: WGS84B}, math.Pi / 2, 0},
		{"south pole 500 km", r3.Vec{Z: -(WGS84B + 500)}, -math.Pi / 2, 500},
		{"near pole", r3.Vec{X: 1e-9, Z: WGS84B + 10}, math.Pi / 2, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := ToGeodetic(tt.r)
			if math.IsNaN(g.Lat) || math.IsNaN(g.Alt) || math.IsNaN(g.Lon) {
				t.Fatalf("NaN result %+v", g)
			}
			if !scalar.EqualWithinAbs(g.Lat, tt.wantLat, 1e-9) {
				t.Errorf("lat = %f, want %f", g.Lat, tt.wantLat)
			}
			if !scalar.EqualWithinAbs(g.Alt, tt.wantAlt, 1e-6) {
				t.Errorf("alt = %f, want %f", g.Alt, tt.wantAlt)
			}
		})
	}
}

func TestNewObserverECEFMagnitude(t *testing.T) {
	obs := NewObserver(0, 0, 0)
	if !scalar.EqualWithinAbs(r3.Norm(obs.ECEF), WGS84A, 1e-6) {
		t.Errorf("equatorial observer radius = %.6f km, want %.6f", r3.Norm(obs.ECEF), WGS84A)
	}
	pole := NewObserver(90, 0, 0)
	if !scalar.EqualWithinAbs(r3.Norm(pole.ECEF), 6356.7523, 1e-3) {
		t.Errorf("polar observer radius = %.4f km, want 6356.7523", r3.Norm(pole.ECEF))
	}
	high := NewObserver(0, 0, 0.1)
	if d := r3.Norm(high.ECEF) - r3.Norm(obs.ECEF); !scalar.EqualWithinAbs(d, 0.1, 1e-9) {
		t.Errorf("altitude difference = %f km, want 0.1", d)
	}
}

func TestLookDirectlyOverhead(t *testing.T) {
	obs := NewObserver(0, 0, 0)
	la := obs.Look(r3.Add(obs.ECEF, r3.Vec{X: 400}))

	if !scalar.EqualWithinAbs(la.ElevationDeg, 90, 0.1) {
		t.Errorf("overhead elevation = %.2f deg, want ~90", la.ElevationDeg)
	}
	if !scalar.EqualWithinAbs(la.RangeKm, 400, 1e-6) {
		t.Errorf("overhead range = %.2f km, want 400", la.RangeKm)
	}
}

func TestLookAzimuthDirections(t *testing.T) {
	obs := NewObserver(0, 0, 0)
	tests := []struct {
		name   string
		lat    float64
		lon    float64
		wantAz float64
	}{
		{"north", 10, 0, 0},
		{"east", 0, 10, 90},
		{"south", -10, 0, 180},
		{"west", 0, -10, 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sat := NewObserver(tt.lat, tt.lon, 400)
			la := obs.Look(sat.ECEF)
			d := math.Abs(math.Remainder(la.AzimuthDeg-tt.wantAz, 360))
			if d > 1 {
				t.Errorf("azimuth = %.2f deg, want %.0f", la.AzimuthDeg, tt.wantAz)
			}
			if la.ElevationDeg <= 0 {
				t.Errorf("elevation = %.2f deg, want above horizon", la.ElevationDeg)
			}
		})
	}
}

func TestLookBelowHorizon(t *testing.T) {
	obs := NewObserver(40.7128, -74.006, 0.01)
	la := obs.Look(NewObserver(-40, 110, 400).ECEF)
	if la.ElevationDeg >= 0 {
		t.Errorf("antipodal object elevation = %.2f, want negative", la.ElevationDeg)
	}
	if la.RangeKm <= 0 {
		t.Errorf("range should be positive, got %.2f km", la.RangeKm)
	}
}
