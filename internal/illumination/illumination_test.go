package illumination

import (
	"math"
	"testing"
	"time"

	"github.com/vsr83/WebGLGlobeTest/internal/ephemeris"
	"github.com/vsr83/WebGLGlobeTest/internal/timescale"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		alt  float64
		want Band
	}{
		{45, Day},
		{0.0001, Day},
		{0, CivilTwilight},
		{-3, CivilTwilight},
		{-6, NauticalTwilight},
		{-11.99, NauticalTwilight},
		{-12, AstronomicalTwilight},
		{-17.5, AstronomicalTwilight},
		{-18, Night},
		{-90, Night},
	}
	for _, tt := range tests {
		if got := Classify(tt.alt); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.alt, got, tt.want)
		}
	}
}

func TestWeights(t *testing.T) {
	tests := []struct {
		band      Band
		day, nite float64
	}{
		{Day, 1, 0},
		{CivilTwilight, 0.75, 0.25},
		{NauticalTwilight, 0.5, 0.5},
		{AstronomicalTwilight, 0.25, 0.75},
		{Night, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.band.String(), func(t *testing.T) {
			d, n := tt.band.Weights()
			if d != tt.day || n != tt.nite {
				t.Errorf("Weights() = (%v, %v), want (%v, %v)", d, n, tt.day, tt.nite)
			}
			if d+n != 1 {
				t.Errorf("weights sum to %v", d+n)
			}
		})
	}
}

func TestBandText(t *testing.T) {
	b, err := AstronomicalTwilight.MarshalText()
	if err != nil || string(b) != "astronomical_twilight" {
		t.Errorf("MarshalText = %q, %v", b, err)
	}
	if s := Band(9).String(); s != "Band(9)" {
		t.Errorf("String() = %q", s)
	}
}

func TestLocalAltitude(t *testing.T) {
	sun := ephemeris.Equatorial{RA: 1.0, Decl: 0.3}
	lst := 2.5

	lon, lat := Subsolar(sun, lst)
	if alt := LocalAltitude(lon, lat, sun.RA, sun.Decl, lst); !scalar.EqualWithinAbs(alt, 90, 1e-6) {
		t.Errorf("subsolar altitude = %f, want 90", alt)
	}

	anti := lon + math.Pi
	if alt := LocalAltitude(anti, -lat, sun.RA, sun.Decl, lst); !scalar.EqualWithinAbs(alt, -90, 1e-6) {
		t.Errorf("antisolar altitude = %f, want -90", alt)
	}

	// At the equinox the Sun sits on the equatorial horizon six hours from noon.
	eq := ephemeris.Equatorial{RA: 0, Decl: 0}
	if alt := LocalAltitude(math.Pi/2, 0, eq.RA, eq.Decl, 0); !scalar.EqualWithinAbs(alt, 0, 1e-9) {
		t.Errorf("quadrature altitude = %f, want 0", alt)
	}
}

func TestEvaluateBands(t *testing.T) {
	sun := ephemeris.Equatorial{RA: 0, Decl: 0}
	tests := []struct {
		name string
		lon  float64 // degrees east of the subsolar point on the equator
		want Band
	}{
		{"noon", 0, Day},
		{"afternoon", 80, Day},
		{"civil", 93, CivilTwilight},
		{"nautical", 99, NauticalTwilight},
		{"astronomical", 105, AstronomicalTwilight},
		{"midnight", 180, Night},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Evaluate(tt.lon*math.Pi/180, 0, sun, 0)
			if s.Band != tt.want {
				t.Errorf("band = %v (alt %.3f), want %v", s.Band, s.AltitudeDeg, tt.want)
			}
			d, n := s.Band.Weights()
			if s.Day != d || s.Night != n {
				t.Errorf("weights (%v, %v) do not match band", s.Day, s.Night)
			}
		})
	}
}

func TestTerminator(t *testing.T) {
	cases := []ephemeris.Equatorial{
		{RA: 0.3, Decl: 0},
		{RA: 1.6, Decl: 23.44 * math.Pi / 180},
		{RA: 4.7, Decl: -23.44 * math.Pi / 180},
		// Sun over the pole: the plane basis falls back to the x axis.
		{RA: 2.0, Decl: math.Pi / 2},
	}
	for _, sun := range cases {
		pts := Terminator(sun, 1.1, 72)
		if len(pts) != 72 {
			t.Fatalf("len = %d, want 72", len(pts))
		}
		for i, p := range pts {
			if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
				t.Fatalf("point %d is NaN", i)
			}
			if alt := LocalAltitude(p.Lon, p.Lat, sun.RA, sun.Decl, 1.1); !scalar.EqualWithinAbs(alt, 0, 1e-6) {
				t.Errorf("sun %+v point %d altitude = %e, want 0", sun, i, alt)
			}
		}
	}
	if Terminator(cases[0], 0, 0) != nil {
		t.Error("n=0 should return nil")
	}
}

func TestInShadow(t *testing.T) {
	sun := r3.Vec{X: 1}
	tests := []struct {
		name string
		r    r3.Vec
		want bool
	}{
		{"sunlit side", r3.Vec{X: 7000}, false},
		{"behind earth", r3.Vec{X: -7000}, true},
		{"behind but outside cylinder", r3.Vec{X: -7000, Y: 6500}, false},
		{"terminator plane", r3.Vec{Y: 7000}, false},
		{"far behind in umbra cylinder", r3.Vec{X: -42000, Z: 1000}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InShadow(tt.r, sun); got != tt.want {
				t.Errorf("InShadow(%+v) = %v, want %v", tt.r, got, tt.want)
			}
		})
	}
}

// TestAtDayNight checks a real instant: local noon in Greenwich is day,
// local midnight is night.
func TestAtDayNight(t *testing.T) {
	noon := timescale.FromTime(time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC))
	if s := At(noon, 0, 51.48*math.Pi/180); s.Band != Day {
		t.Errorf("Greenwich noon band = %v (alt %.2f)", s.Band, s.AltitudeDeg)
	}
	mid := timescale.FromTime(time.Date(2026, 12, 21, 0, 0, 0, 0, time.UTC))
	if s := At(mid, 0, 51.48*math.Pi/180); s.Band != Night {
		t.Errorf("Greenwich midnight band = %v (alt %.2f)", s.Band, s.AltitudeDeg)
	}
}
