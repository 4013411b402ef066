package orbit

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r3"
)

var epoch = time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

func vecClose(a, b r3.Vec, tol float64) bool {
	return r3.Norm(r3.Sub(a, b)) <= tol
}

// TestStateToElementsVallado checks Vallado example 2-5 (RV2COE).
func TestStateToElementsVallado(t *testing.T) {
	s := StateVector{
		R:     r3.Vec{X: 6524.834, Y: 6862.875, Z: 6448.296},
		V:     r3.Vec{X: 4.901327, Y: 5.533756, Z: -1.976341},
		Epoch: epoch,
	}
	el, err := StateToElements(s, EarthMu)
	if err != nil {
		t.Fatalf("StateToElements: %v", err)
	}

	const d = math.Pi / 180
	checks := []struct {
		name      string
		got, want float64
		tol       float64
	}{
		{"a", el.A, 36127.343, 0.5},
		{"e", el.E, 0.832853, 1e-5},
		{"i", el.I / d, 87.870, 0.01},
		{"raan", el.RAAN / d, 227.89, 0.02},
		{"argp", el.ArgPeriapsis / d, 53.38, 0.02},
	}
	for _, c := range checks {
		if !scalar.EqualWithinAbs(c.got, c.want, c.tol) {
			t.Errorf("%s = %.6f, want %.6f", c.name, c.got, c.want)
		}
	}
	if el.Singular != 0 {
		t.Errorf("Singular = %v, want none", el.Singular)
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		s        StateVector
		singular Singularity
	}{
		{"vallado", StateVector{R: r3.Vec{X: 6524.834, Y: 6862.875, Z: 6448.296}, V: r3.Vec{X: 4.901327, Y: 5.533756, Z: -1.976341}}, 0},
		{"iss like", StateVector{R: r3.Vec{X: -4452.2, Y: 3711.5, Z: 3505.4}, V: r3.Vec{X: -3.3217, Y: -5.8893, Z: 2.0223}}, 0},
		{"descending node retrograde", StateVector{R: r3.Vec{X: 7000, Y: 100, Z: -200}, V: r3.Vec{X: 0.1, Y: -6.0, Z: -4.5}}, 0},
		{"circular inclined", circularState(7000, 51.6*math.Pi/180, 0.7), Circular},
		{"equatorial elliptic", StateVector{R: r3.Vec{X: 7000, Y: 2000}, V: r3.Vec{X: -2.0, Y: 8.0}}, Equatorial},
		{"equatorial retrograde", StateVector{R: r3.Vec{X: 7000, Y: 2000}, V: r3.Vec{X: 2.0, Y: -8.0}}, Equatorial},
		{"circular equatorial", circularState(42164, 0, 1.2), Equatorial | Circular},
		{"circular equatorial retrograde", circularState(8000, math.Pi, 2.5), Equatorial | Circular},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.s.Epoch = epoch
			el, err := StateToElements(tt.s, EarthMu)
			if err != nil {
				t.Fatalf("StateToElements: %v", err)
			}
			if el.Singular != tt.singular {
				t.Errorf("Singular = %v, want %v", el.Singular, tt.singular)
			}
			for name, v := range map[string]float64{"a": el.A, "e": el.E, "i": el.I, "raan": el.RAAN, "argp": el.ArgPeriapsis, "M": el.MeanAnomaly} {
				if math.IsNaN(v) {
					t.Fatalf("%s is NaN", name)
				}
			}

			back, err := Propagate(el, epoch)
			if err != nil {
				t.Fatalf("Propagate: %v", err)
			}
			if !vecClose(back.R, tt.s.R, 1e-6) {
				t.Errorf("R = %+v, want %+v", back.R, tt.s.R)
			}
			if !vecClose(back.V, tt.s.V, 1e-9) {
				t.Errorf("V = %+v, want %+v", back.V, tt.s.V)
			}
		})
	}
}

// circularState builds a circular orbit state at radius r, inclination inc
// (node on the x axis) and argument of latitude u.
func circularState(r, inc, u float64) StateVector {
	v := math.Sqrt(EarthMu / r)
	su, cu := math.Sincos(u)
	si, ci := math.Sincos(inc)
	return StateVector{
		R: r3.Vec{X: r * cu, Y: r * su * ci, Z: r * su * si},
		V: r3.Vec{X: -v * su, Y: v * cu * ci, Z: v * cu * si},
	}
}

func TestRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for k := 0; k < 200; k++ {
		el := Elements{
			A:            6600 + rng.Float64()*40000,
			E:            rng.Float64() * 0.9,
			I:            0.01 + rng.Float64()*(math.Pi-0.02),
			RAAN:         rng.Float64() * 2 * math.Pi,
			ArgPeriapsis: rng.Float64() * 2 * math.Pi,
			MeanAnomaly:  rng.Float64() * 2 * math.Pi,
			Mu:           EarthMu,
			Epoch:        epoch,
		}
		s, err := Propagate(el, epoch)
		if err != nil {
			t.Fatalf("case %d: Propagate: %v", k, err)
		}
		got, err := StateToElements(s, EarthMu)
		if err != nil {
			t.Fatalf("case %d: StateToElements: %v", k, err)
		}
		if !scalar.EqualWithinRel(got.A, el.A, 1e-9) || !scalar.EqualWithinAbs(got.E, el.E, 1e-9) {
			t.Errorf("case %d: a,e = %.6f,%.9f want %.6f,%.9f", k, got.A, got.E, el.A, el.E)
		}
		for name, pair := range map[string][2]float64{
			"i":    {got.I, el.I},
			"raan": {got.RAAN, el.RAAN},
			"argp": {got.ArgPeriapsis, el.ArgPeriapsis},
			"M":    {got.MeanAnomaly, el.MeanAnomaly},
		} {
			if d := angleDiff(pair[0], pair[1]); d > 1e-7 {
				t.Errorf("case %d: %s = %.9f, want %.9f", k, name, pair[0], pair[1])
			}
		}
	}
}

func angleDiff(a, b float64) float64 {
	d := math.Abs(wrap2π(a) - wrap2π(b))
	return math.Min(d, 2*math.Pi-d)
}

func TestPropagatePeriodic(t *testing.T) {
	s := StateVector{R: r3.Vec{X: -4452.2, Y: 3711.5, Z: 3505.4}, V: r3.Vec{X: -3.3217, Y: -5.8893, Z: 2.0223}, Epoch: epoch}
	el, err := StateToElements(s, EarthMu)
	if err != nil {
		t.Fatal(err)
	}
	period := Period(el.A, el.Mu)
	for _, k := range []float64{1, 3, 15} {
		at := epoch.Add(time.Duration(k * period * float64(time.Second)))
		got, err := Propagate(el, at)
		if err != nil {
			t.Fatal(err)
		}
		// Duration rounding to 1ns moves the object by a few µm per orbit.
		if !vecClose(got.R, s.R, 1e-3) {
			t.Errorf("after %.0f periods R = %+v, want %+v", k, got.R, s.R)
		}
	}
}

func TestPropagateConservesEnergy(t *testing.T) {
	el := Elements{A: 26560, E: 0.7, I: 1.1, RAAN: 0.3, ArgPeriapsis: 4.9, MeanAnomaly: 0.2, Mu: EarthMu, Epoch: epoch}
	want := -EarthMu / (2 * el.A)
	states, err := Sample(el, epoch, el.Period(), 97)
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 97 {
		t.Fatalf("len = %d, want 97", len(states))
	}
	for i, s := range states {
		v := r3.Norm(s.V)
		energy := v*v/2 - EarthMu/r3.Norm(s.R)
		if !scalar.EqualWithinRel(energy, want, 1e-10) {
			t.Errorf("sample %d energy = %.9f, want %.9f", i, energy, want)
		}
	}
	if !states[1].Epoch.After(states[0].Epoch) {
		t.Error("samples not increasing in time")
	}
}

func TestSolveKepler(t *testing.T) {
	for _, e := range []float64{0, 0.001, 0.1, 0.5, 0.79, 0.8, 0.95, 0.99, 0.999999} {
		for k := 0; k < 64; k++ {
			m := 2 * math.Pi * float64(k) / 64
			ea, err := SolveKepler(m, e)
			if err != nil {
				t.Fatalf("SolveKepler(%f, %f): %v", m, e, err)
			}
			if r := math.Abs(m - (ea - e*math.Sin(ea))); r > 1e-10 {
				t.Errorf("SolveKepler(%f, %f) residual %.3e", m, e, r)
			}
		}
	}
}

func TestSolveKeplerErrors(t *testing.T) {
	if _, err := SolveKepler(1, 1); !errors.Is(err, ErrUnbound) {
		t.Errorf("e=1: err = %v, want ErrUnbound", err)
	}
	if _, err := SolveKepler(math.NaN(), 0.1); !errors.Is(err, ErrNoConvergence) {
		t.Errorf("NaN M: err = %v, want ErrNoConvergence", err)
	}
}

func TestStateToElementsErrors(t *testing.T) {
	tests := []struct {
		name string
		s    StateVector
		mu   float64
		want error
	}{
		{"zero position", StateVector{V: r3.Vec{Y: 7}}, EarthMu, ErrInvalidState},
		{"NaN velocity", StateVector{R: r3.Vec{X: 7000}, V: r3.Vec{Y: math.NaN()}}, EarthMu, ErrInvalidState},
		{"zero mu", StateVector{R: r3.Vec{X: 7000}, V: r3.Vec{Y: 7}}, 0, ErrInvalidState},
		{"radial", StateVector{R: r3.Vec{X: 7000}, V: r3.Vec{X: 3}}, EarthMu, ErrRectilinear},
		{"escape", StateVector{R: r3.Vec{X: 7000}, V: r3.Vec{Y: 11.5}}, EarthMu, ErrUnbound},
		{"just above escape", StateVector{R: r3.Vec{X: 7000}, V: r3.Vec{Y: 1.0001 * math.Sqrt(2*EarthMu/7000)}}, EarthMu, ErrUnbound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := StateToElements(tt.s, tt.mu)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPropagateUnbound(t *testing.T) {
	for _, el := range []Elements{
		{A: 7000, E: 1.2, Mu: EarthMu},
		{A: -7000, E: 0.1, Mu: EarthMu},
	} {
		if _, err := Propagate(el, epoch); !errors.Is(err, ErrUnbound) {
			t.Errorf("Propagate(%+v) err = %v, want ErrUnbound", el, err)
		}
	}
}

func TestAngleBetween(t *testing.T) {
	x := r3.Vec{X: 1}
	tests := []struct {
		name string
		b    r3.Vec
		sign float64
		want float64
	}{
		{"same", r3.Vec{X: 2}, 1, 0},
		{"quarter positive", r3.Vec{Y: 1}, 1, math.Pi / 2},
		{"quarter negative", r3.Vec{Y: -1}, -1, 3 * math.Pi / 2},
		{"opposite", r3.Vec{X: -1}, 1, math.Pi},
		{"zero sign keeps first half", r3.Vec{X: 1, Y: 1}, 0, math.Pi / 4},
		{"same negative sign wraps to zero", r3.Vec{X: 3}, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AngleBetween(x, tt.b, tt.sign)
			if !scalar.EqualWithinAbs(got, tt.want, 1e-12) {
				t.Errorf("AngleBetween = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestPeriod(t *testing.T) {
	// Geostationary radius gives one sidereal day.
	got := Period(42164.17, EarthMu)
	if !scalar.EqualWithinAbs(got, 86164.09, 1) {
		t.Errorf("Period = %.2f s, want 86164.09 s", got)
	}
	el := Elements{A: 42164.17, Mu: EarthMu}
	if d := el.Period(); d < 23*time.Hour+55*time.Minute || d > 23*time.Hour+57*time.Minute {
		t.Errorf("Elements.Period() = %v", d)
	}
}

func TestPerifocalToInertial(t *testing.T) {
	m := PerifocalToInertial(0.4, 1.0, 2.2)
	p := MxV33(m, r3.Vec{X: 1})
	q := MxV33(m, r3.Vec{Y: 1})
	w := MxV33(m, r3.Vec{Z: 1})

	for name, v := range map[string]r3.Vec{"P": p, "Q": q, "W": w} {
		if !scalar.EqualWithinAbs(r3.Norm(v), 1, 1e-12) {
			t.Errorf("%s not unit: %f", name, r3.Norm(v))
		}
	}
	if !vecClose(r3.Cross(p, q), w, 1e-12) {
		t.Error("P × Q != W")
	}
	// W is the orbit normal: inclination from z, node at RAAN.
	if !scalar.EqualWithinAbs(math.Acos(w.Z), 1.0, 1e-12) {
		t.Errorf("normal inclination = %f, want 1.0", math.Acos(w.Z))
	}
	node := math.Atan2(w.X, -w.Y)
	if !scalar.EqualWithinAbs(node, 0.4, 1e-12) {
		t.Errorf("node = %f, want 0.4", node)
	}
}
