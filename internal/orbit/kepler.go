package orbit

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	keplerTol     = 1e-12
	keplerMaxIter = 50
)

// SolveKepler solves M = E − e·sin E for the eccentric anomaly with
// Newton-Raphson. M is reduced into [0, 2π) first. The initial guess is M for
// e < 0.8 and π otherwise.
func SolveKepler(m, e float64) (float64, error) {
	if math.IsNaN(m) || math.IsInf(m, 0) || e < 0 || math.IsNaN(e) {
		return 0, fmt.Errorf("%w: M=%v e=%v", ErrNoConvergence, m, e)
	}
	if e >= 1 {
		return 0, fmt.Errorf("%w: e=%.6f", ErrUnbound, e)
	}
	m = wrap2π(m)

	ea := m
	if e >= 0.8 {
		ea = math.Pi
	}
	for i := 0; i < keplerMaxIter; i++ {
		sinE, cosE := math.Sincos(ea)
		δ := (ea - e*sinE - m) / (1 - e*cosE)
		ea -= δ
		if math.Abs(δ) < keplerTol {
			return ea, nil
		}
	}
	return 0, fmt.Errorf("%w: M=%.12f e=%.12f after %d iterations", ErrNoConvergence, m, e, keplerMaxIter)
}

// Propagate returns the inertial state of el at time t.
func Propagate(el Elements, t time.Time) (StateVector, error) {
	if !(el.Mu > 0) || el.E < 0 || math.IsNaN(el.A) || math.IsNaN(el.E) {
		return StateVector{}, ErrInvalidState
	}
	if el.E >= 1 || el.A <= 0 {
		return StateVector{}, fmt.Errorf("%w: a=%.3f e=%.6f", ErrUnbound, el.A, el.E)
	}

	dt := t.Sub(el.Epoch).Seconds()
	m := wrap2π(el.MeanAnomaly + el.MeanMotion()*dt)
	ea, err := SolveKepler(m, el.E)
	if err != nil {
		return StateVector{}, fmt.Errorf("propagate to %s: %w", t.UTC().Format(time.RFC3339), err)
	}

	e := el.E
	sinE, cosE := math.Sincos(ea)
	sq := math.Sqrt(1 - e*e)
	nu := math.Atan2(sq*sinE, cosE-e)

	p := el.A * (1 - e*e)
	r := el.A * (1 - e*cosE)
	sinNu, cosNu := math.Sincos(nu)
	vScale := math.Sqrt(el.Mu / p)

	rot := PerifocalToInertial(el.RAAN, el.I, el.ArgPeriapsis)
	return StateVector{
		R:     MxV33(rot, r3.Vec{X: r * cosNu, Y: r * sinNu}),
		V:     MxV33(rot, r3.Vec{X: -vScale * sinNu, Y: vScale * (e + cosNu)}),
		Epoch: t,
	}, nil
}

// Sample propagates el to n instants evenly spaced over [start, start+span).
// A span of one period yields a closed ring without a duplicated end point.
func Sample(el Elements, start time.Time, span time.Duration, n int) ([]StateVector, error) {
	if n < 1 {
		return nil, fmt.Errorf("orbit: sample count %d must be positive", n)
	}
	step := span / time.Duration(n)
	out := make([]StateVector, 0, n)
	for k := 0; k < n; k++ {
		s, err := Propagate(el, start.Add(time.Duration(k)*step))
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", k, err)
		}
		out = append(out, s)
	}
	return out, nil
}
