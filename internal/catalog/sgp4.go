package catalog

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/vsr83/WebGLGlobeTest/internal/orbit"
	"gonum.org/v1/gonum/spatial/r3"
)

// StateFromTLE runs SGP4 once at the element set epoch (truncated to the
// second) and returns the resulting TEME state, which is used as the
// inertial state of the object from then on.
//
// Pre-validates the lines because go-satellite calls log.Fatal on
// malformed input.
func StateFromTLE(entry TLEEntry) (orbit.StateVector, error) {
	if err := validateTLELines(entry.Line1, entry.Line2); err != nil {
		return orbit.StateVector{}, fmt.Errorf("invalid TLE for object %d: %w", entry.ID, err)
	}

	sat := satellite.TLEToSat(strings.TrimSpace(entry.Line1), strings.TrimSpace(entry.Line2), satellite.GravityWGS84)
	if sat.Error != 0 {
		return orbit.StateVector{}, fmt.Errorf("sgp4 init failed for object %d: code=%d %s", entry.ID, sat.Error, sat.ErrorStr)
	}

	t := entry.Epoch.UTC().Truncate(time.Second)
	pos, vel := satellite.Propagate(sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	state := orbit.StateVector{
		R:     r3.Vec{X: pos.X, Y: pos.Y, Z: pos.Z},
		V:     r3.Vec{X: vel.X, Y: vel.Y, Z: vel.Z},
		Epoch: t,
	}
	if err := checkState(state); err != nil {
		return orbit.StateVector{}, fmt.Errorf("sgp4 propagation failed for object %d: %w", entry.ID, err)
	}
	return state, nil
}

// validateTLELines performs basic format validation on TLE lines.
func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// checkState rejects NaN/Inf output and positions inside the Earth.
func checkState(s orbit.StateVector) error {
	for _, c := range []float64{s.R.X, s.R.Y, s.R.Z, s.V.X, s.V.Y, s.V.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("state is NaN/Inf")
		}
	}
	if mag := r3.Norm(s.R); mag < 6200.0 {
		return fmt.Errorf("unreasonable position magnitude %.1f km", mag)
	}
	return nil
}
