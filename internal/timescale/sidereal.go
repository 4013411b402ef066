package timescale

import "math"

// EarthRotationDegPerDay is the sidereal rotation of the Earth per mean solar day.
const EarthRotationDegPerDay = 360.98564736629

// SiderealTime returns Greenwich sidereal time in degrees, reduced into [0, 360).
//
// Uses the IAU-1982 expression as given by Meeus (Astronomical Algorithms, 12.4):
//
//	θ = 280.46061837 + 360.98564736629·d + 0.000387933·T² − T³/38710000
//
// where d is days since J2000.0 and T the same in Julian centuries. The
// nutation argument is the equation of the equinoxes in degrees; zero gives
// mean sidereal time. Whole days only contribute their 0.98564736629° excess
// over a full turn, so the large 360°·d term never enters the sum.
func SiderealTime(nutation float64, jt JulianTime) float64 {
	days, frac := jt.DaysSinceJ2000()
	t := jt.Centuries()

	θ := 280.46061837 +
		(EarthRotationDegPerDay-360.0)*float64(days) +
		EarthRotationDegPerDay*frac +
		0.000387933*t*t -
		t*t*t/38710000.0 +
		nutation

	return reduceDeg(θ)
}

// SiderealAngle returns Greenwich mean sidereal time in radians, reduced
// into [0, 2π). This is the value rotated into FrameTransform and narrowed
// into the renderer's sidereal uniform.
func SiderealAngle(jt JulianTime) float64 {
	return ReduceRad(SiderealTime(0, jt) * math.Pi / 180.0)
}

// reduceDeg wraps an angle in degrees into [0, 360).
func reduceDeg(deg float64) float64 {
	deg = math.Mod(deg, 360.0)
	if deg < 0 {
		deg += 360.0
	}
	return deg
}

// ReduceRad wraps an angle in radians into [0, 2π).
func ReduceRad(rad float64) float64 {
	rad = math.Mod(rad, 2*math.Pi)
	if rad < 0 {
		rad += 2 * math.Pi
	}
	return rad
}
