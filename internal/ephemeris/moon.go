package ephemeris

import (
	"math"

	"github.com/vsr83/WebGLGlobeTest/internal/timescale"
	"gonum.org/v1/gonum/spatial/r3"
)

// Ecliptic holds geocentric ecliptic coordinates of date.
type Ecliptic struct {
	Lon      float64 // radians, [0, 2π)
	Lat      float64 // radians
	Distance float64 // km, centre to centre
}

// lunarTerm is one periodic term of the lunar series. The multipliers apply
// to D, M, M′ and F; coefficients are in 1e-6 degree (lon, lat) and metres
// (dist).
type lunarTerm struct {
	d, m, mp, f int
	coeff       float64
}

// Largest terms of Meeus, Astronomical Algorithms, tables 47.A and 47.B.
var lonTerms = []lunarTerm{
	{0, 0, 1, 0, 6288774},
	{2, 0, -1, 0, 1274027},
	{2, 0, 0, 0, 658314},
	{0, 0, 2, 0, 213618},
	{0, 1, 0, 0, -185116},
	{0, 0, 0, 2, -114332},
	{2, 0, -2, 0, 58793},
	{2, -1, -1, 0, 57066},
	{2, 0, 1, 0, 53322},
	{2, -1, 0, 0, 45758},
	{0, 1, -1, 0, -40923},
	{1, 0, 0, 0, -34720},
	{0, 1, 1, 0, -30383},
	{2, 0, 0, -2, 15327},
	{0, 0, 1, 2, -12528},
	{0, 0, 1, -2, 10980},
	{4, 0, -1, 0, 10675},
	{0, 0, 3, 0, 10034},
	{4, 0, -2, 0, 8548},
	{2, 1, -1, 0, -7888},
	{2, 1, 0, 0, -6766},
	{1, 0, -1, 0, -5163},
	{1, 1, 0, 0, 4987},
	{2, -1, 1, 0, 4036},
	{2, 0, 2, 0, 3994},
}

var distTerms = []lunarTerm{
	{0, 0, 1, 0, -20905355},
	{2, 0, -1, 0, -3699111},
	{2, 0, 0, 0, -2955968},
	{0, 0, 2, 0, -569925},
	{0, 1, 0, 0, 48888},
	{0, 0, 0, 2, -3149},
	{2, 0, -2, 0, 246158},
	{2, -1, -1, 0, -152138},
	{2, 0, 1, 0, -170733},
	{2, -1, 0, 0, -204586},
	{0, 1, -1, 0, -129620},
	{1, 0, 0, 0, 108743},
	{0, 1, 1, 0, 104755},
	{2, 0, 0, -2, 10321},
	{0, 0, 1, -2, 79661},
	{4, 0, -1, 0, -34782},
	{0, 0, 3, 0, -23210},
	{4, 0, -2, 0, -21636},
	{2, 1, -1, 0, 24208},
	{2, 1, 0, 0, 30824},
	{1, 0, -1, 0, -8379},
	{1, 1, 0, 0, -16675},
	{2, -1, 1, 0, -12831},
	{2, 0, 2, 0, -10445},
}

var latTerms = []lunarTerm{
	{0, 0, 0, 1, 5128122},
	{0, 0, 1, 1, 280602},
	{0, 0, 1, -1, 277693},
	{2, 0, 0, -1, 173237},
	{2, 0, -1, 1, 55413},
	{2, 0, -1, -1, 46271},
	{2, 0, 0, 1, 32573},
	{0, 0, 2, 1, 17198},
	{2, 0, 1, -1, 9266},
	{0, 0, 2, -1, 8822},
	{2, -1, 0, -1, 8216},
	{2, 0, -2, -1, 4324},
	{2, 0, 1, 1, 4200},
}

// MoonEcliptic returns the geocentric ecliptic position of the Moon using
// the main periodic terms of the ELP-2000/82 based series in Meeus ch. 47.
func MoonEcliptic(jt timescale.JulianTime) Ecliptic {
	t := jt.Centuries()
	t2 := t * t
	t3 := t2 * t
	t4 := t3 * t

	lp := 218.3164477 + 481267.88123421*t - 0.0015786*t2 + t3/538841 - t4/65194000
	d := 297.8501921 + 445267.1114034*t - 0.0018819*t2 + t3/545868 - t4/113065000
	m := 357.5291092 + 35999.0502909*t - 0.0001536*t2 + t3/24490000
	mp := 134.9633964 + 477198.8675055*t + 0.0087414*t2 + t3/69699 - t4/14712000
	f := 93.2720950 + 483202.0175233*t - 0.0036539*t2 - t3/3526000 + t4/863310000

	a1 := (119.75 + 131.849*t) * deg
	a2 := (53.09 + 479264.290*t) * deg
	a3 := (313.45 + 481266.484*t) * deg

	// Terms involving the solar anomaly shrink with the Earth's orbital eccentricity.
	e := 1 - 0.002516*t - 0.0000074*t2

	arg := func(tm lunarTerm) (float64, float64) {
		x := (float64(tm.d)*d + float64(tm.m)*m + float64(tm.mp)*mp + float64(tm.f)*f) * deg
		switch tm.m {
		case 1, -1:
			return x, tm.coeff * e
		case 2, -2:
			return x, tm.coeff * e * e
		}
		return x, tm.coeff
	}

	var sl, sb, sr float64
	for _, tm := range lonTerms {
		x, c := arg(tm)
		sl += c * math.Sin(x)
	}
	for _, tm := range latTerms {
		x, c := arg(tm)
		sb += c * math.Sin(x)
	}
	for _, tm := range distTerms {
		x, c := arg(tm)
		sr += c * math.Cos(x)
	}

	lpr, mpr, fr := lp*deg, mp*deg, f*deg
	sl += 3958*math.Sin(a1) + 1962*math.Sin(lpr-fr) + 318*math.Sin(a2)
	sb += -2235*math.Sin(lpr) + 382*math.Sin(a3) + 175*math.Sin(a1-fr) +
		175*math.Sin(a1+fr) + 127*math.Sin(lpr-mpr) - 115*math.Sin(lpr+mpr)

	return Ecliptic{
		Lon:      timescale.ReduceRad((lp + sl/1e6) * deg),
		Lat:      (sb / 1e6) * deg,
		Distance: 385000.56 + sr/1000,
	}
}

// Moon returns the geocentric equatorial coordinates of the Moon, rotated
// from the ecliptic with the mean obliquity of date.
func Moon(jt timescale.JulianTime) Equatorial {
	ecl := MoonEcliptic(jt)
	eps := MeanObliquity(jt)

	sinL, cosL := math.Sincos(ecl.Lon)
	sinB, cosB := math.Sincos(ecl.Lat)
	sinE, cosE := math.Sincos(eps)

	return Equatorial{
		RA:   timescale.ReduceRad(math.Atan2(sinL*cosE-(sinB/cosB)*sinE, cosL)),
		Decl: math.Asin(sinB*cosE + cosB*sinE*sinL),
	}
}

// MoonDirection returns the unit vector from the Earth's centre to the Moon.
func MoonDirection(jt timescale.JulianTime) r3.Vec {
	return Moon(jt).Direction()
}

// MoonPosition returns the geocentric position of the Moon in km.
func MoonPosition(jt timescale.JulianTime) r3.Vec {
	return r3.Scale(MoonEcliptic(jt).Distance, MoonDirection(jt))
}

// MeanObliquity returns the mean obliquity of the ecliptic in radians.
func MeanObliquity(jt timescale.JulianTime) float64 {
	t := jt.Centuries()
	return (23.4392911 - 0.0130042*t) * deg
}

// Phase describes the Moon's illumination as seen from the Earth.
type Phase struct {
	Elongation   float64 `json:"elongation"`   // Sun to Moon ecliptic longitude difference, radians [0, 2π)
	Illumination float64 `json:"illumination"` // illuminated fraction [0, 1]
	Waxing       bool    `json:"waxing"`
}

// MoonPhase returns the lunar phase from the elongation of the Moon from the
// Sun in ecliptic longitude.
func MoonPhase(jt timescale.JulianTime) Phase {
	sun := SunEclipticLon(jt)
	moon := MoonEcliptic(jt).Lon
	el := timescale.ReduceRad(moon - sun)
	return Phase{
		Elongation:   el,
		Illumination: (1 - math.Cos(el)) / 2,
		Waxing:       el < math.Pi,
	}
}

// SunEclipticLon returns the Sun's apparent ecliptic longitude in radians,
// using the same series as Sun.
func SunEclipticLon(jt timescale.JulianTime) float64 {
	days, frac := jt.DaysSinceJ2000()
	n := float64(days) + frac
	l := 280.460 + 0.9856474*n
	g := (357.528 + 0.9856003*n) * deg
	return timescale.ReduceRad((l + 1.915*math.Sin(g) + 0.020*math.Sin(2*g)) * deg)
}
