// Package timescale converts wall-clock instants to the split Julian day
// representation and computes Greenwich sidereal time.
//
// A JulianTime keeps the integer day number and the fraction of the day
// apart. The full Julian Date is JD − 0.5 + JT; the split form is kept all
// the way into the sidereal and ephemeris computations so that no precision
// is lost to the ~2.45e6 magnitude of the day count before values are
// narrowed to float32 shader uniforms.
package timescale

import (
	"math"
	"time"
)

// J2000 is the Julian Day Number of the J2000.0 reference epoch
// (2000-01-01 12:00 TT).
const J2000 = 2451545

// DaysPerCentury is the length of a Julian century in days.
const DaysPerCentury = 36525.0

// JulianTime is a Julian Day Number plus the fraction of the day elapsed
// since 0h UT of that calendar date.
type JulianTime struct {
	JD int     // Julian Day Number of the UTC calendar date
	JT float64 // fraction of the day since 0h UT, in [0, 1)
}

// JulianDay returns the Julian Day Number of a Gregorian calendar date.
//
// January and February are counted as months 13 and 14 of the previous
// year so the leap day falls at the end of the counting year. The result is
// the Julian Date at 12h UT of the given date, so JulianDay(2000, 1, 1) is
// 2451545 (J2000.0). Valid for all dates after 4801 BC.
func JulianDay(year, month, day int) int {
	a := (14 - month) / 12
	y := year + 4800 - a
	m := month + 12*a - 3

	return day + (153*m+2)/5 + 365*y + floorDiv(y, 4) - floorDiv(y, 100) + floorDiv(y, 400) - 32045
}

// floorDiv is integer division rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// FromTime converts a wall-clock instant to a JulianTime. The instant is
// converted to UTC first.
func FromTime(t time.Time) JulianTime {
	t = t.UTC()
	h := float64(t.Hour())
	m := float64(t.Minute())
	s := float64(t.Second())
	ms := float64(t.Nanosecond()) / 1e6

	return JulianTime{
		JD: JulianDay(t.Year(), int(t.Month()), t.Day()),
		JT: (h + m/60.0 + s/3600.0 + ms/3.6e6) / 24.0,
	}
}

// Date returns the full Julian Date as a single float64.
func (j JulianTime) Date() float64 {
	return float64(j.JD) - 0.5 + j.JT
}

// DaysSinceJ2000 returns the elapsed days since J2000.0 as a whole-day count
// and a fraction in [-0.5, 0.5). Their sum is the exact offset.
func (j JulianTime) DaysSinceJ2000() (days int, frac float64) {
	return j.JD - J2000, j.JT - 0.5
}

// Centuries returns Julian centuries elapsed since J2000.0.
func (j JulianTime) Centuries() float64 {
	days, frac := j.DaysSinceJ2000()
	return (float64(days) + frac) / DaysPerCentury
}

// Time converts back to a UTC time.Time.
func (j JulianTime) Time() time.Time {
	// 2440588 is the day number of 1970-01-01.
	days := j.JD - 2440588
	nanos := math.Round(j.JT * 86400e9)
	return time.Unix(int64(days)*86400, 0).UTC().Add(time.Duration(nanos))
}
