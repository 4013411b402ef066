// Package scene assembles everything the renderer needs for one frame:
// time, Sun and Moon, Earth rotation, tracked objects with their
// illumination, and the narrowed shader uniforms.
package scene

import (
	"time"

	"github.com/vsr83/WebGLGlobeTest/internal/ephemeris"
	"github.com/vsr83/WebGLGlobeTest/internal/illumination"
	"github.com/vsr83/WebGLGlobeTest/internal/timescale"
	"github.com/vsr83/WebGLGlobeTest/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// TerminatorPoints is the number of terminator samples in an Env.
const TerminatorPoints = 180

// Env is the object-independent state of the sky and the Earth at an instant.
type Env struct {
	Time        time.Time `json:"time"`
	JD          int       `json:"jd"`
	JT          float64   `json:"jt"`
	JulianDate  float64   `json:"julian_date"`
	SiderealRad float64   `json:"sidereal_rad"`
	SiderealDeg float64   `json:"sidereal_deg"`

	Sun           ephemeris.Equatorial `json:"sun"`
	Moon          ephemeris.Equatorial `json:"moon"`
	MoonPhase     ephemeris.Phase      `json:"moon_phase"`
	SunDirection  [3]float64           `json:"sun_direction"`
	MoonDirection [3]float64           `json:"moon_direction"`

	Subsolar   transform.Geodetic   `json:"subsolar"`
	Terminator []transform.Geodetic `json:"terminator"`
}

// Environment computes the frame environment for now. It is a pure
// function of its argument: Time, then Sun and Moon, then the sidereal
// angle, then the subsolar point and terminator.
func Environment(now time.Time) Env {
	jt := timescale.FromTime(now)
	sun := ephemeris.Sun(jt)
	moon := ephemeris.Moon(jt)
	lst := timescale.SiderealAngle(jt)
	lon, lat := illumination.Subsolar(sun, lst)

	return Env{
		Time:          now.UTC(),
		JD:            jt.JD,
		JT:            jt.JT,
		JulianDate:    jt.Date(),
		SiderealRad:   lst,
		SiderealDeg:   timescale.SiderealTime(0, jt),
		Sun:           sun,
		Moon:          moon,
		MoonPhase:     ephemeris.MoonPhase(jt),
		SunDirection:  vec3(sun.Direction()),
		MoonDirection: vec3(moon.Direction()),
		Subsolar:      transform.Geodetic{Lon: lon, Lat: lat},
		Terminator:    illumination.Terminator(sun, lst, TerminatorPoints),
	}
}

func vec3(v r3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

func vecOf(a [3]float64) r3.Vec {
	return r3.Vec{X: a[0], Y: a[1], Z: a[2]}
}
