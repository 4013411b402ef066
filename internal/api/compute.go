package api

import (
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/vsr83/WebGLGlobeTest/internal/ephemeris"
	"github.com/vsr83/WebGLGlobeTest/internal/geometry"
	"github.com/vsr83/WebGLGlobeTest/internal/httputil"
	"github.com/vsr83/WebGLGlobeTest/internal/illumination"
	"github.com/vsr83/WebGLGlobeTest/internal/scene"
	"github.com/vsr83/WebGLGlobeTest/internal/timescale"
	"github.com/vsr83/WebGLGlobeTest/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// maxTerminatorPoints bounds the n parameter of /api/v1/illumination.
const maxTerminatorPoints = 3600

type timeResponse struct {
	Time        time.Time `json:"time"`
	JD          int       `json:"jd"`
	JT          float64   `json:"jt"`
	JulianDate  float64   `json:"julian_date"`
	SiderealDeg float64   `json:"sidereal_deg"`
	SiderealRad float64   `json:"sidereal_rad"`
}

// timeHandler serves GET /api/v1/time?t=2026-03-20T12:00:00Z.
func timeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := parseTime(r.URL.Query(), time.Now())
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		jt := timescale.FromTime(t)
		httputil.WriteJSON(w, http.StatusOK, timeResponse{
			Time:        t.UTC(),
			JD:          jt.JD,
			JT:          jt.JT,
			JulianDate:  jt.Date(),
			SiderealDeg: timescale.SiderealTime(0, jt),
			SiderealRad: timescale.SiderealAngle(jt),
		})
	}
}

type ephemerisResponse struct {
	Time           time.Time            `json:"time"`
	Sun            ephemeris.Equatorial `json:"sun"`
	SunDirection   [3]float64           `json:"sun_direction"`
	Moon           ephemeris.Equatorial `json:"moon"`
	MoonDirection  [3]float64           `json:"moon_direction"`
	MoonDistanceKm float64              `json:"moon_distance_km"`
	MoonPhase      ephemeris.Phase      `json:"moon_phase"`
	Subsolar       transform.Geodetic   `json:"subsolar"`
}

// ephemerisHandler serves GET /api/v1/ephemeris?t=….
func ephemerisHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := parseTime(r.URL.Query(), time.Now())
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		env := scene.Environment(t)
		moon := ephemeris.MoonPosition(timescale.FromTime(t))
		httputil.WriteJSON(w, http.StatusOK, ephemerisResponse{
			Time:           env.Time,
			Sun:            env.Sun,
			SunDirection:   env.SunDirection,
			Moon:           env.Moon,
			MoonDirection:  env.MoonDirection,
			MoonDistanceKm: r3.Norm(moon),
			MoonPhase:      env.MoonPhase,
			Subsolar:       env.Subsolar,
		})
	}
}

type illuminationResponse struct {
	Time       time.Time            `json:"time"`
	Lat        float64              `json:"lat"`
	Lon        float64              `json:"lon"`
	Sample     illumination.Sample  `json:"sample"`
	Subsolar   transform.Geodetic   `json:"subsolar"`
	Terminator []transform.Geodetic `json:"terminator"`
}

// illuminationHandler serves GET /api/v1/illumination?lat=60&lon=25&t=…&n=180.
// lat and lon are degrees; n is the number of terminator points.
func illuminationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		t, err := parseTime(q, time.Now())
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		lat, err := floatParam(q, "lat", 0, -90, 90)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		lon, err := floatParam(q, "lon", 0, -180, 180)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		n, err := intParam(q, "n", scene.TerminatorPoints, 0, maxTerminatorPoints)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, map[string]any{
				"error":      err.Error(),
				"max_points": maxTerminatorPoints,
			})
			return
		}

		jt := timescale.FromTime(t)
		sun := ephemeris.Sun(jt)
		lst := timescale.SiderealAngle(jt)
		sLon, sLat := illumination.Subsolar(sun, lst)

		resp := illuminationResponse{
			Time:     t.UTC(),
			Lat:      lat,
			Lon:      lon,
			Sample:   illumination.Evaluate(lon*math.Pi/180, lat*math.Pi/180, sun, lst),
			Subsolar: transform.Geodetic{Lon: sLon, Lat: sLat},
		}
		if n > 0 {
			resp.Terminator = illumination.Terminator(sun, lst, n)
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

type geometryResponse struct {
	Ellipsoid geometry.Ellipsoid `json:"ellipsoid"`
	geometry.Mesh
}

// geometryHandler serves GET /api/v1/geometry?n_lon=150&n_lat=150&a=2&b=2.
// Unset parameters come from the configured globe. Meshes above
// MaxSegments per axis are rejected with 400.
func geometryHandler(logger *slog.Logger, globe geometry.Ellipsoid) http.HandlerFunc {
	if globe == (geometry.Ellipsoid{}) {
		globe = geometry.DefaultEllipsoid
	}
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		e := globe
		var err error
		if e.NLon, err = intParam(q, "n_lon", e.NLon, 1, geometry.MaxSegments); err == nil {
			e.NLat, err = intParam(q, "n_lat", e.NLat, 1, geometry.MaxSegments)
		}
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, map[string]any{
				"error":        err.Error(),
				"max_segments": geometry.MaxSegments,
			})
			return
		}
		if e.A, err = floatParam(q, "a", e.A, 0, math.MaxFloat64); err == nil {
			e.B, err = floatParam(q, "b", e.B, 0, math.MaxFloat64)
		}
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		mesh, err := e.Mesh()
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Debug("mesh generated", "n_lon", e.NLon, "n_lat", e.NLat, "triangles", mesh.Triangles)
		httputil.WriteJSON(w, http.StatusOK, geometryResponse{Ellipsoid: e, Mesh: mesh})
	}
}
