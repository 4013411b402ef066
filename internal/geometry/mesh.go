// Package geometry produces the renderer-side inputs: the textured
// ellipsoid mesh, the camera matrix and the narrowed per-frame uniforms.
//
// All buffers are float32 in the layout WebGL expects so the frontend can
// upload them without conversion.
package geometry

import (
	"fmt"
	"math"
)

// MaxSegments bounds NLon and NLat of a requested mesh.
const MaxSegments = 720

// Ellipsoid describes a tessellated ellipsoid of revolution in scene units.
type Ellipsoid struct {
	A    float64 `json:"a"`     // equatorial radius
	B    float64 `json:"b"`     // polar radius
	NLon int     `json:"n_lon"` // longitude segments
	NLat int     `json:"n_lat"` // latitude segments
}

// DefaultEllipsoid is the globe drawn by the web host.
var DefaultEllipsoid = Ellipsoid{A: 2, B: 2, NLon: 150, NLat: 150}

// Mesh holds interleaving-free vertex and texture coordinate buffers for
// gl.TRIANGLES. Vertices has 3 floats per vertex, TexCoords 2.
type Mesh struct {
	Vertices  []float32 `json:"vertices"`
	TexCoords []float32 `json:"texcoords"`
	Triangles int       `json:"triangles"`
}

// Validate checks the ellipsoid dimensions and the segment budget.
func (e Ellipsoid) Validate() error {
	if !(e.A > 0) || !(e.B > 0) || math.IsInf(e.A, 0) || math.IsInf(e.B, 0) {
		return fmt.Errorf("geometry: radii must be positive, got a=%v b=%v", e.A, e.B)
	}
	if e.NLon < 1 || e.NLat < 1 || e.NLon > MaxSegments || e.NLat > MaxSegments {
		return fmt.Errorf("geometry: segments must be in [1, %d], got %dx%d", MaxSegments, e.NLon, e.NLat)
	}
	return nil
}

// Mesh tessellates the ellipsoid into NLon×NLat quads of two triangles.
//
// Quad (lonStep, latStep) has corners p1=(lon, lat), p2=(lon', lat),
// p3=(lon', lat') and p4=(lon, lat') and is emitted as (p1,p2,p3),(p1,p3,p4)
// at index latStep + lonStep·NLat. Longitudes run over [0, 2π], latitudes
// over [−π/2, π/2]. Texture coordinates are u = 1 − lon/2π, v = lat/π + 0.5.
func (e Ellipsoid) Mesh() (Mesh, error) {
	if err := e.Validate(); err != nil {
		return Mesh{}, err
	}

	quads := e.NLon * e.NLat
	m := Mesh{
		Vertices:  make([]float32, quads*6*3),
		TexCoords: make([]float32, quads*6*2),
		Triangles: quads * 2,
	}

	for lonStep := 0; lonStep < e.NLon; lonStep++ {
		lon := 2 * math.Pi * float64(lonStep) / float64(e.NLon)
		lonNext := 2 * math.Pi * float64(lonStep+1) / float64(e.NLon)

		for latStep := 0; latStep < e.NLat; latStep++ {
			lat := math.Pi * (-0.5 + float64(latStep)/float64(e.NLat))
			latNext := math.Pi * (-0.5 + float64(latStep+1)/float64(e.NLat))

			q := latStep + lonStep*e.NLat
			e.putQuad(m.Vertices[q*18:q*18+18], lon, lonNext, lat, latNext)
			putQuadTex(m.TexCoords[q*12:q*12+12], lon, lonNext, lat, latNext)
		}
	}
	return m, nil
}

func (e Ellipsoid) point(lon, lat float64) (x, y, z float32) {
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)
	return float32(e.A * cosLat * cosLon), float32(e.A * cosLat * sinLon), float32(e.B * sinLat)
}

func (e Ellipsoid) putQuad(dst []float32, lon0, lon1, lat0, lat1 float64) {
	x1, y1, z1 := e.point(lon0, lat0)
	x2, y2, z2 := e.point(lon1, lat0)
	x3, y3, z3 := e.point(lon1, lat1)
	x4, y4, z4 := e.point(lon0, lat1)
	copy(dst, []float32{
		x1, y1, z1, x2, y2, z2, x3, y3, z3,
		x1, y1, z1, x3, y3, z3, x4, y4, z4,
	})
}

func putQuadTex(dst []float32, lon0, lon1, lat0, lat1 float64) {
	u0 := float32(1 - lon0/(2*math.Pi))
	u1 := float32(1 - lon1/(2*math.Pi))
	v0 := float32(lat0/math.Pi + 0.5)
	v1 := float32(lat1/math.Pi + 0.5)
	copy(dst, []float32{
		u0, v0, u1, v0, u1, v1,
		u0, v0, u1, v1, u0, v1,
	})
}
