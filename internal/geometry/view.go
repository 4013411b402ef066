package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/vsr83/WebGLGlobeTest/internal/ephemeris"
	"github.com/vsr83/WebGLGlobeTest/internal/timescale"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Camera distance limits in scene units.
const (
	minDistance = 2.2
	maxDistance = 1000
)

// Mouse drag sensitivity, radians per pixel.
const dragScale = 1.0 / 100.0

// ViewState is the camera of one viewing session.
type ViewState struct {
	FOV      float64 `json:"fov"` // vertical field of view, radians
	Aspect   float64 `json:"aspect"`
	Near     float64 `json:"near"`
	Far      float64 `json:"far"`
	Distance float64 `json:"distance"` // camera distance from the globe centre
	RotX     float64 `json:"rot_x"`
	RotY     float64 `json:"rot_y"`
	RotZ     float64 `json:"rot_z"`
}

// DefaultView looks at the globe from 8 units away with a 30° field of view.
func DefaultView() ViewState {
	return ViewState{
		FOV:      30 * math.Pi / 180,
		Aspect:   1,
		Near:     0.1,
		Far:      5000,
		Distance: 8,
		RotX:     math.Pi / 2,
	}
}

// Validate rejects views that cannot produce a finite projection.
func (v ViewState) Validate() error {
	switch {
	case !(v.FOV > 0 && v.FOV < math.Pi):
		return fmt.Errorf("geometry: fov %v outside (0, π)", v.FOV)
	case !(v.Aspect > 0) || math.IsInf(v.Aspect, 0):
		return fmt.Errorf("geometry: aspect %v must be positive", v.Aspect)
	case !(v.Near > 0) || !(v.Far > v.Near) || math.IsInf(v.Far, 0):
		return fmt.Errorf("geometry: clip planes near=%v far=%v", v.Near, v.Far)
	case !(v.Distance > 0) || math.IsInf(v.Distance, 0):
		return fmt.Errorf("geometry: distance %v must be positive", v.Distance)
	}
	for _, r := range []float64{v.RotX, v.RotY, v.RotZ} {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return errors.New("geometry: rotation must be finite")
		}
	}
	return nil
}

// Drag returns the view after a mouse drag of (dx, dy) pixels. Horizontal
// motion spins the globe about its axis and vertical motion tilts it.
func (v ViewState) Drag(dx, dy float64) ViewState {
	v.RotZ -= dx * dragScale
	v.RotX += dy * dragScale
	return v
}

// Zoom returns the view after a wheel delta. The distance is clamped so the
// camera stays outside the globe.
func (v ViewState) Zoom(delta float64) ViewState {
	v.Distance = math.Max(minDistance, math.Min(maxDistance, v.Distance+delta/1000))
	return v
}

// ViewProjection returns perspective · inverse(lookAt) · Rx · Ry · Rz in
// column-major order, ready for gl.uniformMatrix4fv.
func ViewProjection(v ViewState) ([16]float32, error) {
	if err := v.Validate(); err != nil {
		return [16]float32{}, err
	}

	camera := lookAt(r3.Vec{Z: v.Distance}, r3.Vec{}, r3.Vec{Y: 1})
	var view mat.Dense
	if err := view.Inverse(camera); err != nil {
		return [16]float32{}, fmt.Errorf("geometry: invert camera: %w", err)
	}

	var m mat.Dense
	m.Product(perspective(v.FOV, v.Aspect, v.Near, v.Far), &view, rotX(v.RotX), rotY(v.RotY), rotZ(v.RotZ))
	return columnMajor(&m), nil
}

func perspective(fov, aspect, near, far float64) *mat.Dense {
	f := math.Tan(math.Pi/2 - fov/2)
	rangeInv := 1 / (near - far)
	return mat.NewDense(4, 4, []float64{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, (near + far) * rangeInv, 2 * near * far * rangeInv,
		0, 0, -1, 0,
	})
}

// lookAt returns the camera-to-world matrix of a camera at eye looking at target.
func lookAt(eye, target, up r3.Vec) *mat.Dense {
	z := r3.Unit(r3.Sub(eye, target))
	x := r3.Unit(r3.Cross(up, z))
	y := r3.Unit(r3.Cross(z, x))
	return mat.NewDense(4, 4, []float64{
		x.X, y.X, z.X, eye.X,
		x.Y, y.Y, z.Y, eye.Y,
		x.Z, y.Z, z.Z, eye.Z,
		0, 0, 0, 1,
	})
}

func rotX(a float64) *mat.Dense {
	s, c := math.Sincos(a)
	return mat.NewDense(4, 4, []float64{1, 0, 0, 0, 0, c, -s, 0, 0, s, c, 0, 0, 0, 0, 1})
}

func rotY(a float64) *mat.Dense {
	s, c := math.Sincos(a)
	return mat.NewDense(4, 4, []float64{c, 0, s, 0, 0, 1, 0, 0, -s, 0, c, 0, 0, 0, 0, 1})
}

func rotZ(a float64) *mat.Dense {
	s, c := math.Sincos(a)
	return mat.NewDense(4, 4, []float64{c, -s, 0, 0, s, c, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1})
}

func columnMajor(m mat.Matrix) [16]float32 {
	var out [16]float32
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			out[col*4+row] = float32(m.At(row, col))
		}
	}
	return out
}

// Uniforms are the per-frame renderer inputs narrowed to float32.
type Uniforms struct {
	Matrix  [16]float32 `json:"matrix"`
	SunRA   float32     `json:"sun_ra"`
	SunDecl float32     `json:"sun_decl"`
	LST     float32     `json:"lst"`
}

// NewUniforms narrows the frame state. The sidereal angle is reduced into
// [0, 2π) before the conversion so float32 keeps its precision.
func NewUniforms(matrix [16]float32, sun ephemeris.Equatorial, lst float64) Uniforms {
	return Uniforms{
		Matrix:  matrix,
		SunRA:   float32(sun.RA),
		SunDecl: float32(sun.Decl),
		LST:     float32(timescale.ReduceRad(lst)),
	}
}

// SceneScale returns the factor converting km into scene units for a globe
// drawn with equatorial radius radius.
func SceneScale(radius, earthRadiusKm float64) float64 {
	return radius / earthRadiusKm
}

// ToScene converts a position in km to float32 scene coordinates.
func ToScene(r r3.Vec, scale float64) [3]float32 {
	return [3]float32{float32(r.X * scale), float32(r.Y * scale), float32(r.Z * scale)}
}
