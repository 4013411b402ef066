package orbit

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// R1 is the frame rotation by x about the first axis.
func R1(x float64) *mat.Dense {
	s, c := math.Sincos(x)
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, c, s, 0, -s, c})
}

// R3 is the frame rotation by x about the third axis.
func R3(x float64) *mat.Dense {
	s, c := math.Sincos(x)
	return mat.NewDense(3, 3, []float64{c, s, 0, -s, c, 0, 0, 0, 1})
}

// PerifocalToInertial returns R3(−Ω)·R1(−i)·R3(−ω), which maps perifocal
// (PQW) vectors to the inertial frame.
func PerifocalToInertial(raan, inc, argp float64) *mat.Dense {
	var tmp, out mat.Dense
	tmp.Mul(R3(-raan), R1(-inc))
	out.Mul(&tmp, R3(-argp))
	return &out
}

// MxV33 multiplies a 3×3 matrix with a vector.
func MxV33(m mat.Matrix, v r3.Vec) r3.Vec {
	var o mat.VecDense
	o.MulVec(m, mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vec{X: o.AtVec(0), Y: o.AtVec(1), Z: o.AtVec(2)}
}
