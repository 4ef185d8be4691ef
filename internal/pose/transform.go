package pose

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Point is a position in millimetres. X=right, Y=back, Z=up (deck frame).
type Point = r3.Vec

// RigidTolerance is the tolerance used when checking that a transform is a
// proper rigid transform (orthonormal rotation, det ≈ 1).
const RigidTolerance = 1e-6

// Transform is a 4x4 homogeneous transform, row-major
// (m00,m01,m02,m03, m10,...,m33), the same layout used for sensor poses.
// The translation part lives in m03, m13, m23.
type Transform [16]float64

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translation returns a pure translation by (dx, dy, dz).
func Translation(dx, dy, dz float64) Transform {
	t := Identity()
	t[3], t[7], t[11] = dx, dy, dz
	return t
}

// RotationZ returns a rotation of rad radians about the Z axis.
func RotationZ(rad float64) Transform {
	c, s := math.Cos(rad), math.Sin(rad)
	return Transform{
		c, -s, 0, 0,
		s, c, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Compose returns t·c. Composing root-to-leaf local transforms in order
// yields the leaf's world transform.
func (t Transform) Compose(c Transform) Transform {
	var out Transform
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += t[row*4+k] * c[k*4+col]
			}
			out[row*4+col] = sum
		}
	}
	return out
}

// Apply transforms the homogeneous point (p.X, p.Y, p.Z, 1).
func (t Transform) Apply(p Point) Point {
	return Point{
		X: t[0]*p.X + t[1]*p.Y + t[2]*p.Z + t[3],
		Y: t[4]*p.X + t[5]*p.Y + t[6]*p.Z + t[7],
		Z: t[8]*p.X + t[9]*p.Y + t[10]*p.Z + t[11],
	}
}

// Origin is Apply of the zero point, i.e. the translation column.
func (t Transform) Origin() Point {
	return Point{X: t[3], Y: t[7], Z: t[11]}
}

// TranslationPart returns the translation component (dx, dy, dz).
func (t Transform) TranslationPart() (dx, dy, dz float64) {
	return t[3], t[7], t[11]
}

// WithTranslation returns a copy of t with its translation replaced.
func (t Transform) WithTranslation(dx, dy, dz float64) Transform {
	t[3], t[7], t[11] = dx, dy, dz
	return t
}

// Inverse returns the inverse transform. A singular matrix yields
// ErrDegenerateTransform.
func (t Transform) Inverse() (Transform, error) {
	m := mat.NewDense(4, 4, t[:])
	det := mat.Det(m)
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return Transform{}, fmt.Errorf("%w: determinant %v", ErrDegenerateTransform, det)
	}

	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return Transform{}, fmt.Errorf("%w: %v", ErrDegenerateTransform, err)
	}

	var out Transform
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			out[row*4+col] = inv.At(row, col)
		}
	}
	return out, nil
}

// Equal reports exact element-wise equality.
func (t Transform) Equal(o Transform) bool {
	return t == o
}

// ApproxEqual reports element-wise equality within eps.
func (t Transform) ApproxEqual(o Transform, eps float64) bool {
	for i := range t {
		if math.Abs(t[i]-o[i]) > eps {
			return false
		}
	}
	return true
}

// IsRigid checks that t is a proper rigid transform:
// 1. Orthonormal rotation submatrix (det ≈ 1)
// 2. Last row is [0 0 0 1]
// 3. No NaN or Inf entries
func (t Transform) IsRigid() bool {
	for _, v := range t {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	r00, r01, r02 := t[0], t[1], t[2]
	r10, r11, r12 := t[4], t[5], t[6]
	r20, r21, r22 := t[8], t[9], t[10]

	det := r00*(r11*r22-r12*r21) - r01*(r10*r22-r12*r20) + r02*(r10*r21-r11*r20)
	if math.Abs(det-1.0) > RigidTolerance {
		return false
	}

	// Columns of R must be unit length and mutually orthogonal.
	cols := [3]r3.Vec{
		{X: r00, Y: r10, Z: r20},
		{X: r01, Y: r11, Z: r21},
		{X: r02, Y: r12, Z: r22},
	}
	for i := 0; i < 3; i++ {
		if math.Abs(r3.Norm(cols[i])-1.0) > RigidTolerance {
			return false
		}
		for j := i + 1; j < 3; j++ {
			if math.Abs(r3.Dot(cols[i], cols[j])) > RigidTolerance {
				return false
			}
		}
	}

	return t[12] == 0 && t[13] == 0 && t[14] == 0 && t[15] == 1
}

func (t Transform) String() string {
	return fmt.Sprintf("[%g %g %g %g; %g %g %g %g; %g %g %g %g; %g %g %g %g]",
		t[0], t[1], t[2], t[3],
		t[4], t[5], t[6], t[7],
		t[8], t[9], t[10], t[11],
		t[12], t[13], t[14], t[15])
}

// PointsApproxEqual reports whether a and b are within eps on every axis.
func PointsApproxEqual(a, b Point, eps float64) bool {
	return math.Abs(a.X-b.X) <= eps && math.Abs(a.Y-b.Y) <= eps && math.Abs(a.Z-b.Z) <= eps
}
