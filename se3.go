package robustpgo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// SE3 is a spatial rigid-body transform stored as a unit quaternion and a
// translation. Its tangent space is ordered [ωx, ωy, ωz, vx, vy, vz].
// The zero value is not a valid pose, use Identity or NewSE3.
type SE3 struct {
	R quat.Number
	T r3.Vec
}

// NewSE3 returns a pose with the provided rotation, normalized, and translation.
func NewSE3(rot quat.Number, t r3.Vec) SE3 {
	return SE3{R: normalizeQuat(rot), T: t}
}

// NewSE3FromAxisAngle returns a pose rotated by angle around axis then translated by t.
func NewSE3FromAxisAngle(angle float64, axis, t r3.Vec) SE3 {
	if angle == 0 || r3.Norm(axis) == 0 {
		return SE3{R: quat.Number{Real: 1}, T: t}
	}
	return NewSE3(quat.Number(r3.NewRotation(angle, axis)), t)
}

// ExpmapSE3 returns the pose for the tangent vector [ω, v].
func ExpmapSE3(xi []float64) SE3 {
	if len(xi) != 6 {
		panic(fmt.Errorf("SE3 tangent vector must have 6 elements, got %d", len(xi)))
	}
	w := r3.Vec{X: xi[0], Y: xi[1], Z: xi[2]}
	v := r3.Vec{X: xi[3], Y: xi[4], Z: xi[5]}
	theta := r3.Norm(w)
	W := skew(w.X, w.Y, w.Z)
	var WW mat.Dense
	WW.Mul(W, W)

	var rot quat.Number
	var a, b float64
	if theta < smallAngle {
		rot = normalizeQuat(quat.Number{Real: 1, Imag: w.X / 2, Jmag: w.Y / 2, Kmag: w.Z / 2})
		a, b = 0.5, 1.0/6
	} else {
		rot = quat.Number(r3.NewRotation(theta, w))
		s, c := math.Sincos(theta)
		a = (1 - c) / (theta * theta)
		b = (theta - s) / (theta * theta * theta)
	}
	V := eye(3)
	var tmp mat.Dense
	tmp.Scale(a, W)
	V.Add(V, &tmp)
	tmp.Scale(b, &WW)
	V.Add(V, &tmp)
	var t mat.VecDense
	t.MulVec(V, mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return SE3{R: normalizeQuat(rot), T: r3.Vec{X: t.AtVec(0), Y: t.AtVec(1), Z: t.AtVec(2)}}
}

// Identity implements the Pose interface.
func (p SE3) Identity() SE3 {
	return SE3{R: quat.Number{Real: 1}}
}

// Compose implements the Pose interface.
func (p SE3) Compose(o SE3) SE3 {
	return SE3{
		R: normalizeQuat(quat.Mul(p.R, o.R)),
		T: r3.Add(p.T, r3.Rotation(p.R).Rotate(o.T)),
	}
}

// Inverse implements the Pose interface.
func (p SE3) Inverse() SE3 {
	inv := quat.Conj(p.R)
	return SE3{R: inv, T: r3.Scale(-1, r3.Rotation(inv).Rotate(p.T))}
}

// Between implements the Pose interface.
func (p SE3) Between(o SE3) SE3 {
	return p.Inverse().Compose(o)
}

// Retract implements the Pose interface.
func (p SE3) Retract(xi []float64) SE3 {
	return p.Compose(ExpmapSE3(xi))
}

// rotationLog returns the rotation vector of the quaternion.
func rotationLog(q quat.Number) r3.Vec {
	q = normalizeQuat(q)
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	v := r3.Vec{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	s := r3.Norm(v)
	if s < smallAngle {
		return r3.Scale(2/q.Real, v)
	}
	theta := 2 * math.Atan2(s, q.Real)
	return r3.Scale(theta/s, v)
}

// Logmap implements the Pose interface.
func (p SE3) Logmap() []float64 {
	w := rotationLog(p.R)
	t := r3.Norm(w)
	if t < smallAngle {
		return []float64{w.X, w.Y, w.Z, p.T.X, p.T.Y, p.T.Z}
	}
	n := r3.Scale(1/t, w)
	wt := r3.Cross(n, p.T)
	wwt := r3.Cross(n, wt)
	k := 1 - t/(2*math.Tan(0.5*t))
	u := r3.Add(r3.Sub(p.T, r3.Scale(0.5*t, wt)), r3.Scale(k, wwt))
	return []float64{w.X, w.Y, w.Z, u.X, u.Y, u.Z}
}

// rotationMatrix returns the 3x3 rotation matrix of the pose.
func (p SE3) rotationMatrix() *mat.Dense {
	q := normalizeQuat(p.R)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// AdjointMap implements the Pose interface.
func (p SE3) AdjointMap() *mat.Dense {
	R := p.rotationMatrix()
	var tR mat.Dense
	tR.Mul(skew(p.T.X, p.T.Y, p.T.Z), R)

	ad := mat.NewDense(6, 6, nil)
	ad.Slice(0, 3, 0, 3).(*mat.Dense).Copy(R)
	ad.Slice(3, 6, 3, 6).(*mat.Dense).Copy(R)
	ad.Slice(3, 6, 0, 3).(*mat.Dense).Copy(&tR)
	return ad
}

// TranslationNorm implements the Pose interface.
func (p SE3) TranslationNorm() float64 {
	return r3.Norm(p.T)
}

// Dim implements the Pose interface.
func (p SE3) Dim() int { return 6 }

// RotationDim implements the Pose interface.
func (p SE3) RotationDim() int { return 3 }

// TranslationDim implements the Pose interface.
func (p SE3) TranslationDim() int { return 3 }

// Equal implements the Pose interface.
func (p SE3) Equal(o SE3, tol float64) bool {
	d := p.Between(o)
	w := rotationLog(d.R)
	return r3.Norm(w) <= tol && r3.Norm(r3.Sub(p.T, o.T)) <= tol
}

func (p SE3) String() string {
	w := rotationLog(p.R)
	return fmt.Sprintf("SE3{t=(%f, %f, %f) ω=(%f, %f, %f)}", p.T.X, p.T.Y, p.T.Z, w.X, w.Y, w.Z)
}

func normalizeQuat(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}
