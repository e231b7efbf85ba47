package robustpgo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const smallAngle = 1e-10

// SE2 is a planar rigid-body transform. Its tangent space is ordered [θ, x, y].
type SE2 struct {
	X, Y, Theta float64
}

// NewSE2 returns a planar pose with its heading wrapped to (-π, π].
func NewSE2(x, y, theta float64) SE2 {
	return SE2{X: x, Y: y, Theta: wrapAngle(theta)}
}

// ExpmapSE2 returns the pose for the tangent vector [θ, vx, vy].
func ExpmapSE2(xi []float64) SE2 {
	if len(xi) != 3 {
		panic(fmt.Errorf("SE2 tangent vector must have 3 elements, got %d", len(xi)))
	}
	theta, vx, vy := xi[0], xi[1], xi[2]
	if math.Abs(theta) < smallAngle {
		return NewSE2(vx, vy, theta)
	}
	s, c := math.Sincos(theta)
	a := s / theta
	b := (1 - c) / theta
	return NewSE2(a*vx-b*vy, b*vx+a*vy, theta)
}

// Identity implements the Pose interface.
func (p SE2) Identity() SE2 {
	return SE2{}
}

// Compose implements the Pose interface.
func (p SE2) Compose(o SE2) SE2 {
	s, c := math.Sincos(p.Theta)
	return NewSE2(p.X+c*o.X-s*o.Y, p.Y+s*o.X+c*o.Y, p.Theta+o.Theta)
}

// Inverse implements the Pose interface.
func (p SE2) Inverse() SE2 {
	s, c := math.Sincos(p.Theta)
	return NewSE2(-(c*p.X + s*p.Y), s*p.X-c*p.Y, -p.Theta)
}

// Between implements the Pose interface.
func (p SE2) Between(o SE2) SE2 {
	return p.Inverse().Compose(o)
}

// Retract implements the Pose interface.
func (p SE2) Retract(xi []float64) SE2 {
	return p.Compose(ExpmapSE2(xi))
}

// Logmap implements the Pose interface.
func (p SE2) Logmap() []float64 {
	theta := p.Theta
	if math.Abs(theta) < smallAngle {
		return []float64{theta, p.X, p.Y}
	}
	s, c := math.Sincos(theta)
	a := s / theta
	b := (1 - c) / theta
	det := a*a + b*b
	return []float64{theta, (a*p.X + b*p.Y) / det, (-b*p.X + a*p.Y) / det}
}

// AdjointMap implements the Pose interface.
func (p SE2) AdjointMap() *mat.Dense {
	s, c := math.Sincos(p.Theta)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		p.Y, c, -s,
		-p.X, s, c,
	})
}

// TranslationNorm implements the Pose interface.
func (p SE2) TranslationNorm() float64 {
	return math.Hypot(p.X, p.Y)
}

// Dim implements the Pose interface.
func (p SE2) Dim() int { return 3 }

// RotationDim implements the Pose interface.
func (p SE2) RotationDim() int { return 1 }

// TranslationDim implements the Pose interface.
func (p SE2) TranslationDim() int { return 2 }

// Equal implements the Pose interface.
func (p SE2) Equal(o SE2, tol float64) bool {
	return math.Abs(p.X-o.X) <= tol && math.Abs(p.Y-o.Y) <= tol &&
		math.Abs(wrapAngle(p.Theta-o.Theta)) <= tol
}

func (p SE2) String() string {
	return fmt.Sprintf("SE2{x=%f y=%f θ=%f}", p.X, p.Y, p.Theta)
}
