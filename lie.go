package robustpgo

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Pose defines the rigid-body group operations needed to propagate uncertainty.
// Tangent vectors are ordered rotation first, then translation.
type Pose[T any] interface {
	Identity() T              // Group identity, callable on the zero value.
	Compose(other T) T        // Returns p*other.
	Inverse() T               // Returns p⁻¹.
	Between(other T) T        // Returns p⁻¹*other.
	Retract(xi []float64) T   // Returns p*Exp(xi).
	Logmap() []float64        // Tangent vector of the pose.
	AdjointMap() *mat.Dense   // Adjoint representation of the pose.
	TranslationNorm() float64 // Euclidean norm of the translation.
	Dim() int                 // Tangent dimension.
	RotationDim() int         // Rotational part of the tangent dimension.
	TranslationDim() int      // Translational part of the tangent dimension.
	Equal(other T, tol float64) bool
	String() string
}

// dimOf returns the tangent dimension of the group T without needing an instance.
func dimOf[T Pose[T]]() int {
	var zero T
	return zero.Dim()
}

// TangentNorm returns the Euclidean norm of the tangent vector of p.
func TangentNorm[T Pose[T]](p T) float64 {
	return floats.Norm(p.Logmap(), 2)
}

// skew returns the 3x3 cross product matrix of v.
func skew(x, y, z float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -z, y,
		z, 0, -x,
		-y, x, 0,
	})
}

// wrapAngle maps an angle in radians to (-π, π].
func wrapAngle(theta float64) float64 {
	theta = math.Mod(theta+math.Pi, 2*math.Pi)
	if theta <= 0 {
		theta += 2 * math.Pi
	}
	return theta - math.Pi
}
