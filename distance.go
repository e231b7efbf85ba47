package robustpgo

import (
	"fmt"
	"math"
)

// PoseWithDistance is a pose with the distance travelled to reach it. The
// distance stands in for a covariance when none is tracked: the consistency
// norm is the tangent error per unit of travel.
type PoseWithDistance[T Pose[T]] struct {
	pose     T
	distance float64
}

// NewPoseWithDistance returns a pose reached after travelling distance.
func NewPoseWithDistance[T Pose[T]](pose T, distance float64) PoseWithDistance[T] {
	return PoseWithDistance[T]{pose: pose, distance: distance}
}

// Pose implements the Uncertain interface.
func (p PoseWithDistance[T]) Pose() T {
	return p.pose
}

// Distance returns the accumulated travel distance.
func (p PoseWithDistance[T]) Distance() float64 {
	return p.distance
}

// PSD implements the Uncertain interface; a distance is always usable.
func (p PoseWithDistance[T]) PSD() bool {
	return true
}

// Anchor implements the Uncertain interface.
func (PoseWithDistance[T]) Anchor(pose T) PoseWithDistance[T] {
	return PoseWithDistance[T]{pose: pose}
}

// FromFactor implements the Uncertain interface.
func (PoseWithDistance[T]) FromFactor(f Factor[T]) PoseWithDistance[T] {
	if f.Kind == PriorFactor {
		return PoseWithDistance[T]{pose: f.Measured}
	}
	return PoseWithDistance[T]{pose: f.Measured, distance: f.Measured.TranslationNorm()}
}

// Compose implements the Uncertain interface.
func (p PoseWithDistance[T]) Compose(o PoseWithDistance[T]) PoseWithDistance[T] {
	return PoseWithDistance[T]{pose: p.pose.Compose(o.pose), distance: p.distance + o.pose.TranslationNorm()}
}

// Inverse implements the Uncertain interface.
func (p PoseWithDistance[T]) Inverse() PoseWithDistance[T] {
	return PoseWithDistance[T]{pose: p.pose.Inverse(), distance: p.distance}
}

// Between implements the Uncertain interface.
func (p PoseWithDistance[T]) Between(o PoseWithDistance[T]) PoseWithDistance[T] {
	return PoseWithDistance[T]{pose: p.pose.Between(o.pose), distance: math.Abs(o.distance - p.distance)}
}

// Norm implements the Uncertain interface. A zero distance gives +Inf unless
// the pose is the identity.
func (p PoseWithDistance[T]) Norm() float64 {
	e := TangentNorm(p.pose)
	if p.distance == 0 {
		if e == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return e / p.distance
}

func (p PoseWithDistance[T]) String() string {
	return fmt.Sprintf("PoseWithDistance{%s d=%f}", p.pose, p.distance)
}
