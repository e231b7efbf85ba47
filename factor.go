package robustpgo

import (
	"fmt"
	"maps"
	"slices"

	"github.com/pkg/errors"
)

// FactorKind allows for quick comparison of factors.
type FactorKind uint8

const (
	// PriorFactor anchors one pose to an absolute value.
	PriorFactor FactorKind = iota + 1
	// BetweenFactor measures the pose of To relative to From.
	BetweenFactor
)

func (k FactorKind) String() string {
	switch k {
	case PriorFactor:
		return "prior"
	case BetweenFactor:
		return "between"
	default:
		return fmt.Sprintf("FactorKind(%d)", uint8(k))
	}
}

// Factor is a raw measurement on one (prior) or two (between) poses.
// For a prior, From and To are both the anchored key.
type Factor[T Pose[T]] struct {
	Kind     FactorKind
	From, To Key
	Measured T
	Noise    NoiseModel
}

// NewPrior returns a factor anchoring key at pose.
func NewPrior[T Pose[T]](key Key, pose T, noise NoiseModel) Factor[T] {
	return Factor[T]{Kind: PriorFactor, From: key, To: key, Measured: pose, Noise: noise}
}

// NewBetween returns a factor measuring the pose of to relative to from.
func NewBetween[T Pose[T]](from, to Key, pose T, noise NoiseModel) Factor[T] {
	return Factor[T]{Kind: BetweenFactor, From: from, To: to, Measured: pose, Noise: noise}
}

// Pair returns the (from, to) pair of the factor.
func (f Factor[T]) Pair() KeyPair {
	return KeyPair{From: f.From, To: f.To}
}

// IsOdometry returns whether the factor links consecutive poses of a single trajectory.
func (f Factor[T]) IsOdometry() bool {
	return f.Kind == BetweenFactor && f.To.Follows(f.From)
}

// IsSeparator returns whether the factor is a loop closure subject to outlier rejection.
func (f Factor[T]) IsSeparator() bool {
	return f.Kind == BetweenFactor && !f.To.Follows(f.From)
}

// Validate checks the factor is well formed.
func (f Factor[T]) Validate() error {
	switch f.Kind {
	case PriorFactor:
		if f.From != f.To {
			return errors.Wrapf(ErrInvalidFactor, "prior on %s has a second key %s", f.From, f.To)
		}
	case BetweenFactor:
		if f.From == f.To {
			return errors.Wrapf(ErrInvalidFactor, "between factor %s links a pose to itself", f.Pair())
		}
	default:
		return errors.Wrapf(ErrInvalidFactor, "unknown kind %s", f.Kind)
	}
	if f.Noise == nil {
		return errors.Wrapf(ErrInvalidFactor, "%s factor %s has no noise model", f.Kind, f.Pair())
	}
	if d := dimOf[T](); f.Noise.Dim() != d {
		return errors.Wrapf(ErrDimension, "%s factor %s: noise (%dx%d) pose dimension %d",
			f.Kind, f.Pair(), f.Noise.Dim(), f.Noise.Dim(), d)
	}
	return nil
}

func (f Factor[T]) String() string {
	if f.Kind == PriorFactor {
		return fmt.Sprintf("prior(%s)", f.From)
	}
	return fmt.Sprintf("between(%s)", f.Pair())
}

// FactorGraph is an ordered collection of factors.
type FactorGraph[T Pose[T]] []Factor[T]

// Pairs returns the key pairs of the graph, in order.
func (g FactorGraph[T]) Pairs() []KeyPair {
	pairs := make([]KeyPair, len(g))
	for i, f := range g {
		pairs[i] = f.Pair()
	}
	return pairs
}

// Values maps pose keys to pose estimates.
type Values[T Pose[T]] map[Key]T

// Keys returns the keys in increasing order.
func (v Values[T]) Keys() []Key {
	return slices.Sorted(maps.Keys(v))
}

// Clone returns a shallow copy of the values.
func (v Values[T]) Clone() Values[T] {
	if v == nil {
		return Values[T]{}
	}
	return maps.Clone(v)
}
