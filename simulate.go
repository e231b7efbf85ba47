package robustpgo

import (
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distmv"
)

// Simulator generates measurements of a known trajectory. Measurement noise is
// drawn from the noise model and applied on the right of the true relative pose.
type Simulator[T Pose[T]] struct {
	src         rand.Source
	odometry    *Gaussian
	loopClosure *Gaussian
	odomDist    *distmv.Normal
	lcDist      *distmv.Normal
	perturb     bool
}

// NewSimulator returns a simulator seeded with seed. When perturb is false the
// measurements are exact and the noise models are only attached to the factors.
func NewSimulator[T Pose[T]](odometry, loopClosure *Gaussian, seed uint64, perturb bool) (*Simulator[T], error) {
	d := dimOf[T]()
	if odometry.Dim() != d || loopClosure.Dim() != d {
		return nil, errors.Wrapf(ErrDimension, "noise models (%d, %d) for poses of dimension %d",
			odometry.Dim(), loopClosure.Dim(), d)
	}
	s := &Simulator[T]{
		src:         rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
		odometry:    odometry,
		loopClosure: loopClosure,
		perturb:     perturb,
	}
	if perturb {
		var err error
		if s.odomDist, err = odometry.Sampler(s.src); err != nil {
			return nil, errors.Wrap(err, "odometry noise")
		}
		if s.lcDist, err = loopClosure.Sampler(s.src); err != nil {
			return nil, errors.Wrap(err, "loop closure noise")
		}
	}
	return s, nil
}

func (s *Simulator[T]) measure(truth T, dist *distmv.Normal) T {
	if dist == nil {
		return truth
	}
	return truth.Retract(dist.Rand(nil))
}

// Odometry integrates steps from start and returns the true poses, keyed
// chr0 to chrN, together with the odometry factors measuring each step.
func (s *Simulator[T]) Odometry(chr byte, start T, steps []T) (Values[T], FactorGraph[T]) {
	truth := Values[T]{Symbol(chr, 0): start}
	graph := make(FactorGraph[T], 0, len(steps))
	prev := start
	for i, step := range steps {
		from, to := Symbol(chr, uint64(i)), Symbol(chr, uint64(i+1))
		prev = prev.Compose(step)
		truth[to] = prev
		graph = append(graph, NewBetween(from, to, s.measure(step, s.odomDist), s.odometry))
	}
	return truth, graph
}

// LoopClosure returns a measurement of to relative to from.
func (s *Simulator[T]) LoopClosure(truth Values[T], from, to Key) (Factor[T], error) {
	a, ok := truth[from]
	if !ok {
		return Factor[T]{}, errors.Wrapf(ErrUnknownKey, "%s", from)
	}
	b, ok := truth[to]
	if !ok {
		return Factor[T]{}, errors.Wrapf(ErrUnknownKey, "%s", to)
	}
	return NewBetween(from, to, s.measure(a.Between(b), s.lcDist), s.loopClosure), nil
}

// Outlier returns a loop closure from from to to with an arbitrary measurement.
func (s *Simulator[T]) Outlier(from, to Key, measured T) Factor[T] {
	return NewBetween(from, to, measured, s.loopClosure)
}

// Perturb returns p moved by the tangent vector xi, applied on the right.
func Perturb[T Pose[T]](p T, xi ...float64) T {
	return p.Retract(xi)
}
