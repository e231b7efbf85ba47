package robustpgo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// PoseWithCovariance is a pose with a covariance over its tangent space.
// Uncertainty is propagated to first order through the exact group Jacobians.
type PoseWithCovariance[T Pose[T]] struct {
	pose   T
	covar  *mat.SymDense
	notPSD bool
}

// NewPoseWithCovariance returns a pose with the provided covariance.
func NewPoseWithCovariance[T Pose[T]](pose T, covar mat.Symmetric) (PoseWithCovariance[T], error) {
	d := pose.Dim()
	if err := checkDims(covar, mat.NewDense(d, d, nil), "covariance", "pose tangent"); err != nil {
		return PoseWithCovariance[T]{}, err
	}
	c := mat.NewSymDense(d, nil)
	c.CopySym(covar)
	return PoseWithCovariance[T]{pose: pose, covar: c}, nil
}

// Pose implements the Uncertain interface.
func (p PoseWithCovariance[T]) Pose() T {
	return p.pose
}

// Covariance returns a copy of the covariance.
func (p PoseWithCovariance[T]) Covariance() mat.Symmetric {
	c := mat.NewSymDense(dimOf[T](), nil)
	c.CopySym(p.covariance())
	return c
}

func (p PoseWithCovariance[T]) covariance() *mat.SymDense {
	if p.covar == nil {
		return mat.NewSymDense(dimOf[T](), nil)
	}
	return p.covar
}

// PSD implements the Uncertain interface. It is false when a Between result
// could not be made positive definite by either formulation, and stays false
// through every operation using that result.
func (p PoseWithCovariance[T]) PSD() bool {
	return !p.notPSD
}

// Anchor implements the Uncertain interface.
func (PoseWithCovariance[T]) Anchor(pose T) PoseWithCovariance[T] {
	return PoseWithCovariance[T]{pose: pose, covar: mat.NewSymDense(pose.Dim(), nil)}
}

// FromFactor implements the Uncertain interface. A prior is an anchor with a
// zero covariance, a between factor takes the covariance of its noise model.
func (PoseWithCovariance[T]) FromFactor(f Factor[T]) PoseWithCovariance[T] {
	d := dimOf[T]()
	if f.Kind == PriorFactor || f.Noise == nil {
		return PoseWithCovariance[T]{pose: f.Measured, covar: mat.NewSymDense(d, nil)}
	}
	covar := mat.NewSymDense(d, nil)
	covar.CopySym(f.Noise.Covariance())
	return PoseWithCovariance[T]{pose: f.Measured, covar: sanitizeCovariance[T](covar)}
}

// sanitizeCovariance keeps only the translational block when the rotational
// block is NaN, so unobservable orientation noise does not poison later products.
func sanitizeCovariance[T Pose[T]](covar *mat.SymDense) *mat.SymDense {
	var zero T
	rDim, tDim := zero.RotationDim(), zero.TranslationDim()
	if !math.IsNaN(mat.Trace(covar.SliceSym(0, rDim))) {
		return covar
	}
	out := mat.NewSymDense(rDim+tDim, nil)
	for i := rDim; i < rDim+tDim; i++ {
		for j := i; j < rDim+tDim; j++ {
			out.SetSym(i, j, covar.At(i, j))
		}
	}
	return out
}

// Compose implements the Uncertain interface.
func (p PoseWithCovariance[T]) Compose(o PoseWithCovariance[T]) PoseWithCovariance[T] {
	// Ha = Ad(o⁻¹), Hb = I
	covar := propagate(o.pose.Inverse().AdjointMap(), p.covariance())
	covar.AddSym(covar, o.covariance())
	return PoseWithCovariance[T]{pose: p.pose.Compose(o.pose), covar: covar, notPSD: p.notPSD || o.notPSD}
}

// Inverse implements the Uncertain interface.
func (p PoseWithCovariance[T]) Inverse() PoseWithCovariance[T] {
	// H = -Ad(p)
	return PoseWithCovariance[T]{pose: p.pose.Inverse(), covar: propagate(p.pose.AdjointMap(), p.covariance()), notPSD: p.notPSD}
}

// Between implements the Uncertain interface. The covariance is Σo - Ha*Σp*Ha'
// which linearization can leave indefinite; in that case the formulation
// anchored at o, Σp - Hb*Σo*Hb', is used instead. If that fails too the
// result is kept and flagged through PSD. A flagged operand flags the result.
func (p PoseWithCovariance[T]) Between(o PoseWithCovariance[T]) PoseWithCovariance[T] {
	d := p.pose.Between(o.pose)
	inherited := p.notPSD || o.notPSD
	covar := difference(o.covariance(), propagate(d.Inverse().AdjointMap(), p.covariance()))
	if isPositiveDefinite(covar) {
		return PoseWithCovariance[T]{pose: d, covar: covar, notPSD: inherited}
	}
	covar = difference(p.covariance(), propagate(d.AdjointMap(), o.covariance()))
	return PoseWithCovariance[T]{pose: d, covar: covar, notPSD: inherited || !isPositiveDefinite(covar)}
}

// difference returns a-b.
func difference(a, b mat.Symmetric) *mat.SymDense {
	out := mat.NewSymDense(a.SymmetricDim(), nil)
	out.ScaleSym(-1, b)
	out.AddSym(out, a)
	return out
}

// Norm implements the Uncertain interface and returns the Mahalanobis norm
// sqrt(ξ'*Σ⁻¹*ξ) of the tangent vector ξ. A singular covariance uses the
// pseudo-inverse and an error outside its range is infinitely unlikely. An
// indefinite covariance giving a negative quadratic form also yields +Inf.
func (p PoseWithCovariance[T]) Norm() float64 {
	xi := p.pose.Logmap()
	return mahalanobis(xi, p.covariance())
}

func mahalanobis(xi []float64, covar *mat.SymDense) float64 {
	x := mat.NewVecDense(len(xi), xi)
	inv := inverse(covar)

	// Components of ξ outside the range of Σ have zero variance.
	var invX, proj, resid mat.VecDense
	invX.MulVec(inv, x)
	proj.MulVec(covar, &invX)
	resid.SubVec(x, &proj)
	if floats.Norm(resid.RawVector().Data, 2) > 1e-6*(1+floats.Norm(xi, 2)) {
		return math.Inf(1)
	}

	q := mat.Dot(x, &invX)
	if math.IsNaN(q) || q < 0 {
		return math.Inf(1)
	}
	return math.Sqrt(q)
}

func (p PoseWithCovariance[T]) String() string {
	return fmt.Sprintf("PoseWithCovariance{%s\nΣ=%v}", p.pose, mat.Formatted(p.covariance(), mat.Prefix("  ")))
}
