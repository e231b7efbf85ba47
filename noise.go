package robustpgo

import (
	"fmt"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// NoiseModel describes the uncertainty of a measurement in the tangent space
// of the measured pose.
type NoiseModel interface {
	Covariance() mat.Symmetric // Returns the measurement covariance
	Dim() int                  // Returns the tangent dimension the covariance applies to
	String() string            // Stringer interface implementation
}

// Gaussian is a full covariance noise model and implements the NoiseModel interface.
type Gaussian struct {
	covar *mat.SymDense
}

// NewGaussian creates a noise model from the provided covariance. The
// covariance is stored as is: degenerate values such as NaN are left for the
// consumer to sanitize.
func NewGaussian(covar mat.Symmetric) *Gaussian {
	if covar == nil {
		panic("covariance must be specified")
	}
	c := mat.NewSymDense(covar.SymmetricDim(), nil)
	c.CopySym(covar)
	return &Gaussian{covar: c}
}

// NewIsotropic creates a noise model with the same variance on every axis.
func NewIsotropic(dim int, variance float64) *Gaussian {
	return &Gaussian{covar: ScaledIdentity(dim, variance)}
}

// NewDiagonal creates a noise model from per-axis standard deviations.
func NewDiagonal(sigmas ...float64) *Gaussian {
	covar := mat.NewSymDense(len(sigmas), nil)
	for i, s := range sigmas {
		covar.SetSym(i, i, s*s)
	}
	return &Gaussian{covar: covar}
}

// Covariance implements the NoiseModel interface.
func (n Gaussian) Covariance() mat.Symmetric {
	return n.covar
}

// Dim implements the NoiseModel interface.
func (n Gaussian) Dim() int {
	return n.covar.SymmetricDim()
}

// Sampler returns a zero mean normal distribution with the noise covariance.
func (n Gaussian) Sampler(src rand.Source) (*distmv.Normal, error) {
	dist, ok := distmv.NewNormal(make([]float64, n.Dim()), n.covar, src)
	if !ok {
		return nil, errors.Wrap(ErrInvalidFactor, "noise covariance is not positive definite")
	}
	return dist, nil
}

// String implements the Stringer interface.
func (n Gaussian) String() string {
	return fmt.Sprintf("Gaussian{\nΣ=%v}\n", mat.Formatted(n.covar, mat.Prefix("  ")))
}
