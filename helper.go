package robustpgo

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Identity returns an identity matrix of the provided size.
func Identity(n int) *mat.SymDense {
	return ScaledIdentity(n, 1)
}

// ScaledIdentity returns an identity matrix time a scaling factor of the provided size.
func ScaledIdentity(n int, s float64) *mat.SymDense {
	vals := make([]float64, n*n)
	for j := 0; j < n*n; j++ {
		if j%(n+1) == 0 {
			vals[j] = s
		}
	}
	return mat.NewSymDense(n, vals)
}

func eye(n int) *mat.Dense {
	result := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		result.Set(i, i, 1.0)
	}
	return result
}

// IsNil returns whether the provided matrix only has zero values
func IsNil(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) != 0 {
				return false
			}
		}
	}
	return true
}

// HasNaN returns whether any element of the provided matrix is NaN.
func HasNaN(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(m.At(i, j)) {
				return true
			}
		}
	}
	return false
}

// AsSymDense returns the symmetric part (m+m')/2 of the provided square matrix.
// Products such as J*P*J' are only symmetric up to rounding, so they are
// symmetrized rather than checked for exact symmetry.
func AsSymDense(m mat.Matrix) (*mat.SymDense, error) {
	r, c := m.Dims()
	if r != c {
		return nil, errors.Wrapf(ErrDimension, "matrix must be square, got (%dx%d)", r, c)
	}
	sym := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < c; j++ {
			sym.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return sym, nil
}

// propagate returns J*P*J'.
func propagate(J mat.Matrix, P mat.Symmetric) *mat.SymDense {
	r, _ := J.Dims()
	JPJt := mat.NewDense(r, r, nil)
	JPJt.Product(J, P, J.T())
	sym, err := AsSymDense(JPJt)
	if err != nil {
		panic(err)
	}
	return sym
}

// isPositiveDefinite returns whether a Cholesky factorization of P succeeds.
func isPositiveDefinite(P mat.Symmetric) bool {
	if HasNaN(P) {
		return false
	}
	var chol mat.Cholesky
	return chol.Factorize(P)
}

// inverse returns the inverse of P, falling back on the Moore-Penrose
// pseudo-inverse when P is singular.
func inverse(P mat.Symmetric) *mat.Dense {
	n := P.SymmetricDim()
	var chol mat.Cholesky
	if chol.Factorize(P) {
		var inv mat.SymDense
		if err := chol.InverseTo(&inv); err == nil {
			return mat.DenseCopyOf(&inv)
		}
	}
	inv := mat.NewDense(n, n, nil)
	if err := inv.Inverse(P); err == nil && !HasNaN(inv) {
		return inv
	}
	return pseudoInverse(P)
}

// pseudoInverse computes the Moore-Penrose pseudo-inverse of m by SVD.
func pseudoInverse(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDThin) {
		return mat.NewDense(c, r, nil)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	vals := svd.Values(nil)
	tol := float64(max(r, c)) * vals[0] * 1e-12

	sInv := mat.NewDense(len(vals), len(vals), nil)
	for i, s := range vals {
		if s > tol {
			sInv.Set(i, i, 1/s)
		}
	}
	pinv := mat.NewDense(c, r, nil)
	pinv.Product(&v, sInv, u.T())
	return pinv
}
