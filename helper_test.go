package robustpgo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const (
	odomSigma = 0.1
	loopSigma = 0.01
)

func assertPanic(t *testing.T, f func()) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("code did not panic")
		}
	}()
	f()
}

// circle returns n equal steps around a circle of the given radius.
func circle(n int, radius float64) []SE2 {
	dtheta := 2 * math.Pi / float64(n)
	chord := 2 * radius * math.Sin(dtheta/2)
	steps := make([]SE2, n)
	for i := range steps {
		steps[i] = NewSE2(chord, 0, dtheta)
	}
	return steps
}

// robot returns the exact odometry of a robot driving count steps around a
// circle of 40 steps.
func robot(t *testing.T, chr byte, start SE2, count int) (Values[SE2], FactorGraph[SE2]) {
	t.Helper()
	sim, err := NewSimulator[SE2](NewIsotropic(3, odomSigma*odomSigma), NewIsotropic(3, loopSigma*loopSigma), 1, false)
	require.NoError(t, err)
	lap := circle(40, 10)
	steps := make([]SE2, 0, count)
	for len(steps) < count {
		steps = append(steps, lap[:min(len(lap), count-len(steps))]...)
	}
	return sim.Odometry(chr, start, steps)
}

// loopClosure returns a slightly perturbed measurement of to relative to from.
func loopClosure(truth Values[SE2], from, to Key) Factor[SE2] {
	measured := Perturb(truth[from].Between(truth[to]), 0.01, -0.01, 0.01)
	return NewBetween(from, to, measured, NewIsotropic(3, loopSigma*loopSigma))
}

func priorOn(key Key, pose SE2) Factor[SE2] {
	return NewPrior(key, pose, NewIsotropic(3, 1e-6))
}

func symEqual(t *testing.T, want, got mat.Symmetric, tol float64) {
	t.Helper()
	require.Equal(t, want.SymmetricDim(), got.SymmetricDim())
	if !mat.EqualApprox(want, got, tol) {
		t.Fatalf("expected\n%v\ngot\n%v", mat.Formatted(want), mat.Formatted(got))
	}
}

func TestIdentity(t *testing.T) {
	n := 3
	i33 := Identity(n)
	if r, c := i33.Dims(); r != n || r != c {
		t.Fatalf("i33 has dimensions (%dx%d)", r, c)
	}
	for i := 0; i < n; i++ {
		if i33.At(i, i) != 1 {
			t.Fatalf("i33(%d,%d) != 1", i, i)
		}
		for j := 0; j < n; j++ {
			if i != j && i33.At(i, j) != 0 {
				t.Fatalf("i33(%d,%d) != 0", i, j)
			}
		}
	}
	if !IsNil(ScaledIdentity(2, 0)) {
		t.Fatal("zero scaled identity is not nil")
	}
}

func TestAsSymDense(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 2, 4, 3})
	sym, err := AsSymDense(m)
	require.NoError(t, err)
	require.Equal(t, 3.0, sym.At(0, 1))
	require.Equal(t, 3.0, sym.At(1, 0))

	_, err = AsSymDense(mat.NewDense(2, 3, nil))
	require.ErrorIs(t, err, ErrDimension)
}

func TestInverse(t *testing.T) {
	P := mat.NewSymDense(2, []float64{4, 1, 1, 3})
	var prod mat.Dense
	prod.Mul(P, inverse(P))
	require.True(t, mat.EqualApprox(&prod, eye(2), 1e-12))

	// Singular: the pseudo-inverse inverts the non-zero block only.
	S := mat.NewSymDense(2, []float64{0, 0, 0, 4})
	pinv := inverse(S)
	require.InDelta(t, 0, pinv.At(0, 0), 1e-12)
	require.InDelta(t, 0.25, pinv.At(1, 1), 1e-12)

	require.True(t, isPositiveDefinite(P))
	require.False(t, isPositiveDefinite(S))
	require.False(t, isPositiveDefinite(mat.NewSymDense(1, []float64{math.NaN()})))
}
