package robustpgo

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotLoaded is returned when adding to a graph that was never loaded.
	ErrNotLoaded = errors.New("graph not loaded")
	// ErrAlreadyLoaded is returned when loading a graph twice.
	ErrAlreadyLoaded = errors.New("graph already loaded")
	// ErrDuplicateEdge is returned when an edge already exists for a (from, to) pair.
	ErrDuplicateEdge = errors.New("duplicate edge")
	// ErrNonContiguous is returned when an odometry chain has a gap.
	ErrNonContiguous = errors.New("odometry chain is not contiguous")
	// ErrUnknownKey is returned when a measurement references a pose not on any trajectory.
	ErrUnknownKey = errors.New("unknown key")
	// ErrInvalidFactor is returned for malformed measurements.
	ErrInvalidFactor = errors.New("invalid factor")
	// ErrDimension is returned when matrix dimensions do not agree.
	ErrDimension = errors.New("dimensions must agree")
)

// checkDims returns an ErrDimension error unless m1 and m2 have the same shape.
func checkDims(m1, m2 mat.Matrix, name1, name2 string) error {
	r1, c1 := m1.Dims()
	r2, c2 := m2.Dims()
	if c1 != c2 || r1 != r2 {
		return errors.Wrapf(ErrDimension, "%s(%dx%d) %s(%dx%d)", name1, r1, c1, name2, r2, c2)
	}
	return nil
}
