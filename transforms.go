package robustpgo

import (
	"maps"
	"slices"

	"github.com/pkg/errors"
)

// Transform is a directed edge between two poses. Separator marks a loop
// closure that must be vetted before use, as opposed to trusted odometry.
type Transform[U any] struct {
	From, To  Key
	Pose      U
	Separator bool
}

// Pair returns the (from, to) pair of the transform.
func (t Transform[U]) Pair() KeyPair {
	return KeyPair{From: t.From, To: t.To}
}

// Transforms stores transforms keyed by their (from, to) pair.
// StartID and EndID bound every key referenced by a stored transform.
type Transforms[U any] struct {
	StartID, EndID Key
	transforms     map[KeyPair]Transform[U]
}

// NewTransforms returns an empty store.
func NewTransforms[U any]() *Transforms[U] {
	return &Transforms[U]{transforms: make(map[KeyPair]Transform[U])}
}

// Insert adds a transform. It fails if a transform exists for the same pair.
func (t *Transforms[U]) Insert(tr Transform[U]) error {
	if _, exists := t.transforms[tr.Pair()]; exists {
		return errors.Wrapf(ErrDuplicateEdge, "transform %s", tr.Pair())
	}
	lo, hi := min(tr.From, tr.To), max(tr.From, tr.To)
	if len(t.transforms) == 0 {
		t.StartID, t.EndID = lo, hi
	} else {
		t.StartID, t.EndID = min(t.StartID, lo), max(t.EndID, hi)
	}
	t.transforms[tr.Pair()] = tr
	return nil
}

// Get returns the transform for the (from, to) pair.
func (t *Transforms[U]) Get(from, to Key) (Transform[U], bool) {
	tr, ok := t.transforms[KeyPair{From: from, To: to}]
	return tr, ok
}

// Has returns whether a transform exists for the (from, to) pair.
func (t *Transforms[U]) Has(from, to Key) bool {
	_, ok := t.transforms[KeyPair{From: from, To: to}]
	return ok
}

// Len returns the number of stored transforms.
func (t *Transforms[U]) Len() int {
	return len(t.transforms)
}

// Pairs returns the stored pairs in increasing order.
func (t *Transforms[U]) Pairs() []KeyPair {
	return slices.SortedFunc(maps.Keys(t.transforms), comparePairs)
}

// Range returns the transforms with both ends in [lo, hi], ordered by pair.
func (t *Transforms[U]) Range(lo, hi Key) []Transform[U] {
	var out []Transform[U]
	for _, p := range t.Pairs() {
		if p.From >= lo && p.From <= hi && p.To >= lo && p.To <= hi {
			out = append(out, t.transforms[p])
		}
	}
	return out
}

// Chain returns the odometry transforms of trajectory chr ordered by key.
func (t *Transforms[U]) Chain(chr byte) []Transform[U] {
	var out []Transform[U]
	for _, p := range t.Pairs() {
		if p.From.Chr() == chr && p.To.Follows(p.From) {
			out = append(out, t.transforms[p])
		}
	}
	return out
}

func comparePairs(a, b KeyPair) int {
	switch {
	case a.less(b):
		return -1
	case b.less(a):
		return 1
	default:
		return 0
	}
}
