package robustpgo

import (
	"cmp"
	"maps"
	"slices"

	"github.com/pkg/errors"
)

// TrajectoryPose is the accumulated pose of a trajectory node relative to the
// trajectory anchor.
type TrajectoryPose[U any] struct {
	ID   Key
	Pose U
}

// Trajectory is a contiguous chain of poses from StartID to EndID, built by
// composing odometry from an anchor.
type Trajectory[T Pose[T], U Uncertain[T, U]] struct {
	StartID, EndID Key
	poses          map[Key]TrajectoryPose[U]
}

// BuildTrajectory folds the odometry chain from the anchor at start:
// traj[i] = traj[i-1].Compose(odom(i-1, i)). The odometry may be in any order
// but must cover a contiguous range beginning at start.
func BuildTrajectory[T Pose[T], U Uncertain[T, U]](start Key, anchor U, odometry []Transform[U]) (*Trajectory[T, U], error) {
	t := &Trajectory[T, U]{
		StartID: start,
		EndID:   start,
		poses:   map[Key]TrajectoryPose[U]{start: {ID: start, Pose: anchor}},
	}
	if err := t.Extend(odometry); err != nil {
		return nil, err
	}
	return t, nil
}

// sortChain orders odometry by source key.
func sortChain[U any](odometry []Transform[U]) []Transform[U] {
	return slices.SortedFunc(slices.Values(odometry), func(a, b Transform[U]) int {
		return cmp.Compare(a.From, b.From)
	})
}

// checkChain verifies the odometry continues contiguously from end.
func checkChain[U any](end Key, odometry []Transform[U]) error {
	prev := end
	for _, tr := range sortChain(odometry) {
		if !tr.To.Follows(tr.From) {
			return errors.Wrapf(ErrNonContiguous, "%s is not an odometry edge", tr.Pair())
		}
		if tr.From != prev {
			return errors.Wrapf(ErrNonContiguous, "expected edge from %s, got %s", prev, tr.Pair())
		}
		prev = tr.To
	}
	return nil
}

// Extend continues the trajectory past EndID with the provided odometry. The
// trajectory is left untouched if the chain does not start at EndID or has a gap.
func (t *Trajectory[T, U]) Extend(odometry []Transform[U]) error {
	if err := checkChain(t.EndID, odometry); err != nil {
		return err
	}
	for _, tr := range sortChain(odometry) {
		prev := t.poses[tr.From].Pose
		t.poses[tr.To] = TrajectoryPose[U]{ID: tr.To, Pose: prev.Compose(tr.Pose)}
		t.EndID = tr.To
	}
	return nil
}

// Pose returns the trajectory pose at id.
func (t *Trajectory[T, U]) Pose(id Key) (U, bool) {
	tp, ok := t.poses[id]
	return tp.Pose, ok
}

// Contains returns whether id is on the trajectory.
func (t *Trajectory[T, U]) Contains(id Key) bool {
	_, ok := t.poses[id]
	return ok
}

// Between returns the relative pose of to with respect to from, as predicted
// by odometry.
func (t *Trajectory[T, U]) Between(from, to Key) (U, error) {
	a, ok := t.poses[from]
	if !ok {
		var zero U
		return zero, errors.Wrapf(ErrUnknownKey, "%s not on trajectory %s..%s", from, t.StartID, t.EndID)
	}
	b, ok := t.poses[to]
	if !ok {
		var zero U
		return zero, errors.Wrapf(ErrUnknownKey, "%s not on trajectory %s..%s", to, t.StartID, t.EndID)
	}
	return a.Pose.Between(b.Pose), nil
}

// Range returns the poses with ids in [lo, hi], ordered by id.
func (t *Trajectory[T, U]) Range(lo, hi Key) []TrajectoryPose[U] {
	var out []TrajectoryPose[U]
	for _, k := range t.Keys() {
		if k >= lo && k <= hi {
			out = append(out, t.poses[k])
		}
	}
	return out
}

// Keys returns the ids of the trajectory in increasing order.
func (t *Trajectory[T, U]) Keys() []Key {
	return slices.Sorted(maps.Keys(t.poses))
}

// Len returns the number of poses.
func (t *Trajectory[T, U]) Len() int {
	return len(t.poses)
}
