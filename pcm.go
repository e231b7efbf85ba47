package robustpgo

import (
	"log/slog"
	"math"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// groupKey identifies the pair of trajectories a separator connects. The
// characters are ordered, and equal for a loop closure within one trajectory.
type groupKey struct {
	a, b byte
}

func groupOf(from, to Key) groupKey {
	a, b := from.Chr(), to.Chr()
	if a > b {
		a, b = b, a
	}
	return groupKey{a: a, b: b}
}

// separator is a loop closure seen by PCM.
type separator[T Pose[T], U Uncertain[T, U]] struct {
	factor   Factor[T]
	oriented Transform[U] // from trajectory group.a to group.b
	group    groupKey
	vetted   bool    // passed the odometry check and joined the consistency graph
	norm     float64 // odometry check norm, zero when not applicable
}

// PCM implements Pairwise Consistency Maximization. Odometry and priors are
// always trusted and build one trajectory per key character. Loop closures are
// first checked against the odometry they close, then against every earlier
// loop closure between the same trajectories; the largest mutually consistent
// set is kept.
type PCM[T Pose[T], U Uncertain[T, U]] struct {
	odomThreshold, lcThreshold float64
	logger                     *slog.Logger

	trajectories map[byte]*Trajectory[T, U]
	odometry     *Transforms[U]
	odomFactors  []Factor[T]
	priors       []Factor[T]
	priorKeys    map[Key]bool
	separators   []separator[T, U]
	sepPairs     map[KeyPair]bool
	groups       map[groupKey]*consistencyGraph
	pairNorms    []float64
}

// NewPCM returns an empty PCM using the provided Mahalanobis thresholds.
// A nil logger discards diagnostics.
func NewPCM[T Pose[T], U Uncertain[T, U]](odomThreshold, lcThreshold float64, logger *slog.Logger) *PCM[T, U] {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PCM[T, U]{
		odomThreshold: odomThreshold,
		lcThreshold:   lcThreshold,
		logger:        logger,
		trajectories:  make(map[byte]*Trajectory[T, U]),
		odometry:      NewTransforms[U](),
		priorKeys:     make(map[Key]bool),
		sepPairs:      make(map[KeyPair]bool),
		groups:        make(map[groupKey]*consistencyGraph),
	}
}

func (p *PCM[T, U]) lift(f Factor[T]) U {
	var zero U
	return zero.FromFactor(f)
}

// known returns whether a between factor already exists for the pair.
func (p *PCM[T, U]) known(pair KeyPair) bool {
	return p.odometry.Has(pair.From, pair.To) || p.sepPairs[pair]
}

// Process routes a batch of factors. Priors and odometry are accepted and
// extend the trajectories; separators are vetted in order. The whole batch is
// validated first: on error the state is left untouched.
func (p *PCM[T, U]) Process(factors FactorGraph[T], initial Values[T]) error {
	plan, err := p.plan(factors, initial)
	if err != nil {
		return err
	}

	for _, f := range plan.priors {
		p.priors = append(p.priors, f)
		p.priorKeys[f.From] = true
	}
	for chr, t := range plan.created {
		p.trajectories[chr] = t
	}
	for chr, edges := range plan.extended {
		if err := p.trajectories[chr].Extend(edges); err != nil {
			// Checked by plan.
			panic(err)
		}
	}
	for _, f := range plan.odometry {
		if err := p.odometry.Insert(Transform[U]{From: f.From, To: f.To, Pose: p.lift(f)}); err != nil {
			panic(err)
		}
		p.odomFactors = append(p.odomFactors, f)
	}

	for _, f := range plan.separators {
		if f.From.Chr() == f.To.Chr() {
			ok, norm, err := p.CheckOdometry(f, p.odomThreshold)
			if err != nil {
				return err
			}
			if !ok {
				p.logger.Info("loop closure rejected by odometry check",
					"edge", f.Pair().String(), "norm", norm, "threshold", p.odomThreshold)
				p.sepPairs[f.Pair()] = true
				p.separators = append(p.separators, separator[T, U]{factor: f, group: groupOf(f.From, f.To), norm: norm})
				continue
			}
		}
		accepted, _, err := p.CheckLoopClosure(f, p.lcThreshold)
		if err != nil {
			return err
		}
		if !accepted {
			p.logger.Info("loop closure rejected as outlier", "edge", f.Pair().String())
		}
	}
	return nil
}

type batchPlan[T Pose[T], U Uncertain[T, U]] struct {
	priors     []Factor[T]
	odometry   []Factor[T]
	separators []Factor[T]
	created    map[byte]*Trajectory[T, U]
	extended   map[byte][]Transform[U]
}

// plan validates a batch and prepares the trajectory updates without
// modifying the PCM.
func (p *PCM[T, U]) plan(factors FactorGraph[T], initial Values[T]) (*batchPlan[T, U], error) {
	plan := &batchPlan[T, U]{
		created:  make(map[byte]*Trajectory[T, U]),
		extended: make(map[byte][]Transform[U]),
	}
	seen := make(map[KeyPair]bool)
	priorOn := make(map[byte]Factor[T])
	chains := make(map[byte][]Transform[U])
	var chrs []byte

	for _, f := range factors {
		if err := f.Validate(); err != nil {
			return nil, err
		}
		switch {
		case f.Kind == PriorFactor:
			if p.priorKeys[f.From] || seen[f.Pair()] {
				return nil, errors.Wrapf(ErrDuplicateEdge, "prior on %s", f.From)
			}
			seen[f.Pair()] = true
			plan.priors = append(plan.priors, f)
			if _, ok := priorOn[f.From.Chr()]; !ok {
				priorOn[f.From.Chr()] = f
			}
		default:
			if p.known(f.Pair()) || seen[f.Pair()] {
				return nil, errors.Wrapf(ErrDuplicateEdge, "between factor %s", f.Pair())
			}
			seen[f.Pair()] = true
			if f.IsOdometry() {
				chr := f.From.Chr()
				if _, ok := chains[chr]; !ok {
					chrs = append(chrs, chr)
				}
				chains[chr] = append(chains[chr], Transform[U]{From: f.From, To: f.To, Pose: p.lift(f)})
				plan.odometry = append(plan.odometry, f)
			} else {
				plan.separators = append(plan.separators, f)
			}
		}
	}

	// Trajectories anchored by a prior but without odometry in this batch.
	for _, f := range plan.priors {
		chr := f.From.Chr()
		if _, ok := chains[chr]; !ok && p.trajectories[chr] == nil {
			chains[chr] = nil
			chrs = append(chrs, chr)
		}
	}

	for _, chr := range chrs {
		edges := chains[chr]
		if t, ok := p.trajectories[chr]; ok {
			if err := checkChain(t.EndID, edges); err != nil {
				return nil, errors.Wrapf(err, "extending trajectory %c", chr)
			}
			plan.extended[chr] = edges
			continue
		}
		start, anchor := p.anchor(chr, edges, priorOn, initial)
		t, err := BuildTrajectory[T, U](start, anchor, edges)
		if err != nil {
			return nil, errors.Wrapf(err, "building trajectory %c", chr)
		}
		plan.created[chr] = t
	}

	for _, f := range plan.separators {
		for _, k := range []Key{f.From, f.To} {
			if !p.onTrajectory(k, plan) {
				return nil, errors.Wrapf(ErrUnknownKey, "loop closure %s references %s", f.Pair(), k)
			}
		}
	}
	return plan, nil
}

// anchor returns where a new trajectory starts and its anchoring pose: the
// prior if one is given for the trajectory, otherwise the initial estimate of
// the first odometry key, or the identity.
func (p *PCM[T, U]) anchor(chr byte, edges []Transform[U], priorOn map[byte]Factor[T], initial Values[T]) (Key, U) {
	var zero U
	if prior, ok := priorOn[chr]; ok {
		return prior.From, zero.FromFactor(prior)
	}
	start := edges[0].From
	for _, e := range edges[1:] {
		start = min(start, e.From)
	}
	if v, ok := initial[start]; ok {
		return start, zero.Anchor(v)
	}
	var pose T
	return start, zero.Anchor(pose.Identity())
}

func (p *PCM[T, U]) onTrajectory(k Key, plan *batchPlan[T, U]) bool {
	if t, ok := plan.created[k.Chr()]; ok {
		return t.Contains(k)
	}
	t, ok := p.trajectories[k.Chr()]
	if !ok {
		return false
	}
	if t.Contains(k) {
		return true
	}
	for _, e := range plan.extended[k.Chr()] {
		if e.To == k {
			return true
		}
	}
	return false
}

// CheckOdometry compares a loop closure within one trajectory with the
// relative pose predicted by odometry. The measurement is accepted iff the
// consistency norm is at most threshold.
func (p *PCM[T, U]) CheckOdometry(f Factor[T], threshold float64) (bool, float64, error) {
	if f.From.Chr() != f.To.Chr() {
		return false, 0, errors.Wrapf(ErrUnknownKey, "%s spans two trajectories, no odometry path", f.Pair())
	}
	t, ok := p.trajectories[f.From.Chr()]
	if !ok {
		return false, 0, errors.Wrapf(ErrUnknownKey, "no trajectory %c", f.From.Chr())
	}
	predicted, err := t.Between(f.From, f.To)
	if err != nil {
		return false, 0, err
	}
	consistency := predicted.Between(p.lift(f))
	if !consistency.PSD() {
		p.logger.Warn("odometry consistency covariance is not positive semi-definite", "edge", f.Pair().String())
	}
	norm := consistency.Norm()
	return norm <= threshold, norm, nil
}

// orient returns the transform of f directed from trajectory g.a to g.b.
func (p *PCM[T, U]) orient(f Factor[T], g groupKey) Transform[U] {
	pose := p.lift(f)
	if f.From.Chr() == g.a {
		return Transform[U]{From: f.From, To: f.To, Pose: pose, Separator: true}
	}
	return Transform[U]{From: f.To, To: f.From, Pose: pose.Inverse(), Separator: true}
}

// CheckLoopClosure adds a loop closure to the consistency graph of the
// trajectories it connects and updates the maximum clique. Consistency is only
// evaluated against earlier loop closures of the same group. It returns
// whether f is an inlier and the current inlier pairs across all groups.
func (p *PCM[T, U]) CheckLoopClosure(f Factor[T], threshold float64) (bool, []KeyPair, error) {
	for _, k := range []Key{f.From, f.To} {
		if t, ok := p.trajectories[k.Chr()]; !ok || !t.Contains(k) {
			return false, nil, errors.Wrapf(ErrUnknownKey, "loop closure %s references %s", f.Pair(), k)
		}
	}
	if p.known(f.Pair()) {
		return false, nil, errors.Wrapf(ErrDuplicateEdge, "loop closure %s", f.Pair())
	}

	gk := groupOf(f.From, f.To)
	g, ok := p.groups[gk]
	if !ok {
		g = newConsistencyGraph()
		p.groups[gk] = g
	}
	tr := p.orient(f, gk)

	var consistent []int64
	for _, other := range g.order {
		norm, err := p.pairConsistency(tr, p.separators[other].oriented)
		if err != nil {
			return false, nil, err
		}
		p.pairNorms = append(p.pairNorms, norm)
		if norm <= threshold {
			consistent = append(consistent, other)
		}
	}

	id := int64(len(p.separators))
	p.separators = append(p.separators, separator[T, U]{factor: f, oriented: tr, group: gk, vetted: true})
	p.sepPairs[f.Pair()] = true
	g.add(id, consistent)

	p.logger.Debug("loop closure vetted", "edge", f.Pair().String(),
		"consistent", len(consistent), "clique", len(g.best))
	return g.contains(id), p.inlierPairs(), nil
}

// pairConsistency returns the norm of the loop e1 ⊕ pathB(j1→j2) ⊕ e2⁻¹ ⊕ pathA(i2→i1)
// for two transforms oriented from trajectory A to trajectory B. Transforms
// between the same two poses cannot be checked and are consistent.
func (p *PCM[T, U]) pairConsistency(e1, e2 Transform[U]) (float64, error) {
	if e1.From == e2.From && e1.To == e2.To {
		return 0, nil
	}
	pathB, err := p.trajectories[e1.To.Chr()].Between(e1.To, e2.To)
	if err != nil {
		return 0, err
	}
	pathA, err := p.trajectories[e1.From.Chr()].Between(e2.From, e1.From)
	if err != nil {
		return 0, err
	}
	loop := e1.Pose.Compose(pathB).Compose(e2.Pose.Inverse()).Compose(pathA)
	if !loop.PSD() {
		p.logger.Warn("pairwise consistency covariance is not positive semi-definite",
			"edge", e1.Pair().String(), "other", e2.Pair().String())
	}
	return loop.Norm(), nil
}

func (p *PCM[T, U]) isInlier(id int) bool {
	s := p.separators[id]
	return s.vetted && p.groups[s.group].contains(int64(id))
}

func (p *PCM[T, U]) inlierPairs() []KeyPair {
	var pairs []KeyPair
	for id, s := range p.separators {
		if p.isInlier(id) {
			pairs = append(pairs, s.factor.Pair())
		}
	}
	return pairs
}

// Inliers returns the loop closures in the current maximum cliques, in arrival order.
func (p *PCM[T, U]) Inliers() FactorGraph[T] {
	var out FactorGraph[T]
	for id, s := range p.separators {
		if p.isInlier(id) {
			out = append(out, s.factor)
		}
	}
	return out
}

// Rejected returns the loop closures currently treated as outliers, in arrival order.
func (p *PCM[T, U]) Rejected() FactorGraph[T] {
	var out FactorGraph[T]
	for id, s := range p.separators {
		if !p.isInlier(id) {
			out = append(out, s.factor)
		}
	}
	return out
}

// AcceptedGraph returns the priors, the odometry and the inlier loop closures.
func (p *PCM[T, U]) AcceptedGraph() FactorGraph[T] {
	out := make(FactorGraph[T], 0, len(p.priors)+len(p.odomFactors)+len(p.separators))
	out = append(out, p.priors...)
	out = append(out, p.odomFactors...)
	return append(out, p.Inliers()...)
}

// Trajectory returns the odometry trajectory for chr.
func (p *PCM[T, U]) Trajectory(chr byte) (*Trajectory[T, U], bool) {
	t, ok := p.trajectories[chr]
	return t, ok
}

// Odometry returns the trusted odometry transforms.
func (p *PCM[T, U]) Odometry() *Transforms[U] {
	return p.odometry
}

// Cliques returns the maximum clique of each group as loop closure pairs.
func (p *PCM[T, U]) Cliques() [][]KeyPair {
	keys := make([]groupKey, 0, len(p.groups))
	for k := range p.groups {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(x, y groupKey) int {
		if x.a != y.a {
			return int(x.a) - int(y.a)
		}
		return int(x.b) - int(y.b)
	})
	out := make([][]KeyPair, 0, len(keys))
	for _, k := range keys {
		var pairs []KeyPair
		for _, id := range p.groups[k].clique() {
			pairs = append(pairs, p.separators[id].factor.Pair())
		}
		out = append(out, pairs)
	}
	return out
}

// NormStats returns the mean and standard deviation of every pairwise
// consistency norm computed so far. Infinite norms are skipped.
func (p *PCM[T, U]) NormStats() (mean, std float64, n int) {
	finite := make([]float64, 0, len(p.pairNorms))
	for _, v := range p.pairNorms {
		if !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return 0, 0, 0
	}
	mean, std = stat.MeanStdDev(finite, nil)
	return mean, std, len(finite)
}
