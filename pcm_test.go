package robustpgo

import (
	"bytes"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var (
	goodClosures = [][2]uint64{{40, 0}, {43, 3}, {46, 6}, {49, 9}}
)

// outlierGraph returns robot a with four good loop closures followed by a
// gross outlier.
func outlierGraph(t *testing.T) (Values[SE2], FactorGraph[SE2], Factor[SE2]) {
	t.Helper()
	truth, graph := robot(t, 'a', NewSE2(0, 0, 0), 49)
	graph = append(FactorGraph[SE2]{priorOn(Symbol('a', 0), truth[Symbol('a', 0)])}, graph...)
	for _, lc := range goodClosures {
		graph = append(graph, loopClosure(truth, Symbol('a', lc[0]), Symbol('a', lc[1])))
	}
	from, to := Symbol('a', 30), Symbol('a', 20)
	outlier := NewBetween(from, to, truth[from].Between(truth[to]).Compose(NewSE2(3, -3, 2)), NewIsotropic(3, loopSigma*loopSigma))
	return truth, append(graph, outlier), outlier
}

func TestPCMOdometryOnly(t *testing.T) {
	truth, graph := robot(t, 'a', NewSE2(1, 2, 0.5), 20)
	pcm := NewPCM[SE2, covSE2](0, 0, nil)
	require.NoError(t, pcm.Process(graph, truth))

	assert.Len(t, pcm.AcceptedGraph(), 20)
	assert.Empty(t, pcm.Rejected())
	assert.Equal(t, 20, pcm.Odometry().Len())

	traj, ok := pcm.Trajectory('a')
	require.True(t, ok)
	assert.Equal(t, 21, traj.Len())
	// Without a prior the trajectory starts at the initial estimate.
	for _, k := range traj.Keys() {
		p, _ := traj.Pose(k)
		assert.True(t, p.Pose().Equal(truth[k], 1e-9), "%s: %s != %s", k, p.Pose(), truth[k])
	}
}

func TestPCMCheckOdometry(t *testing.T) {
	truth, graph, outlier := outlierGraph(t)
	pcm := NewPCM[SE2, covSE2](10, 10, nil)
	require.NoError(t, pcm.Process(graph[:50], truth))

	good := loopClosure(truth, Symbol('a', 40), Symbol('a', 0))
	ok, norm, err := pcm.CheckOdometry(good, 0.5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Greater(t, norm, 0.0)

	ok, norm, err = pcm.CheckOdometry(outlier, 10)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, norm, 10.0)

	_, _, err = pcm.CheckOdometry(NewBetween(Symbol('a', 0), Symbol('b', 0), NewSE2(0, 0, 0), NewIsotropic(3, 1)), 10)
	require.ErrorIs(t, err, ErrUnknownKey)
}

func TestPCMCheckLoopClosure(t *testing.T) {
	truth, graph, outlier := outlierGraph(t)
	pcm := NewPCM[SE2, covSE2](10, 10, nil)
	require.NoError(t, pcm.Process(graph[:50], truth))

	for i, lc := range graph[50:54] {
		ok, inliers, err := pcm.CheckLoopClosure(lc, 1)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Len(t, inliers, i+1)
	}
	ok, inliers, err := pcm.CheckLoopClosure(outlier, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, inliers, 4)
	assert.Equal(t, [][]KeyPair{graph[50:54].Pairs()}, pcm.Cliques())

	_, _, err = pcm.CheckLoopClosure(outlier, 1)
	require.ErrorIs(t, err, ErrDuplicateEdge)

	mean, std, n := pcm.NormStats()
	assert.Equal(t, 10, n)
	assert.Greater(t, mean, 0.0)
	assert.Greater(t, std, 0.0)
}

func TestPCMSameEndpoints(t *testing.T) {
	truth, graph := robot(t, 'a', NewSE2(0, 0, 0), 49)
	pcm := NewPCM[SE2, covSE2](10, 0, nil)
	require.NoError(t, pcm.Process(graph, truth))

	// Opposite directions between the same poses are separate measurements.
	a, b := Symbol('a', 30), Symbol('a', 20)
	require.NoError(t, pcm.Process(FactorGraph[SE2]{loopClosure(truth, a, b)}, nil))
	require.NoError(t, pcm.Process(FactorGraph[SE2]{loopClosure(truth, b, a)}, nil))
	assert.Len(t, pcm.Inliers(), 1)

	e1 := pcm.orient(loopClosure(truth, a, b), groupKey{'a', 'a'})
	norm, err := pcm.pairConsistency(e1, e1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, norm)
}

func TestPCMThresholdMonotonicity(t *testing.T) {
	truth, graph, outlier := outlierGraph(t)
	goods := graph[50:54].Pairs()

	var previous []KeyPair
	for _, threshold := range []float64{0, 0.5, 1, 10, 100, 1e6} {
		pcm := NewPCM[SE2, covSE2](threshold, threshold, nil)
		require.NoError(t, pcm.Process(graph, truth))
		inliers := pcm.Inliers().Pairs()
		for _, p := range previous {
			assert.Contains(t, inliers, p, "threshold %f dropped %s", threshold, p)
		}
		switch threshold {
		case 0:
			assert.Empty(t, inliers)
			assert.Len(t, pcm.Rejected(), 5)
		case 1, 10:
			assert.Equal(t, goods, inliers)
			assert.Equal(t, FactorGraph[SE2]{outlier}, pcm.Rejected())
		case 100, 1e6:
			assert.Len(t, inliers, 5)
		}
		assert.Len(t, pcm.AcceptedGraph(), 50+len(inliers))
		previous = inliers
	}
}

func TestPCMDistance(t *testing.T) {
	truth, graph, outlier := outlierGraph(t)
	pcm := NewPCM[SE2, PoseWithDistance[SE2]](1, 1, nil)
	require.NoError(t, pcm.Process(graph, truth))
	assert.Len(t, pcm.Inliers(), 4)
	assert.Equal(t, FactorGraph[SE2]{outlier}, pcm.Rejected())

	pcm = NewPCM[SE2, PoseWithDistance[SE2]](0, 0, nil)
	require.NoError(t, pcm.Process(graph, truth))
	assert.Empty(t, pcm.Inliers())
}

func TestPCMRejectsBadBatch(t *testing.T) {
	truth, graph := robot(t, 'a', NewSE2(0, 0, 0), 20)
	pcm := NewPCM[SE2, covSE2](10, 10, nil)
	require.NoError(t, pcm.Process(graph[:10], truth))
	before := pcm.AcceptedGraph()

	tests := []struct {
		name  string
		batch FactorGraph[SE2]
		want  error
	}{
		{"duplicate of stored odometry", graph[9:12], ErrDuplicateEdge},
		{"duplicate within batch", append(graph[10:12:12], graph[11]), ErrDuplicateEdge},
		{"gap", append(graph[10:11:11], graph[12:]...), ErrNonContiguous},
		{"loop closure to unknown pose", FactorGraph[SE2]{
			graph[10],
			NewBetween(Symbol('a', 15), Symbol('a', 2), NewSE2(0, 0, 0), NewIsotropic(3, 1)),
		}, ErrUnknownKey},
		{"second trajectory without anchor", FactorGraph[SE2]{
			NewBetween(Symbol('a', 3), Symbol('b', 2), NewSE2(0, 0, 0), NewIsotropic(3, 1)),
		}, ErrUnknownKey},
		{"self loop", FactorGraph[SE2]{
			NewBetween(Symbol('a', 3), Symbol('a', 3), NewSE2(0, 0, 0), NewIsotropic(3, 1)),
		}, ErrInvalidFactor},
		{"wrong noise dimension", FactorGraph[SE2]{
			NewBetween(Symbol('a', 10), Symbol('a', 11), NewSE2(0, 0, 0), NewIsotropic(6, 1)),
		}, ErrDimension},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pcm.Process(tt.batch, truth)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, before.Pairs(), pcm.AcceptedGraph().Pairs())
			traj, _ := pcm.Trajectory('a')
			assert.Equal(t, Symbol('a', 10), traj.EndID)
			_, ok := pcm.Trajectory('b')
			assert.False(t, ok)
		})
	}
}

func TestPCMLogsRejections(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	truth, graph, _ := outlierGraph(t)
	pcm := NewPCM[SE2, covSE2](1, 1, logger)
	require.NoError(t, pcm.Process(graph, truth))
	assert.Contains(t, buf.String(), "loop closure rejected by odometry check")
	assert.Contains(t, buf.String(), "edge=a30->a20")
}

func TestPCMWarnsOnIndefinitePath(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	truth, graph := robot(t, 'a', NewSE2(0, 0, 0), 49)
	// No heading information from odometry: every path covariance is singular.
	blind := NewGaussian(mat.NewSymDense(3, []float64{
		math.NaN(), 0, 0,
		0, odomSigma * odomSigma, 0,
		0, 0, odomSigma * odomSigma,
	}))
	for i := range graph {
		graph[i].Noise = blind
	}
	pcm := NewPCM[SE2, covSE2](1e6, 1e6, logger)
	require.NoError(t, pcm.Process(graph, truth))

	traj, _ := pcm.Trajectory('a')
	path, err := traj.Between(Symbol('a', 3), Symbol('a', 9))
	require.NoError(t, err)
	assert.False(t, path.PSD())

	first := loopClosure(truth, Symbol('a', 40), Symbol('a', 0))
	_, _, err = pcm.CheckOdometry(first, 1e6)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "odometry consistency covariance is not positive semi-definite")

	_, _, err = pcm.CheckLoopClosure(first, 1e6)
	require.NoError(t, err)
	_, _, err = pcm.CheckLoopClosure(loopClosure(truth, Symbol('a', 43), Symbol('a', 3)), 1e6)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "pairwise consistency covariance is not positive semi-definite")
	assert.Contains(t, buf.String(), "edge=a43->a3")
}

func TestPCMInterTrajectory(t *testing.T) {
	truthA, graphA := robot(t, 'a', NewSE2(0, 0, 0), 49)
	truthB, graphB := robot(t, 'b', NewSE2(2, -3, 0.4), 41)
	pcm := NewPCM[SE2, covSE2](10, 1, nil)
	require.NoError(t, pcm.Process(append(FactorGraph[SE2]{priorOn(Symbol('a', 0), truthA[Symbol('a', 0)])}, graphA...), truthA))

	truth := truthA.Clone()
	for k, v := range truthB {
		truth[k] = v
	}
	a0, b0 := Symbol('a', 0), Symbol('b', 0)
	lcNoise := NewIsotropic(3, loopSigma*loopSigma)
	bridge := NewBetween(a0, b0, truth[a0].Between(truth[b0]), lcNoise)
	good := loopClosure(truth, Symbol('a', 10), Symbol('b', 12))
	reversed := loopClosure(truth, Symbol('b', 20), Symbol('a', 25))
	from, to := Symbol('a', 2), Symbol('b', 3)
	outlier := NewBetween(from, to, truth[from].Between(truth[to]).Compose(NewSE2(3, -3, 2)), lcNoise)
	backBridge := NewBetween(b0, a0, truth[b0].Between(truth[a0]), lcNoise)

	batch := append(FactorGraph[SE2]{bridge}, graphB...)
	batch = append(batch, good, reversed, outlier, backBridge)
	require.NoError(t, pcm.Process(batch, truthB))

	assert.Equal(t, FactorGraph[SE2]{bridge, good, reversed, backBridge}.Pairs(), pcm.Inliers().Pairs())
	assert.Equal(t, FactorGraph[SE2]{outlier}, pcm.Rejected())
	assert.Equal(t, [][]KeyPair{{bridge.Pair(), good.Pair(), reversed.Pair(), backBridge.Pair()}}, pcm.Cliques())

	// Both edges are oriented from a to b before forming the loop.
	g := groupOf(b0, a0)
	assert.Equal(t, groupKey{'a', 'b'}, g)
	flipped := pcm.orient(reversed, g)
	assert.Equal(t, KeyPair{From: Symbol('a', 25), To: Symbol('b', 20)}, flipped.Pair())
	assert.True(t, flipped.Pose.Pose().Equal(reversed.Measured.Inverse(), 1e-12))

	norm, err := pcm.pairConsistency(pcm.orient(bridge, g), pcm.orient(backBridge, g))
	require.NoError(t, err)
	assert.Equal(t, 0.0, norm)
	norm, err = pcm.pairConsistency(pcm.orient(good, g), flipped)
	require.NoError(t, err)
	assert.Less(t, norm, 1.0)
	norm, err = pcm.pairConsistency(pcm.orient(outlier, g), pcm.orient(bridge, g))
	require.NoError(t, err)
	assert.Greater(t, norm, 1.0)
}
