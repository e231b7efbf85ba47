package robustpgo

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
)

// Optimizer solves a pose graph from an initial estimate.
type Optimizer[T Pose[T]] interface {
	Optimize(graph FactorGraph[T], initial Values[T]) (Values[T], error)
}

// PassThrough is an Optimizer which returns the initial estimate unchanged.
type PassThrough[T Pose[T]] struct{}

// Optimize implements the Optimizer interface.
func (PassThrough[T]) Optimize(_ FactorGraph[T], initial Values[T]) (Values[T], error) {
	return initial.Clone(), nil
}

// Option configures a RobustPGO.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for diagnostics. The configured quiet mode
// still applies on top of it.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// RobustPGO filters incoming measurements with PCM and hands the accepted
// graph to an optimizer.
type RobustPGO[T Pose[T], U Uncertain[T, U]] struct {
	cfg      Config
	solver   Optimizer[T]
	pcm      *PCM[T, U]
	logger   *slog.Logger
	loaded   bool
	values   Values[T]
	estimate Values[T]
}

// NewRobustPGO returns an empty RobustPGO.
func NewRobustPGO[T Pose[T], U Uncertain[T, U]](cfg Config, solver Optimizer[T], opts ...Option) (*RobustPGO[T, U], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if solver == nil {
		solver = PassThrough[T]{}
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if cfg.Quiet {
		logger = slog.New(&levelHandler{level: slog.LevelError, handler: logger.Handler()})
	}
	odom, lc := cfg.Thresholds(dimOf[T]())
	return &RobustPGO[T, U]{
		cfg:      cfg,
		solver:   solver,
		pcm:      NewPCM[T, U](odom, lc, logger),
		logger:   logger,
		values:   make(Values[T]),
		estimate: make(Values[T]),
	}, nil
}

// LoadGraph loads the first graph. The prior anchors the first trajectory and
// is processed ahead of the graph.
func (r *RobustPGO[T, U]) LoadGraph(graph FactorGraph[T], initial Values[T], prior Factor[T]) error {
	if r.loaded {
		return ErrAlreadyLoaded
	}
	if prior.Kind != PriorFactor {
		return errors.Wrapf(ErrInvalidFactor, "expected a prior, got a %s factor", prior.Kind)
	}
	batch := make(FactorGraph[T], 0, len(graph)+1)
	batch = append(batch, prior)
	batch = append(batch, graph...)
	if err := r.pcm.Process(batch, initial); err != nil {
		return errors.Wrap(err, "loading graph")
	}
	r.loaded = true
	r.logger.Info("graph loaded", "factors", len(graph)+1, "values", len(initial))
	return r.update(initial)
}

// AddGraph adds a graph to a loaded problem. The bridge connects the new graph
// to the existing one and is vetted ahead of the graph's loop closures.
func (r *RobustPGO[T, U]) AddGraph(graph FactorGraph[T], initial Values[T], bridge Factor[T]) error {
	if !r.loaded {
		return ErrNotLoaded
	}
	if bridge.Kind != BetweenFactor {
		return errors.Wrapf(ErrInvalidFactor, "expected a between factor as bridge, got a %s factor", bridge.Kind)
	}
	if bridge.IsOdometry() {
		return errors.Wrapf(ErrInvalidFactor, "bridge %s links consecutive poses", bridge.Pair())
	}
	batch := make(FactorGraph[T], 0, len(graph)+1)
	batch = append(batch, bridge)
	batch = append(batch, graph...)
	if err := r.pcm.Process(batch, initial); err != nil {
		return errors.Wrap(err, "adding graph")
	}
	r.logger.Info("graph added", "factors", len(graph)+1, "values", len(initial))
	return r.update(initial)
}

// update merges the new initial values and runs the optimizer. Values for known
// keys are kept.
func (r *RobustPGO[T, U]) update(initial Values[T]) error {
	for _, k := range initial.Keys() {
		if _, ok := r.values[k]; !ok {
			r.values[k] = initial[k]
		}
	}
	graph := r.pcm.AcceptedGraph()
	guess := r.values.Clone()
	for k, v := range r.estimate {
		guess[k] = v
	}
	est, err := r.solver.Optimize(graph, guess)
	if err != nil {
		r.logger.Error("optimization failed", "error", err)
		return errors.Wrap(err, "optimizing")
	}
	r.estimate = est
	if rejected := len(r.pcm.Rejected()); rejected > 0 {
		r.logger.Info("loop closures rejected", "count", rejected, "accepted", len(r.pcm.Inliers()))
	}
	return nil
}

// Factors returns the accepted graph: priors, odometry and inlier loop closures.
func (r *RobustPGO[T, U]) Factors() FactorGraph[T] {
	return r.pcm.AcceptedGraph()
}

// Estimate returns the latest optimized values.
func (r *RobustPGO[T, U]) Estimate() Values[T] {
	return r.estimate.Clone()
}

// Rejected returns the loop closures currently treated as outliers.
func (r *RobustPGO[T, U]) Rejected() FactorGraph[T] {
	return r.pcm.Rejected()
}

// PCM returns the outlier rejection state.
func (r *RobustPGO[T, U]) PCM() *PCM[T, U] {
	return r.pcm
}

// levelHandler drops records below level.
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level() && h.handler.Enabled(ctx, level)
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}
