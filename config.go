package robustpgo

import (
	"math"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the outlier rejection settings.
//
// A confidence in (0, 1) overrides the matching threshold with the Mahalanobis
// distance enclosing that probability mass of a chi-square distribution with
// as many degrees of freedom as the pose tangent space.
type Config struct {
	OdometryThreshold     float64 `yaml:"odometry_threshold" env:"RPGO_ODOMETRY_THRESHOLD"`
	LoopClosureThreshold  float64 `yaml:"loop_closure_threshold" env:"RPGO_LOOP_CLOSURE_THRESHOLD"`
	OdometryConfidence    float64 `yaml:"odometry_confidence" env:"RPGO_ODOMETRY_CONFIDENCE"`
	LoopClosureConfidence float64 `yaml:"loop_closure_confidence" env:"RPGO_LOOP_CLOSURE_CONFIDENCE"`
	Quiet                 bool    `yaml:"quiet" env:"RPGO_QUIET"`
}

// DefaultConfig returns thresholds which accept loop closures within three
// standard deviations.
func DefaultConfig() Config {
	return Config{
		OdometryThreshold:    3,
		LoopClosureThreshold: 3,
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig, then
// applies RPGO_* environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "reading config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrap(err, "parsing config YAML")
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parsing environment")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the thresholds are usable.
func (c Config) Validate() error {
	if math.IsNaN(c.OdometryThreshold) || c.OdometryThreshold < 0 {
		return errors.Errorf("odometry_threshold must be non-negative, got %f", c.OdometryThreshold)
	}
	if math.IsNaN(c.LoopClosureThreshold) || c.LoopClosureThreshold < 0 {
		return errors.Errorf("loop_closure_threshold must be non-negative, got %f", c.LoopClosureThreshold)
	}
	if math.IsNaN(c.OdometryConfidence) || c.OdometryConfidence < 0 || c.OdometryConfidence >= 1 {
		return errors.Errorf("odometry_confidence must be in [0, 1), got %f", c.OdometryConfidence)
	}
	if math.IsNaN(c.LoopClosureConfidence) || c.LoopClosureConfidence < 0 || c.LoopClosureConfidence >= 1 {
		return errors.Errorf("loop_closure_confidence must be in [0, 1), got %f", c.LoopClosureConfidence)
	}
	return nil
}

// Thresholds returns the odometry and loop closure thresholds for poses with
// a tangent space of dimension dim.
func (c Config) Thresholds(dim int) (odometry, loopClosure float64) {
	odometry, loopClosure = c.OdometryThreshold, c.LoopClosureThreshold
	if c.OdometryConfidence > 0 {
		odometry = MahalanobisThreshold(dim, c.OdometryConfidence)
	}
	if c.LoopClosureConfidence > 0 {
		loopClosure = MahalanobisThreshold(dim, c.LoopClosureConfidence)
	}
	return odometry, loopClosure
}
