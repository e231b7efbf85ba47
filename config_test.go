package robustpgo

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rpgo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
odometry_threshold: 2.5
loop_closure_threshold: 4
quiet: true
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.OdometryThreshold)
	assert.Equal(t, 4.0, cfg.LoopClosureThreshold)
	assert.True(t, cfg.Quiet)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = LoadConfig(writeConfig(t, "quiet: true\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().LoopClosureThreshold, cfg.LoopClosureThreshold)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("RPGO_LOOP_CLOSURE_THRESHOLD", "7.5")
	t.Setenv("RPGO_QUIET", "false")
	cfg, err := LoadConfig(writeConfig(t, "loop_closure_threshold: 4\nquiet: true\n"))
	require.NoError(t, err)
	assert.Equal(t, 7.5, cfg.LoopClosureThreshold)
	assert.False(t, cfg.Quiet)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "odometry_threshold: [1, 2"))
	require.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "odometry_threshold: -1\n"))
	require.ErrorContains(t, err, "odometry_threshold")

	t.Setenv("RPGO_ODOMETRY_THRESHOLD", "fast")
	_, err = LoadConfig("")
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"defaults", DefaultConfig(), true},
		{"zero thresholds", Config{}, true},
		{"negative loop closure", Config{LoopClosureThreshold: -0.1}, false},
		{"confidence of one", Config{OdometryConfidence: 1}, false},
		{"negative confidence", Config{LoopClosureConfidence: -0.5}, false},
		{"confidence", Config{OdometryConfidence: 0.95, LoopClosureConfidence: 0.99}, true},
		{"NaN odometry threshold", Config{OdometryThreshold: math.NaN()}, false},
		{"NaN loop closure threshold", Config{LoopClosureThreshold: math.NaN()}, false},
		{"NaN confidence", Config{LoopClosureConfidence: math.NaN()}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestConfigThresholds(t *testing.T) {
	cfg := Config{OdometryThreshold: 1, LoopClosureThreshold: 2}
	odom, lc := cfg.Thresholds(3)
	assert.Equal(t, 1.0, odom)
	assert.Equal(t, 2.0, lc)

	cfg.LoopClosureConfidence = 0.95
	odom, lc = cfg.Thresholds(3)
	assert.Equal(t, 1.0, odom)
	assert.InDelta(t, MahalanobisThreshold(3, 0.95), lc, 1e-12)
	_, lc6 := cfg.Thresholds(6)
	assert.Greater(t, lc6, lc, "more degrees of freedom allow a larger norm")
}
