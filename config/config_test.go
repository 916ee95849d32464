package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/go-proctor/behavior"
	"github.com/nvr-ai/go-proctor/tracking"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 150*time.Millisecond, cfg.Detection.Interval)
	assert.Equal(t, 5*time.Second, cfg.Alerts.SuppressionWindow)
	assert.Equal(t, 30*time.Second, cfg.Alerts.RetentionWindow)
	assert.Equal(t, behavior.DefaultConfig(), cfg.Analysis.Config)
	assert.Equal(t, tracking.IdentityProximity, cfg.Tracking.Identity)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, "proctor.yaml", `
detection:
  interval: 250ms
tracking:
  identity: positional
analysis:
  phone_min_confidence: 0.6
  movement_window: 2s
alerts:
  suppression_window: 10s
model:
  path: models/yolov8n.onnx
  input_size: 320
source:
  frames_dir: ./frames
  loop: true
session:
  room: B-204
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Detection.Interval)
	assert.Equal(t, 5*time.Second, cfg.Detection.PruneInterval, "omitted fields keep defaults")
	assert.Equal(t, tracking.IdentityPositional, cfg.Tracking.Identity)
	assert.InDelta(t, 0.6, cfg.Analysis.PhoneMinConfidence, 1e-6)
	assert.Equal(t, 2*time.Second, cfg.Analysis.MovementWindow)
	assert.Equal(t, float32(200), cfg.Analysis.PhoneMaxDistance)
	assert.Equal(t, 10*time.Second, cfg.Alerts.SuppressionWindow)
	assert.Equal(t, 30*time.Second, cfg.Alerts.RetentionWindow)
	assert.Equal(t, "models/yolov8n.onnx", cfg.Model.ModelPath)
	assert.Equal(t, 320, cfg.Model.InputSize)
	assert.True(t, cfg.UsesDirectory())
	assert.True(t, cfg.Source.Loop)

	sched := cfg.SchedulerConfig()
	assert.Equal(t, 250*time.Millisecond, sched.Interval)
	assert.Equal(t, "B-204", sched.Room)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	t.Run("extension", func(t *testing.T) {
		_, err := Load(writeFile(t, "proctor.json", "{}"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "extension")
	})

	t.Run("missing", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.True(t, os.IsNotExist(errors.Cause(err)))
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := Load(writeFile(t, "proctor.yaml", "detection:\n  intervall: 1s\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse config")
	})

	t.Run("too large", func(t *testing.T) {
		big := make([]byte, maxFileSize+1)
		for i := range big {
			big[i] = '#'
		}
		_, err := Load(writeFile(t, "proctor.yaml", string(big)))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too large")
	})
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("  \n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.Detection.Interval = 0 }},
		{"zero prune interval", func(c *Config) { c.Detection.PruneInterval = 0 }},
		{"unknown identity", func(c *Config) { c.Tracking.Identity = "face" }},
		{"zero gate", func(c *Config) { c.Tracking.MatchGate = 0 }},
		{"negative stale", func(c *Config) { c.Tracking.StaleAfter = -time.Second }},
		{"no person label", func(c *Config) { c.Analysis.PersonLabel = "" }},
		{"no phone label", func(c *Config) { c.Analysis.PhoneLabel = "" }},
		{"phone confidence above one", func(c *Config) { c.Analysis.PhoneMinConfidence = 1.5 }},
		{"zero phone distance", func(c *Config) { c.Analysis.PhoneMaxDistance = 0 }},
		{"zero movement threshold", func(c *Config) { c.Analysis.MovementThreshold = 0 }},
		{"zero drift threshold", func(c *Config) { c.Analysis.DriftThreshold = 0 }},
		{"zero movement window", func(c *Config) { c.Analysis.MovementWindow = 0 }},
		{"zero suppression", func(c *Config) { c.Alerts.SuppressionWindow = 0 }},
		{"retention below suppression", func(c *Config) { c.Alerts.RetentionWindow = time.Second }},
		{"input size", func(c *Config) { c.Model.InputSize = 100 }},
		{"confidence", func(c *Config) { c.Model.Confidence = 0 }},
		{"nms", func(c *Config) { c.Model.NMS = 2 }},
		{"threads", func(c *Config) { c.Model.IntraOpThreads = -1 }},
		{"provider", func(c *Config) { c.Model.Provider = "tpu" }},
		{"resolution", func(c *Config) { c.Source.Resolution = "8k-ish" }},
		{"listen", func(c *Config) { c.Server.Listen = "" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestValidateAllowsDisabledServerWithoutListen(t *testing.T) {
	cfg := Default()
	cfg.Server.Enabled = false
	cfg.Server.Listen = ""
	assert.NoError(t, cfg.Validate())
}

func TestAssigner(t *testing.T) {
	cfg := Default()
	tracker := tracking.NewTracker()

	assigner, err := cfg.Assigner(tracker)
	require.NoError(t, err)
	assert.IsType(t, &tracking.ProximityAssigner{}, assigner)

	cfg.Tracking.Identity = tracking.IdentityPositional
	assigner, err = cfg.Assigner(tracker)
	require.NoError(t, err)
	assert.IsType(t, tracking.PositionalAssigner{}, assigner)
}
