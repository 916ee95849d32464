// Package config loads the monitor's YAML configuration.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nvr-ai/go-proctor/alerts"
	"github.com/nvr-ai/go-proctor/behavior"
	"github.com/nvr-ai/go-proctor/controller"
	"github.com/nvr-ai/go-proctor/images/camera"
	"github.com/nvr-ai/go-proctor/inference"
	"github.com/nvr-ai/go-proctor/models"
	"github.com/nvr-ai/go-proctor/tracking"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is the cause of every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// maxFileSize bounds the configuration file.
const maxFileSize = 1 << 20

// Config is the root of the configuration file.
type Config struct {
	Detection DetectionConfig  `yaml:"detection"`
	Tracking  TrackingConfig   `yaml:"tracking"`
	Analysis  AnalysisConfig   `yaml:"analysis"`
	Alerts    alerts.Config    `yaml:"alerts"`
	Model     inference.Config `yaml:"model"`
	Source    SourceConfig     `yaml:"source"`
	Server    ServerConfig     `yaml:"server"`
	Session   SessionConfig    `yaml:"session"`
	Profiler  ProfilerConfig   `yaml:"profiler"`
	Log       LogConfig        `yaml:"log"`
}

// DetectionConfig paces the pipeline.
type DetectionConfig struct {
	// Interval is the minimum time between two pipeline steps.
	Interval time.Duration `yaml:"interval"`
	// PruneInterval is the cadence of the background alert prune.
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// TrackingConfig controls identity assignment and tracker eviction.
type TrackingConfig struct {
	// Identity is "proximity" or "positional".
	Identity string `yaml:"identity"`
	// MatchGate is the largest center distance in pixels that keeps an identity.
	MatchGate float32 `yaml:"match_gate"`
	// StaleAfter evicts tracker records not refreshed for this long. Zero disables eviction.
	StaleAfter time.Duration `yaml:"stale_after"`
}

// AnalysisConfig holds the subject label and the behavior rule thresholds.
type AnalysisConfig struct {
	PersonLabel     string `yaml:"person_label"`
	behavior.Config `yaml:",inline"`
}

// SourceConfig selects where frames come from. FramesDir takes precedence over
// the capture device.
type SourceConfig struct {
	camera.Config `yaml:",inline"`
	// FramesDir replays a directory of still frames instead of a camera.
	FramesDir string `yaml:"frames_dir"`
	// Preview opens a desktop window with the overlay drawn on each frame.
	Preview bool `yaml:"preview"`
}

// ServerConfig controls the dashboard API.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// SessionConfig labels monitoring sessions.
type SessionConfig struct {
	Room string `yaml:"room"`
}

// ProfilerConfig controls the periodic runtime report.
type ProfilerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Detection: DetectionConfig{
			Interval:      150 * time.Millisecond,
			PruneInterval: 5 * time.Second,
		},
		Tracking: TrackingConfig{
			Identity:   tracking.IdentityProximity,
			MatchGate:  120,
			StaleAfter: 3 * time.Second,
		},
		Analysis: AnalysisConfig{
			PersonLabel: models.LabelPerson,
			Config:      behavior.DefaultConfig(),
		},
		Alerts: alerts.DefaultConfig(),
		Model:  inference.DefaultConfig(),
		Server: ServerConfig{
			Enabled: true,
			Listen:  ":8080",
		},
		Profiler: ProfilerConfig{
			ReportInterval: 30 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a YAML file over the defaults and validates the result. Fields the
// file omits keep their defaults.
//
// Arguments:
//   - path: A .yaml or .yml file.
//
// Returns:
//   - Config: The merged configuration.
//   - error: A read or parse error, or one caused by ErrInvalidConfig.
func Load(path string) (Config, error) {
	clean := filepath.Clean(path)
	if ext := strings.ToLower(filepath.Ext(clean)); ext != ".yaml" && ext != ".yml" {
		return Config{}, errors.Errorf("config file must have a .yaml or .yml extension, got %q", ext)
	}

	info, err := os.Stat(clean)
	if err != nil {
		return Config{}, errors.Wrap(err, "stat config file")
	}
	if info.Size() > maxFileSize {
		return Config{}, errors.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config file")
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, errors.Wrap(err, "parse config")
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func invalid(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidConfig, format, args...)
}

// Validate checks that every value is usable.
func (c Config) Validate() error {
	switch {
	case c.Detection.Interval <= 0:
		return invalid("detection.interval must be positive, got %s", c.Detection.Interval)
	case c.Detection.PruneInterval <= 0:
		return invalid("detection.prune_interval must be positive, got %s", c.Detection.PruneInterval)
	}

	switch c.Tracking.Identity {
	case tracking.IdentityProximity, tracking.IdentityPositional:
	default:
		return invalid("tracking.identity must be %q or %q, got %q",
			tracking.IdentityProximity, tracking.IdentityPositional, c.Tracking.Identity)
	}
	if c.Tracking.MatchGate <= 0 {
		return invalid("tracking.match_gate must be positive, got %v", c.Tracking.MatchGate)
	}
	if c.Tracking.StaleAfter < 0 {
		return invalid("tracking.stale_after must not be negative, got %s", c.Tracking.StaleAfter)
	}

	a := c.Analysis
	switch {
	case a.PersonLabel == "":
		return invalid("analysis.person_label is required")
	case a.PhoneLabel == "":
		return invalid("analysis.phone_label is required")
	case a.PhoneMinConfidence < 0 || a.PhoneMinConfidence > 1:
		return invalid("analysis.phone_min_confidence must be in [0, 1], got %v", a.PhoneMinConfidence)
	case a.LookingDownConfidence < 0 || a.LookingDownConfidence > 1:
		return invalid("analysis.looking_down_confidence must be in [0, 1], got %v", a.LookingDownConfidence)
	case a.PhoneMaxDistance <= 0:
		return invalid("analysis.phone_max_distance must be positive, got %v", a.PhoneMaxDistance)
	case a.MovementThreshold <= 0:
		return invalid("analysis.movement_threshold must be positive, got %v", a.MovementThreshold)
	case a.DriftThreshold <= 0:
		return invalid("analysis.drift_threshold must be positive, got %v", a.DriftThreshold)
	case a.MovementWindow <= 0 || a.DriftMinInterval <= 0:
		return invalid("analysis.movement_window and analysis.drift_min_interval must be positive")
	}

	switch {
	case c.Alerts.SuppressionWindow <= 0:
		return invalid("alerts.suppression_window must be positive, got %s", c.Alerts.SuppressionWindow)
	case c.Alerts.RetentionWindow < c.Alerts.SuppressionWindow:
		return invalid("alerts.retention_window %s is shorter than the suppression window %s",
			c.Alerts.RetentionWindow, c.Alerts.SuppressionWindow)
	}

	m := c.Model
	switch {
	case m.InputSize <= 0 || m.InputSize%32 != 0:
		return invalid("model.input_size must be a positive multiple of 32, got %d", m.InputSize)
	case m.Confidence <= 0 || m.Confidence > 1:
		return invalid("model.confidence must be in (0, 1], got %v", m.Confidence)
	case m.NMS <= 0 || m.NMS > 1:
		return invalid("model.nms must be in (0, 1], got %v", m.NMS)
	case m.IntraOpThreads < 0 || m.InterOpThreads < 0:
		return invalid("model thread counts must not be negative")
	}
	switch m.Provider {
	case inference.ProviderCPU, inference.ProviderCoreML, inference.ProviderOpenVINO:
	default:
		return invalid("model.provider %q is not supported", m.Provider)
	}

	if c.Source.Resolution != "" {
		if _, ok := camera.Lookup(c.Source.Resolution); !ok {
			return invalid("source.resolution %q is unknown", c.Source.Resolution)
		}
	}
	if c.Server.Enabled && c.Server.Listen == "" {
		return invalid("server.listen is required when the server is enabled")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return invalid("log.level %q is unknown", c.Log.Level)
	}
	return nil
}

// SchedulerConfig returns the pacing for controller.NewScheduler.
func (c Config) SchedulerConfig() controller.SchedulerConfig {
	return controller.SchedulerConfig{
		Interval:      c.Detection.Interval,
		PruneInterval: c.Detection.PruneInterval,
		Room:          c.Session.Room,
	}
}

// Assigner builds the configured identity assigner over the tracker's positions.
func (c Config) Assigner(source tracking.PositionSource) (tracking.IdentityAssigner, error) {
	return tracking.NewAssigner(c.Tracking.Identity, source, c.Tracking.MatchGate)
}

// UsesDirectory reports whether frames are replayed from a directory.
func (c Config) UsesDirectory() bool {
	return c.Source.FramesDir != ""
}
