// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all configuration parameters.
type Config struct {
	Screen     ScreenConfig     `yaml:"screen"`
	Simulation SimulationConfig `yaml:"simulation"`
	Loop       LoopConfig       `yaml:"loop"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Stream     StreamConfig     `yaml:"stream"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds display settings.
type ScreenConfig struct {
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	TargetFPS int     `yaml:"target_fps"`
	Scale     float64 `yaml:"scale"` // Screen pixels per field cell
}

// SimulationConfig holds the parameters the simulation is built from.
// Field dimensions of 0 mean "fill the screen at Screen.Scale".
type SimulationConfig struct {
	Width          int     `yaml:"width"`
	Height         int     `yaml:"height"`
	AgentCount     int     `yaml:"agent_count"`
	MoveSpeed      float64 `yaml:"move_speed"`      // Cells per step
	TurnSpeed      float64 `yaml:"turn_speed"`      // Max steering turn per step (radians)
	TurnJitter     float64 `yaml:"turn_jitter"`     // Random heading noise amplitude (radians)
	SensorAngle    float64 `yaml:"sensor_angle"`    // Left/right probe offset (radians)
	SensorDistance float64 `yaml:"sensor_distance"` // Probe distance (cells)
	DiffuseRate    float64 `yaml:"diffuse_rate"`    // [0,1] blend toward 5x5 mean
	DecayRate      float64 `yaml:"decay_rate"`      // [0,1] fraction lost per step
	DepositAmount  float64 `yaml:"deposit_amount"`  // Trail written at the agent's cell
	FixedStepRate  float64 `yaml:"fixed_step_rate"` // Simulation steps per second
	SpawnRadius    float64 `yaml:"spawn_radius"`    // Fraction of min(width, height)
}

// LoopConfig holds scheduler parameters.
type LoopConfig struct {
	MaxStepsPerFrame int     `yaml:"max_steps_per_frame"` // 0 = unbounded catch-up
	FrameRate        float64 `yaml:"frame_rate"`          // Timer host frame rate (headless/serve)
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	MetricWindow        int     `yaml:"metric_window"`
	StatsWindow         float64 `yaml:"stats_window"` // Simulated seconds per stats window
	PerfCollectorWindow int     `yaml:"perf_collector_window"`
}

// StreamConfig holds field stream server parameters.
type StreamConfig struct {
	Addr       string `yaml:"addr"`
	Downsample int    `yaml:"downsample"`  // Cells per streamed pixel along each axis
	FrameEvery int    `yaml:"frame_every"` // Broadcast every Nth rendered frame
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	FieldW    int     // Effective field width
	FieldH    int     // Effective field height
	StepSec   float64 // Seconds per simulation step
	ScreenW32 float32
	ScreenH32 float32
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()
	return cfg, nil
}

// Defaults returns the embedded default configuration without derived values.
func Defaults() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.ScreenW32 = float32(c.Screen.Width)
	c.Derived.ScreenH32 = float32(c.Screen.Height)

	scale := c.Screen.Scale
	if scale <= 0 {
		scale = 1
	}

	// Field dimensions default to the screen divided by scale
	w := c.Simulation.Width
	if w == 0 {
		w = int(float64(c.Screen.Width) / scale)
	}
	h := c.Simulation.Height
	if h == 0 {
		h = int(float64(c.Screen.Height) / scale)
	}
	c.Derived.FieldW = w
	c.Derived.FieldH = h

	if c.Simulation.FixedStepRate > 0 {
		c.Derived.StepSec = 1 / c.Simulation.FixedStepRate
	}
}

// Sim returns the simulation section with field dimensions resolved.
func (c *Config) Sim() SimulationConfig {
	s := c.Simulation
	s.Width = c.Derived.FieldW
	s.Height = c.Derived.FieldH
	return s
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
