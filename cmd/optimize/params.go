package main

import (
	"github.com/pthm-cable/slime/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of optimizable parameters.
// Deposit amount is left out: it only rescales the field.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			// Steering
			{Name: "turn_speed", Path: "simulation.turn_speed", Min: 0.05, Max: 1.5, Default: 0.35},
			{Name: "turn_jitter", Path: "simulation.turn_jitter", Min: 0.0, Max: 0.6, Default: 0.1},
			{Name: "move_speed", Path: "simulation.move_speed", Min: 0.5, Max: 3.0, Default: 1.0},
			// Sensors
			{Name: "sensor_angle", Path: "simulation.sensor_angle", Min: 0.1, Max: 1.5, Default: 0.52},
			{Name: "sensor_distance", Path: "simulation.sensor_distance", Min: 2.0, Max: 30.0, Default: 9.0},
			// Field
			{Name: "diffuse_rate", Path: "simulation.diffuse_rate", Min: 0.0, Max: 1.0, Default: 0.25},
			{Name: "decay_rate", Path: "simulation.decay_rate", Min: 0.005, Max: 0.2, Default: 0.03},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// FromConfig reads the current parameter values out of cfg.
func (pv *ParamVector) FromConfig(cfg *config.Config) []float64 {
	s := cfg.Simulation
	return pv.Clamp([]float64{
		s.TurnSpeed,
		s.TurnJitter,
		s.MoveSpeed,
		s.SensorAngle,
		s.SensorDistance,
		s.DiffuseRate,
		s.DecayRate,
	})
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig applies parameter values to a Config struct.
// Order must match Specs order.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)

	s := &cfg.Simulation
	s.TurnSpeed = clamped[0]
	s.TurnJitter = clamped[1]
	s.MoveSpeed = clamped[2]
	s.SensorAngle = clamped[3]
	s.SensorDistance = clamped[4]
	s.DiffuseRate = clamped[5]
	s.DecayRate = clamped[6]
}
