package config

import (
	"fmt"

	"gopkg.in/yaml.v2"
)

// FieldError is a configuration error that names the offending field, so it
// can be reported before any simulator process is started.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func fieldErrorf(field, format string, args ...any) *FieldError {
	return &FieldError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Parse decodes a YAML experiment configuration. Unknown keys are rejected to
// catch typos before they silently fall back to defaults.
func Parse(data []byte) (Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Simulator.Host == "" {
		c.Simulator.Host = "127.0.0.1"
	}
	if c.Name == "" {
		c.Name = "loopsim"
	}
}

// Validate fails fast on parameters that would otherwise surface as obscure
// runtime failures. Scenario geometry and population get a second, deeper
// check in the scenario builder.
func (c *Config) Validate() error {
	if c.Net.Length <= 0 {
		return fieldErrorf("net.length", "must be positive, got %v", c.Net.Length)
	}
	if c.Net.Lanes <= 0 {
		return fieldErrorf("net.lanes", "must be positive, got %v", c.Net.Lanes)
	}
	if c.Net.SpeedLimit <= 0 {
		return fieldErrorf("net.speed_limit", "must be positive, got %v", c.Net.SpeedLimit)
	}
	if c.Net.Resolution <= 0 {
		return fieldErrorf("net.resolution", "must be positive, got %v", c.Net.Resolution)
	}
	if len(c.Types) == 0 {
		return fieldErrorf("types", "at least one vehicle type is required")
	}
	for i, t := range c.Types {
		if t.Name == "" {
			return fieldErrorf(fmt.Sprintf("types[%d].name", i), "must not be empty")
		}
		if t.Count <= 0 {
			return fieldErrorf(fmt.Sprintf("types[%d].count", i), "must be positive, got %v", t.Count)
		}
		if t.CarFollowing.Model == "" {
			return fieldErrorf(fmt.Sprintf("types[%d].car_following.model", i), "must not be empty")
		}
		if t.LaneChange.Model == "" {
			return fieldErrorf(fmt.Sprintf("types[%d].lane_change.model", i), "must not be empty")
		}
	}
	if c.Simulator.Port <= 0 || c.Simulator.Port > 65535 {
		return fieldErrorf("simulator.port", "must be in (0, 65535], got %v", c.Simulator.Port)
	}
	if c.Simulator.TimeStep <= 0 {
		return fieldErrorf("simulator.time_step", "must be positive, got %v", c.Simulator.TimeStep)
	}
	if c.Simulator.EndTime <= c.Simulator.StartTime {
		return fieldErrorf("simulator.end_time", "must be after start_time (%v), got %v",
			c.Simulator.StartTime, c.Simulator.EndTime)
	}
	if c.Simulator.StepTimeout < 0 {
		return fieldErrorf("simulator.step_timeout", "must not be negative, got %v", c.Simulator.StepTimeout)
	}
	if c.Env.TargetVelocity <= 0 {
		return fieldErrorf("env.target_velocity", "must be positive, got %v", c.Env.TargetVelocity)
	}
	if c.Control.Runs <= 0 {
		return fieldErrorf("control.runs", "must be positive, got %v", c.Control.Runs)
	}
	if c.Control.Horizon <= 0 {
		return fieldErrorf("control.horizon", "must be positive, got %v", c.Control.Horizon)
	}
	return nil
}
