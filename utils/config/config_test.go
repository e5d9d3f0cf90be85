package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
name: sugiyama
net:
  length: 230
  lanes: 1
  speed_limit: 35
  resolution: 40
types:
  - name: ovm
    count: 22
    car_following:
      model: ovm
      params:
        v_max: 15
    lane_change:
      model: static
simulator:
  port: 8873
  time_step: 0.01
  end_time: 3000
env:
  target_velocity: 25
control:
  runs: 1
  horizon: 10000
`

func TestParseValid(t *testing.T) {
	c, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	assert.Equal(t, "sugiyama", c.Name)
	assert.Equal(t, 230.0, c.Net.Length)
	require.Len(t, c.Types, 1)
	assert.Equal(t, 22, c.Types[0].Count)
	assert.Equal(t, 15.0, c.Types[0].CarFollowing.Params["v_max"])
	assert.Equal(t, "static", c.Types[0].LaneChange.Model)
	assert.Equal(t, 8873, c.Simulator.Port)
	assert.Equal(t, 0.01, c.Simulator.TimeStep)
	assert.Equal(t, 10000, c.Control.Horizon)
}

func TestParseDefaults(t *testing.T) {
	c, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", c.Simulator.Host)
	assert.Empty(t, c.Simulator.Binary)
	assert.False(t, c.Initial.Shuffle)
}

func TestParseRejectsUnknownKey(t *testing.T) {
	_, err := Parse([]byte(validYAML + "\nbogus: 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestParseNotYAML(t *testing.T) {
	_, err := Parse([]byte("{{{"))
	require.Error(t, err)
}

func TestValidateFieldErrors(t *testing.T) {
	base := func() Config {
		c, err := Parse([]byte(validYAML))
		require.NoError(t, err)
		return c
	}

	cases := []struct {
		field  string
		mutate func(*Config)
	}{
		{"net.length", func(c *Config) { c.Net.Length = 0 }},
		{"net.lanes", func(c *Config) { c.Net.Lanes = -1 }},
		{"net.speed_limit", func(c *Config) { c.Net.SpeedLimit = 0 }},
		{"net.resolution", func(c *Config) { c.Net.Resolution = 0 }},
		{"types", func(c *Config) { c.Types = nil }},
		{"types[0].name", func(c *Config) { c.Types[0].Name = "" }},
		{"types[0].count", func(c *Config) { c.Types[0].Count = 0 }},
		{"types[0].car_following.model", func(c *Config) { c.Types[0].CarFollowing.Model = "" }},
		{"types[0].lane_change.model", func(c *Config) { c.Types[0].LaneChange.Model = "" }},
		{"simulator.port", func(c *Config) { c.Simulator.Port = 70000 }},
		{"simulator.time_step", func(c *Config) { c.Simulator.TimeStep = 0 }},
		{"simulator.end_time", func(c *Config) { c.Simulator.EndTime = c.Simulator.StartTime }},
		{"simulator.step_timeout", func(c *Config) { c.Simulator.StepTimeout = -1 }},
		{"env.target_velocity", func(c *Config) { c.Env.TargetVelocity = 0 }},
		{"control.runs", func(c *Config) { c.Control.Runs = 0 }},
		{"control.horizon", func(c *Config) { c.Control.Horizon = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.field, func(t *testing.T) {
			c := base()
			tc.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			var ferr *FieldError
			require.ErrorAs(t, err, &ferr)
			assert.Equal(t, tc.field, ferr.Field)
		})
	}
}

func TestFieldErrorMessage(t *testing.T) {
	err := fieldErrorf("net.length", "must be positive, got %v", -3.0)
	assert.EqualError(t, err, "config: net.length: must be positive, got -3")
}
