package config

// ControllerSpec identifies a control model by name together with its numeric
// parameters. The model name is resolved against the controller factory table
// when the registry is instantiated.
type ControllerSpec struct {
	Model  string             `yaml:"model"`
	Params map[string]float64 `yaml:"params,omitempty"`
}

// TypeSpec seeds one vehicle population: Count vehicles sharing a
// car-following model and a lane-change model.
type TypeSpec struct {
	Name         string         `yaml:"name"`
	Count        int            `yaml:"count"`
	CarFollowing ControllerSpec `yaml:"car_following"`
	LaneChange   ControllerSpec `yaml:"lane_change"`
	// InitialOffset shifts this type's vehicles along the ring at placement
	// time (meters).
	InitialOffset float64 `yaml:"initial_offset,omitempty"`
}

// Net describes the ring-road geometry handed to the scenario builder.
type Net struct {
	Length     float64 `yaml:"length"`      // ring circumference (m)
	Lanes      int     `yaml:"lanes"`       // lane count
	SpeedLimit float64 `yaml:"speed_limit"` // lane speed limit (m/s)
	Resolution int     `yaml:"resolution"`  // polyline points per ring quarter
	OutputPath string  `yaml:"output_path"` // dir for generated simulator artifacts
}

// Initial is the initial-placement policy.
type Initial struct {
	Shuffle bool   `yaml:"shuffle,omitempty"` // randomize placement order
	Seed    uint64 `yaml:"seed,omitempty"`    // rand engine seed used by Shuffle
}

// Simulator carries connection and launch parameters of the external
// microscopic simulator process.
type Simulator struct {
	// Binary is the simulator executable. Empty means attach to an already
	// running process on Host:Port instead of launching one.
	Binary string `yaml:"binary,omitempty"`
	Host   string `yaml:"host,omitempty"` // default 127.0.0.1
	Port   int    `yaml:"port"`
	// TimeStep is the simulated seconds advanced per control round trip.
	TimeStep float64 `yaml:"time_step"`
	// StartTime/EndTime bound the simulated-time window written into the
	// generated simulator configuration.
	StartTime float64 `yaml:"start_time"`
	EndTime   float64 `yaml:"end_time"`
	// StepTimeout bounds one control round trip (seconds, 0 = no timeout).
	// Expiry is treated as a lost connection.
	StepTimeout float64 `yaml:"step_timeout,omitempty"`
}

// Env holds the reward/termination knobs of the step environment.
type Env struct {
	TargetVelocity float64 `yaml:"target_velocity"`
}

// Control bounds the experiment: number of episodes and steps per episode.
type Control struct {
	Runs    int `yaml:"runs"`
	Horizon int `yaml:"horizon"`
}

// Output configures optional experiment artifacts.
type Output struct {
	// PlotPath is the dir for per-run reward curve plots (empty disables them).
	PlotPath string `yaml:"plot_path,omitempty"`
}

// Config is the root of the YAML experiment configuration.
type Config struct {
	Name      string     `yaml:"name"`
	Net       Net        `yaml:"net"`
	Initial   Initial    `yaml:"initial,omitempty"`
	Types     []TypeSpec `yaml:"types"`
	Simulator Simulator  `yaml:"simulator"`
	Env       Env        `yaml:"env"`
	Control   Control    `yaml:"control"`
	Output    Output     `yaml:"output,omitempty"`
}
