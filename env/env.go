// Package env implements the per-timestep control loop: pull vehicle state
// through the bridge, consult every vehicle's controllers, push the action
// set back, and derive reward and termination signals.
package env

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/mixedtraffic/loopsim/clock"
	"github.com/mixedtraffic/loopsim/controller"
	"github.com/mixedtraffic/loopsim/entity"
	"github.com/mixedtraffic/loopsim/scenario"
)

var log = logrus.WithField("module", "env")

// Bridge is the slice of the simulator bridge the environment needs. The
// environment never owns the bridge; the experiment does.
type Bridge interface {
	Start(ctx context.Context) error
	Initial() entity.StepState
	Reset() (entity.StepState, error)
	Step(entity.ActionSet) (entity.StepState, error)
	Terminate() error
}

// State is the environment lifecycle state.
type State int8

const (
	Uninitialized State = iota
	Ready
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int8(s))
	}
}

// Info carries per-step diagnostics alongside observation and reward.
type Info struct {
	Step        int     // steps since the last reset
	Time        float64 // simulated time (s)
	Vehicles    int
	MeanSpeed   float64 // fleet mean (m/s)
	LaneChanges int     // lane-change commands issued this step
}

// Env is the step environment: a state machine over one scenario, one bridge
// and one controller registry. The registry is rebuilt on every Reset so no
// controller state survives between runs.
type Env struct {
	sc     *scenario.Scenario
	bridge Bridge
	reward RewardPolicy
	clock  *clock.Clock
	seed   uint64

	horizon  int // steps per run, 0 means unbounded
	state    State
	registry *controller.Registry
	current  entity.StepState
}

// New creates an environment in the uninitialized state.
func New(sc *scenario.Scenario, b Bridge, dt, startTime float64, horizon int, reward RewardPolicy, seed uint64) *Env {
	return &Env{
		sc:      sc,
		bridge:  b,
		reward:  reward,
		clock:   clock.New(dt, startTime),
		seed:    seed,
		horizon: horizon,
	}
}

// State reports the lifecycle state.
func (e *Env) State() State { return e.state }

// Clock exposes the environment's simulated clock.
func (e *Env) Clock() *clock.Clock { return e.clock }

// SetHorizon overrides the per-run step bound. Only meaningful between runs.
func (e *Env) SetHorizon(h int) { e.horizon = h }

// Registry exposes the current controller registry (nil before first Reset).
func (e *Env) Registry() *controller.Registry { return e.registry }

// Reset brings the environment to the ready state for a new run: a fresh
// controller registry is instantiated (discarding any prior run's controller
// state) and the bridge is started, or rewound when the simulator process is
// already up from a previous run. Returns the initial observation.
func (e *Env) Reset(ctx context.Context) (entity.StepState, error) {
	switch e.state {
	case Uninitialized, Terminated:
	default:
		return entity.StepState{}, fmt.Errorf("env: reset from state %s", e.state)
	}
	registry, err := controller.Instantiate(e.sc, e.seed)
	if err != nil {
		return entity.StepState{}, err
	}

	var obs entity.StepState
	if e.state == Uninitialized {
		if err := e.bridge.Start(ctx); err != nil {
			return entity.StepState{}, err
		}
		obs = e.bridge.Initial()
	} else {
		obs, err = e.bridge.Reset()
		if err != nil {
			return entity.StepState{}, err
		}
	}

	e.registry = registry
	e.current = obs
	e.clock.Reset()
	e.state = Ready
	log.Debugf("reset: %d vehicles, %d controller pairs", len(obs.Vehicles), registry.Len())
	return obs, nil
}

// Step advances the simulation by one time-step: every vehicle's
// car-following controller is consulted with its leader, its lane-change
// controller with its adjacent-lane neighbors, and the combined action set is
// applied through the bridge. Returns the new observation, the reward, the
// done flag and per-step info. A bridge failure terminates the run and is
// returned after the environment has transitioned to terminated.
func (e *Env) Step() (entity.StepState, float64, bool, Info, error) {
	switch e.state {
	case Ready, Running:
	default:
		return entity.StepState{}, 0, false, Info{}, fmt.Errorf("env: step from state %s", e.state)
	}
	e.state = Running

	actions, laneChanges := e.computeActions()
	st, err := e.bridge.Step(actions)
	if err != nil {
		e.state = Terminated
		return entity.StepState{}, 0, true, Info{Step: e.clock.Step, Time: e.clock.T}, err
	}
	e.clock.Tick()
	e.current = st

	reward := e.reward.Reward(st)
	done := len(st.Vehicles) == 0 || (e.horizon > 0 && e.clock.Step >= e.horizon)
	if done {
		e.state = Terminated
	}

	speeds := make([]float64, 0, len(st.Vehicles))
	for _, v := range st.Vehicles {
		speeds = append(speeds, v.Speed)
	}
	info := Info{
		Step:        e.clock.Step,
		Time:        e.clock.T,
		Vehicles:    len(st.Vehicles),
		LaneChanges: laneChanges,
	}
	if len(speeds) > 0 {
		info.MeanSpeed = stat.Mean(speeds, nil)
	}
	return st, reward, done, info, nil
}

// computeActions consults each present vehicle's controller pair exactly
// once. Vehicles the simulator inserted dynamically have no registered
// controllers and coast (no action submitted).
func (e *Env) computeActions() (entity.ActionSet, int) {
	ix := newLaneIndex(e.current, e.sc.Net.Lanes, e.sc.Net.Length)
	actions := make(entity.ActionSet, len(e.current.Vehicles))
	laneChanges := 0
	for _, id := range e.registry.IDs() {
		self, ok := e.current.Vehicles[id]
		if !ok {
			// left the network; the registry entry stays until reset
			continue
		}
		pair, _ := e.registry.Pair(id)
		n := ix.neighbors(self)
		a := entity.Action{
			Accel:      pair.Follow.Accel(self, n.Leader, n.LeaderGap),
			LaneChange: pair.Change.Decide(self, n),
		}
		if a.LaneChange != entity.Stay {
			laneChanges++
		}
		actions[id] = a
	}
	return actions, laneChanges
}

// Terminate tears the bridge down. Idempotent; the environment ends in the
// terminated state.
func (e *Env) Terminate() error {
	e.state = Terminated
	return e.bridge.Terminate()
}
