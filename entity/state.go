// Package entity holds the state and action records exchanged between the
// simulator bridge, the step environment and the per-vehicle controllers.
package entity

import "fmt"

// VehicleState is one vehicle's kinematic snapshot at a simulated time-step,
// as reported by the external simulator. Pos is the longitudinal position
// along the ring (meters), Lane is the zero-based lane index counted from the
// outer edge.
type VehicleState struct {
	ID    string
	Lane  int
	Pos   float64 // m
	Speed float64 // m/s
}

// StepState is the full snapshot exchanged each tick: every vehicle currently
// in the network, plus the ids that entered or left since the previous step.
type StepState struct {
	Time     float64 // simulated time (s)
	Vehicles map[string]VehicleState
	Entered  []string
	Left     []string
}

// Direction is a lane-change decision.
type Direction int8

const (
	Stay Direction = iota
	Left
	Right
)

func (d Direction) String() string {
	switch d {
	case Stay:
		return "stay"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("Direction(%d)", int8(d))
	}
}

// Action is one vehicle's control command for the next time-step.
type Action struct {
	Accel      float64 // m/s^2
	LaneChange Direction
}

// ActionSet maps vehicle id to the action computed for the current step.
type ActionSet map[string]Action
