// Package controller hosts the per-vehicle control models: car-following
// models computing longitudinal acceleration and lane-change models deciding
// lateral moves. Models are pure functions of their inputs and parameters;
// any stochastic model draws from an explicitly seeded engine.
package controller

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/mixedtraffic/loopsim/entity"
	"github.com/mixedtraffic/loopsim/utils/config"
)

var log = logrus.WithField("module", "controller")

// CarFollowing computes a longitudinal acceleration command. leader is nil
// when no vehicle is ahead within view; gap is the bumper-to-bumper distance
// to the leader in meters and meaningless when leader is nil.
type CarFollowing interface {
	Accel(self entity.VehicleState, leader *entity.VehicleState, gap float64) float64
}

// LaneChange decides whether the vehicle should switch lanes this step.
type LaneChange interface {
	Decide(self entity.VehicleState, n Neighbors) entity.Direction
}

// Neighbors is the local traffic a lane-change model may inspect: the
// current-lane leader plus leaders and followers on the adjacent lanes.
// Nil pointers mean no such vehicle within view; gaps are bumper-to-bumper.
type Neighbors struct {
	Leader    *entity.VehicleState
	LeaderGap float64

	LeftOpen        bool // a lane exists to the left
	LeftLeader      *entity.VehicleState
	LeftLeaderGap   float64
	LeftFollower    *entity.VehicleState
	LeftFollowerGap float64

	RightOpen        bool
	RightLeader      *entity.VehicleState
	RightLeaderGap   float64
	RightFollower    *entity.VehicleState
	RightFollowerGap float64
}

// resolveParams merges user parameters over the model defaults, rejecting
// keys the model does not define so typos surface at build time.
func resolveParams(field string, params, defaults map[string]float64) (map[string]float64, error) {
	out := make(map[string]float64, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range params {
		if _, ok := defaults[k]; !ok {
			known := make([]string, 0, len(defaults))
			for d := range defaults {
				known = append(known, d)
			}
			sort.Strings(known)
			return nil, &config.FieldError{
				Field:  fmt.Sprintf("%s.params.%s", field, k),
				Reason: fmt.Sprintf("unknown parameter, model accepts %v", known),
			}
		}
		out[k] = v
	}
	return out, nil
}
