package env

import (
	"gonum.org/v1/gonum/stat"

	"github.com/mixedtraffic/loopsim/entity"
)

// RewardPolicy derives the scalar per-step reward from a state snapshot.
// Policies must be pure: the same snapshot always yields the same reward.
type RewardPolicy interface {
	Reward(st entity.StepState) float64
}

// TargetVelocity scores a step as the negative mean squared deviation of the
// fleet's speeds from the target velocity: 0 when every vehicle drives at the
// target, increasingly negative as the fleet deviates. An empty network
// scores 0.
type TargetVelocity struct {
	Target float64
}

func (p TargetVelocity) Reward(st entity.StepState) float64 {
	if len(st.Vehicles) == 0 {
		return 0
	}
	devs := make([]float64, 0, len(st.Vehicles))
	for _, v := range st.Vehicles {
		d := v.Speed - p.Target
		devs = append(devs, d*d)
	}
	return -stat.Mean(devs, nil)
}
