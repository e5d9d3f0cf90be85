package controller

import (
	"github.com/mixedtraffic/loopsim/entity"
	"github.com/mixedtraffic/loopsim/utils/randengine"
)

// StaticLaneChanger never leaves its lane.
type StaticLaneChanger struct{}

func newStaticLaneChanger(field string, params map[string]float64, _ *randengine.Engine) (LaneChange, error) {
	if _, err := resolveParams(field, params, map[string]float64{}); err != nil {
		return nil, err
	}
	return StaticLaneChanger{}, nil
}

func (StaticLaneChanger) Decide(entity.VehicleState, Neighbors) entity.Direction {
	return entity.Stay
}

// IncentiveLaneChanger is a MOBIL-style gap-acceptance model: a lane change
// is a candidate when it improves the vehicle's own expected acceleration by
// more than a threshold minus a politeness discount for the braking it forces
// onto the new follower, and is vetoed outright when that follower would have
// to brake harder than the safety bound. Among candidate sides the model
// picks probabilistically, weighted by the incentive, from its own seeded
// engine, so a given seed yields a reproducible decision sequence.
type IncentiveLaneChanger struct {
	eval       CarFollowing // gap evaluation model
	politeness float64
	threshold  float64
	safeBrake  float64 // most negative follower acceleration tolerated (m/s^2)
	engine     *randengine.Engine
}

func newIncentiveLaneChanger(field string, params map[string]float64, e *randengine.Engine) (LaneChange, error) {
	p, err := resolveParams(field, params, map[string]float64{
		"politeness": 0.1, "threshold": 0.1, "safe_brake": -2,
	})
	if err != nil {
		return nil, err
	}
	eval, err := newIDM(field, nil)
	if err != nil {
		return nil, err
	}
	return &IncentiveLaneChanger{
		eval:       eval,
		politeness: p["politeness"],
		threshold:  p["threshold"],
		safeBrake:  p["safe_brake"],
		engine:     e,
	}, nil
}

func (m *IncentiveLaneChanger) Decide(self entity.VehicleState, n Neighbors) entity.Direction {
	a0 := m.eval.Accel(self, n.Leader, n.LeaderGap)

	type side struct {
		open             bool
		leader, follower *entity.VehicleState
		leaderGap        float64
		followerGap      float64
		dir              entity.Direction
	}
	sides := [2]side{
		{n.LeftOpen, n.LeftLeader, n.LeftFollower, n.LeftLeaderGap, n.LeftFollowerGap, entity.Left},
		{n.RightOpen, n.RightLeader, n.RightFollower, n.RightLeaderGap, n.RightFollowerGap, entity.Right},
	}
	deltas := [2]float64{}
	for i, s := range sides {
		if !s.open {
			continue
		}
		an0 := m.eval.Accel(self, s.leader, s.leaderGap)
		imposed := .0
		if s.follower != nil {
			// the new follower's acceleration with us ahead of it
			anF := m.eval.Accel(*s.follower, &self, s.followerGap)
			if anF < m.safeBrake {
				continue
			}
			if anF < 0 {
				imposed = -anF
			}
		}
		if delta := an0 - a0 - m.politeness*imposed; delta > m.threshold {
			deltas[i] = delta
		}
	}

	u := deltas[0] + deltas[1]
	if u <= 0 {
		return entity.Stay
	}
	// incentive saturates at 90% change probability per step
	p := 0.9
	if u < 1 {
		p = 0.9 * u
	}
	if !m.engine.PTrue(p) {
		return entity.Stay
	}
	return sides[m.engine.DiscreteDistribution(deltas[:])].dir
}
