package env

import (
	"math"

	"golang.org/x/exp/slices"

	"github.com/mixedtraffic/loopsim/controller"
	"github.com/mixedtraffic/loopsim/entity"
	"github.com/mixedtraffic/loopsim/scenario"
)

// laneIndex orders the current snapshot by lane and ring position so leader
// and adjacent-lane neighbor lookups are cheap. It is rebuilt from scratch
// every step; the snapshot is authoritative, nothing persists across ticks.
type laneIndex struct {
	length float64
	lanes  [][]entity.VehicleState // per lane, ascending Pos
}

func newLaneIndex(st entity.StepState, laneCount int, length float64) *laneIndex {
	ix := &laneIndex{
		length: length,
		lanes:  make([][]entity.VehicleState, laneCount),
	}
	for _, v := range st.Vehicles {
		if v.Lane < 0 || v.Lane >= laneCount {
			log.Warnf("vehicle %s reports lane %d outside [0,%d), ignoring for neighbor lookup", v.ID, v.Lane, laneCount)
			continue
		}
		ix.lanes[v.Lane] = append(ix.lanes[v.Lane], v)
	}
	for _, lane := range ix.lanes {
		slices.SortFunc(lane, func(a, b entity.VehicleState) int {
			switch {
			case a.Pos < b.Pos:
				return -1
			case a.Pos > b.Pos:
				return 1
			default:
				return 0
			}
		})
	}
	return ix
}

// ringGap is the bumper-to-bumper distance from v to a vehicle ahead of it on
// the ring.
func (ix *laneIndex) ringGap(from, to float64) float64 {
	d := math.Mod(to-from+ix.length, ix.length)
	return d - scenario.VehicleLength
}

// ahead returns the nearest vehicle ahead of pos in the given lane, excluding
// the given id, wrapping around the ring. Nil when the lane holds no other
// vehicle.
func (ix *laneIndex) ahead(lane int, pos float64, exclude string) (*entity.VehicleState, float64) {
	return ix.scan(lane, pos, exclude, true)
}

// behind is the counterpart of ahead in the backward direction.
func (ix *laneIndex) behind(lane int, pos float64, exclude string) (*entity.VehicleState, float64) {
	return ix.scan(lane, pos, exclude, false)
}

func (ix *laneIndex) scan(lane int, pos float64, exclude string, forward bool) (*entity.VehicleState, float64) {
	vs := ix.lanes[lane]
	best := -1
	bestD := math.Inf(1)
	for i, v := range vs {
		if v.ID == exclude {
			continue
		}
		var d float64
		if forward {
			d = math.Mod(v.Pos-pos+ix.length, ix.length)
		} else {
			d = math.Mod(pos-v.Pos+ix.length, ix.length)
		}
		if d < bestD {
			bestD = d
			best = i
		}
	}
	if best < 0 {
		return nil, 0
	}
	v := vs[best]
	return &v, bestD - scenario.VehicleLength
}

// neighbors assembles the view a vehicle's controllers are consulted with:
// the same-lane leader for car-following, leaders and followers on the
// adjacent lanes for lane changing.
func (ix *laneIndex) neighbors(v entity.VehicleState) controller.Neighbors {
	n := controller.Neighbors{}
	n.Leader, n.LeaderGap = ix.ahead(v.Lane, v.Pos, v.ID)

	if left := v.Lane + 1; left < len(ix.lanes) {
		n.LeftOpen = true
		n.LeftLeader, n.LeftLeaderGap = ix.ahead(left, v.Pos, v.ID)
		n.LeftFollower, n.LeftFollowerGap = ix.behind(left, v.Pos, v.ID)
	}
	if right := v.Lane - 1; right >= 0 {
		n.RightOpen = true
		n.RightLeader, n.RightLeaderGap = ix.ahead(right, v.Pos, v.ID)
		n.RightFollower, n.RightFollowerGap = ix.behind(right, v.Pos, v.ID)
	}
	return n
}
