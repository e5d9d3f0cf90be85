package controller

import (
	"math"

	"git.fiblab.net/general/common/v2/mathutil"
	"github.com/samber/lo"

	"github.com/mixedtraffic/loopsim/entity"
)

// OVM is the optimal velocity car-following model: acceleration relaxes the
// current speed toward an optimal velocity that depends on the headway,
//
//	a = (V(h) - v) / tau
//
// with V(h) rising smoothly from 0 at h_st to v_max at h_go.
type OVM struct {
	vMax float64 // free-flow speed ceiling (m/s)
	tau  float64 // speed adaptation time (s)
	hSt  float64 // standstill headway (m)
	hGo  float64 // headway of free flow (m)
}

func newOVM(field string, params map[string]float64) (CarFollowing, error) {
	p, err := resolveParams(field, params, map[string]float64{
		"v_max": 30, "tau": 0.65, "h_st": 5, "h_go": 35,
	})
	if err != nil {
		return nil, err
	}
	return &OVM{vMax: p["v_max"], tau: p["tau"], hSt: p["h_st"], hGo: p["h_go"]}, nil
}

func (m *OVM) Accel(self entity.VehicleState, leader *entity.VehicleState, gap float64) float64 {
	h := mathutil.INF
	if leader != nil {
		h = gap
	}
	var vh float64
	switch {
	case h <= m.hSt:
		vh = 0
	case h < m.hGo:
		vh = m.vMax / 2 * (1 - math.Cos(math.Pi*(h-m.hSt)/(m.hGo-m.hSt)))
	default:
		vh = m.vMax
	}
	return (vh - self.Speed) / m.tau
}

// LinearOVM replaces the sinusoidal optimal-velocity curve of OVM with a
// linear ramp of fixed slope, as used in the classic ring-road stability
// literature.
type LinearOVM struct {
	vMax float64
	tau  float64
	hSt  float64
}

// ovSlope is the optimal-velocity ramp slope (1/s).
const ovSlope = 1.689

func newLinearOVM(field string, params map[string]float64) (CarFollowing, error) {
	p, err := resolveParams(field, params, map[string]float64{
		"v_max": 30, "tau": 0.65, "h_st": 5,
	})
	if err != nil {
		return nil, err
	}
	return &LinearOVM{vMax: p["v_max"], tau: p["tau"], hSt: p["h_st"]}, nil
}

func (m *LinearOVM) Accel(self entity.VehicleState, leader *entity.VehicleState, gap float64) float64 {
	h := mathutil.INF
	if leader != nil {
		h = gap
	}
	vh := lo.Clamp(ovSlope*(h-m.hSt), 0, m.vMax)
	return (vh - self.Speed) / m.tau
}

// IDM is the intelligent driver model,
//
//	a = a_max * (1 - (v/v0)^delta - (s*/gap)^2)
//	s* = s0 + max(0, v*T + v*(v - v_lead)/(2*sqrt(a_max*b)))
//
// A non-positive gap means the vehicles already overlap and yields an
// emergency brake.
type IDM struct {
	v0    float64 // desired speed (m/s)
	t     float64 // safe time headway (s)
	aMax  float64 // maximum acceleration (m/s^2)
	b     float64 // comfortable braking deceleration (m/s^2, positive)
	bMax  float64 // emergency braking bound (m/s^2, positive)
	delta float64 // free-flow acceleration exponent
	s0    float64 // minimum standstill gap (m)
}

func newIDM(field string, params map[string]float64) (CarFollowing, error) {
	p, err := resolveParams(field, params, map[string]float64{
		"v0": 30, "T": 1, "a": 1, "b": 1.5, "b_max": 4.5, "delta": 4, "s0": 2,
	})
	if err != nil {
		return nil, err
	}
	return &IDM{
		v0: p["v0"], t: p["T"], aMax: p["a"], b: p["b"],
		bMax: p["b_max"], delta: p["delta"], s0: p["s0"],
	}, nil
}

func (m *IDM) Accel(self entity.VehicleState, leader *entity.VehicleState, gap float64) float64 {
	if leader == nil {
		free := m.aMax * (1 - math.Pow(self.Speed/m.v0, m.delta))
		return lo.Clamp(free, -m.bMax, m.aMax)
	}
	var acc float64
	if gap <= 0 {
		acc = -mathutil.INF
	} else {
		sStar := m.s0 + math.Max(
			0,
			self.Speed*m.t+self.Speed*(self.Speed-leader.Speed)/(2*math.Sqrt(m.aMax*m.b)),
		)
		acc = m.aMax * (1 - math.Pow(self.Speed/m.v0, m.delta) - math.Pow(sStar/gap, 2))
	}
	return lo.Clamp(acc, -m.bMax, m.aMax)
}
