package scenario

import (
	"fmt"
	"math"

	"github.com/samber/lo"

	"github.com/mixedtraffic/loopsim/utils/config"
	"github.com/mixedtraffic/loopsim/utils/randengine"
)

// Build validates the declarative parameters and derives the initial vehicle
// placement. It has no side effects beyond the returned Scenario; simulator
// artifacts are written later by the bridge.
//
// Placement is sequential by default: vehicles are assigned round-robin
// across lanes, evenly spaced along the ring, each type's block shifted by
// its InitialOffset. With Initial.Shuffle the slot order is permuted by a
// rand engine seeded from Initial.Seed, so shuffled scenarios are still
// reproducible.
func Build(name string, net config.Net, initial config.Initial, types []config.TypeSpec) (*Scenario, error) {
	if err := validate(net, types); err != nil {
		return nil, err
	}

	total := lo.SumBy(types, func(t config.TypeSpec) int { return t.Count })
	perLane := (total + net.Lanes - 1) / net.Lanes
	spacing := net.Length / float64(perLane)

	// slot i -> (lane, longitudinal index); shuffle permutes which slot a
	// vehicle occupies, not the slot geometry itself.
	slots := make([]int, total)
	for i := range slots {
		slots[i] = i
	}
	if initial.Shuffle {
		e := randengine.New(initial.Seed)
		e.Shuffle(total, func(i, j int) {
			slots[i], slots[j] = slots[j], slots[i]
		})
	}

	sc := &Scenario{
		Name:     name,
		Net:      net,
		Initial:  initial,
		Types:    types,
		Vehicles: make([]Vehicle, 0, total),
	}
	i := 0
	for _, t := range types {
		for k := 0; k < t.Count; k++ {
			slot := slots[i]
			pos := math.Mod(float64(slot/net.Lanes)*spacing+t.InitialOffset, net.Length)
			sc.Vehicles = append(sc.Vehicles, Vehicle{
				ID:   fmt.Sprintf("%s_%d", t.Name, k),
				Type: t.Name,
				Lane: slot % net.Lanes,
				Pos:  pos,
			})
			i++
		}
	}
	log.Debugf("scenario %s: %d vehicles on %d lanes, spacing %.2fm", name, total, net.Lanes, spacing)
	return sc, nil
}

// validate repeats the geometry checks of config.Validate (Build is also
// reachable without a parsed config) and adds the population capacity check.
func validate(net config.Net, types []config.TypeSpec) error {
	switch {
	case net.Length <= 0:
		return &config.FieldError{Field: "net.length", Reason: fmt.Sprintf("must be positive, got %v", net.Length)}
	case net.Lanes <= 0:
		return &config.FieldError{Field: "net.lanes", Reason: fmt.Sprintf("must be positive, got %v", net.Lanes)}
	case net.SpeedLimit <= 0:
		return &config.FieldError{Field: "net.speed_limit", Reason: fmt.Sprintf("must be positive, got %v", net.SpeedLimit)}
	case net.Resolution <= 0:
		return &config.FieldError{Field: "net.resolution", Reason: fmt.Sprintf("must be positive, got %v", net.Resolution)}
	case len(types) == 0:
		return &config.FieldError{Field: "types", Reason: "at least one vehicle type is required"}
	}
	total := 0
	for i, t := range types {
		if t.Count <= 0 {
			return &config.FieldError{
				Field:  fmt.Sprintf("types[%d].count", i),
				Reason: fmt.Sprintf("must be positive, got %v", t.Count),
			}
		}
		total += t.Count
	}
	// Soft capacity check: a population that cannot stand still on the ring
	// is a configuration error, never silently truncated.
	capacity := int(net.Length * float64(net.Lanes) / (VehicleLength + MinGap))
	if total > capacity {
		return &config.FieldError{
			Field:  "types",
			Reason: fmt.Sprintf("population %d exceeds network capacity %d", total, capacity),
		}
	}
	return nil
}
