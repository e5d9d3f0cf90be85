package controller

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/mixedtraffic/loopsim/scenario"
	"github.com/mixedtraffic/loopsim/utils/config"
	"github.com/mixedtraffic/loopsim/utils/randengine"
)

var carFollowingModels = map[string]func(field string, params map[string]float64) (CarFollowing, error){
	"ovm":        newOVM,
	"linear_ovm": newLinearOVM,
	"idm":        newIDM,
}

var laneChangeModels = map[string]func(field string, params map[string]float64, e *randengine.Engine) (LaneChange, error){
	"static":    newStaticLaneChanger,
	"incentive": newIncentiveLaneChanger,
}

// Pair binds the two control models a vehicle carries for the whole run.
type Pair struct {
	Follow CarFollowing
	Change LaneChange
}

// Registry owns every controller instance of one run. It is rebuilt from the
// scenario on each environment reset, so controller state can never leak
// across runs. Every vehicle holds exactly one car-following and one
// lane-change controller, each a fresh instance (no sharing between
// vehicles).
type Registry struct {
	pairs map[string]Pair
}

// Instantiate resolves every vehicle's controller specs into concrete model
// instances. Stochastic models get engines derived from seed plus the
// vehicle's placement index, so whole-run behavior is reproducible. Unknown
// model names or parameters surface as configuration errors before any
// simulator is started.
func Instantiate(sc *scenario.Scenario, seed uint64) (*Registry, error) {
	r := &Registry{pairs: make(map[string]Pair, len(sc.Vehicles))}
	for i, v := range sc.Vehicles {
		t, ok := sc.TypeSpec(v.Type)
		if !ok {
			return nil, &config.FieldError{
				Field:  "types",
				Reason: fmt.Sprintf("vehicle %s references unknown type %q", v.ID, v.Type),
			}
		}
		cf, err := buildCarFollowing(t)
		if err != nil {
			return nil, err
		}
		lc, err := buildLaneChange(t, randengine.New(seed+uint64(i)))
		if err != nil {
			return nil, err
		}
		r.pairs[v.ID] = Pair{Follow: cf, Change: lc}
	}
	log.Debugf("registry: %d controller pairs instantiated", len(r.pairs))
	return r, nil
}

func buildCarFollowing(t config.TypeSpec) (CarFollowing, error) {
	field := fmt.Sprintf("types[%s].car_following", t.Name)
	factory, ok := carFollowingModels[t.CarFollowing.Model]
	if !ok {
		return nil, &config.FieldError{
			Field:  field + ".model",
			Reason: fmt.Sprintf("unknown model %q, known: %v", t.CarFollowing.Model, modelNames(carFollowingModels)),
		}
	}
	return factory(field, t.CarFollowing.Params)
}

func buildLaneChange(t config.TypeSpec, e *randengine.Engine) (LaneChange, error) {
	field := fmt.Sprintf("types[%s].lane_change", t.Name)
	factory, ok := laneChangeModels[t.LaneChange.Model]
	if !ok {
		return nil, &config.FieldError{
			Field:  field + ".model",
			Reason: fmt.Sprintf("unknown model %q, known: %v", t.LaneChange.Model, modelNames(laneChangeModels)),
		}
	}
	return factory(field, t.LaneChange.Params, e)
}

func modelNames[T any](models map[string]T) []string {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Pair returns the controllers bound to a vehicle id.
func (r *Registry) Pair(id string) (Pair, bool) {
	p, ok := r.pairs[id]
	return p, ok
}

// IDs lists the registered vehicle ids in deterministic order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.pairs))
	for id := range r.pairs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len reports the number of registered vehicles.
func (r *Registry) Len() int {
	return len(r.pairs)
}
