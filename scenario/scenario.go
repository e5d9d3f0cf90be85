// Package scenario builds the immutable description of one experiment: ring
// network geometry, vehicle typing and initial vehicle placement. Generating
// the on-disk artifacts the external simulator consumes also lives here, but
// is only invoked by the bridge right before launch.
package scenario

import (
	"github.com/sirupsen/logrus"

	"github.com/mixedtraffic/loopsim/utils/config"
)

var log = logrus.WithField("module", "scenario")

const (
	// VehicleLength is the assumed body length of every vehicle (m).
	VehicleLength = 5
	// MinGap is the minimum standstill spacing between vehicles (m), used
	// for the network capacity check at build time.
	MinGap = 2.5
)

// Vehicle is one initial placement: where a vehicle starts and which type
// entry (and therefore which controller specs) it is bound to.
type Vehicle struct {
	ID   string
	Type string
	Lane int
	Pos  float64 // position along the ring (m)
}

// Scenario is the immutable description of network geometry and initial
// vehicle population for one experiment. Built once by Build and owned by the
// experiment; nothing mutates it after a run starts.
type Scenario struct {
	Name    string
	Net     config.Net
	Initial config.Initial
	Types   []config.TypeSpec

	// Vehicles holds the derived initial placements, one per requested
	// vehicle, id-unique across types.
	Vehicles []Vehicle
}

// TypeSpec returns the type entry a vehicle of the given type name is bound
// to, or false if the scenario does not know the type.
func (sc *Scenario) TypeSpec(name string) (config.TypeSpec, bool) {
	for _, t := range sc.Types {
		if t.Name == name {
			return t, true
		}
	}
	return config.TypeSpec{}, false
}
