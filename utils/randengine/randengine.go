// Package randengine wraps golang.org/x/exp/rand behind an explicitly seeded
// engine so that every stochastic decision in the simulation is reproducible.
package randengine

import (
	"log"

	"golang.org/x/exp/rand"
)

// Engine is a seeded random source. All controllers and the scenario builder
// draw from an Engine they were handed at construction; nothing in the
// simulation touches the package-global rand state.
type Engine struct {
	*rand.Rand
}

// New creates an engine from the given seed. Identical seeds yield identical
// draw sequences.
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed))}
}

// PTrue returns true with probability p.
func (e *Engine) PTrue(p float64) bool {
	return e.Float64() < p
}

// DiscreteDistribution draws an index with probability proportional to its
// weight. Weights must not all be zero.
func (e *Engine) DiscreteDistribution(weight []float64) int {
	total := .0
	for _, w := range weight {
		total += w
	}
	random := total * e.Float64()
	sum := .0
	for i, w := range weight {
		sum += w
		if sum > random {
			return i
		}
	}
	log.Panicf("randengine: DiscreteDistribution: sum: %f random: %f", sum, random)
	return -1
}
