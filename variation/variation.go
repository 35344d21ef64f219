// Package variation implements the typed mutation and two-point crossover
// operators and tournament selection used by the evolution loop. Every
// operator is restricted to its gene kind's alphabet, so no repair pass is
// needed beyond re-zeroing the EV locked tail (§4.B).
package variation

import (
	"math/rand"

	"github.com/devskill-org/site-optimizer/genome"
)

// PGene is the per-position mutation probability for every gene kind.
const PGene = 0.10

// Mutate applies one pass of typed, per-position mutation to ind in place
// and re-zeroes the EV locked tail afterward.
func Mutate(c *genome.Codec, ind *genome.Individual, rng *rand.Rand) {
	battery, ev, appliance := c.Split(ind.Genes)

	for i := range battery {
		if rng.Float64() < PGene {
			battery[i] = c.SampleGene(genome.KindBattery, rng)
		}
	}
	for i := range ev {
		if rng.Float64() < PGene {
			ev[i] = c.SampleGene(genome.KindEV, rng)
		}
	}
	if appliance != nil && rng.Float64() < PGene {
		*appliance = c.SampleGene(genome.KindAppliance, rng)
	}

	c.ClampLockedTail(ind.Genes)
}

// Crossover performs two-point recombination of the flat gene vectors of a
// and b, returning two new children. Because each gene kind occupies a
// contiguous, equal-width region in both parents, domains are preserved
// without per-kind bookkeeping. The EV locked tail is re-zeroed afterward.
func Crossover(c *genome.Codec, a, b *genome.Individual, rng *rand.Rand) (*genome.Individual, *genome.Individual) {
	n := len(a.Genes)

	childA := make([]int, n)
	childB := make([]int, n)
	copy(childA, a.Genes)
	copy(childB, b.Genes)

	if n < 2 {
		return &genome.Individual{Genes: childA}, &genome.Individual{Genes: childB}
	}

	p1 := rng.Intn(n)
	p2 := rng.Intn(n)
	if p1 > p2 {
		p1, p2 = p2, p1
	}

	for i := p1; i < p2; i++ {
		childA[i], childB[i] = childB[i], childA[i]
	}

	c.ClampLockedTail(childA)
	c.ClampLockedTail(childB)

	return &genome.Individual{Genes: childA}, &genome.Individual{Genes: childB}
}

// TournamentSelect runs a tournament of the given size over pop, minimizing
// fitness, and returns the winner. Ties are broken positionally (the first
// individual encountered wins), matching the spec's tie-break rule.
func TournamentSelect(pop []*genome.Individual, size int, rng *rand.Rand) *genome.Individual {
	best := pop[rng.Intn(len(pop))]
	for i := 1; i < size; i++ {
		candidate := pop[rng.Intn(len(pop))]
		if candidate.Fitness < best.Fitness {
			best = candidate
		}
	}
	return best
}
