// Package evolve implements the μ+λ generational evolutionary loop: the
// core search procedure the spec's orchestrator drives to minimize fitness
// over a fixed number of generations (§4.E).
package evolve

import (
	"math/rand"
	"sort"

	"github.com/devskill-org/site-optimizer/genome"
	"github.com/devskill-org/site-optimizer/variation"
)

// EvalFunc scores one individual in place, setting its Fitness (and any
// diagnostic fields the caller wants retained).
type EvalFunc func(ind *genome.Individual)

// Config holds the generational-loop parameters. Field names mirror the
// distilled source's eaMuPlusLambda call.
type Config struct {
	Mu             int
	Lambda         int
	CrossoverProb  float64
	MutationProb   float64
	Generations    int
	TournamentSize int

	// OnGeneration, if set, is called once per recorded GenStat (including
	// generation 0, the initial population) as soon as it is known. It lets
	// a caller stream live progress without Run depending on anything that
	// would do so itself.
	OnGeneration func(GenStat)
}

// GenStat is the minimum-fitness summary recorded once per generation, the
// same statistic the distilled source's tools.Statistics(np.min) collects.
type GenStat struct {
	Generation int
	MinFitness float64
}

// Result is the outcome of one evolutionary run.
type Result struct {
	Best       *genome.Individual
	Population []*genome.Individual
	History    []GenStat
}

// Run executes the μ+λ loop starting from an initial population (whose
// size must be >= cfg.Mu) and returns the final population, its best
// individual, and per-generation minimum-fitness history.
//
// Matching the distilled source's eaMuPlusLambda: each generation produces
// lambda offspring via crossover-or-mutation (never both on the same
// pairing), evaluates every offspring (an unmodified reproduced copy is
// scored again too; evaluation is deterministic), then selects the
// next mu-sized population from the union of parents and offspring —
// elitism is implicit in that union, not a separate top-K copy.
func Run(c *genome.Codec, init []*genome.Individual, eval EvalFunc, cfg Config, rng *rand.Rand) Result {
	pop := make([]*genome.Individual, len(init))
	copy(pop, init)

	for _, ind := range pop {
		eval(ind)
	}

	history := make([]GenStat, 0, cfg.Generations)
	initStat := GenStat{Generation: 0, MinFitness: minFitness(pop)}
	history = append(history, initStat)
	if cfg.OnGeneration != nil {
		cfg.OnGeneration(initStat)
	}

	for gen := 1; gen <= cfg.Generations; gen++ {
		offspring := varyOffspring(c, pop, cfg, rng)
		for _, ind := range offspring {
			eval(ind)
		}

		pool := make([]*genome.Individual, 0, len(pop)+len(offspring))
		pool = append(pool, pop...)
		pool = append(pool, offspring...)

		pop = selectMu(pool, cfg.Mu)

		stat := GenStat{Generation: gen, MinFitness: minFitness(pop)}
		history = append(history, stat)
		if cfg.OnGeneration != nil {
			cfg.OnGeneration(stat)
		}
	}

	best := pop[0]
	for _, ind := range pop {
		if ind.Fitness < best.Fitness {
			best = ind
		}
	}

	return Result{Best: best, Population: pop, History: history}
}

// varyOffspring produces lambda new individuals from pop via tournament
// selection followed by either crossover or mutation, matching the
// distilled source's varOr (cxpb + mutpb <= 1; the remainder is
// reproduction, an unmodified copy).
func varyOffspring(c *genome.Codec, pop []*genome.Individual, cfg Config, rng *rand.Rand) []*genome.Individual {
	offspring := make([]*genome.Individual, 0, cfg.Lambda)

	for len(offspring) < cfg.Lambda {
		roll := rng.Float64()
		switch {
		case roll < cfg.CrossoverProb:
			p1 := variation.TournamentSelect(pop, cfg.TournamentSize, rng)
			p2 := variation.TournamentSelect(pop, cfg.TournamentSize, rng)
			c1, c2 := variation.Crossover(c, p1, p2, rng)
			offspring = append(offspring, c1)
			if len(offspring) < cfg.Lambda {
				offspring = append(offspring, c2)
			}
		case roll < cfg.CrossoverProb+cfg.MutationProb:
			p := variation.TournamentSelect(pop, cfg.TournamentSize, rng)
			child := p.Clone()
			variation.Mutate(c, child, rng)
			offspring = append(offspring, child)
		default:
			p := variation.TournamentSelect(pop, cfg.TournamentSize, rng)
			offspring = append(offspring, p.Clone())
		}
	}

	return offspring
}

// selectMu keeps the mu individuals with the lowest fitness from pool.
func selectMu(pool []*genome.Individual, mu int) []*genome.Individual {
	sorted := make([]*genome.Individual, len(pool))
	copy(sorted, pool)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Fitness < sorted[j].Fitness
	})
	if mu > len(sorted) {
		mu = len(sorted)
	}
	return sorted[:mu]
}

func minFitness(pop []*genome.Individual) float64 {
	min := pop[0].Fitness
	for _, ind := range pop {
		if ind.Fitness < min {
			min = ind.Fitness
		}
	}
	return min
}
