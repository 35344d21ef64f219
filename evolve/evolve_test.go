package evolve

import (
	"math/rand"
	"testing"

	"github.com/devskill-org/site-optimizer/genome"
)

func testCodec() *genome.Codec {
	return genome.NewCodec(8, false, 0, 0, []float64{0, 6, 8}, 5)
}

// sumEval scores an individual by the sum of its genes, a deterministic
// stand-in for a simulation that lets the loop's convergence be checked
// without a Simulator.
func sumEval(ind *genome.Individual) {
	sum := 0
	for _, g := range ind.Genes {
		sum += g
	}
	ind.Fitness = float64(sum)
}

func testConfig() Config {
	return Config{
		Mu:             10,
		Lambda:         15,
		CrossoverProb:  0.5,
		MutationProb:   0.4,
		Generations:    20,
		TournamentSize: 3,
	}
}

func TestRunProducesNonIncreasingMinFitnessHistory(t *testing.T) {
	c := testCodec()
	rng := rand.New(rand.NewSource(1))
	cfg := testConfig()

	init := make([]*genome.Individual, cfg.Mu)
	for i := range init {
		init[i] = c.NewRandomIndividual(rng)
	}

	result := Run(c, init, sumEval, cfg, rng)

	if len(result.History) != cfg.Generations+1 {
		t.Fatalf("history length = %d, want %d", len(result.History), cfg.Generations+1)
	}
	for i := 1; i < len(result.History); i++ {
		if result.History[i].MinFitness > result.History[i-1].MinFitness {
			t.Fatalf("min fitness increased at generation %d: %f -> %f",
				i, result.History[i-1].MinFitness, result.History[i].MinFitness)
		}
	}
}

func TestRunReturnsBestFromFinalPopulation(t *testing.T) {
	c := testCodec()
	rng := rand.New(rand.NewSource(2))
	cfg := testConfig()

	init := make([]*genome.Individual, cfg.Mu)
	for i := range init {
		init[i] = c.NewRandomIndividual(rng)
	}

	result := Run(c, init, sumEval, cfg, rng)

	for _, ind := range result.Population {
		if ind.Fitness < result.Best.Fitness {
			t.Fatalf("found individual with lower fitness than Best: %f < %f", ind.Fitness, result.Best.Fitness)
		}
	}
}

func TestRunPreservesPopulationSize(t *testing.T) {
	c := testCodec()
	rng := rand.New(rand.NewSource(3))
	cfg := testConfig()

	init := make([]*genome.Individual, cfg.Mu)
	for i := range init {
		init[i] = c.NewRandomIndividual(rng)
	}

	result := Run(c, init, sumEval, cfg, rng)
	if len(result.Population) != cfg.Mu {
		t.Fatalf("final population size = %d, want %d", len(result.Population), cfg.Mu)
	}
}

func TestRunInjectedSeedSurvivesIfBest(t *testing.T) {
	c := testCodec()
	rng := rand.New(rand.NewSource(4))
	cfg := testConfig()

	init := make([]*genome.Individual, cfg.Mu)
	for i := range init {
		init[i] = c.NewRandomIndividual(rng)
	}
	lowB, _ := c.BatteryDomain()
	seed := &genome.Individual{Genes: make([]int, c.Length())}
	for i := range seed.Genes {
		seed.Genes[i] = lowB
	}
	init[0] = seed
	seedFitness := float64(lowB * c.Length())

	result := Run(c, init, sumEval, cfg, rng)

	found := false
	for _, ind := range result.Population {
		if ind.Fitness == seedFitness {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the injected seed's fitness %f to be present in the final population", seedFitness)
	}
}
