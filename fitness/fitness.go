// Package fitness turns one simulated outcome into the scalar, minimized
// cost the evolution loop optimizes (§4.D). Lower is better: it is a total
// cost, not a score.
package fitness

import (
	"github.com/devskill-org/site-optimizer/genome"
	"github.com/devskill-org/site-optimizer/simulate"
)

// PenaltyWorstCase is the sentinel fitness assigned when a simulation run
// fails outright — high enough that selection always prefers a valid
// individual, matching the distilled source's hard-coded penalty value.
const PenaltyWorstCase = 100000.0

// IdleDischargePenalty is added once per hour where the battery action gene
// is idle (neither charging nor discharging). It is a small nudge, not a
// hard constraint: it mildly favors genomes that commit the battery to an
// action over one that leaves it parked.
const IdleDischargePenalty = 0.01

// EVShortfallPenalty is P in the spec's EV under-SoC penalty: applied once
// per hour the EV draws a non-zero current while the EV finishes the
// horizon below its configured minimum SoC, and again as a
// per-percentage-point multiplier on the shortfall itself.
const EVShortfallPenalty = 10.0

// Context carries the run-level parameters Evaluate needs beyond the
// genome and the simulated outcome: values that are constant across a
// whole optimization run, not per-individual.
type Context struct {
	StartHour int

	BatteryResidualValueEURPerWh float64
	EVMinSoCPercent              float64

	// WorstCase flips the sign of the balance term, turning a
	// maximize-profit run into a minimize-profit one with the same
	// underlying simulation. Both are "minimize fitness" at the
	// evolution-loop level; this only changes which direction profit
	// counts, and the penalty terms stay additive either way.
	WorstCase bool
}

// Diagnostics are the auxiliary figures the spec requires a conforming
// implementation to retain for the final report (§4.D, §7): the same
// figures the distilled source stashes onto each individual during
// evaluation.
type Diagnostics struct {
	Outcome          simulate.OutcomeRecord
	BalanceEUR       float64
	ResidualValueEUR float64
	SoCShortfall     float64
	IdleDischargeHrs int
}

// Evaluate runs one simulation of ind's genome through sim and returns the
// scalar fitness plus the diagnostics needed to populate Individual's
// summary fields. On simulation failure it returns PenaltyWorstCase and no
// diagnostics, exactly as the distilled source's exception handler falls
// back to a sentinel rather than propagating the error into the population.
func Evaluate(c *genome.Codec, sim simulate.Simulator, ind *genome.Individual, ctx Context) (float64, *Diagnostics) {
	battery, ev, appliance := c.Split(ind.Genes)
	charge, discharge := c.DecodeBattery(battery)
	evCurrents := c.DecodeEV(ev)

	sim.Reset()
	if appliance != nil {
		sim.SetApplianceStart(*appliance, ctx.StartHour)
	}
	sim.SetBatteryCharge(charge)
	sim.SetBatteryDischarge(discharge)
	sim.SetEVChargeCurrents(evCurrents)

	outcome, err := sim.Simulate(ctx.StartHour)
	if err != nil {
		return PenaltyWorstCase, nil
	}

	balance := outcome.TotalBalanceEUR
	if ctx.WorstCase {
		balance = -balance
	}

	idleHrs := 0
	for _, gene := range battery {
		if gene == 0 {
			idleHrs++
		}
	}

	residual := sim.BatteryEnergyWh() * ctx.BatteryResidualValueEURPerWh

	shortfall := 0.0
	evNonZeroHrs := 0
	if ctx.EVMinSoCPercent > 0 {
		finalSoC := sim.EVFinalSoCPercent()
		if gap := ctx.EVMinSoCPercent - finalSoC; gap > 0 {
			shortfall = gap
			for _, cur := range evCurrents {
				if cur != 0 {
					evNonZeroHrs++
				}
			}
		}
	}

	cost := -balance
	cost += float64(idleHrs) * IdleDischargePenalty
	cost -= residual
	cost += float64(evNonZeroHrs) * EVShortfallPenalty
	cost += shortfall * EVShortfallPenalty

	diag := &Diagnostics{
		Outcome:          outcome,
		BalanceEUR:       balance,
		ResidualValueEUR: residual,
		SoCShortfall:     shortfall,
		IdleDischargeHrs: idleHrs,
	}

	return cost, diag
}

// Apply writes diag's summary figures onto ind, matching the distilled
// source's extra_data stash.
func Apply(ind *genome.Individual, fitness float64, diag *Diagnostics) {
	ind.Fitness = fitness
	if diag == nil {
		ind.HasDiagnostics = false
		return
	}
	ind.HasDiagnostics = true
	ind.Balance = diag.BalanceEUR
	ind.Losses = diag.Outcome.TotalLosses
	ind.SoCShortfall = diag.SoCShortfall
}
