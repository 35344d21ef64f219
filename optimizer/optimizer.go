// Package optimizer is the one-shot entry point (§4.F): it assembles a
// codec, a simulator, a fitness context, and an initial population from a
// caller's RunParams, drives the evolutionary loop, and packages the
// result.
package optimizer

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/devskill-org/site-optimizer/evolve"
	"github.com/devskill-org/site-optimizer/fitness"
	"github.com/devskill-org/site-optimizer/genome"
	"github.com/devskill-org/site-optimizer/simulate"
)

// Sentinel errors surfaced before the evolutionary loop starts, per §7:
// malformed run parameters are rejected up front rather than discovered
// mid-run.
var (
	ErrInvalidHorizon      = errors.New("optimizer: horizon must be positive")
	ErrForecastLength      = errors.New("optimizer: forecast array length must equal horizon")
	ErrStartSolutionLength = errors.New("optimizer: start solution length does not match genome length")
)

// RunParams is everything one call to OptimizeSite needs. Zero values for
// GA, InitialPopulationSize, and ActionMagnitude fall back to the spec's
// defaults.
type RunParams struct {
	Horizon   int
	StartHour int

	PVForecastW    []float64
	LoadW          []float64
	PriceEURPerWh  []float64
	FeedInEURPerWh []float64

	PVBatteryCapacityWh          float64
	PVBatteryMinSoCPercent       float64
	PVBatteryStartSoCPercent     float64
	PVBatteryMaxChargePowerW     float64
	PVBatteryMaxDischargePowerW  float64
	PVBatteryChargeEfficiency    float64
	PVBatteryDischargeEfficiency float64

	EVBatteryCapacityWh float64
	EVStartSoCPercent   float64
	EVMinSoCPercent     float64
	EVChargeEfficiency  float64
	EVChargeCurrentsA   []float64 // I, index 0 must be 0 (no charge)
	EVChargePowerW      float64   // rated charger power; gates whether an EV current gene can draw at all
	OptimizationHours   int       // leading hours of the horizon the EV gene is live for; the rest form the locked tail

	ApplianceConsumptionWh float64
	ApplianceDurationH     int // 0 disables the appliance gene entirely

	InverterRatedPowerW float64

	BatteryResidualValueEURPerWh float64
	WorstCase                    bool

	ActionMagnitude int

	GA                    evolve.Config
	InitialPopulationSize int
	StartSolution         []int // optional warm-start genome, injected at the population head

	Seed int64
}

// DefaultGAConfig returns the spec's default μ+λ parameters.
func DefaultGAConfig() evolve.Config {
	return evolve.Config{
		Mu:             100,
		Lambda:         150,
		CrossoverProb:  0.5,
		MutationProb:   0.5,
		Generations:    400,
		TournamentSize: 3,
	}
}

const defaultInitialPopulationSize = 300

// Plan is the decoded, human-facing dispatch plan for the best individual found.
type Plan struct {
	BatteryCharge      []float64
	BatteryDischarge   []float64
	EVChargeCurrentsA  []float64
	ApplianceStartHour int
	HasAppliance       bool
}

// PopulationDiagnostics summarizes the final population's per-individual
// diagnostics. Per Design Note 9, this loops over the final μ survivors
// only, not every individual ever evaluated.
type PopulationDiagnostics struct {
	MeanBalanceEUR   float64
	MeanLosses       float64
	MeanSoCShortfall float64
	Count            int
}

// Result is the full output of one optimization run.
type Result struct {
	Plan        Plan
	Outcome     simulate.OutcomeRecord
	Report      OutcomeReport
	EVFinal     simulate.EVSnapshot
	Genome      []int
	Fitness     float64
	Diagnostics PopulationDiagnostics
	History     []evolve.GenStat

	EVOptimizationDisabled bool
}

// OptimizeSite runs one full optimization for the given parameters and
// returns the best dispatch plan found.
func OptimizeSite(params RunParams) (Result, error) {
	if err := validate(params); err != nil {
		return Result{}, err
	}

	evLockedTail := params.Horizon - params.OptimizationHours
	evDisabled := params.EVMinSoCPercent <= params.EVStartSoCPercent
	if evDisabled {
		evLockedTail = params.Horizon
	}

	actionMagnitude := params.ActionMagnitude
	if actionMagnitude <= 0 {
		actionMagnitude = 5
	}

	hasAppliance := params.ApplianceDurationH > 0

	c := genome.NewCodec(params.Horizon, hasAppliance, evLockedTail, params.StartHour, params.EVChargeCurrentsA, actionMagnitude)

	if len(params.StartSolution) > 0 && len(params.StartSolution) != c.Length() {
		return Result{}, fmt.Errorf("%w: got %d, want %d", ErrStartSolutionLength, len(params.StartSolution), c.Length())
	}

	sys := buildSystem(params)

	fctx := fitness.Context{
		StartHour:                    params.StartHour,
		BatteryResidualValueEURPerWh: params.BatteryResidualValueEURPerWh,
		EVMinSoCPercent:              params.EVMinSoCPercent,
		WorstCase:                    params.WorstCase,
	}

	eval := func(ind *genome.Individual) {
		f, diag := fitness.Evaluate(c, sys, ind, fctx)
		fitness.Apply(ind, f, diag)
	}

	rng := rand.New(rand.NewSource(params.Seed))

	popSize := params.InitialPopulationSize
	if popSize <= 0 {
		popSize = defaultInitialPopulationSize
	}
	gaConfig := params.GA
	if gaConfig.Mu == 0 && gaConfig.Lambda == 0 && gaConfig.Generations == 0 {
		gaConfig = DefaultGAConfig()
	}

	init := buildInitialPopulation(c, popSize, params.StartSolution, rng)

	result := evolve.Run(c, init, eval, gaConfig, rng)

	// Re-evaluate the best individual once more to capture the full
	// per-hour outcome record, which the loop itself never retains on an
	// Individual (only the scalar summary fields survive selection).
	sys.Reset()
	best := result.Best
	battery, ev, appliance := c.Split(best.Genes)
	charge, discharge := c.DecodeBattery(battery)
	evCurrents := c.DecodeEV(ev)
	applianceStart := 0
	if appliance != nil {
		applianceStart = *appliance
		sys.SetApplianceStart(applianceStart, params.StartHour)
	}
	sys.SetBatteryCharge(charge)
	sys.SetBatteryDischarge(discharge)
	sys.SetEVChargeCurrents(evCurrents)
	outcome, err := sys.Simulate(params.StartHour)
	if err != nil {
		return Result{}, fmt.Errorf("optimizer: re-evaluating best individual: %w", err)
	}

	plan := Plan{
		BatteryCharge:      charge,
		BatteryDischarge:   discharge,
		EVChargeCurrentsA:  evCurrents,
		ApplianceStartHour: applianceStart,
		HasAppliance:       hasAppliance,
	}

	return Result{
		Plan:                   plan,
		Outcome:                outcome,
		Report:                 buildReport(outcome),
		EVFinal:                sys.EVStateSnapshot(),
		Genome:                 best.Genes,
		Fitness:                best.Fitness,
		Diagnostics:            summarizeDiagnostics(result.Population),
		History:                result.History,
		EVOptimizationDisabled: evDisabled,
	}, nil
}

func buildSystem(params RunParams) *simulate.EnergySystem {
	pv := &simulate.Battery{
		CapacityWh:          params.PVBatteryCapacityWh,
		MinSoCPercent:       params.PVBatteryMinSoCPercent,
		MaxSoCPercent:       100,
		StartSoCPercent:     params.PVBatteryStartSoCPercent,
		MaxChargePowerW:     params.PVBatteryMaxChargePowerW,
		MaxDischargePowerW:  params.PVBatteryMaxDischargePowerW,
		ChargeEfficiency:    params.PVBatteryChargeEfficiency,
		DischargeEfficiency: params.PVBatteryDischargeEfficiency,
	}
	pv.Reset()

	maxCurrent := 0.0
	for _, cur := range params.EVChargeCurrentsA {
		if cur > maxCurrent {
			maxCurrent = cur
		}
	}

	ev := &simulate.Battery{
		CapacityWh:          params.EVBatteryCapacityWh,
		MinSoCPercent:       0,
		MaxSoCPercent:       100,
		StartSoCPercent:     params.EVStartSoCPercent,
		MaxChargePowerW:     maxCurrent,
		MaxDischargePowerW:  0,
		ChargeEfficiency:    params.EVChargeEfficiency,
		DischargeEfficiency: 1.0,
	}
	ev.Reset()

	var appliance *simulate.Appliance
	if params.ApplianceDurationH > 0 {
		appliance = &simulate.Appliance{
			ConsumptionWh: params.ApplianceConsumptionWh,
			DurationH:     params.ApplianceDurationH,
		}
	}

	return &simulate.EnergySystem{
		Horizon:        params.Horizon,
		PVForecastW:    params.PVForecastW,
		LoadW:          params.LoadW,
		PriceEURPerWh:  params.PriceEURPerWh,
		FeedInEURPerWh: params.FeedInEURPerWh,
		PVBattery:      pv,
		EVBattery:      ev,
		Inverter:       &simulate.Inverter{RatedPowerW: params.InverterRatedPowerW},
		Appliance:      appliance,
		EVChargePowerW: params.EVChargePowerW,
	}
}

func buildInitialPopulation(c *genome.Codec, size int, startSolution []int, rng *rand.Rand) []*genome.Individual {
	pop := make([]*genome.Individual, size)
	for i := range pop {
		pop[i] = c.NewRandomIndividual(rng)
	}

	if len(startSolution) == 0 {
		return pop
	}

	injections := 3
	if injections > len(pop) {
		injections = len(pop)
	}
	for i := 0; i < injections; i++ {
		genes := make([]int, len(startSolution))
		copy(genes, startSolution)
		c.ClampLockedTail(genes)
		pop[i] = &genome.Individual{Genes: genes}
	}

	return pop
}

func summarizeDiagnostics(pop []*genome.Individual) PopulationDiagnostics {
	var d PopulationDiagnostics
	for _, ind := range pop {
		if !ind.HasDiagnostics {
			continue
		}
		d.MeanBalanceEUR += ind.Balance
		d.MeanLosses += ind.Losses
		d.MeanSoCShortfall += ind.SoCShortfall
		d.Count++
	}
	if d.Count > 0 {
		d.MeanBalanceEUR /= float64(d.Count)
		d.MeanLosses /= float64(d.Count)
		d.MeanSoCShortfall /= float64(d.Count)
	}
	return d
}

func validate(params RunParams) error {
	if params.Horizon <= 0 {
		return ErrInvalidHorizon
	}
	lengths := map[string][]float64{
		"PVForecastW":    params.PVForecastW,
		"LoadW":          params.LoadW,
		"PriceEURPerWh":  params.PriceEURPerWh,
		"FeedInEURPerWh": params.FeedInEURPerWh,
	}
	for name, v := range lengths {
		if len(v) != params.Horizon {
			return fmt.Errorf("%w: %s has length %d, want %d", ErrForecastLength, name, len(v), params.Horizon)
		}
	}
	return nil
}

// OutcomeReport is the nulled-first-hour rendering of an OutcomeRecord
// for external reporting. The distilled source's result dict nulls out
// the first element of every per-hour array (the current, already-elapsed
// hour carries no forward-looking meaning) and maps NaN to a null value;
// Go has no implicit NaN-as-null, so each field here is a nullable slice
// instead.
type OutcomeReport struct {
	Load                 []*float64
	GridImport           []*float64
	GridExport           []*float64
	BatterySoCPercent    []*float64
	EVSoCPercent         []*float64
	CostEUR              []*float64
	RevenueEUR           []*float64
	LossesWh             []*float64
	ApplianceConsumption []*float64
}

func buildReport(o simulate.OutcomeRecord) OutcomeReport {
	return OutcomeReport{
		Load:                 nullFirst(o.Load),
		GridImport:           nullFirst(o.GridImport),
		GridExport:           nullFirst(o.GridExport),
		BatterySoCPercent:    nullFirst(o.BatterySoCPercent),
		EVSoCPercent:         nullFirst(o.EVSoCPercent),
		CostEUR:              nullFirst(o.CostEUR),
		RevenueEUR:           nullFirst(o.RevenueEUR),
		LossesWh:             nullFirst(o.LossesWh),
		ApplianceConsumption: nullFirst(o.ApplianceConsumption),
	}
}

// nullFirst copies src into a []*float64, nulling index 0 and any NaN.
func nullFirst(src []float64) []*float64 {
	out := make([]*float64, len(src))
	for i, v := range src {
		if i == 0 || math.IsNaN(v) {
			continue
		}
		val := v
		out[i] = &val
	}
	return out
}
