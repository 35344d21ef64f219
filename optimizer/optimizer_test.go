package optimizer

import (
	"testing"

	"github.com/devskill-org/site-optimizer/evolve"
)

func flat(h int, v float64) []float64 {
	out := make([]float64, h)
	for i := range out {
		out[i] = v
	}
	return out
}

func smallParams(h int) RunParams {
	return RunParams{
		Horizon:        h,
		StartHour:      0,
		PVForecastW:    flat(h, 500),
		LoadW:          flat(h, 300),
		PriceEURPerWh:  flat(h, 0.0003),
		FeedInEURPerWh: flat(h, 0.0001),

		PVBatteryCapacityWh:          5000,
		PVBatteryStartSoCPercent:     50,
		PVBatteryMaxChargePowerW:     2000,
		PVBatteryMaxDischargePowerW:  2000,
		PVBatteryChargeEfficiency:    0.95,
		PVBatteryDischargeEfficiency: 0.95,

		EVBatteryCapacityWh: 40000,
		EVStartSoCPercent:   30,
		EVMinSoCPercent:     80,
		EVChargeEfficiency:  0.9,
		EVChargeCurrentsA:   []float64{0, 1400, 2800},
		EVChargePowerW:      2800,
		OptimizationHours:   h,

		InverterRatedPowerW: 5000,

		BatteryResidualValueEURPerWh: 0.0002,

		GA: evolve.Config{
			Mu: 8, Lambda: 12, CrossoverProb: 0.5, MutationProb: 0.4,
			Generations: 5, TournamentSize: 3,
		},
		InitialPopulationSize: 12,
		Seed:                  1,
	}
}

func TestOptimizeSiteRejectsNonPositiveHorizon(t *testing.T) {
	p := smallParams(4)
	p.Horizon = 0
	_, err := OptimizeSite(p)
	if err == nil {
		t.Fatal("expected error for zero horizon")
	}
}

func TestOptimizeSiteRejectsMismatchedForecastLength(t *testing.T) {
	p := smallParams(4)
	p.LoadW = flat(3, 0)
	_, err := OptimizeSite(p)
	if err == nil {
		t.Fatal("expected error for mismatched forecast length")
	}
}

func TestOptimizeSiteRejectsWrongLengthStartSolution(t *testing.T) {
	p := smallParams(4)
	p.StartSolution = []int{0, 0, 0}
	_, err := OptimizeSite(p)
	if err == nil {
		t.Fatal("expected error for wrong-length start solution")
	}
}

func TestOptimizeSiteRunsEndToEnd(t *testing.T) {
	p := smallParams(6)
	result, err := OptimizeSite(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Plan.BatteryCharge) != 6 || len(result.Plan.BatteryDischarge) != 6 {
		t.Fatalf("unexpected plan lengths: %+v", result.Plan)
	}
	if len(result.Genome) != 2*6 {
		t.Fatalf("unexpected genome length: %d", len(result.Genome))
	}
	if len(result.History) != p.GA.Generations+1 {
		t.Fatalf("history length = %d, want %d", len(result.History), p.GA.Generations+1)
	}
	if result.Diagnostics.Count == 0 {
		t.Fatal("expected at least one diagnosed individual in the final population")
	}
}

func TestOptimizeSitePVBatteryRespectsMinSoCFloor(t *testing.T) {
	p := smallParams(6)
	p.PVBatteryMinSoCPercent = 25
	p.PVBatteryStartSoCPercent = 90
	result, err := OptimizeSite(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, soc := range result.Outcome.BatterySoCPercent {
		if soc < p.PVBatteryMinSoCPercent-1e-9 {
			t.Fatalf("hour %d: battery SoC %.4f below configured floor %.4f", i, soc, p.PVBatteryMinSoCPercent)
		}
	}
}

func TestOptimizeSiteNullsFirstReportElement(t *testing.T) {
	p := smallParams(4)
	result, err := OptimizeSite(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Report.Load[0] != nil {
		t.Fatal("expected Report.Load[0] to be nil")
	}
	for i := 1; i < len(result.Report.Load); i++ {
		if result.Report.Load[i] == nil {
			t.Fatalf("expected Report.Load[%d] to be non-nil", i)
		}
	}
}

func TestOptimizeSiteDisablesEVWhenAlreadyAboveMinSoC(t *testing.T) {
	p := smallParams(4)
	p.EVStartSoCPercent = 90
	p.EVMinSoCPercent = 80
	result, err := OptimizeSite(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.EVOptimizationDisabled {
		t.Fatal("expected EV optimization to be disabled")
	}
	for i, v := range result.Plan.EVChargeCurrentsA {
		if v != 0 {
			t.Fatalf("EVChargeCurrentsA[%d] = %f, want 0 with EV optimization disabled", i, v)
		}
	}
}

func TestOptimizeSiteWithoutApplianceOmitsGene(t *testing.T) {
	p := smallParams(4)
	p.ApplianceDurationH = 0
	result, err := OptimizeSite(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Plan.HasAppliance {
		t.Fatal("expected HasAppliance = false")
	}
	if len(result.Genome) != 2*4 {
		t.Fatalf("genome length = %d, want %d (no appliance gene)", len(result.Genome), 2*4)
	}
}

func TestOptimizeSiteWithAppliance(t *testing.T) {
	p := smallParams(4)
	p.ApplianceDurationH = 2
	p.ApplianceConsumptionWh = 1000
	result, err := OptimizeSite(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Plan.HasAppliance {
		t.Fatal("expected HasAppliance = true")
	}
	if len(result.Genome) != 2*4+1 {
		t.Fatalf("genome length = %d, want %d", len(result.Genome), 2*4+1)
	}
	if result.Plan.ApplianceStartHour < p.StartHour || result.Plan.ApplianceStartHour > 23 {
		t.Fatalf("appliance start hour out of domain: %d", result.Plan.ApplianceStartHour)
	}
}

func TestOptimizeSiteInjectsStartSolution(t *testing.T) {
	p := smallParams(4)
	p.GA.Generations = 0
	p.InitialPopulationSize = 5
	p.GA.Mu = 5
	p.GA.Lambda = 5

	start := make([]int, 2*4)
	for i := range start {
		start[i] = 0
	}
	p.StartSolution = start

	result, err := OptimizeSite(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Genome) != len(start) {
		t.Fatalf("unexpected genome length: %d", len(result.Genome))
	}
}
