package fitness

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/devskill-org/site-optimizer/genome"
	"github.com/devskill-org/site-optimizer/simulate"
)

func newTestRand() *rand.Rand {
	return rand.New(rand.NewSource(42))
}

type stubSimulator struct {
	outcome   simulate.OutcomeRecord
	err       error
	evSoC     float64
	batteryWh float64

	resetCalled bool
}

func (s *stubSimulator) Reset()                                  { s.resetCalled = true }
func (s *stubSimulator) SetApplianceStart(hour int, anchor int)  {}
func (s *stubSimulator) SetBatteryCharge(vec []float64)          {}
func (s *stubSimulator) SetBatteryDischarge(vec []float64)       {}
func (s *stubSimulator) SetEVChargeCurrents(vec []float64)       {}
func (s *stubSimulator) Simulate(startHour int) (simulate.OutcomeRecord, error) {
	return s.outcome, s.err
}
func (s *stubSimulator) EVFinalSoCPercent() float64 { return s.evSoC }
func (s *stubSimulator) BatteryEnergyWh() float64   { return s.batteryWh }
func (s *stubSimulator) EVStateSnapshot() simulate.EVSnapshot {
	return simulate.EVSnapshot{SoCPercent: s.evSoC}
}

func testCodec() *genome.Codec {
	return genome.NewCodec(4, false, 0, 0, []float64{0, 6, 8}, 5)
}

func TestEvaluateReturnsSentinelOnSimulationError(t *testing.T) {
	c := testCodec()
	sim := &stubSimulator{err: errors.New("boom")}
	ind := c.NewRandomIndividual(newTestRand())

	f, diag := Evaluate(c, sim, ind, Context{})
	if f != PenaltyWorstCase {
		t.Fatalf("fitness = %f, want sentinel %f", f, PenaltyWorstCase)
	}
	if diag != nil {
		t.Fatal("expected nil diagnostics on simulation error")
	}
	if !sim.resetCalled {
		t.Fatal("expected Reset to be called before simulation")
	}
}

func TestEvaluateNegatesBalanceAsCost(t *testing.T) {
	c := testCodec()
	sim := &stubSimulator{
		outcome: simulate.OutcomeRecord{
			TotalBalanceEUR: 12.5,
			Load:            []float64{0, 0, 0, 0},
			GridExport:      []float64{0, 0, 0, 0},
		},
	}
	// All battery genes committed (no idle penalty), EV genes at index 0
	// (no charge, and EVMinSoCPercent is unset so the shortfall terms
	// never engage either way) — isolates the balance term.
	ind := &genome.Individual{Genes: []int{1, 1, 1, 1, 0, 0, 0, 0}}

	f, diag := Evaluate(c, sim, ind, Context{})
	if diag == nil {
		t.Fatal("expected diagnostics on success")
	}
	if f != -12.5 {
		t.Fatalf("fitness = %f, want -12.5", f)
	}
}

func TestEvaluateWorstCaseFlipsBalanceSign(t *testing.T) {
	c := testCodec()
	sim := &stubSimulator{
		outcome: simulate.OutcomeRecord{
			TotalBalanceEUR: 12.5,
			Load:            []float64{0, 0, 0, 0},
			GridExport:      []float64{0, 0, 0, 0},
		},
	}
	ind := &genome.Individual{Genes: []int{1, 1, 1, 1, 0, 0, 0, 0}}

	f, diag := Evaluate(c, sim, ind, Context{WorstCase: true})
	if diag.BalanceEUR != -12.5 {
		t.Fatalf("diag.BalanceEUR = %f, want -12.5", diag.BalanceEUR)
	}
	if f != 12.5 {
		t.Fatalf("fitness = %f, want 12.5", f)
	}
}

func TestEvaluateAppliesEVShortfallPenalty(t *testing.T) {
	c := testCodec()
	sim := &stubSimulator{
		outcome: simulate.OutcomeRecord{
			Load:       []float64{0, 0, 0, 0},
			GridExport: []float64{0, 0, 0, 0},
		},
		evSoC: 40,
	}
	// battery genes nonzero (no idle penalty); EV genes at index 0 (no
	// charge) so the per-non-zero-EV-hour term stays at zero and only the
	// shortfall*penalty term is exercised.
	ind := &genome.Individual{Genes: []int{1, 1, 1, 1, 0, 0, 0, 0}}

	f, diag := Evaluate(c, sim, ind, Context{EVMinSoCPercent: 80})
	if diag.SoCShortfall != 40 {
		t.Fatalf("diag.SoCShortfall = %f, want 40", diag.SoCShortfall)
	}
	if f != 400 {
		t.Fatalf("fitness = %f, want 400 (40 shortfall * 10 penalty)", f)
	}
}

func TestEvaluateAppliesPerHourEVPenaltyWhenShortfall(t *testing.T) {
	c := testCodec()
	sim := &stubSimulator{
		outcome: simulate.OutcomeRecord{
			Load:       []float64{0, 0, 0, 0},
			GridExport: []float64{0, 0, 0, 0},
		},
		evSoC: 40,
	}
	// EV genes at index 1 (current = 6, non-zero) for two of the four
	// hours: the shortfall condition is live, so each non-zero EV hour
	// adds one more penalty on top of shortfall*penalty.
	ind := &genome.Individual{Genes: []int{1, 1, 1, 1, 1, 1, 0, 0}}

	f, _ := Evaluate(c, sim, ind, Context{EVMinSoCPercent: 80})
	want := 40*EVShortfallPenalty + 2*EVShortfallPenalty
	if f != want {
		t.Fatalf("fitness = %f, want %f (shortfall*penalty + 2 non-zero EV hours*penalty)", f, want)
	}
}

func TestEvaluateOmitsPerHourEVPenaltyWhenNoShortfall(t *testing.T) {
	c := testCodec()
	sim := &stubSimulator{
		outcome: simulate.OutcomeRecord{
			Load:       []float64{0, 0, 0, 0},
			GridExport: []float64{0, 0, 0, 0},
		},
		evSoC: 90,
	}
	// Same non-zero EV genes as above, but the EV already meets its
	// minimum SoC, so neither EV penalty term should apply.
	ind := &genome.Individual{Genes: []int{1, 1, 1, 1, 1, 1, 0, 0}}

	f, diag := Evaluate(c, sim, ind, Context{EVMinSoCPercent: 80})
	if diag.SoCShortfall != 0 {
		t.Fatalf("diag.SoCShortfall = %f, want 0", diag.SoCShortfall)
	}
	if f != 0 {
		t.Fatalf("fitness = %f, want 0", f)
	}
}

func TestEvaluateSubtractsResidualValue(t *testing.T) {
	c := testCodec()
	sim := &stubSimulator{
		outcome: simulate.OutcomeRecord{
			Load:       []float64{0, 0, 0, 0},
			GridExport: []float64{0, 0, 0, 0},
		},
		batteryWh: 1000,
	}
	// All battery genes committed (no idle penalty) and EV genes at index 0,
	// so only the residual-value term contributes.
	ind := &genome.Individual{Genes: []int{1, 1, 1, 1, 0, 0, 0, 0}}

	f, _ := Evaluate(c, sim, ind, Context{BatteryResidualValueEURPerWh: 0.0002})
	if f != -0.2 {
		t.Fatalf("fitness = %f, want -0.2", f)
	}
}

func TestEvaluateCountsIdleDischargeHours(t *testing.T) {
	c := genome.NewCodec(2, false, 0, 0, []float64{0}, 5)
	sim := &stubSimulator{
		outcome: simulate.OutcomeRecord{
			Load:       []float64{0, 0},
			GridExport: []float64{0, 0},
		},
	}
	// Both battery genes idle (0); neither EV gene matters for this count.
	ind := &genome.Individual{Genes: []int{0, 0, 0, 0}}

	_, diag := Evaluate(c, sim, ind, Context{})
	if diag.IdleDischargeHrs != 2 {
		t.Fatalf("IdleDischargeHrs = %d, want 2", diag.IdleDischargeHrs)
	}
}

func TestEvaluateDoesNotCountCommittedBatteryHoursAsIdle(t *testing.T) {
	c := genome.NewCodec(2, false, 0, 0, []float64{0}, 5)
	sim := &stubSimulator{
		outcome: simulate.OutcomeRecord{
			Load:       []float64{0, 0},
			GridExport: []float64{0, 0},
		},
	}
	// Both battery genes committed (discharge / charge), so neither hour
	// should be counted idle.
	ind := &genome.Individual{Genes: []int{1, -2, 0, 0}}

	_, diag := Evaluate(c, sim, ind, Context{})
	if diag.IdleDischargeHrs != 0 {
		t.Fatalf("IdleDischargeHrs = %d, want 0", diag.IdleDischargeHrs)
	}
}

func TestApplyPopulatesIndividualSummaryFields(t *testing.T) {
	ind := &genome.Individual{}
	diag := &Diagnostics{
		BalanceEUR:   5,
		SoCShortfall: 2,
		Outcome:      simulate.OutcomeRecord{TotalLosses: 7},
	}
	Apply(ind, -5, diag)

	if !ind.HasDiagnostics {
		t.Fatal("expected HasDiagnostics = true")
	}
	if ind.Fitness != -5 || ind.Balance != 5 || ind.Losses != 7 || ind.SoCShortfall != 2 {
		t.Fatalf("unexpected individual summary: %+v", ind)
	}
}

func TestApplyOnSentinelClearsDiagnostics(t *testing.T) {
	ind := &genome.Individual{HasDiagnostics: true}
	Apply(ind, PenaltyWorstCase, nil)
	if ind.HasDiagnostics {
		t.Fatal("expected HasDiagnostics = false after sentinel fitness")
	}
	if ind.Fitness != PenaltyWorstCase {
		t.Fatalf("Fitness = %f, want sentinel", ind.Fitness)
	}
}
