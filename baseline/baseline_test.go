package baseline

import (
	"testing"

	"github.com/devskill-org/site-optimizer/genome"
)

func flatSeries(h int, v float64) []float64 {
	out := make([]float64, h)
	for i := range out {
		out[i] = v
	}
	return out
}

func testBattery() BatteryParams {
	return BatteryParams{
		CapacityWh:          10000,
		MinSoCPercent:       10,
		MaxSoCPercent:       100,
		StartSoCPercent:     50,
		MaxChargePowerW:     5000,
		MaxDischargePowerW:  5000,
		ChargeEfficiency:    0.95,
		DischargeEfficiency: 0.95,
	}
}

func TestBuildStartSolutionReturnsCorrectLength(t *testing.T) {
	c := genome.NewCodec(6, true, 0, 0, []float64{0, 1000}, 5)
	genes := BuildStartSolution(c, flatSeries(6, 0.0002), flatSeries(6, 0.0001), flatSeries(6, 0), flatSeries(6, 500), testBattery())
	if len(genes) != c.Length() {
		t.Fatalf("expected length %d, got %d", c.Length(), len(genes))
	}
}

func TestBuildStartSolutionChargesWhenPVExceedsLoad(t *testing.T) {
	c := genome.NewCodec(4, false, 0, 0, []float64{0, 1000}, 5)
	pv := flatSeries(4, 8000)
	load := flatSeries(4, 500)
	price := flatSeries(4, 0.0003)
	feedIn := flatSeries(4, 0.0001)

	genes := BuildStartSolution(c, price, feedIn, pv, load, testBattery())

	anyCharge := false
	for _, g := range genes[:4] {
		if g < 0 {
			anyCharge = true
		}
	}
	if !anyCharge {
		t.Fatal("expected at least one charge gene when PV greatly exceeds load")
	}
}

func TestBuildStartSolutionWithZeroHorizonReturnsEmptyGenes(t *testing.T) {
	c := genome.NewCodec(0, false, 0, 0, []float64{0}, 5)
	genes := BuildStartSolution(c, nil, nil, nil, nil, testBattery())
	if len(genes) != 0 {
		t.Fatalf("expected zero-length genome, got %d", len(genes))
	}
}

func TestBuildStartSolutionSetsApplianceGeneToEarliestHour(t *testing.T) {
	c := genome.NewCodec(4, true, 0, 2, []float64{0, 1000}, 5)
	genes := BuildStartSolution(c, flatSeries(4, 0.0003), flatSeries(4, 0.0001), flatSeries(4, 0), flatSeries(4, 500), testBattery())
	low, _ := c.ApplianceDomain()
	if genes[len(genes)-1] != low {
		t.Fatalf("expected appliance gene = %d, got %d", low, genes[len(genes)-1])
	}
}
