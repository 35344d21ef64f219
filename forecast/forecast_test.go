package forecast

import (
	"testing"
	"time"
)

func rigaProvider() *SuncalcProvider {
	return &SuncalcProvider{
		Latitude:             56.9496,
		Longitude:            24.1052,
		PeakIrradianceWPerM2: 1000,
		PanelAreaM2:          20,
		ArrayEfficiency:      0.2,
		FlatLoadW:            500,
		FlatPriceEURPerWh:    0.0003,
		FlatFeedInEURPerWh:   0.0001,
	}
}

func TestForecastReturnsRequestedLength(t *testing.T) {
	p := rigaProvider()
	start := time.Date(2026, 6, 21, 0, 0, 0, 0, time.UTC)
	h, err := p.Forecast(start, 48)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.PVForecastW) != 48 || len(h.LoadW) != 48 || len(h.PriceEURPerWh) != 48 || len(h.FeedInEURPerWh) != 48 {
		t.Fatalf("unexpected array lengths: %+v", h)
	}
}

func TestForecastZerosNighttimePV(t *testing.T) {
	p := rigaProvider()
	// Midwinter midnight in Riga: the whole next few hours should be dark.
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h, err := p.Forecast(start, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range h.PVForecastW {
		if v != 0 {
			t.Errorf("PVForecastW[%d] = %f, want 0 at midwinter midnight", i, v)
		}
	}
}

func TestForecastUsesFlatDefaultsForNonPVSeries(t *testing.T) {
	p := rigaProvider()
	start := time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)
	h, _ := p.Forecast(start, 4)
	for i := range h.LoadW {
		if h.LoadW[i] != 500 {
			t.Errorf("LoadW[%d] = %f, want 500", i, h.LoadW[i])
		}
		if h.PriceEURPerWh[i] != 0.0003 {
			t.Errorf("PriceEURPerWh[%d] = %f, want 0.0003", i, h.PriceEURPerWh[i])
		}
	}
}

func TestClipToDaylightZeroesOutsideSunriseSunset(t *testing.T) {
	start := time.Date(2026, 6, 21, 0, 0, 0, 0, time.UTC)
	irr := make([]float64, 24)
	for i := range irr {
		irr[i] = 800
	}

	out := ClipToDaylight(start, 56.9496, 24.1052, irr)
	if len(out) != 24 {
		t.Fatalf("unexpected length: %d", len(out))
	}
	if out[0] != 0 {
		t.Errorf("out[0] = %f, want 0 (midnight)", out[0])
	}

	anyNonZero := false
	for _, v := range out {
		if v != 0 {
			anyNonZero = true
		}
	}
	if !anyNonZero {
		t.Fatal("expected at least one daylight hour to retain irradiance")
	}
}
