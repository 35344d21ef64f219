// Package forecast supplies the per-hour arrays an optimization run needs
// (PV generation, load, price, feed-in tariff) through a narrow Provider
// interface, matching the distilled spec's "forecast providers are a
// collaborator, not part of the core" boundary (§1).
package forecast

import (
	"math"
	"time"

	"github.com/sixdouglas/suncalc"
)

// Horizon is the set of per-hour forecast arrays for one optimization run,
// all of length H.
type Horizon struct {
	PVForecastW    []float64
	LoadW          []float64
	PriceEURPerWh  []float64
	FeedInEURPerWh []float64
}

// Provider supplies a Horizon for H hours starting at start.
type Provider interface {
	Forecast(start time.Time, horizon int) (Horizon, error)
}

// SuncalcProvider derives a PV generation forecast from solar geometry at a
// fixed site location, scaling a configured peak irradiance by solar
// altitude and zeroing hours when the sun is below the horizon. Load, price, and feed-in tariff
// are taken as flat defaults unless overridden — this provider's job is
// specifically the PV shape, not full market forecasting (that lives in a
// caller's own Provider, e.g. one backed by ENTSO-E day-ahead prices).
//
// Grounded on the teacher's SunInfo dashboard field (scheduler/server.go),
// which computes the same suncalc.GetPosition/GetTimes pair for a fixed
// site coordinate.
type SuncalcProvider struct {
	Latitude  float64
	Longitude float64

	// PeakIrradianceWPerM2 and PanelAreaM2 combine with solar altitude to
	// shape the PV forecast. ArrayEfficiency is the panel's DC conversion
	// efficiency (0-1).
	PeakIrradianceWPerM2 float64
	PanelAreaM2          float64
	ArrayEfficiency      float64

	FlatLoadW          float64
	FlatPriceEURPerWh  float64
	FlatFeedInEURPerWh float64
}

// Forecast builds a Horizon by sampling solar altitude once per hour over
// [start, start+horizon) and scaling a clear-sky irradiance model by
// sin(altitude), zeroing any hour the sun is below the horizon.
func (p *SuncalcProvider) Forecast(start time.Time, horizon int) (Horizon, error) {
	h := Horizon{
		PVForecastW:    make([]float64, horizon),
		LoadW:          make([]float64, horizon),
		PriceEURPerWh:  make([]float64, horizon),
		FeedInEURPerWh: make([]float64, horizon),
	}

	for i := 0; i < horizon; i++ {
		t := start.Add(time.Duration(i) * time.Hour)
		pos := suncalc.GetPosition(t, p.Latitude, p.Longitude)

		pv := 0.0
		if pos.Altitude > 0 {
			pv = p.PeakIrradianceWPerM2 * math.Sin(pos.Altitude) * p.PanelAreaM2 * p.ArrayEfficiency
		}

		h.PVForecastW[i] = pv
		h.LoadW[i] = p.FlatLoadW
		h.PriceEURPerWh[i] = p.FlatPriceEURPerWh
		h.FeedInEURPerWh[i] = p.FlatFeedInEURPerWh
	}

	return h, nil
}

// ClipToDaylight zeroes out any entries of irradiance that fall outside of
// [sunrise, sunset) for the given day, leaving daylight-hour entries
// untouched. It is a standalone helper for callers whose own Provider
// supplies a clear-sky irradiance curve but not its own daylight masking.
func ClipToDaylight(start time.Time, lat, lng float64, irradianceW []float64) []float64 {
	out := make([]float64, len(irradianceW))
	copy(out, irradianceW)

	times := suncalc.GetTimes(start, lat, lng)
	sunrise := times["sunrise"].Value
	sunset := times["sunset"].Value

	for i := range out {
		t := start.Add(time.Duration(i) * time.Hour)
		if t.Before(sunrise) || !t.Before(sunset) {
			out[i] = 0
		}
	}

	return out
}
