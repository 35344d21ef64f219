// Package simulate implements the one-step-per-hour energy simulator
// collaborator (§6) and the concrete PV/EV battery, inverter, and
// deferrable-appliance models it is built on. This is "the rest of the
// system" the core optimization engine treats as an opaque Simulator: the
// core never reaches into a Battery or Inverter directly.
package simulate

import (
	"fmt"
	"math"
)

// OutcomeRecord is produced by one call to Simulate. All per-hour slices
// have length H.
type OutcomeRecord struct {
	Load                  []float64
	GridImport            []float64
	GridExport            []float64
	BatterySoCPercent     []float64
	EVSoCPercent          []float64
	CostEUR               []float64
	RevenueEUR            []float64
	LossesWh              []float64
	ApplianceConsumption  []float64

	TotalBalanceEUR float64
	TotalLosses     float64
}

// EVSnapshot is a read-only view of the EV battery's state after a run.
type EVSnapshot struct {
	SoCPercent float64
	SoCWh      float64
	CapacityWh float64
}

// Simulator is the external collaborator the core Simulator Adapter (§4.C)
// drives. Implementations must be pure with respect to their inputs:
// Reset restores the state a fresh run starts from, and the only mutation
// during Simulate is scoped to the receiver.
type Simulator interface {
	Reset()
	SetApplianceStart(hour int, anchor int)
	SetBatteryCharge(vec []float64)
	SetBatteryDischarge(vec []float64)
	SetEVChargeCurrents(vec []float64)
	Simulate(startHour int) (OutcomeRecord, error)
	EVFinalSoCPercent() float64
	BatteryEnergyWh() float64
	EVStateSnapshot() EVSnapshot
}

// Battery models a single electrochemical store — used for both the
// stationary PV battery and the EV battery, distinguished only by their
// configured efficiency and power limits.
//
// Grounded on original_source's PVAkku (class_akku.py): charge efficiency
// applies only on the charging side, a configurable round-trip asymmetry
// the EV battery exercises by setting DischargeEfficiency=1.0.
type Battery struct {
	CapacityWh         float64
	MinSoCPercent       float64
	MaxSoCPercent       float64
	StartSoCPercent     float64
	MaxChargePowerW     float64
	MaxDischargePowerW  float64
	ChargeEfficiency    float64 // 0..1, applied on energy entering the cell
	DischargeEfficiency float64 // 0..1, applied on energy leaving the cell

	socWh float64
}

// Reset restores the battery to its configured starting SoC.
func (b *Battery) Reset() {
	b.socWh = b.CapacityWh * b.StartSoCPercent / 100
}

// SoCPercent returns the current state of charge as a percentage.
func (b *Battery) SoCPercent() float64 {
	if b.CapacityWh <= 0 {
		return 0
	}
	return b.socWh / b.CapacityWh * 100
}

// EnergyWh returns the current stored energy in Wh.
func (b *Battery) EnergyWh() float64 {
	return b.socWh
}

// Charge draws powerW for one hour (capped by MaxChargePowerW and the
// headroom to MaxSoCPercent) and returns the energy actually drawn from the
// grid/PV side and the energy lost to (1-efficiency) along the way.
func (b *Battery) Charge(powerW float64) (drawnWh, lossWh float64) {
	if powerW <= 0 {
		return 0, 0
	}
	if powerW > b.MaxChargePowerW {
		powerW = b.MaxChargePowerW
	}

	ceilWh := b.CapacityWh * b.MaxSoCPercent / 100
	headroomWh := ceilWh - b.socWh
	if headroomWh <= 0 {
		return 0, 0
	}

	eff := b.ChargeEfficiency
	if eff <= 0 {
		eff = 1
	}

	drawnWh = powerW
	storedWh := drawnWh * eff
	if storedWh > headroomWh {
		storedWh = headroomWh
		drawnWh = storedWh / eff
	}

	b.socWh += storedWh
	lossWh = drawnWh - storedWh
	return drawnWh, lossWh
}

// Discharge delivers powerW for one hour (capped by MaxDischargePowerW and
// the available energy above MinSoCPercent) and returns the energy
// delivered to the load/grid side and the loss incurred.
func (b *Battery) Discharge(powerW float64) (deliveredWh, lossWh float64) {
	if powerW <= 0 {
		return 0, 0
	}
	if powerW > b.MaxDischargePowerW {
		powerW = b.MaxDischargePowerW
	}

	floorWh := b.CapacityWh * b.MinSoCPercent / 100
	availableWh := b.socWh - floorWh
	if availableWh <= 0 {
		return 0, 0
	}

	eff := b.DischargeEfficiency
	if eff <= 0 {
		eff = 1
	}

	drawnWh := powerW
	if drawnWh > availableWh {
		drawnWh = availableWh
	}
	deliveredWh = drawnWh * eff

	b.socWh -= drawnWh
	lossWh = drawnWh - deliveredWh
	return deliveredWh, lossWh
}

// Inverter clamps combined battery/grid power to its AC rating. The
// distilled spec's inverter interface caps throughput but does not model
// DC/AC conversion physics (explicit Non-goal); RatedPowerW is that clamp,
// not a conversion-loss model.
type Inverter struct {
	RatedPowerW float64
}

// Clamp limits powerW (always non-negative) to the inverter's rated power.
func (inv *Inverter) Clamp(powerW float64) float64 {
	if inv.RatedPowerW <= 0 {
		return powerW
	}
	return math.Min(powerW, inv.RatedPowerW)
}

// Appliance is the optional deferrable household load: it draws a fixed
// total energy spread evenly over DurationH hours, beginning at a
// caller-chosen start hour.
type Appliance struct {
	ConsumptionWh float64
	DurationH     int

	startHour int
}

// SetStart records the appliance's start hour, anchored at the run's
// start_hour: the genome encodes an absolute hour, which is stored as an
// offset from anchor so ConsumptionAt can compare it with its own offset.
func (a *Appliance) SetStart(hour int, anchor int) {
	a.startHour = hour - anchor
}

// ConsumptionAt returns the appliance's power draw, in Wh, for the hour at
// offset `hour` from the run's start_hour.
func (a *Appliance) ConsumptionAt(hour int) float64 {
	if a.DurationH <= 0 {
		return 0
	}
	if hour < a.startHour || hour >= a.startHour+a.DurationH {
		return 0
	}
	return a.ConsumptionWh / float64(a.DurationH)
}

// EnergySystem is the concrete Simulator collaborator: it wires together a
// PV battery, an EV battery, an inverter, an optional appliance, and the
// horizon's forecasts into the per-hour energy balance loop (§4.C, §6).
type EnergySystem struct {
	Horizon int

	PVForecastW         []float64
	LoadW               []float64
	PriceEURPerWh       []float64
	FeedInEURPerWh      []float64

	PVBattery *Battery
	EVBattery *Battery
	Inverter  *Inverter
	Appliance *Appliance // nil when the run has no deferrable appliance

	EVChargePowerW float64 // rated power of the EV charger at max current

	chargeVec     []float64
	dischargeVec  []float64
	evCurrentsA   []float64
	applianceSet  bool
}

// ErrLengthMismatch is returned when a forecast or control vector does not
// match the configured horizon.
type ErrLengthMismatch struct {
	Field string
	Got   int
	Want  int
}

func (e *ErrLengthMismatch) Error() string {
	return fmt.Sprintf("simulate: %s has length %d, want %d", e.Field, e.Got, e.Want)
}

// Reset clears per-hour control vectors and restores both batteries to
// their configured starting SoC.
func (es *EnergySystem) Reset() {
	es.PVBattery.Reset()
	es.EVBattery.Reset()
	es.chargeVec = nil
	es.dischargeVec = nil
	es.evCurrentsA = nil
	es.applianceSet = false
}

// SetApplianceStart positions the deferrable load, if one is configured.
func (es *EnergySystem) SetApplianceStart(hour int, anchor int) {
	if es.Appliance == nil {
		return
	}
	es.Appliance.SetStart(hour, anchor)
	es.applianceSet = true
}

// SetBatteryCharge stores the relative charge-intensity profile for the PV battery.
func (es *EnergySystem) SetBatteryCharge(vec []float64) {
	es.chargeVec = vec
}

// SetBatteryDischarge stores the 0/1 discharge-enable profile for the PV battery.
func (es *EnergySystem) SetBatteryDischarge(vec []float64) {
	es.dischargeVec = vec
}

// SetEVChargeCurrents stores the concrete per-hour EV charging currents.
func (es *EnergySystem) SetEVChargeCurrents(vec []float64) {
	es.evCurrentsA = vec
}

// EVFinalSoCPercent returns the EV battery's SoC after the most recent Simulate call.
func (es *EnergySystem) EVFinalSoCPercent() float64 {
	return es.EVBattery.SoCPercent()
}

// BatteryEnergyWh returns the PV battery's stored energy after the most recent Simulate call.
func (es *EnergySystem) BatteryEnergyWh() float64 {
	return es.PVBattery.EnergyWh()
}

// EVStateSnapshot returns a read-only view of the EV battery's state.
func (es *EnergySystem) EVStateSnapshot() EVSnapshot {
	return EVSnapshot{
		SoCPercent: es.EVBattery.SoCPercent(),
		SoCWh:      es.EVBattery.EnergyWh(),
		CapacityWh: es.EVBattery.CapacityWh,
	}
}

// Simulate runs the per-hour loop for H hours starting at startHour and
// returns the outcome record. It is pure with respect to its inputs beyond
// the receiver's own battery state, which Reset must be called to restore
// before reuse.
func (es *EnergySystem) Simulate(startHour int) (OutcomeRecord, error) {
	h := es.Horizon

	if err := es.checkLengths(); err != nil {
		return OutcomeRecord{}, err
	}

	o := OutcomeRecord{
		Load:                 make([]float64, h),
		GridImport:           make([]float64, h),
		GridExport:           make([]float64, h),
		BatterySoCPercent:    make([]float64, h),
		EVSoCPercent:         make([]float64, h),
		CostEUR:              make([]float64, h),
		RevenueEUR:           make([]float64, h),
		LossesWh:             make([]float64, h),
		ApplianceConsumption: make([]float64, h),
	}

	for i := 0; i < h; i++ {
		pv := es.PVForecastW[i]
		load := es.LoadW[i]

		applianceWh := 0.0
		if es.Appliance != nil {
			applianceWh = es.Appliance.ConsumptionAt(i)
		}
		o.ApplianceConsumption[i] = applianceWh

		chargeIntensity := 0.0
		if es.chargeVec != nil {
			chargeIntensity = es.chargeVec[i]
		}
		dischargeEnabled := false
		if es.dischargeVec != nil {
			dischargeEnabled = es.dischargeVec[i] > 0
		}

		desiredChargeW := es.Inverter.Clamp(chargeIntensity * es.PVBattery.MaxChargePowerW)
		desiredDischargeW := 0.0
		if dischargeEnabled {
			desiredDischargeW = es.Inverter.Clamp(es.PVBattery.MaxDischargePowerW)
		}

		var chargeDrawnWh, chargeLossWh, dischargeDeliveredWh, dischargeLossWh float64
		if desiredChargeW > 0 {
			chargeDrawnWh, chargeLossWh = es.PVBattery.Charge(desiredChargeW)
		}
		if desiredDischargeW > 0 {
			dischargeDeliveredWh, dischargeLossWh = es.PVBattery.Discharge(desiredDischargeW)
		}

		evCurrentA := 0.0
		if es.evCurrentsA != nil {
			evCurrentA = es.evCurrentsA[i]
		}
		evPowerW := 0.0
		if evCurrentA > 0 && es.EVChargePowerW > 0 {
			// The current-table value is used directly as the hour's
			// charging power in W; the charger's rated power only gates
			// whether any charging happens, and the EV battery's
			// MaxChargePowerW caps the result.
			evPowerW = evCurrentA
		}
		evDrawnWh, evLossWh := es.EVBattery.Charge(evPowerW)

		totalLoadWh := load + applianceWh
		netSupplyWh := pv + dischargeDeliveredWh
		netDemandWh := totalLoadWh + chargeDrawnWh + evDrawnWh

		balance := netSupplyWh - netDemandWh

		var gridImport, gridExport float64
		if balance >= 0 {
			gridExport = balance
		} else {
			gridImport = -balance
		}

		price := es.PriceEURPerWh[i]
		feedIn := es.FeedInEURPerWh[i]

		o.Load[i] = load
		o.GridImport[i] = gridImport
		o.GridExport[i] = gridExport
		o.BatterySoCPercent[i] = es.PVBattery.SoCPercent()
		o.EVSoCPercent[i] = es.EVBattery.SoCPercent()
		o.CostEUR[i] = gridImport * price
		o.RevenueEUR[i] = gridExport * feedIn
		o.LossesWh[i] = chargeLossWh + dischargeLossWh + evLossWh

		o.TotalBalanceEUR += o.RevenueEUR[i] - o.CostEUR[i]
		o.TotalLosses += o.LossesWh[i]
	}

	return o, nil
}

func (es *EnergySystem) checkLengths() error {
	h := es.Horizon
	fields := map[string][]float64{
		"PVForecastW":    es.PVForecastW,
		"LoadW":          es.LoadW,
		"PriceEURPerWh":  es.PriceEURPerWh,
		"FeedInEURPerWh": es.FeedInEURPerWh,
	}
	for name, v := range fields {
		if len(v) != h {
			return &ErrLengthMismatch{Field: name, Got: len(v), Want: h}
		}
	}
	if es.chargeVec != nil && len(es.chargeVec) != h {
		return &ErrLengthMismatch{Field: "chargeVec", Got: len(es.chargeVec), Want: h}
	}
	if es.dischargeVec != nil && len(es.dischargeVec) != h {
		return &ErrLengthMismatch{Field: "dischargeVec", Got: len(es.dischargeVec), Want: h}
	}
	if es.evCurrentsA != nil && len(es.evCurrentsA) != h {
		return &ErrLengthMismatch{Field: "evCurrentsA", Got: len(es.evCurrentsA), Want: h}
	}
	return nil
}
