// Package baseline produces a warm-start genome for the evolutionary loop
// by solving a discretized dynamic program over the stationary battery's
// state of charge, generalizing the teacher's MPCController.Optimize from
// a continuous kW control decision per hour into the genome's discrete
// battery-action gene.
package baseline

import (
	"math"

	"github.com/devskill-org/site-optimizer/genome"
)

// BatteryParams describes the stationary battery the DP plans against.
type BatteryParams struct {
	CapacityWh          float64
	MinSoCPercent       float64
	MaxSoCPercent       float64
	StartSoCPercent     float64
	MaxChargePowerW     float64
	MaxDischargePowerW  float64
	ChargeEfficiency    float64
	DischargeEfficiency float64
}

// socSteps is the DP's state discretization, matching the teacher's
// 200-step SoC grid in mpc.Optimize.
const socSteps = 200

// BuildStartSolution runs the DP over horizon hours of price/feed-in
// signals and returns a full-length genome consistent with c's layout: a
// battery-action gene per hour chosen by the DP, EV genes left at index 0
// (no charge — the evolutionary loop searches that region unaided), and
// an appliance gene (if present) left at its domain's earliest hour.
//
// Grounded on mpc.MPCController.Optimize's forward/backward DP shape
// (discretized SoC state, per-hour feasible-decision enumeration, profit
// accumulation, backward-trace reconstruction) adapted to the genome's
// discrete action alphabet in place of MPC's continuous kW decisions.
func BuildStartSolution(c *genome.Codec, priceEURPerWh, feedInEURPerWh, pvForecastW, loadW []float64, battery BatteryParams) []int {
	h := c.Layout.Horizon
	genes := make([]int, c.Length())

	if h == 0 || battery.CapacityWh <= 0 {
		return genes
	}

	actions := batteryActions(c.Layout.ActionMagnitude)
	socStep := (battery.MaxSoCPercent - battery.MinSoCPercent) / float64(socSteps)
	if socStep <= 0 {
		return genes
	}

	type dpState struct {
		profit   float64
		action   int
		prevIdx  int
	}

	dp := make([][]dpState, h+1)
	for t := range dp {
		dp[t] = make([]dpState, socSteps+1)
		for j := range dp[t] {
			dp[t][j].profit = math.Inf(-1)
		}
	}

	startIdx := socToIndex(battery.StartSoCPercent, battery.MinSoCPercent, socStep)
	startIdx = clampIdx(startIdx, socSteps)
	dp[0][startIdx].profit = 0

	for t := 0; t < h; t++ {
		for socIdx := 0; socIdx <= socSteps; socIdx++ {
			if math.IsInf(dp[t][socIdx].profit, -1) {
				continue
			}
			currentSoC := battery.MinSoCPercent + float64(socIdx)*socStep

			for _, action := range actions {
				powerW := actionPowerW(action, battery, c.Layout.ActionMagnitude)
				newSoC, feasible := applyAction(currentSoC, powerW, battery)
				if !feasible {
					continue
				}
				newIdx := clampIdx(socToIndex(newSoC, battery.MinSoCPercent, socStep), socSteps)

				netW := pvForecastW[t] - loadW[t] - powerW
				var profit float64
				if netW >= 0 {
					profit = netW * feedInEURPerWh[t]
				} else {
					profit = netW * priceEURPerWh[t] // netW negative -> cost
				}

				total := dp[t][socIdx].profit + profit
				if total > dp[t+1][newIdx].profit {
					dp[t+1][newIdx] = dpState{profit: total, action: action, prevIdx: socIdx}
				}
			}
		}
	}

	bestIdx, bestProfit := 0, math.Inf(-1)
	for socIdx := 0; socIdx <= socSteps; socIdx++ {
		if dp[h][socIdx].profit > bestProfit {
			bestProfit = dp[h][socIdx].profit
			bestIdx = socIdx
		}
	}

	path := make([]int, h)
	idx := bestIdx
	for t := h - 1; t >= 0; t-- {
		path[t] = dp[t+1][idx].action
		idx = dp[t+1][idx].prevIdx
	}

	copy(genes[:h], path)

	if c.Layout.HasAppliance {
		low, _ := c.ApplianceDomain()
		genes[c.Length()-1] = low
	}

	return genes
}

// batteryActions enumerates the codec's full battery gene alphabet:
// idle, full discharge (+1), and one charge level per magnitude step
// (-1 .. -magnitude), mirroring generateFeasibleDecisions' charge/discharge
// option sweep but over the genome's integer domain rather than kW.
func batteryActions(magnitude int) []int {
	if magnitude <= 0 {
		magnitude = 5
	}
	actions := make([]int, 0, magnitude+2)
	actions = append(actions, 0, 1)
	for i := 1; i <= magnitude; i++ {
		actions = append(actions, -i)
	}
	return actions
}

// actionPowerW maps a battery gene value onto a concrete charge/discharge
// power: negative genes charge at a fraction of MaxChargePowerW
// proportional to their magnitude (mirroring DecodeBattery's
// intensity-relative-to-the-strongest-charge-gene normalization, here
// normalized against the alphabet's own ceiling instead of the
// population's realized maximum), and gene +1 discharges at full rated
// power. Positive power means charging.
func actionPowerW(gene int, battery BatteryParams, magnitudeCeil int) float64 {
	if magnitudeCeil <= 0 {
		magnitudeCeil = 5
	}
	switch {
	case gene > 0:
		return -battery.MaxDischargePowerW
	case gene < 0:
		magnitude := float64(-gene)
		return battery.MaxChargePowerW * magnitude / float64(magnitudeCeil)
	default:
		return 0
	}
}

// applyAction steps the battery's SoC by one hour at the given power (Wh
// per hour, since this DP operates in hourly time slots) and reports
// whether the resulting SoC stays within bounds.
func applyAction(soc, powerW float64, battery BatteryParams) (float64, bool) {
	var deltaWh float64
	if powerW > 0 {
		deltaWh = powerW * battery.ChargeEfficiency
	} else {
		deltaWh = powerW / battery.DischargeEfficiency
	}
	newSoC := soc + deltaWh/battery.CapacityWh*100.0
	if newSoC < battery.MinSoCPercent-1e-9 || newSoC > battery.MaxSoCPercent+1e-9 {
		return 0, false
	}
	if newSoC < battery.MinSoCPercent {
		newSoC = battery.MinSoCPercent
	}
	if newSoC > battery.MaxSoCPercent {
		newSoC = battery.MaxSoCPercent
	}
	return newSoC, true
}

func socToIndex(soc, minSoC, step float64) int {
	return int(math.Round((soc - minSoC) / step))
}

func clampIdx(idx, max int) int {
	if idx < 0 {
		return 0
	}
	if idx > max {
		return max
	}
	return idx
}
