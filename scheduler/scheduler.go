// Package scheduler periodically re-runs the site optimizer against fresh
// forecasts and drives the deferrable appliance from the result,
// generalizing the teacher's MinerScheduler periodic-task runner from a
// fleet of mining rigs to one site's dispatch plan.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/devskill-org/site-optimizer/actuator"
	"github.com/devskill-org/site-optimizer/baseline"
	"github.com/devskill-org/site-optimizer/config"
	"github.com/devskill-org/site-optimizer/devicebus"
	"github.com/devskill-org/site-optimizer/evolve"
	"github.com/devskill-org/site-optimizer/forecast"
	"github.com/devskill-org/site-optimizer/genome"
	"github.com/devskill-org/site-optimizer/optimizer"
	"github.com/devskill-org/site-optimizer/statusserver"
	"github.com/devskill-org/site-optimizer/store"
)

// PeriodicTask runs a function on an interval, with an optional initial
// delay, until ctx is cancelled or stopChan is closed.
type PeriodicTask struct {
	name         string
	initialDelay time.Duration
	interval     time.Duration
	runFunc      func()
}

func (pt *PeriodicTask) run(ctx context.Context, stopChan <-chan struct{}, logger *log.Logger) {
	if pt.initialDelay > 0 {
		logger.Printf("[%s] waiting for initial delay: %v", pt.name, pt.initialDelay)
		select {
		case <-time.After(pt.initialDelay):
			pt.runFunc()
		case <-ctx.Done():
			logger.Printf("[%s] stopped during initial delay due to context cancellation", pt.name)
			return
		case <-stopChan:
			logger.Printf("[%s] stopped during initial delay due to stop signal", pt.name)
			return
		}
	} else {
		pt.runFunc()
	}

	ticker := time.NewTicker(pt.interval)
	defer ticker.Stop()

	logger.Printf("[%s] started with interval: %v", pt.name, pt.interval)

	for {
		select {
		case <-ticker.C:
			pt.runFunc()
		case <-ctx.Done():
			logger.Printf("[%s] stopped due to context cancellation", pt.name)
			return
		case <-stopChan:
			logger.Printf("[%s] stopped due to stop signal", pt.name)
			return
		}
	}
}

// Orchestrator owns one site's periodic re-optimization loop: fetch a
// forecast, optionally seed it from live telemetry, run the evolutionary
// search, drive the appliance, push live status, and persist the result.
type Orchestrator struct {
	cfg      *config.Config
	provider forecast.Provider
	store    *store.Store
	status   *statusserver.Server
	device   *devicebus.Reader
	exec     *actuator.Executor
	logger   *log.Logger

	mu         sync.RWMutex
	isRunning  bool
	stopChan   chan struct{}
	lastResult *optimizer.Result
}

// Status is the externally-visible state of the orchestrator.
type Status struct {
	IsRunning   bool
	HasResult   bool
	LastFitness float64
}

// New builds an Orchestrator wired from cfg: a suncalc-backed forecast
// provider, and the optional store/statusserver/devicebus/actuator
// components that cfg's zero-disables-the-feature fields control.
func New(cfg *config.Config, applianceHost *actuator.Host, logger *log.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = log.Default()
	}

	s, err := store.Open(cfg.PostgresConnString, logger)
	if err != nil {
		return nil, fmt.Errorf("scheduler: failed to open store: %w", err)
	}

	device, err := devicebus.Open(cfg.PlantModbusAddress, 1, cfg.ModbusTimeout)
	if err != nil {
		logger.Printf("[SCHEDULER] devicebus unavailable, continuing on forecast-only seed: %v", err)
		device = nil
	}

	return &Orchestrator{
		cfg: cfg,
		provider: &forecast.SuncalcProvider{
			Latitude:             cfg.Latitude,
			Longitude:            cfg.Longitude,
			PeakIrradianceWPerM2: 1000,
			PanelAreaM2:          20,
			ArrayEfficiency:      0.18,
			FlatLoadW:            500,
			FlatPriceEURPerWh:    0.0003,
			FlatFeedInEURPerWh:   0.0001,
		},
		store:    s,
		status:   statusserver.New(cfg.StatusServerPort),
		device:   device,
		exec:     &actuator.Executor{Host: applianceHost, DryRun: cfg.DryRun, Logger: logger},
		logger:   logger,
		stopChan: make(chan struct{}),
	}, nil
}

func getInitialDelay(now time.Time, interval time.Duration) time.Duration {
	top := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	delay := now.Sub(top)
	for delay > 0 {
		delay -= interval
	}
	return -delay
}

// Start begins the periodic re-optimization loop and blocks until ctx is
// cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.isRunning {
		o.mu.Unlock()
		return fmt.Errorf("scheduler: already running")
	}
	o.isRunning = true
	o.stopChan = make(chan struct{})
	o.mu.Unlock()

	if err := o.status.Start(); err != nil {
		o.logger.Printf("[SCHEDULER] failed to start status server: %v", err)
	}

	task := PeriodicTask{
		name:         "Reoptimize",
		initialDelay: getInitialDelay(time.Now(), o.cfg.ReoptimizeInterval),
		interval:     o.cfg.ReoptimizeInterval,
		runFunc:      func() { o.runOnce(ctx) },
	}
	task.run(ctx, o.stopChan, o.logger)

	o.stop()
	return nil
}

// Stop gracefully halts the loop and the status server.
func (o *Orchestrator) Stop() {
	o.stop()
}

func (o *Orchestrator) stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.isRunning {
		return
	}
	o.isRunning = false

	select {
	case <-o.stopChan:
	default:
		close(o.stopChan)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.status.Stop(ctx); err != nil {
		o.logger.Printf("[SCHEDULER] error stopping status server: %v", err)
	}
	if err := o.device.Close(); err != nil {
		o.logger.Printf("[SCHEDULER] error closing device bus: %v", err)
	}
	if err := o.store.Close(); err != nil {
		o.logger.Printf("[SCHEDULER] error closing store: %v", err)
	}
}

// GetStatus reports the orchestrator's current state.
func (o *Orchestrator) GetStatus() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st := Status{IsRunning: o.isRunning}
	if o.lastResult != nil {
		st.HasResult = true
		st.LastFitness = o.lastResult.Fitness
	}
	return st
}

// RunOnce performs exactly one forecast-fetch / optimize / actuate /
// publish / persist cycle, without entering the periodic loop. Useful for
// a single "-once" CLI invocation.
func (o *Orchestrator) RunOnce(ctx context.Context) {
	o.runOnce(ctx)
}

// runOnce performs a single forecast-fetch / optimize / actuate /
// publish / persist cycle. Errors are logged, never fatal: a failed run
// should not prevent the next scheduled attempt.
func (o *Orchestrator) runOnce(ctx context.Context) {
	now := time.Now()
	horizon, err := o.provider.Forecast(now, o.cfg.Horizon)
	if err != nil {
		o.logger.Printf("[SCHEDULER] forecast failed: %v", err)
		return
	}

	params := o.buildRunParams(horizon, now)

	result, err := optimizer.OptimizeSite(params)
	if err != nil {
		o.logger.Printf("[SCHEDULER] optimization failed: %v", err)
		return
	}

	o.mu.Lock()
	o.lastResult = &result
	o.mu.Unlock()

	o.status.PublishResult(result)

	if err := o.exec.Apply(ctx, result.Plan, o.cfg.ApplianceDurationH, 0); err != nil {
		o.logger.Printf("[SCHEDULER] appliance actuation failed: %v", err)
	}

	if o.store != nil {
		runID := now.UTC().Format(time.RFC3339)
		if err := o.store.SaveRun(ctx, runID, now, result); err != nil {
			o.logger.Printf("[SCHEDULER] failed to persist run: %v", err)
		}
	}

	o.logger.Printf("[SCHEDULER] run complete: fitness=%.4f balance=%.4f EUR", result.Fitness, result.Diagnostics.MeanBalanceEUR)
}

func (o *Orchestrator) buildRunParams(horizon forecast.Horizon, now time.Time) optimizer.RunParams {
	cfg := o.cfg

	pvSoC := 50.0
	evSoC := cfg.EVMinSoCPercent

	if o.device != nil {
		if snap, err := o.device.ReadSnapshot(); err != nil {
			o.logger.Printf("[SCHEDULER] live device read failed, using forecast-only seed: %v", err)
		} else {
			pvSoC = snap.BatterySoCPercent
			if snap.EVConnected {
				evSoC = snap.EVSoCPercent
			}
		}
	}

	ga := evolve.Config{
		Mu:             cfg.PopulationMu,
		Lambda:         cfg.PopulationLambda,
		CrossoverProb:  cfg.CrossoverProb,
		MutationProb:   cfg.MutationProb,
		Generations:    cfg.Generations,
		TournamentSize: cfg.TournamentSize,
		OnGeneration: func(stat evolve.GenStat) {
			o.status.PublishGeneration(stat)
		},
	}

	c := genome.NewCodec(cfg.Horizon, cfg.ApplianceDurationH > 0, cfg.Horizon-cfg.OptimizationHours, cfg.StartHour, cfg.EVChargeCurrentsA, cfg.ActionMagnitude)
	startSolution := baseline.BuildStartSolution(c, horizon.PriceEURPerWh, horizon.FeedInEURPerWh, horizon.PVForecastW, horizon.LoadW, baseline.BatteryParams{
		CapacityWh:          cfg.PVBatteryCapacityWh,
		MinSoCPercent:       cfg.PVBatteryMinSoCPercent,
		MaxSoCPercent:       100,
		StartSoCPercent:     pvSoC,
		MaxChargePowerW:     cfg.PVBatteryMaxChargePowerW,
		MaxDischargePowerW:  cfg.PVBatteryMaxDischargePowerW,
		ChargeEfficiency:    cfg.PVBatteryChargeEfficiency,
		DischargeEfficiency: cfg.PVBatteryDischargeEfficiency,
	})

	return optimizer.RunParams{
		Horizon:   cfg.Horizon,
		StartHour: cfg.StartHour,

		PVForecastW:    horizon.PVForecastW,
		LoadW:          horizon.LoadW,
		PriceEURPerWh:  horizon.PriceEURPerWh,
		FeedInEURPerWh: horizon.FeedInEURPerWh,

		PVBatteryCapacityWh:          cfg.PVBatteryCapacityWh,
		PVBatteryMinSoCPercent:       cfg.PVBatteryMinSoCPercent,
		PVBatteryStartSoCPercent:     pvSoC,
		PVBatteryMaxChargePowerW:     cfg.PVBatteryMaxChargePowerW,
		PVBatteryMaxDischargePowerW:  cfg.PVBatteryMaxDischargePowerW,
		PVBatteryChargeEfficiency:    cfg.PVBatteryChargeEfficiency,
		PVBatteryDischargeEfficiency: cfg.PVBatteryDischargeEfficiency,

		EVBatteryCapacityWh: cfg.EVBatteryCapacityWh,
		EVStartSoCPercent:   evSoC,
		EVMinSoCPercent:     cfg.EVMinSoCPercent,
		EVChargeEfficiency:  cfg.EVChargeEfficiency,
		EVChargeCurrentsA:   cfg.EVChargeCurrentsA,
		EVChargePowerW:      cfg.EVChargePowerW,
		OptimizationHours:   cfg.OptimizationHours,

		ApplianceConsumptionWh: cfg.ApplianceConsumptionWh,
		ApplianceDurationH:     cfg.ApplianceDurationH,

		InverterRatedPowerW: cfg.InverterRatedPowerW,

		BatteryResidualValueEURPerWh: cfg.BatteryResidualValueEURPerWh,
		WorstCase:                    cfg.WorstCase,

		ActionMagnitude: cfg.ActionMagnitude,

		GA:                    ga,
		InitialPopulationSize: cfg.InitialPopulationSize,
		StartSolution:         startSolution,

		Seed: now.UnixNano(),
	}
}
