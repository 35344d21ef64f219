// Package main provides the site dispatch-plan optimizer's entry point and
// CLI interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/devskill-org/site-optimizer/actuator"
	"github.com/devskill-org/site-optimizer/config"
	"github.com/devskill-org/site-optimizer/scheduler"
)

func main() {
	var (
		configFile    = flag.String("config", "config.json", "Configuration file path")
		help          = flag.Bool("help", false, "Show help message")
		once          = flag.Bool("once", false, "Run a single optimization and print the result, without starting the scheduler")
		applianceAddr = flag.String("appliance", "", "host:port of the deferrable appliance actuator (overrides config)")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		return
	}

	var applianceHost *actuator.Host
	if *applianceAddr != "" {
		host, port, err := splitHostPort(*applianceAddr)
		if err != nil {
			fmt.Println("Error parsing -appliance:", err)
			return
		}
		applianceHost = &actuator.Host{Address: host, Port: port}
	}

	if *once {
		runOnce(cfg, applianceHost)
		return
	}

	fmt.Printf("Starting site optimizer with the following configuration:\n")
	fmt.Printf("  Horizon: %d hours\n", cfg.Horizon)
	fmt.Printf("  Reoptimize interval: %s\n", cfg.ReoptimizeInterval)
	fmt.Printf("  Population: mu=%d lambda=%d generations=%d\n", cfg.PopulationMu, cfg.PopulationLambda, cfg.Generations)
	if cfg.DryRun {
		fmt.Printf("  Mode: DRY-RUN (actuation will be simulated only)\n")
	}
	fmt.Println()

	logger := log.New(os.Stdout, "[SITE-OPTIMIZER] ", log.LstdFlags)

	orch, err := scheduler.New(cfg, applianceHost, logger)
	if err != nil {
		logger.Printf("Failed to build orchestrator: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := orch.Start(ctx); err != nil {
			if err != context.Canceled {
				logger.Printf("Orchestrator error: %v", err)
			}
		}
	}()

	logger.Printf("Orchestrator started. Press Ctrl+C to stop...")

	<-sigChan
	logger.Printf("Shutdown signal received, stopping orchestrator...")

	cancel()
	orch.Stop()

	logger.Printf("Orchestrator stopped successfully")
}

// runOnce runs exactly one optimization against a live forecast and prints
// the best fitness found, without entering the periodic loop.
func runOnce(cfg *config.Config, applianceHost *actuator.Host) {
	logger := log.New(os.Stdout, "[SITE-OPTIMIZER] ", log.LstdFlags)

	orch, err := scheduler.New(cfg, applianceHost, logger)
	if err != nil {
		logger.Printf("Failed to build orchestrator: %v", err)
		return
	}
	defer orch.Stop()

	orch.RunOnce(context.Background())

	status := orch.GetStatus()
	if !status.HasResult {
		fmt.Println("No result was produced.")
		return
	}

	fmt.Println("\n========================================")
	fmt.Println("OPTIMIZATION RESULT")
	fmt.Println("========================================")
	fmt.Printf("Fitness: %.4f\n", status.LastFitness)
	fmt.Printf("Run at:  %s\n", time.Now().Format("2006-01-02 15:04"))
	fmt.Println("========================================")
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, port, nil
}

func showHelp() {
	fmt.Println("Site Optimizer - minimize grid cost for a PV/battery/EV site over a rolling horizon")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Periodically searches dispatch plans for a site with solar generation, a stationary")
	fmt.Println("  battery, an optional EV charger, and an optional deferrable appliance, using an")
	fmt.Println("  evolutionary search over a simulated energy balance. Forecasts are derived from solar")
	fmt.Println("  geometry; live plant telemetry can seed a run's starting state of charge when a")
	fmt.Println("  Modbus-addressable controller is configured.")
	fmt.Println()
	fmt.Println("  Key Features:")
	fmt.Println("  - Solar forecast via sun position")
	fmt.Println("  - Battery/EV/appliance dispatch optimization")
	fmt.Println("  - Live plant state seeding via Modbus")
	fmt.Println("  - Deferrable appliance actuation")
	fmt.Println("  - Live status dashboard over HTTP/WebSocket")
	fmt.Println("  - Run history persisted to Postgres")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  site-optimizer [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Basic usage with default settings")
	fmt.Println("  site-optimizer")
	fmt.Println()
	fmt.Println("  # Custom configuration")
	fmt.Println("  site-optimizer --config=config.json")
	fmt.Println()
	fmt.Println("  # Run a single optimization and print the result")
	fmt.Println("  site-optimizer -once")
	fmt.Println()
	fmt.Println("  # Show this help")
	fmt.Println("  site-optimizer -help")
}
