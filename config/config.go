// Package config loads and validates the run-level and ambient
// configuration for the site optimizer, mirroring the teacher's
// JSON-file-plus-defaults configuration style.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Config holds everything a scheduled re-optimization run needs: the
// optimization-engine parameters, the site's physical parameters, and the
// ambient service settings (logging, persistence, status endpoint, live
// device bus).
type Config struct {
	// Horizon settings
	Horizon           int  `json:"horizon"`            // H, hours
	StartHour         int  `json:"start_hour"`         // 0-23
	OptimizationHours int  `json:"optimization_hours"` // leading hours the EV gene stays live; the rest form the locked tail
	WorstCase         bool `json:"worst_case"`         // negate the monetary term, so the search seeks the lowest-profit plan

	ReoptimizeInterval time.Duration `json:"reoptimize_interval"` // how often the scheduler re-runs OptimizeSite
	DryRun             bool          `json:"dry_run"`             // compute a plan but never drive the actuator

	// GA parameters
	PopulationMu          int     `json:"population_mu"`
	PopulationLambda      int     `json:"population_lambda"`
	CrossoverProb         float64 `json:"crossover_prob"`
	MutationProb          float64 `json:"mutation_prob"`
	Generations           int     `json:"generations"`
	TournamentSize        int     `json:"tournament_size"`
	InitialPopulationSize int     `json:"initial_population_size"`
	ActionMagnitude       int     `json:"action_magnitude"`

	// Stationary battery
	PVBatteryCapacityWh          float64 `json:"pv_battery_capacity_wh"`
	PVBatteryMinSoCPercent       float64 `json:"pv_battery_min_soc_percent"`
	PVBatteryMaxChargePowerW     float64 `json:"pv_battery_max_charge_power_w"`
	PVBatteryMaxDischargePowerW  float64 `json:"pv_battery_max_discharge_power_w"`
	PVBatteryChargeEfficiency    float64 `json:"pv_battery_charge_efficiency"`
	PVBatteryDischargeEfficiency float64 `json:"pv_battery_discharge_efficiency"`
	BatteryResidualValueEURPerWh float64 `json:"battery_residual_value_eur_per_wh"`

	// EV battery
	EVBatteryCapacityWh float64   `json:"ev_battery_capacity_wh"`
	EVMinSoCPercent     float64   `json:"ev_min_soc_percent"`
	EVChargeEfficiency  float64   `json:"ev_charge_efficiency"`
	EVChargeCurrentsA   []float64 `json:"ev_charge_currents_a"`
	EVChargePowerW      float64   `json:"ev_charge_power_w"`

	// Deferrable appliance
	ApplianceConsumptionWh float64 `json:"appliance_consumption_wh"`
	ApplianceDurationH     int     `json:"appliance_duration_h"` // 0 disables the appliance gene

	InverterRatedPowerW float64 `json:"inverter_rated_power_w"`

	// Forecast / location
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	UserAgent string  `json:"user_agent"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	// Persistence
	PostgresConnString string `json:"postgres_conn_string"` // empty disables store

	// Live status endpoint
	StatusServerPort int `json:"status_server_port"` // 0 disables statusserver

	// Live device bus
	PlantModbusAddress string        `json:"plant_modbus_address"` // empty disables devicebus
	ModbusTimeout      time.Duration `json:"modbus_timeout"`
}

// DefaultConfig returns a configuration with the spec's default GA
// parameters and a generic residential site profile.
func DefaultConfig() *Config {
	return &Config{
		Horizon:           48,
		StartHour:         0,
		OptimizationHours: 48,
		WorstCase:         false,

		ReoptimizeInterval: 15 * time.Minute,
		DryRun:             false,

		PopulationMu:          100,
		PopulationLambda:      150,
		CrossoverProb:         0.5,
		MutationProb:          0.5,
		Generations:           400,
		TournamentSize:        3,
		InitialPopulationSize: 300,
		ActionMagnitude:       5,

		PVBatteryCapacityWh:          10000,
		PVBatteryMinSoCPercent:       10,
		PVBatteryMaxChargePowerW:     5000,
		PVBatteryMaxDischargePowerW:  5000,
		PVBatteryChargeEfficiency:    0.95,
		PVBatteryDischargeEfficiency: 0.95,
		BatteryResidualValueEURPerWh: 0.0002,

		EVBatteryCapacityWh: 50000,
		EVMinSoCPercent:     80,
		EVChargeEfficiency:  0.9,
		EVChargeCurrentsA:   []float64{0, 1400, 2800, 4200, 5600, 7400, 9200, 11000},
		EVChargePowerW:      11000,

		ApplianceConsumptionWh: 0,
		ApplianceDurationH:     0,

		InverterRatedPowerW: 10000,

		Latitude:  56.9496, // Riga, Latvia
		Longitude: 24.1052,
		UserAgent: "site-optimizer/1.0 (ops@example.com)",

		LogLevel:  "info",
		LogFormat: "text",

		PostgresConnString: "",
		StatusServerPort:   0,

		PlantModbusAddress: "",
		ModbusTimeout:      5 * time.Second,
	}
}

// LoadConfig loads configuration from a JSON file.
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader, starting
// from the defaults so a partial JSON document only overrides what it sets.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	config := DefaultConfig()

	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config JSON: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to a JSON file.
func (c *Config) SaveConfig(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	return c.SaveConfigToWriter(file)
}

// SaveConfigToWriter saves the configuration to an io.Writer.
func (c *Config) SaveConfigToWriter(writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config JSON: %w", err)
	}

	return nil
}

// Validate checks the configuration for internally-consistent values.
func (c *Config) Validate() error {
	if c.Horizon <= 0 {
		return fmt.Errorf("horizon must be greater than 0, got: %d", c.Horizon)
	}
	if c.StartHour < 0 || c.StartHour > 23 {
		return fmt.Errorf("start_hour must be between 0 and 23, got: %d", c.StartHour)
	}
	if c.OptimizationHours < 0 || c.OptimizationHours > c.Horizon {
		return fmt.Errorf("optimization_hours must be between 0 and horizon (%d), got: %d", c.Horizon, c.OptimizationHours)
	}
	if c.ReoptimizeInterval <= 0 {
		return fmt.Errorf("reoptimize_interval must be greater than 0, got: %s", c.ReoptimizeInterval)
	}

	if c.PopulationMu <= 0 {
		return fmt.Errorf("population_mu must be greater than 0, got: %d", c.PopulationMu)
	}
	if c.PopulationLambda <= 0 {
		return fmt.Errorf("population_lambda must be greater than 0, got: %d", c.PopulationLambda)
	}
	if c.CrossoverProb < 0 || c.CrossoverProb > 1 {
		return fmt.Errorf("crossover_prob must be between 0 and 1, got: %f", c.CrossoverProb)
	}
	if c.MutationProb < 0 || c.MutationProb > 1 {
		return fmt.Errorf("mutation_prob must be between 0 and 1, got: %f", c.MutationProb)
	}
	if c.CrossoverProb+c.MutationProb > 1 {
		return fmt.Errorf("crossover_prob + mutation_prob must not exceed 1, got: %f", c.CrossoverProb+c.MutationProb)
	}
	if c.Generations <= 0 {
		return fmt.Errorf("generations must be greater than 0, got: %d", c.Generations)
	}
	if c.TournamentSize <= 0 {
		return fmt.Errorf("tournament_size must be greater than 0, got: %d", c.TournamentSize)
	}
	if c.InitialPopulationSize < c.PopulationMu {
		return fmt.Errorf("initial_population_size (%d) must be at least population_mu (%d)", c.InitialPopulationSize, c.PopulationMu)
	}
	if c.ActionMagnitude <= 0 {
		return fmt.Errorf("action_magnitude must be greater than 0, got: %d", c.ActionMagnitude)
	}

	if c.PVBatteryCapacityWh < 0 {
		return fmt.Errorf("pv_battery_capacity_wh must be non-negative, got: %f", c.PVBatteryCapacityWh)
	}
	if c.PVBatteryMinSoCPercent < 0 || c.PVBatteryMinSoCPercent > 100 {
		return fmt.Errorf("pv_battery_min_soc_percent must be in [0,100], got: %f", c.PVBatteryMinSoCPercent)
	}
	if c.PVBatteryChargeEfficiency <= 0 || c.PVBatteryChargeEfficiency > 1 {
		return fmt.Errorf("pv_battery_charge_efficiency must be in (0,1], got: %f", c.PVBatteryChargeEfficiency)
	}
	if c.PVBatteryDischargeEfficiency <= 0 || c.PVBatteryDischargeEfficiency > 1 {
		return fmt.Errorf("pv_battery_discharge_efficiency must be in (0,1], got: %f", c.PVBatteryDischargeEfficiency)
	}

	if c.EVBatteryCapacityWh < 0 {
		return fmt.Errorf("ev_battery_capacity_wh must be non-negative, got: %f", c.EVBatteryCapacityWh)
	}
	if c.EVMinSoCPercent < 0 || c.EVMinSoCPercent > 100 {
		return fmt.Errorf("ev_min_soc_percent must be between 0 and 100, got: %f", c.EVMinSoCPercent)
	}
	if c.EVChargeEfficiency <= 0 || c.EVChargeEfficiency > 1 {
		return fmt.Errorf("ev_charge_efficiency must be in (0,1], got: %f", c.EVChargeEfficiency)
	}
	if len(c.EVChargeCurrentsA) == 0 {
		return fmt.Errorf("ev_charge_currents_a must not be empty")
	}
	if c.EVChargeCurrentsA[0] != 0 {
		return fmt.Errorf("ev_charge_currents_a[0] must be 0 (no charge), got: %f", c.EVChargeCurrentsA[0])
	}

	if c.ApplianceDurationH < 0 {
		return fmt.Errorf("appliance_duration_h must be non-negative, got: %d", c.ApplianceDurationH)
	}

	if c.InverterRatedPowerW <= 0 {
		return fmt.Errorf("inverter_rated_power_w must be greater than 0, got: %f", c.InverterRatedPowerW)
	}

	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got: %f", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got: %f", c.Longitude)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent cannot be empty")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level: %s, must be one of: debug, info, warn, error", c.LogLevel)
	}
	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("invalid log_format: %s, must be one of: text, json", c.LogFormat)
	}

	if c.StatusServerPort < 0 || c.StatusServerPort > 65535 {
		return fmt.Errorf("status_server_port must be between 0 and 65535, got: %d", c.StatusServerPort)
	}
	if c.ModbusTimeout < 0 {
		return fmt.Errorf("modbus_timeout must be non-negative, got: %s", c.ModbusTimeout)
	}

	return nil
}

// MarshalJSON implements custom JSON marshaling to render durations as
// human-readable strings.
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		*Alias
		ReoptimizeInterval string `json:"reoptimize_interval"`
		ModbusTimeout      string `json:"modbus_timeout"`
	}{
		Alias:              (*Alias)(c),
		ReoptimizeInterval: c.ReoptimizeInterval.String(),
		ModbusTimeout:      c.ModbusTimeout.String(),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling to parse duration
// strings back into time.Duration.
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		*Alias
		ReoptimizeInterval string `json:"reoptimize_interval"`
		ModbusTimeout      string `json:"modbus_timeout"`
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if aux.ReoptimizeInterval != "" {
		if c.ReoptimizeInterval, err = time.ParseDuration(aux.ReoptimizeInterval); err != nil {
			return fmt.Errorf("invalid reoptimize_interval: %w", err)
		}
	}
	if aux.ModbusTimeout != "" {
		if c.ModbusTimeout, err = time.ParseDuration(aux.ModbusTimeout); err != nil {
			return fmt.Errorf("invalid modbus_timeout: %w", err)
		}
	}

	return nil
}

// String returns a pretty-printed JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
