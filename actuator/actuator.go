// Package actuator drives the deferrable appliance a plan schedules,
// generalizing the teacher's Avalon miner remote-control protocol
// (standby/wake/work-mode over a line-oriented TCP command) into a
// generic start/stop actuator for any flexible load.
package actuator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/devskill-org/site-optimizer/optimizer"
)

// Sender writes a command over an already-dialed connection.
type Sender func(conn net.Conn) error

// Receiver reads and decodes a response from a connection.
type Receiver[T any] func(conn net.Conn) (T, error)

// command is the line-oriented request envelope the teacher's miners speak.
type command struct {
	Command string `json:"command"`
}

// Status is the appliance's reported run state.
type Status struct {
	Running     bool   `json:"running"`
	ElapsedSec  int64  `json:"elapsed_sec"`
	SystemState string `json:"system_state"`
}

// Host addresses one appliance actuator over TCP, mirroring AvalonQHost's
// Address/Port pair.
type Host struct {
	Address string
	Port    int
}

// Start switches the appliance on, mirroring AvalonQHost.WakeUp's
// timestamped "softon" command.
func (h *Host) Start(ctx context.Context) (string, error) {
	return send(ctx, h.Address, h.Port,
		func(conn net.Conn) error {
			_, err := fmt.Fprintf(conn, "applianceset|0,start,1: %d", time.Now().Unix())
			return err
		},
		readStringResponse,
	)
}

// Stop switches the appliance off, mirroring AvalonQHost.Standby's
// timestamped "softoff" command.
func (h *Host) Stop(ctx context.Context) (string, error) {
	return send(ctx, h.Address, h.Port,
		func(conn net.Conn) error {
			_, err := fmt.Fprintf(conn, "applianceset|0,stop,1: %d", time.Now().Unix())
			return err
		},
		readStringResponse,
	)
}

// FetchStatus requests the appliance's current run state.
func (h *Host) FetchStatus(ctx context.Context) (Status, error) {
	return send(ctx, h.Address, h.Port,
		func(conn net.Conn) error {
			return writeCommand("status", conn)
		},
		func(conn net.Conn) (Status, error) {
			var s Status
			if err := readJSONResponse(conn, &s); err != nil {
				return Status{}, err
			}
			return s, nil
		},
	)
}

// Executor applies an optimizer.Plan's appliance schedule to a real Host,
// starting it at its planned hour and stopping it once its duration has
// elapsed. A nil Host (or DryRun) computes the same decisions without
// ever dialing out, matching the teacher's dry-run guards in scheduler.go.
type Executor struct {
	Host   *Host
	DryRun bool
	Logger Logger
}

// Logger is a minimal subset of *log.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

// Apply starts or stops the appliance for the hour currently elapsed since
// planStart, given plan and the appliance's configured duration. It is a
// no-op when the plan carries no appliance gene.
func (e *Executor) Apply(ctx context.Context, plan optimizer.Plan, durationH int, elapsedHours int) error {
	if !plan.HasAppliance {
		return nil
	}

	shouldRun := elapsedHours >= plan.ApplianceStartHour && elapsedHours < plan.ApplianceStartHour+durationH

	if e.DryRun || e.Host == nil {
		if e.Logger != nil {
			e.Logger.Printf("[ACTUATOR] dry-run: appliance should_run=%v at hour %d (start=%d, duration=%d)",
				shouldRun, elapsedHours, plan.ApplianceStartHour, durationH)
		}
		return nil
	}

	if shouldRun {
		if _, err := e.Host.Start(ctx); err != nil {
			return fmt.Errorf("actuator: failed to start appliance: %w", err)
		}
		return nil
	}

	if _, err := e.Host.Stop(ctx); err != nil {
		return fmt.Errorf("actuator: failed to stop appliance: %w", err)
	}
	return nil
}

func send[T any](ctx context.Context, address string, port int, sender Sender, receiver Receiver[T]) (T, error) {
	var d net.Dialer
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", address, port))
	if err != nil {
		var zero T
		return zero, err
	}
	defer conn.Close()

	if err := sender(conn); err != nil {
		var zero T
		return zero, err
	}

	r, err := receiver(conn)
	if err != nil {
		var zero T
		return zero, err
	}

	return r, nil
}

func writeCommand(cmd string, conn net.Conn) error {
	enc := json.NewEncoder(conn)
	return enc.Encode(&command{Command: cmd})
}

func readStringResponse(conn net.Conn) (string, error) {
	r, err := io.ReadAll(conn)
	if err != nil {
		return "", err
	}
	return string(r), nil
}

func readJSONResponse(conn net.Conn, response any) error {
	dec := json.NewDecoder(conn)
	return dec.Decode(response)
}
