package actuator

import (
	"context"
	"testing"

	"github.com/devskill-org/site-optimizer/optimizer"
)

func TestApplyNoopWhenPlanHasNoAppliance(t *testing.T) {
	e := &Executor{DryRun: true}
	plan := optimizer.Plan{HasAppliance: false}
	if err := e.Apply(context.Background(), plan, 3, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyDryRunNeverDialsOut(t *testing.T) {
	e := &Executor{DryRun: true, Host: &Host{Address: "192.0.2.1", Port: 9}}
	plan := optimizer.Plan{HasAppliance: true, ApplianceStartHour: 2}
	if err := e.Apply(context.Background(), plan, 3, 2); err != nil {
		t.Fatalf("unexpected error in dry-run mode: %v", err)
	}
}

func TestApplyWithNilHostIsNoop(t *testing.T) {
	e := &Executor{}
	plan := optimizer.Plan{HasAppliance: true, ApplianceStartHour: 1}
	if err := e.Apply(context.Background(), plan, 2, 1); err != nil {
		t.Fatalf("unexpected error with nil host: %v", err)
	}
}

func TestApplyReturnsErrorWhenHostUnreachable(t *testing.T) {
	e := &Executor{Host: &Host{Address: "192.0.2.1", Port: 1}}
	plan := optimizer.Plan{HasAppliance: true, ApplianceStartHour: 0}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := e.Apply(ctx, plan, 2, 0); err == nil {
		t.Fatal("expected an error dialing an unreachable/cancelled host")
	}
}
