package dummy

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vapordeck/vapordeck/pkg/provider"
)

func newBackend(t *testing.T) (provider.Provisioner, provider.Runner, provider.Registration) {
	t.Helper()
	reg := Registration()
	p, err := reg.NewProvisioner(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewProvisioner failed: %v", err)
	}
	r, err := reg.NewRunner(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	return p, r, reg
}

func provisionReq(name string) provider.ProvisionRequest {
	return provider.ProvisionRequest{
		Name: name,
		Input: provider.Document{
			"region":        "local",
			"zone":          "local-1",
			"instance_type": "GPU-SIM-1",
		},
	}
}

func TestProvisionIsDeterministic(t *testing.T) {
	p, _, _ := newBackend(t)
	ctx := context.Background()

	first, err := p.Provision(ctx, provisionReq("demo-1"))
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	second, err := p.Provision(ctx, provisionReq("demo-1"))
	if err != nil {
		t.Fatalf("second Provision failed: %v", err)
	}

	if first.Output["host"] != "demo-1.dummy.internal" {
		t.Errorf("unexpected host: %v", first.Output["host"])
	}
	if first.Output["server_id"] != second.Output["server_id"] {
		t.Errorf("expected stable server id, got %v then %v", first.Output["server_id"], second.Output["server_id"])
	}
}

func TestPowerTransitions(t *testing.T) {
	p, r, reg := newBackend(t)
	ctx := context.Background()

	if _, err := p.Provision(ctx, provisionReq("demo-1")); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	run := provider.RunnerRequest{Name: "demo-1"}
	if err := r.Stop(ctx, run); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if on, _ := Running(reg, "demo-1"); on {
		t.Error("expected machine to be off after Stop")
	}
	if err := r.Start(ctx, run); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if on, _ := Running(reg, "demo-1"); !on {
		t.Error("expected machine to be on after Start")
	}
	if err := r.Restart(ctx, run); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if on, _ := Running(reg, "demo-1"); !on {
		t.Error("expected machine to be on after Restart")
	}
}

func TestRunnerVerbsRequireMachine(t *testing.T) {
	_, r, _ := newBackend(t)
	ctx := context.Background()

	run := provider.RunnerRequest{Name: "ghost"}
	if err := r.Start(ctx, run); err == nil {
		t.Error("expected Start on an unknown machine to fail")
	}
	if err := r.Configure(ctx, run); err == nil {
		t.Error("expected Configure on an unknown machine to fail")
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	p, _, _ := newBackend(t)
	ctx := context.Background()

	if _, err := p.Provision(ctx, provisionReq("demo-1")); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if err := p.Destroy(ctx, provisionReq("demo-1")); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if err := p.Destroy(ctx, provisionReq("demo-1")); err != nil {
		t.Fatalf("second Destroy failed: %v", err)
	}
}

func TestRegistrationsAreIsolated(t *testing.T) {
	pA, _, _ := newBackend(t)
	_, rB, _ := newBackend(t)
	ctx := context.Background()

	if _, err := pA.Provision(ctx, provisionReq("demo-1")); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	// A machine provisioned in one inventory is invisible to another.
	if err := rB.Start(ctx, provider.RunnerRequest{Name: "demo-1"}); err == nil {
		t.Error("expected inventories of separate registrations to be isolated")
	}
}
