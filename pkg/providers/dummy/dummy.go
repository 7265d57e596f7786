// Package dummy implements an in-memory provider backend. It is fully
// functional: machines are provisioned, powered, and destroyed against
// a process-local inventory, which makes it the backend of choice for
// development and tests.
package dummy

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vapordeck/vapordeck/pkg/provider"
	"github.com/vapordeck/vapordeck/pkg/state"
)

// Tag is the provider tag instances reference.
const Tag = "dummy"

// Schema declares the provisioning documents the backend accepts and
// produces.
const Schema = `
#Input: {
	region:        string
	zone:          string
	instance_type: string
	disk_size_gb?: int & >=10
}

#Output: {
	host:      string
	server_id: string
	power:     "on" | "off"
}
`

// Registration returns the backend's registry entry.
func Registration() provider.Registration {
	inv := newInventory()
	return provider.Registration{
		Tag:    Tag,
		Schema: Schema,
		Defaults: state.Defaults{
			Configurator: "ansible",
			ProvisionInput: map[string]any{
				"region":        "local",
				"zone":          "local-1",
				"instance_type": "GPU-SIM-1",
			},
		},
		NewProvisioner: func(logger zerolog.Logger) (provider.Provisioner, error) {
			return &backend{inv: inv, logger: logger}, nil
		},
		NewRunner: func(logger zerolog.Logger) (provider.Runner, error) {
			return &backend{inv: inv, logger: logger}, nil
		},
	}
}

// machine is one provisioned instance in the inventory.
type machine struct {
	input   provider.Document
	running bool
}

// inventory is the process-local set of machines, shared between the
// provisioner and the runner of one registration.
type inventory struct {
	mu       sync.Mutex
	machines map[string]*machine
}

func newInventory() *inventory {
	return &inventory{machines: map[string]*machine{}}
}

type backend struct {
	inv    *inventory
	logger zerolog.Logger
}

var (
	_ provider.Provisioner = (*backend)(nil)
	_ provider.Runner      = (*backend)(nil)
)

// Provision creates or reconciles the machine. Output is deterministic
// so repeated provisions of the same input converge.
func (b *backend) Provision(ctx context.Context, req provider.ProvisionRequest) (*provider.ProvisionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.inv.mu.Lock()
	defer b.inv.mu.Unlock()

	m, ok := b.inv.machines[req.Name]
	if !ok {
		m = &machine{running: true}
		b.inv.machines[req.Name] = m
		b.logger.Info().Str("instance", req.Name).Msg("created machine")
	}
	m.input = req.Input

	power := "off"
	if m.running {
		power = "on"
	}
	return &provider.ProvisionResult{
		Output: provider.Document{
			"host":      fmt.Sprintf("%s.dummy.internal", req.Name),
			"server_id": fmt.Sprintf("dummy-%s", req.Name),
			"power":     power,
		},
	}, nil
}

// Destroy removes the machine. Destroying an unknown machine is not an
// error.
func (b *backend) Destroy(ctx context.Context, req provider.ProvisionRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.inv.mu.Lock()
	defer b.inv.mu.Unlock()

	delete(b.inv.machines, req.Name)
	b.logger.Info().Str("instance", req.Name).Msg("destroyed machine")
	return nil
}

func (b *backend) Start(ctx context.Context, req provider.RunnerRequest) error {
	return b.setPower(ctx, req.Name, true)
}

func (b *backend) Stop(ctx context.Context, req provider.RunnerRequest) error {
	return b.setPower(ctx, req.Name, false)
}

func (b *backend) Restart(ctx context.Context, req provider.RunnerRequest) error {
	if err := b.setPower(ctx, req.Name, false); err != nil {
		return err
	}
	return b.setPower(ctx, req.Name, true)
}

// Configure records the configuration input; the dummy backend has no
// machine to push it to.
func (b *backend) Configure(ctx context.Context, req provider.RunnerRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.inv.mu.Lock()
	defer b.inv.mu.Unlock()

	if _, ok := b.inv.machines[req.Name]; !ok {
		return provider.NewError(Tag, "configure", fmt.Errorf("machine %s not found", req.Name))
	}
	b.logger.Info().Str("instance", req.Name).Msg("applied configuration")
	return nil
}

func (b *backend) setPower(ctx context.Context, name string, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.inv.mu.Lock()
	defer b.inv.mu.Unlock()

	m, ok := b.inv.machines[name]
	if !ok {
		op := "stop"
		if on {
			op = "start"
		}
		return provider.NewError(Tag, op, fmt.Errorf("machine %s not found", name))
	}
	m.running = on
	return nil
}

// Running reports the power state of a machine, for tests and the dev
// CLI.
func Running(reg provider.Registration, name string) (bool, error) {
	p, err := reg.NewProvisioner(zerolog.Nop())
	if err != nil {
		return false, err
	}
	b, ok := p.(*backend)
	if !ok {
		return false, fmt.Errorf("registration is not a dummy backend")
	}

	b.inv.mu.Lock()
	defer b.inv.mu.Unlock()
	m, ok := b.inv.machines[name]
	if !ok {
		return false, fmt.Errorf("machine %s not found", name)
	}
	return m.running, nil
}
