package commands

import (
	"context"
	"fmt"

	"github.com/vapordeck/vapordeck/pkg/config"
	"github.com/vapordeck/vapordeck/pkg/journal"
	"github.com/vapordeck/vapordeck/pkg/lifecycle"
	"github.com/vapordeck/vapordeck/pkg/policy"
	"github.com/vapordeck/vapordeck/pkg/provider"
	"github.com/vapordeck/vapordeck/pkg/providers/dummy"
	"github.com/vapordeck/vapordeck/pkg/providers/hcloud"
	"github.com/vapordeck/vapordeck/pkg/providers/scaleway"
	"github.com/vapordeck/vapordeck/pkg/state"
	"github.com/vapordeck/vapordeck/pkg/store"
	"github.com/vapordeck/vapordeck/pkg/telemetry"
)

// ansibleConfiguratorSchema is the shared configurator schema. The
// configurator tag selects how a provisioned machine is set up for
// streaming; its input rides along in the instance record.
const ansibleConfiguratorSchema = `
#Input: {
	keyboard_layout?: string
	auto_stop?: {
		enabled:         bool
		timeout_minutes: int & >0
	}
	streaming_server?: "sunshine" | "wolf"
	protected?:        bool
}
`

// app bundles the wired application for one command invocation.
type app struct {
	cfg         *config.Config
	tel         *telemetry.Telemetry
	registry    *provider.Registry
	parser      *state.Parser
	store       store.Store
	journal     *journal.Journal
	initializer *lifecycle.Initializer
	manager     *lifecycle.Manager
}

// newApp wires configuration, telemetry, providers, storage, the
// journal, the policy guard, and the lifecycle engine.
func newApp(ctx context.Context, version string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(cfg.Telemetry(version))
	if err != nil {
		return nil, err
	}
	logger := tel.Logger.Zerolog()

	registry := provider.NewRegistry()
	for _, reg := range []provider.Registration{
		dummy.Registration(),
		scaleway.Registration(),
		hcloud.Registration(),
	} {
		if err := registry.Register(reg); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterConfigurator(provider.ConfiguratorRegistration{
		Tag:    "ansible",
		Schema: ansibleConfiguratorSchema,
	}); err != nil {
		return nil, err
	}

	parser := state.NewParser(registry.Schemas())

	st, err := config.OpenStore(ctx, cfg, parser, logger)
	if err != nil {
		return nil, err
	}

	jnl, err := journal.New(cfg.Journal())
	if err != nil {
		return nil, err
	}
	if err := jnl.Init(ctx); err != nil {
		return nil, err
	}

	guard, err := policy.NewEngine(logger)
	if err != nil {
		jnl.Close()
		return nil, err
	}
	if len(cfg.PolicyDirs) > 0 {
		if err := guard.LoadPolicies(ctx, cfg.PolicyDirs); err != nil {
			jnl.Close()
			return nil, err
		}
	}

	opts := lifecycle.Options{
		Store:    st,
		Registry: registry,
		Parser:   parser,
		Recorder: jnl,
		Guard:    guard,
		Observer: tel.Metrics,
		History:  jnl,
		Tracer:   tel.Tracer,
		Logger:   logger,
	}
	initializer, err := lifecycle.NewInitializer(opts)
	if err != nil {
		jnl.Close()
		return nil, err
	}
	manager, err := lifecycle.NewManager(opts)
	if err != nil {
		jnl.Close()
		return nil, err
	}

	if err := tel.StartMetricsServer(); err != nil {
		jnl.Close()
		return nil, err
	}

	return &app{
		cfg:         cfg,
		tel:         tel,
		registry:    registry,
		parser:      parser,
		store:       st,
		journal:     jnl,
		initializer: initializer,
		manager:     manager,
	}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.journal.Close(); err != nil {
		a.tel.Logger.WithError(err).Warn("failed to close journal")
	}
	if err := a.tel.Shutdown(ctx); err != nil {
		a.tel.Logger.WithError(err).Warn("failed to shut down telemetry")
	}
}

// withApp wires the application, runs fn, and tears down afterwards.
func withApp(ctx context.Context, version string, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(ctx, version)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.close(context.WithoutCancel(ctx))
	return fn(a.tel.WithContext(ctx), a)
}
