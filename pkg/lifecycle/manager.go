package lifecycle

import (
	"context"
	"time"

	"github.com/vapordeck/vapordeck/pkg/provider"
	"github.com/vapordeck/vapordeck/pkg/state"
	"github.com/vapordeck/vapordeck/pkg/store"
)

// Manager executes lifecycle verbs against existing instances. Every
// verb follows the same shape: load the record, resolve the provider
// from the record's tag, call the backend, and persist with the
// fingerprint obtained at load time so a concurrent writer surfaces as
// a conflict instead of a lost update.
type Manager struct {
	*core
}

// NewManager builds a Manager from opts.
func NewManager(opts Options) (*Manager, error) {
	c, err := newCore(opts, "manager")
	if err != nil {
		return nil, err
	}
	return &Manager{core: c}, nil
}

// Status derives the lifecycle status of name: from the record's
// shape, refined by the journal's last event when a history reader is
// wired in.
func (m *Manager) Status(ctx context.Context, name string) (Status, error) {
	st, _, err := m.loadExisting(ctx, name)
	if err != nil {
		return StatusAbsent, err
	}

	var last *Event
	if m.history != nil {
		last, err = m.history.LastOutcome(ctx, name)
		if err != nil {
			m.logger.Warn().Err(err).Str("instance", name).Msg("failed to read journal for status")
			last = nil
		}
	}
	return DeriveStatus(st, last), nil
}

// Update re-merges partial into the instance's record and reconciles
// the provider side with the result. The record is only persisted
// after the provider call succeeds; a failed update leaves the
// last-known-consistent record untouched.
func (m *Manager) Update(ctx context.Context, name string, partial state.Partial) (st *state.InstanceState, err error) {
	const verb = VerbUpdate
	started := time.Now()
	ctx, span := m.startSpan(ctx, verb, name)
	defer func() { endSpan(span, err) }()

	existing, fp, err := m.load(ctx, verb, name)
	if err != nil {
		return nil, err
	}

	partial.Name = name
	defaults, err := m.registry.Defaults(existing.Provision.Provider)
	if err != nil {
		return nil, err
	}
	built, err := m.builder.Build(existing, partial, defaults)
	if err != nil {
		return nil, err
	}
	if err := m.checkRecord(built); err != nil {
		return nil, err
	}
	if err := m.authorize(ctx, verb, built); err != nil {
		return nil, err
	}

	providerTag := built.Provision.Provider
	prov, err := m.registry.Provisioner(providerTag, m.logger)
	if err != nil {
		return nil, err
	}

	m.record(ctx, Event{Instance: name, Verb: verb, Provider: providerTag, Outcome: OutcomeStarted})
	res, err := prov.Provision(ctx, provider.ProvisionRequest{
		Name:        name,
		Input:       built.Provision.Input,
		PriorOutput: existing.Provision.Output,
	})
	if err != nil {
		return nil, m.fail(ctx, verb, name, providerTag, started, err)
	}

	merged := m.builder.MergeOutput(built, res.Output)
	if _, err := m.store.Save(ctx, merged, fp); err != nil {
		return nil, m.fail(ctx, verb, name, providerTag, started, err)
	}

	m.record(ctx, Event{Instance: name, Verb: verb, Provider: providerTag, Outcome: OutcomeSucceeded})
	m.observe(verb, providerTag, nil, started)
	m.logger.Info().Str("instance", name).Msg("instance updated")
	return merged, nil
}

// Start powers the instance on.
func (m *Manager) Start(ctx context.Context, name string) error {
	return m.runnerVerb(ctx, VerbStart, name, func(ctx context.Context, r provider.Runner, req provider.RunnerRequest) error {
		return r.Start(ctx, req)
	})
}

// Stop powers the instance off.
func (m *Manager) Stop(ctx context.Context, name string) error {
	return m.runnerVerb(ctx, VerbStop, name, func(ctx context.Context, r provider.Runner, req provider.RunnerRequest) error {
		return r.Stop(ctx, req)
	})
}

// Restart stops then starts the instance.
func (m *Manager) Restart(ctx context.Context, name string) error {
	return m.runnerVerb(ctx, VerbRestart, name, func(ctx context.Context, r provider.Runner, req provider.RunnerRequest) error {
		return r.Restart(ctx, req)
	})
}

// ApplyConfiguration re-applies the configurator input to the machine.
func (m *Manager) ApplyConfiguration(ctx context.Context, name string) error {
	return m.runnerVerb(ctx, VerbConfigure, name, func(ctx context.Context, r provider.Runner, req provider.RunnerRequest) error {
		return r.Configure(ctx, req)
	})
}

// Destroy releases the instance's resources and deletes its record.
// The record is deleted only after the provider reports success; a
// failed destroy retains the record unchanged so the attempt can be
// repeated.
func (m *Manager) Destroy(ctx context.Context, name string) (err error) {
	const verb = VerbDestroy
	started := time.Now()
	ctx, span := m.startSpan(ctx, verb, name)
	defer func() { endSpan(span, err) }()

	existing, fp, err := m.load(ctx, verb, name)
	if err != nil {
		return err
	}
	if err := m.authorize(ctx, verb, existing); err != nil {
		return err
	}

	providerTag := existing.Provision.Provider
	prov, err := m.registry.Provisioner(providerTag, m.logger)
	if err != nil {
		return err
	}

	m.record(ctx, Event{Instance: name, Verb: verb, Provider: providerTag, Outcome: OutcomeStarted})
	if err := prov.Destroy(ctx, provider.ProvisionRequest{
		Name:        name,
		Input:       existing.Provision.Input,
		PriorOutput: existing.Provision.Output,
	}); err != nil {
		return m.fail(ctx, verb, name, providerTag, started, err)
	}

	if err := m.store.Delete(ctx, name, fp); err != nil {
		return m.fail(ctx, verb, name, providerTag, started, err)
	}

	m.record(ctx, Event{Instance: name, Verb: verb, Provider: providerTag, Outcome: OutcomeSucceeded})
	m.observe(verb, providerTag, nil, started)
	m.logger.Info().Str("instance", name).Msg("instance destroyed")
	return nil
}

// load fetches the record for name and checks the verb against its
// status. A missing record surfaces as the store's NotFoundError.
func (m *Manager) load(ctx context.Context, verb Verb, name string) (*state.InstanceState, store.Fingerprint, error) {
	st, fp, err := m.store.Load(ctx, name)
	if err != nil {
		return nil, store.NoPrior, err
	}
	if err := verb.checkAllowed(name, StatusOf(st)); err != nil {
		return nil, store.NoPrior, err
	}
	return st, fp, nil
}

// runnerVerb is the shared shape of the verbs that control the machine
// without changing its record.
func (m *Manager) runnerVerb(ctx context.Context, verb Verb, name string, call func(context.Context, provider.Runner, provider.RunnerRequest) error) (err error) {
	started := time.Now()
	ctx, span := m.startSpan(ctx, verb, name)
	defer func() { endSpan(span, err) }()

	st, _, err := m.load(ctx, verb, name)
	if err != nil {
		return err
	}
	if err := m.authorize(ctx, verb, st); err != nil {
		return err
	}

	providerTag := st.Provision.Provider
	runner, err := m.registry.Runner(providerTag, m.logger)
	if err != nil {
		return err
	}

	m.record(ctx, Event{Instance: name, Verb: verb, Provider: providerTag, Outcome: OutcomeStarted})
	if err := call(ctx, runner, provider.RunnerRequest{
		Name:               name,
		ProvisionInput:     st.Provision.Input,
		ProvisionOutput:    st.Provision.Output,
		ConfigurationInput: st.Configuration.Input,
	}); err != nil {
		return m.fail(ctx, verb, name, providerTag, started, err)
	}

	m.record(ctx, Event{Instance: name, Verb: verb, Provider: providerTag, Outcome: OutcomeSucceeded})
	m.observe(verb, providerTag, nil, started)
	m.logger.Info().Str("instance", name).Str("verb", string(verb)).Msg("lifecycle verb completed")
	return nil
}

// fail classifies err, journals the outcome and reports the timing.
func (m *Manager) fail(ctx context.Context, verb Verb, name, providerTag string, started time.Time, err error) error {
	classified := classify(ctx, verb, name, err)
	m.record(ctx, m.failureEvent(name, verb, providerTag, classified))
	m.observe(verb, providerTag, classified, started)
	m.logger.Error().Err(err).Str("instance", name).Str("verb", string(verb)).Msg("lifecycle verb failed")
	return classified
}
