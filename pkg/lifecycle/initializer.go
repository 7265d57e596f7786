package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/vapordeck/vapordeck/pkg/provider"
	"github.com/vapordeck/vapordeck/pkg/state"
)

// Initializer takes an instance from a validated request to a
// provisioned record. The persistence order is deliberate: the pending
// record is saved before the provider is called, so a crash or failure
// mid-provision leaves an "attempted, output absent" record behind
// rather than nothing. The record is never deleted on failure.
type Initializer struct {
	*core
}

// NewInitializer builds an Initializer from opts.
func NewInitializer(opts Options) (*Initializer, error) {
	c, err := newCore(opts, "initializer")
	if err != nil {
		return nil, err
	}
	return &Initializer{core: c}, nil
}

// Initialize creates or resumes the instance described by partial.
//
// A pending record for the same name is resumed: input is re-merged and
// provisioning is attempted again against the same name, so a failed
// first attempt never produces a duplicate. An already provisioned
// record is rejected; updates go through the Manager.
func (i *Initializer) Initialize(ctx context.Context, partial state.Partial) (st *state.InstanceState, err error) {
	const verb = VerbCreate
	started := time.Now()
	ctx, span := i.startSpan(ctx, verb, partial.Name)
	defer func() { endSpan(span, err) }()

	if partial.Name == "" {
		return nil, NewPermanentError("instance name is required", nil).WithVerb(string(verb))
	}

	existing, fp, err := i.loadExisting(ctx, partial.Name)
	if err != nil {
		return nil, err
	}
	if StatusOf(existing) == StatusProvisioned {
		return nil, NewConflictError("instance already provisioned, use update",
			fmt.Errorf("instance %s exists with provision output", partial.Name)).
			WithInstance(partial.Name).WithVerb(string(verb))
	}

	providerTag := partial.Provider
	if providerTag == "" && existing != nil {
		providerTag = existing.Provision.Provider
	}
	defaults, err := i.registry.Defaults(providerTag)
	if err != nil {
		return nil, err
	}

	built, err := i.builder.Build(existing, partial, defaults)
	if err != nil {
		return nil, err
	}
	if err := i.checkRecord(built); err != nil {
		return nil, err
	}
	if err := i.authorize(ctx, verb, built); err != nil {
		return nil, err
	}

	// Persist the pending record before touching the provider.
	pendingFP, err := i.store.Save(ctx, built, fp)
	if err != nil {
		return nil, classify(ctx, verb, built.Name, err)
	}
	i.record(ctx, Event{Instance: built.Name, Verb: verb, Provider: providerTag, Outcome: OutcomeStarted})

	prov, err := i.registry.Provisioner(providerTag, i.logger)
	if err != nil {
		return nil, err
	}

	var priorOutput provider.Document
	if existing != nil {
		priorOutput = existing.Provision.Output
	}
	res, err := prov.Provision(ctx, provider.ProvisionRequest{
		Name:        built.Name,
		Input:       built.Provision.Input,
		PriorOutput: priorOutput,
	})
	if err != nil {
		classified := classify(ctx, verb, built.Name, err)
		i.record(ctx, i.failureEvent(built.Name, verb, providerTag, classified))
		i.observe(verb, providerTag, classified, started)
		i.logger.Error().Err(err).Str("instance", built.Name).Msg("provision failed, pending record retained")
		return nil, classified
	}

	merged := i.builder.MergeOutput(built, res.Output)
	if _, err := i.store.Save(ctx, merged, pendingFP); err != nil {
		classified := classify(ctx, verb, built.Name, err)
		i.record(ctx, i.failureEvent(built.Name, verb, providerTag, classified))
		i.observe(verb, providerTag, classified, started)
		return nil, classified
	}

	i.record(ctx, Event{Instance: built.Name, Verb: verb, Provider: providerTag, Outcome: OutcomeSucceeded})
	i.observe(verb, providerTag, nil, started)
	i.logger.Info().Str("instance", built.Name).Str("provider", providerTag).Msg("instance provisioned")
	return merged, nil
}

func (c *core) failureEvent(name string, verb Verb, providerTag string, err error) Event {
	outcome := OutcomeFailed
	if IsInterrupted(err) {
		outcome = OutcomeInterrupted
	}
	return Event{Instance: name, Verb: verb, Provider: providerTag, Outcome: outcome, Error: err.Error()}
}
