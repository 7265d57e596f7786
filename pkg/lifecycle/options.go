package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vapordeck/vapordeck/pkg/provider"
	"github.com/vapordeck/vapordeck/pkg/state"
	"github.com/vapordeck/vapordeck/pkg/store"
)

// Options wires the collaborators of the Initializer and the Manager.
type Options struct {
	// Store persists instance records.
	Store store.Store

	// Registry resolves provider tags to backends.
	Registry *provider.Registry

	// Parser validates records before they are persisted.
	Parser *state.Parser

	// Recorder journals lifecycle events. Optional.
	Recorder Recorder

	// Guard authorizes verbs. Optional.
	Guard Guard

	// Observer receives verb timings. Optional.
	Observer Observer

	// History reads back journaled events for status derivation.
	// Optional.
	History HistoryReader

	// Tracer opens spans around verb executions. Optional.
	Tracer Tracer

	// Logger is the parent logger.
	Logger zerolog.Logger
}

func (o Options) validate() error {
	if o.Store == nil {
		return fmt.Errorf("lifecycle requires a store")
	}
	if o.Registry == nil {
		return fmt.Errorf("lifecycle requires a provider registry")
	}
	if o.Parser == nil {
		return fmt.Errorf("lifecycle requires a parser")
	}
	return nil
}

// core holds the collaborators and helpers shared by the Initializer
// and the Manager.
type core struct {
	store    store.Store
	registry *provider.Registry
	parser   *state.Parser
	builder  *state.Builder
	recorder Recorder
	guard    Guard
	observer Observer
	history  HistoryReader
	tracer   Tracer
	logger   zerolog.Logger
}

func newCore(opts Options, component string) (*core, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &core{
		store:    opts.Store,
		registry: opts.Registry,
		parser:   opts.Parser,
		builder:  state.NewBuilder(),
		recorder: opts.Recorder,
		guard:    opts.Guard,
		observer: opts.Observer,
		history:  opts.History,
		tracer:   opts.Tracer,
		logger:   opts.Logger.With().Str("component", component).Logger(),
	}, nil
}

// loadExisting loads the record for name, mapping NotFound to a nil
// record so callers can branch on presence.
func (c *core) loadExisting(ctx context.Context, name string) (*state.InstanceState, store.Fingerprint, error) {
	st, fp, err := c.store.Load(ctx, name)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, store.NoPrior, nil
		}
		return nil, store.NoPrior, err
	}
	return st, fp, nil
}

// checkRecord round-trips the record through the parser so nothing
// invalid is ever persisted.
func (c *core) checkRecord(st *state.InstanceState) error {
	raw, err := c.parser.Serialize(st)
	if err != nil {
		return err
	}
	_, err = c.parser.Parse(raw)
	return err
}

// authorize consults the guard, when one is configured.
func (c *core) authorize(ctx context.Context, verb Verb, st *state.InstanceState) error {
	if c.guard == nil {
		return nil
	}
	if err := c.guard.Allow(ctx, verb, st); err != nil {
		return NewPermanentError("operation denied by policy", err).
			WithInstance(st.Name).WithVerb(string(verb))
	}
	return nil
}

// record journals an event, logging and swallowing journal failures.
func (c *core) record(ctx context.Context, ev Event) {
	if c.recorder == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	// Journal outcomes even when the operation's context was cancelled.
	ctx = context.WithoutCancel(ctx)
	if err := c.recorder.Record(ctx, ev); err != nil {
		c.logger.Warn().Err(err).
			Str("instance", ev.Instance).Str("verb", string(ev.Verb)).
			Msg("failed to journal lifecycle event")
	}
}

// startSpan opens a tracing span for the verb, when a tracer is
// configured. The returned span may be nil.
func (c *core) startSpan(ctx context.Context, verb Verb, name string) (context.Context, trace.Span) {
	if c.tracer == nil {
		return ctx, nil
	}
	return c.tracer.StartVerbSpan(ctx, string(verb), name)
}

// endSpan closes a span opened by startSpan, recording the verb's
// outcome on it.
func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// observe reports the verb timing, when an observer is configured.
func (c *core) observe(verb Verb, providerTag string, err error, started time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveVerb(string(verb), providerTag, err, time.Since(started))
}

// classify wraps a provider failure into a classified lifecycle error,
// honoring cancellation first: a cancelled context means nothing may be
// assumed about the provider-side outcome.
func classify(ctx context.Context, verb Verb, name string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return NewInterruptedError("operation cancelled", errors.Join(ctxErr, err)).
			WithInstance(name).WithVerb(string(verb))
	}

	var pe *provider.Error
	if errors.As(err, &pe) && pe.Retryable {
		return NewTransientError("provider call failed", err).
			WithInstance(name).WithVerb(string(verb))
	}
	if store.IsConflict(err) {
		return NewConflictError("state changed concurrently", err).
			WithInstance(name).WithVerb(string(verb))
	}
	return NewPermanentError("provider call failed", err).
		WithInstance(name).WithVerb(string(verb))
}
