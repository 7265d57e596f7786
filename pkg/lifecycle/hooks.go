package lifecycle

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/vapordeck/vapordeck/pkg/state"
)

// Outcome is the result of one verb execution, as journaled.
type Outcome string

const (
	OutcomeStarted     Outcome = "started"
	OutcomeSucceeded   Outcome = "succeeded"
	OutcomeFailed      Outcome = "failed"
	OutcomeInterrupted Outcome = "interrupted"
)

// Event is one journaled step of a lifecycle operation.
type Event struct {
	// Instance is the instance name.
	Instance string

	// Verb is the lifecycle verb.
	Verb Verb

	// Provider is the provider tag, when known.
	Provider string

	// Outcome is what happened.
	Outcome Outcome

	// Error carries the failure message for failed outcomes.
	Error string

	// Time is when the event happened.
	Time time.Time
}

// Recorder journals lifecycle events. Recording is best effort: a
// journal failure is logged, never allowed to fail the operation.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Guard authorizes a verb against a loaded record before any provider
// call is made. A non-nil error denies the operation.
type Guard interface {
	Allow(ctx context.Context, verb Verb, st *state.InstanceState) error
}

// Observer receives verb timings for metrics.
type Observer interface {
	ObserveVerb(verb, provider string, err error, elapsed time.Duration)
}

// HistoryReader reports the most recent journaled event for an
// instance, letting the Manager refine a derived status with what the
// journal remembers.
type HistoryReader interface {
	LastOutcome(ctx context.Context, instance string) (*Event, error)
}

// Tracer opens a span around each verb execution.
type Tracer interface {
	StartVerbSpan(ctx context.Context, verb, instance string) (context.Context, trace.Span)
}
