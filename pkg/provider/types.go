package provider

import (
	"context"
	"fmt"
)

// Document is a free-form configuration or output document. Its shape
// is owned by the provider's schema, not by the engine.
type Document = map[string]any

// ProvisionRequest carries everything a Provisioner needs to act on an
// instance.
type ProvisionRequest struct {
	// Name is the instance name, unique within the state store.
	Name string

	// Input is the provider input document, already validated against
	// the provider's schema.
	Input Document

	// PriorOutput is the output of the previous successful provision,
	// or nil on first provision.
	PriorOutput Document
}

// ProvisionResult is the outcome of a successful provision.
type ProvisionResult struct {
	// Output is the full output document describing the provisioned
	// resources. It replaces any prior output wholesale.
	Output Document
}

// Provisioner manages the cloud-side resources backing an instance.
type Provisioner interface {
	// Provision creates or updates the instance's resources so they
	// match req.Input. It is expected to be idempotent: provisioning
	// an already-provisioned instance reconciles rather than fails.
	Provision(ctx context.Context, req ProvisionRequest) (*ProvisionResult, error)

	// Destroy releases all resources backing the instance. Destroying
	// an instance whose resources are already gone is not an error.
	Destroy(ctx context.Context, req ProvisionRequest) error
}

// RunnerRequest carries the state a Runner needs to control a machine.
type RunnerRequest struct {
	// Name is the instance name.
	Name string

	// ProvisionInput is the validated provider input document.
	ProvisionInput Document

	// ProvisionOutput is the output of the last successful provision.
	// Runner operations require a provisioned instance, so it is never
	// nil.
	ProvisionOutput Document

	// ConfigurationInput is the validated configurator input document,
	// or nil when the instance carries none.
	ConfigurationInput Document
}

// Runner controls a provisioned machine.
type Runner interface {
	// Start powers the machine on. Starting a running machine is not
	// an error.
	Start(ctx context.Context, req RunnerRequest) error

	// Stop powers the machine off. Stopping a stopped machine is not
	// an error.
	Stop(ctx context.Context, req RunnerRequest) error

	// Restart stops then starts the machine.
	Restart(ctx context.Context, req RunnerRequest) error

	// Configure applies the configurator input to the machine, for
	// example installing the streaming server and session settings.
	Configure(ctx context.Context, req RunnerRequest) error
}

// Error wraps a failure reported by a provider backend, tagged with
// the provider and the operation that failed.
type Error struct {
	// Provider is the provider tag.
	Provider string

	// Op is the operation that failed, such as "provision" or "stop".
	Op string

	// Retryable reports whether the same call may succeed later, for
	// example after a rate limit or a transient API outage.
	Retryable bool

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err as a permanent provider failure.
func NewError(provider, op string, err error) *Error {
	return &Error{Provider: provider, Op: op, Err: err}
}

// NewRetryableError wraps err as a transient provider failure.
func NewRetryableError(provider, op string, err error) *Error {
	return &Error{Provider: provider, Op: op, Retryable: true, Err: err}
}
