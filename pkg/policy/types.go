package policy

import (
	"time"

	"github.com/vapordeck/vapordeck/pkg/state"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for issues that should be reviewed but do not
	// block operations.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block operations.
	SeverityError Severity = "error"

	// SeverityCritical is for severe violations that block operations.
	SeverityCritical Severity = "critical"
)

// blocking reports whether a violation of this severity denies the
// operation.
func (s Severity) blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy is one Rego policy.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations that do not
	// carry their own.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`
}

// Input is the document handed to policy evaluation.
type Input struct {
	// Verb is the lifecycle verb being attempted.
	Verb string `json:"verb"`

	// Instance is the instance's state record.
	Instance *state.InstanceState `json:"instance"`

	// Context carries evaluation metadata.
	Context Context `json:"context"`
}

// Context carries metadata about the evaluation.
type Context struct {
	// Timestamp is when the evaluation occurred.
	Timestamp time.Time `json:"timestamp"`
}

// Violation is a single policy violation.
type Violation struct {
	// Policy is the name of the violated policy.
	Policy string `json:"policy"`

	// Instance is the instance name.
	Instance string `json:"instance,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result is the outcome of evaluating all policies for one verb.
type Result struct {
	// Allowed indicates if the operation may proceed.
	Allowed bool `json:"allowed"`

	// Violations lists blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists non-blocking violations.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedAt is when the evaluation occurred.
	EvaluatedAt time.Time `json:"evaluated_at"`
}
