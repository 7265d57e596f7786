package lifecycle

import (
	"fmt"

	"github.com/vapordeck/vapordeck/pkg/state"
)

// Status is the position of an instance in its lifecycle, derived from
// its state record. Status is never persisted: the record is the only
// durable truth, and the record's shape determines the status.
type Status string

const (
	// StatusAbsent means no record exists for the name.
	StatusAbsent Status = "absent"

	// StatusPending means a record exists but carries no provision
	// output: a provision was attempted and has not yet succeeded.
	StatusPending Status = "pending"

	// StatusProvisioned means the record carries provision output. The
	// machine exists; whether it is running is the provider's to know.
	StatusProvisioned Status = "provisioned"

	// StatusDestroyed means no record exists and the journal's last
	// word on the name is a completed destroy. Terminal; the name may
	// be reused by a fresh create.
	StatusDestroyed Status = "destroyed"
)

// StatusOf derives the status of a loaded record. A nil record is
// absent.
func StatusOf(st *state.InstanceState) Status {
	switch {
	case st == nil:
		return StatusAbsent
	case st.Provisioned():
		return StatusProvisioned
	default:
		return StatusPending
	}
}

// DeriveStatus refines the record-derived status with the journal's
// last event. The record stays the source of truth; the journal only
// distinguishes a destroyed instance from a name that never existed.
func DeriveStatus(st *state.InstanceState, last *Event) Status {
	s := StatusOf(st)
	if s == StatusAbsent && last != nil &&
		last.Verb == VerbDestroy && last.Outcome == OutcomeSucceeded {
		return StatusDestroyed
	}
	return s
}

// Verb is a lifecycle operation name.
type Verb string

const (
	VerbCreate    Verb = "create"
	VerbUpdate    Verb = "update"
	VerbStart     Verb = "start"
	VerbStop      Verb = "stop"
	VerbRestart   Verb = "restart"
	VerbConfigure Verb = "configure"
	VerbDestroy   Verb = "destroy"
)

// allowed reports whether the verb may run against an instance in the
// given status. Create is special-cased by the initializer (it also
// resumes pending records); everything else needs a provisioned
// machine except destroy and update, which accept a pending record so
// a failed first provision can be cleaned up or repaired.
func (v Verb) allowed(s Status) bool {
	switch v {
	case VerbCreate:
		return s == StatusAbsent || s == StatusPending || s == StatusDestroyed
	case VerbUpdate, VerbDestroy:
		return s == StatusPending || s == StatusProvisioned
	case VerbStart, VerbStop, VerbRestart, VerbConfigure:
		return s == StatusProvisioned
	default:
		return false
	}
}

// checkAllowed converts a disallowed verb into a permanent error.
func (v Verb) checkAllowed(name string, s Status) error {
	if v.allowed(s) {
		return nil
	}
	return NewPermanentError(
		fmt.Sprintf("instance is %s", s),
		fmt.Errorf("verb %s requires a different lifecycle status", v),
	).WithInstance(name).WithVerb(string(v))
}
