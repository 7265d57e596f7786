package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/vapordeck/vapordeck/pkg/state"
)

// Fingerprint identifies one exact revision of a persisted record. It
// is the SHA-256 of the serialized (plaintext) document, so two stores
// holding the same record agree on it.
type Fingerprint string

// NoPrior is the fingerprint callers present when creating a record:
// the save succeeds only if no record exists yet under that name.
const NoPrior Fingerprint = ""

// FingerprintOf computes the fingerprint of a serialized record.
func FingerprintOf(raw []byte) Fingerprint {
	sum := sha256.Sum256(raw)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// Store is the durable home of instance records, one per name.
type Store interface {
	// Load reads, validates and returns the record plus the
	// fingerprint to present on the next Save or Delete.
	Load(ctx context.Context, name string) (*state.InstanceState, Fingerprint, error)

	// Save atomically replaces the record. prior must match the
	// on-disk fingerprint (NoPrior for creation) or the save fails
	// with a ConflictError. Returns the new fingerprint.
	Save(ctx context.Context, st *state.InstanceState, prior Fingerprint) (Fingerprint, error)

	// Delete removes the record, subject to the same fingerprint
	// check as Save.
	Delete(ctx context.Context, name string, prior Fingerprint) error

	// List returns the names of all persisted instances.
	List(ctx context.Context) ([]string, error)
}

// NotFoundError reports a load of a nonexistent instance name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("instance %q not found", e.Name)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ConflictError reports an optimistic-concurrency violation: the record
// changed between the caller's load and its save. The caller must
// reload and retry or abort; the concurrent writer's result is intact.
type ConflictError struct {
	Name     string
	Expected Fingerprint
	Actual   Fingerprint
}

func (e *ConflictError) Error() string {
	if e.Expected == NoPrior {
		return fmt.Sprintf("instance %q already exists", e.Name)
	}
	if e.Actual == NoPrior {
		return fmt.Sprintf("instance %q was deleted by a concurrent operation", e.Name)
	}
	return fmt.Sprintf("instance %q was modified concurrently (expected %.12s, found %.12s)",
		e.Name, string(e.Expected), string(e.Actual))
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// LockedError reports that another process holds the record lock.
type LockedError struct {
	Name     string
	LockPath string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("instance %q is locked by another process (lock file: %s); remove the file manually if the holder is gone",
		e.Name, e.LockPath)
}

// IsLocked reports whether err is a LockedError.
func IsLocked(err error) bool {
	var l *LockedError
	return errors.As(err, &l)
}
