package lifecycle

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a lifecycle failure for retry and recovery
// logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may
	// succeed on retry, such as a network timeout.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates provider rate limiting. Retry with
	// backoff.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassConflict indicates the state record changed under the
	// operation. Reload and retry.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassInterrupted indicates the operation was cancelled
	// before any effects were persisted.
	ErrorClassInterrupted ErrorClass = "interrupted"

	// ErrorClassPermanent indicates a non-recoverable failure, such as
	// invalid input or a denied operation.
	ErrorClassPermanent ErrorClass = "permanent"
)

// Error is a classified lifecycle failure with instance and verb
// context.
type Error struct {
	// Class is the classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable failure message.
	Message string `json:"message"`

	// Instance is the instance name, if applicable.
	Instance string `json:"instance,omitempty"`

	// Verb is the lifecycle verb being executed when the failure
	// occurred.
	Verb string `json:"verb,omitempty"`

	// Err is the underlying cause.
	Err error `json:"-"`
}

func (e *Error) Error() string {
	if e.Instance != "" && e.Verb != "" {
		return fmt.Sprintf("[%s] %s (instance=%s, verb=%s): %s",
			e.Class, e.Message, e.Instance, e.Verb, e.unwrapMessage())
	}
	if e.Instance != "" {
		return fmt.Sprintf("[%s] %s (instance=%s): %s",
			e.Class, e.Message, e.Instance, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// NewTransientError creates a transient error.
func NewTransientError(message string, err error) *Error {
	return &Error{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewThrottledError creates a throttled error.
func NewThrottledError(message string, err error) *Error {
	return &Error{Class: ErrorClassThrottled, Message: message, Err: err}
}

// NewConflictError creates a conflict error.
func NewConflictError(message string, err error) *Error {
	return &Error{Class: ErrorClassConflict, Message: message, Err: err}
}

// NewInterruptedError creates an interrupted error.
func NewInterruptedError(message string, err error) *Error {
	return &Error{Class: ErrorClassInterrupted, Message: message, Err: err}
}

// NewPermanentError creates a permanent error.
func NewPermanentError(message string, err error) *Error {
	return &Error{Class: ErrorClassPermanent, Message: message, Err: err}
}

// WithInstance adds instance context to an error.
func (e *Error) WithInstance(name string) *Error {
	e.Instance = name
	return e
}

// WithVerb adds verb context to an error.
func (e *Error) WithVerb(verb string) *Error {
	e.Verb = verb
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	return classOf(err) == ErrorClassTransient
}

// IsThrottled returns true if the error is classified as throttled.
func IsThrottled(err error) bool {
	return classOf(err) == ErrorClassThrottled
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	return classOf(err) == ErrorClassConflict
}

// IsInterrupted returns true if the error is classified as interrupted.
func IsInterrupted(err error) bool {
	return classOf(err) == ErrorClassInterrupted
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	return classOf(err) == ErrorClassPermanent
}

// IsRetryable returns true if the same call may succeed later.
// Transient, throttled and conflict failures are retryable.
func IsRetryable(err error) bool {
	switch classOf(err) {
	case ErrorClassTransient, ErrorClassThrottled, ErrorClassConflict:
		return true
	}
	return false
}

func classOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}
