package state

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError describes one violated field in a record, addressed by its
// on-disk path (e.g. "provision.input.region").
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ConfigurationError reports every violated field of a record in one
// error. Parsing never returns a partial result alongside it.
type ConfigurationError struct {
	// Name is the instance name, when one could be read.
	Name string `json:"name,omitempty"`

	// Fields lists all violations, not just the first.
	Fields []FieldError `json:"fields"`
}

func (e *ConfigurationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	if e.Name != "" {
		return fmt.Sprintf("invalid state for instance %q: %s", e.Name, strings.Join(parts, "; "))
	}
	return "invalid instance state: " + strings.Join(parts, "; ")
}

// AsConfigurationError unwraps err to a *ConfigurationError if one is
// in the chain.
func AsConfigurationError(err error) (*ConfigurationError, bool) {
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// UnsupportedVersionError rejects a record whose version tag has no
// registered handler. Field-level validation is never attempted on an
// unrecognized shape.
type UnsupportedVersionError struct {
	Version   string
	Supported []string
}

func (e *UnsupportedVersionError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("state document carries no version field (supported: %s)",
			strings.Join(e.Supported, ", "))
	}
	return fmt.Sprintf("unsupported state version %q (supported: %s)",
		e.Version, strings.Join(e.Supported, ", "))
}

// IsUnsupportedVersion reports whether err is an UnsupportedVersionError.
func IsUnsupportedVersion(err error) bool {
	var uv *UnsupportedVersionError
	return errors.As(err, &uv)
}

// UnsupportedProviderError rejects a record or request referencing a
// provider tag with no registered handler.
type UnsupportedProviderError struct {
	Provider string

	// Known lists the registered tags, when the caller has them.
	Known []string
}

func (e *UnsupportedProviderError) Error() string {
	if len(e.Known) > 0 {
		return fmt.Sprintf("unsupported provider %q (registered: %s)",
			e.Provider, strings.Join(e.Known, ", "))
	}
	return fmt.Sprintf("unsupported provider %q: no registered handler", e.Provider)
}

// IsUnsupportedProvider reports whether err is an UnsupportedProviderError.
func IsUnsupportedProvider(err error) bool {
	var up *UnsupportedProviderError
	return errors.As(err, &up)
}

// UnsupportedConfiguratorError rejects a record referencing a
// configurator tag with no registered sub-schema.
type UnsupportedConfiguratorError struct {
	Configurator string
}

func (e *UnsupportedConfiguratorError) Error() string {
	return fmt.Sprintf("unsupported configurator %q: no registered schema", e.Configurator)
}
