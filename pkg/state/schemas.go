package state

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// SchemaRegistry holds the CUE sub-schemas the parser dispatches to by
// provider and configurator tag. Providers register their schemas at
// process start; the registry never hardcodes a provider list.
//
// A provider schema source must declare two definitions:
//
//	#Input:  {...}   // shape of provision.input
//	#Output: {...}   // shape of provision.output
//
// A configurator schema source declares a single #Input definition for
// configuration.input. Definitions are closed, so unknown fields are
// violations.
type SchemaRegistry struct {
	cuectx *cue.Context

	mu            sync.RWMutex
	providers     map[string]providerSchema
	configurators map[string]cue.Value
}

type providerSchema struct {
	input  cue.Value
	output cue.Value
}

// NewSchemaRegistry creates an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{
		cuectx:        cuecontext.New(),
		providers:     make(map[string]providerSchema),
		configurators: make(map[string]cue.Value),
	}
}

// RegisterProvider compiles and registers the provision sub-schemas for
// a provider tag. Registering the same tag twice replaces the schemas.
func (r *SchemaRegistry) RegisterProvider(tag, source string) error {
	val := r.cuectx.CompileString(source)
	if err := val.Err(); err != nil {
		return fmt.Errorf("compile schema for provider %s: %w", tag, err)
	}

	input := val.LookupPath(cue.MakePath(cue.Def("Input")))
	if err := input.Err(); err != nil {
		return fmt.Errorf("provider %s schema declares no #Input: %w", tag, err)
	}
	output := val.LookupPath(cue.MakePath(cue.Def("Output")))
	if err := output.Err(); err != nil {
		return fmt.Errorf("provider %s schema declares no #Output: %w", tag, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[tag] = providerSchema{input: input, output: output}
	return nil
}

// RegisterConfigurator compiles and registers the configuration.input
// sub-schema for a configurator tag.
func (r *SchemaRegistry) RegisterConfigurator(tag, source string) error {
	val := r.cuectx.CompileString(source)
	if err := val.Err(); err != nil {
		return fmt.Errorf("compile schema for configurator %s: %w", tag, err)
	}

	input := val.LookupPath(cue.MakePath(cue.Def("Input")))
	if err := input.Err(); err != nil {
		return fmt.Errorf("configurator %s schema declares no #Input: %w", tag, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.configurators[tag] = input
	return nil
}

// HasProvider reports whether a provider tag has registered schemas.
func (r *SchemaRegistry) HasProvider(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[tag]
	return ok
}

// HasConfigurator reports whether a configurator tag has a registered
// schema.
func (r *SchemaRegistry) HasConfigurator(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.configurators[tag]
	return ok
}

// Providers returns the registered provider tags.
func (r *SchemaRegistry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.providers))
	for tag := range r.providers {
		tags = append(tags, tag)
	}
	return tags
}

// ValidateProvisionInput checks a provision.input document against the
// provider's #Input schema and returns every violation.
func (r *SchemaRegistry) ValidateProvisionInput(tag string, doc map[string]any) ([]FieldError, error) {
	r.mu.RLock()
	ps, ok := r.providers[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnsupportedProviderError{Provider: tag}
	}
	return r.validate(ps.input, doc, "provision.input"), nil
}

// ValidateProvisionOutput checks a provision.output document against
// the provider's #Output schema.
func (r *SchemaRegistry) ValidateProvisionOutput(tag string, doc map[string]any) ([]FieldError, error) {
	r.mu.RLock()
	ps, ok := r.providers[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnsupportedProviderError{Provider: tag}
	}
	return r.validate(ps.output, doc, "provision.output"), nil
}

// ValidateConfigurationInput checks a configuration.input document
// against the configurator's #Input schema.
func (r *SchemaRegistry) ValidateConfigurationInput(tag string, doc map[string]any) ([]FieldError, error) {
	r.mu.RLock()
	schema, ok := r.configurators[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnsupportedConfiguratorError{Configurator: tag}
	}
	return r.validate(schema, doc, "configuration.input"), nil
}

// validate unifies doc with schema and flattens the CUE error list into
// field errors addressed relative to prefix.
func (r *SchemaRegistry) validate(schema cue.Value, doc map[string]any, prefix string) []FieldError {
	if doc == nil {
		doc = map[string]any{}
	}

	data := r.cuectx.Encode(doc)
	if err := data.Err(); err != nil {
		return []FieldError{{Path: prefix, Message: fmt.Sprintf("not a structured document: %v", err)}}
	}

	unified := schema.Unify(data)
	err := unified.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var fields []FieldError
	for _, ce := range cueerrors.Errors(err) {
		path := prefix
		if p := ce.Path(); len(p) > 0 {
			path = prefix + "." + joinPath(p)
		}
		format, args := ce.Msg()
		fields = append(fields, FieldError{
			Path:    path,
			Message: fmt.Sprintf(format, args...),
		})
	}
	if len(fields) == 0 {
		fields = append(fields, FieldError{Path: prefix, Message: err.Error()})
	}
	return fields
}

func joinPath(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "." + p
	}
	return out
}
