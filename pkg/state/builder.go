package state

import (
	"fmt"
)

// Partial is the user-supplied candidate input for a build. A nil
// document or an absent map key means "not specified, keep looking";
// a key that is present with an explicit zero, empty string or null is
// a real value and wins the merge.
type Partial struct {
	Name               string
	Provider           string
	Configurator       string
	ProvisionInput     map[string]any
	ConfigurationInput map[string]any
}

// Defaults are the provider-registered fallback documents, consulted
// last in the merge.
type Defaults struct {
	Configurator       string
	ProvisionInput     map[string]any
	ConfigurationInput map[string]any
}

// Builder produces new records by deep-merging partial input over
// existing state and provider defaults. It is a pure function over its
// arguments: it performs no I/O, returns a fresh record, and never
// mutates its inputs.
type Builder struct{}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build merges partial over existing over defaults, field by field.
// Existing may be nil for a first-time build. Name and provider are
// write-once: once an existing record carries them, a conflicting
// partial is rejected rather than merged.
func (b *Builder) Build(existing *InstanceState, partial Partial, defaults Defaults) (*InstanceState, error) {
	name, err := writeOnce("name", existingName(existing), partial.Name)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("build state: name is required")
	}

	provider, err := writeOnce("provision.provider", existingProvider(existing), partial.Provider)
	if err != nil {
		return nil, err
	}
	if provider == "" {
		return nil, fmt.Errorf("build state for %s: provision.provider is required", name)
	}

	configurator := partial.Configurator
	if configurator == "" && existing != nil {
		configurator = existing.Configuration.Configurator
	}
	if configurator == "" {
		configurator = defaults.Configurator
	}

	// An empty configuration document is normalized to absent so the
	// serialized record round-trips exactly.
	cfgInput := mergeDocuments(defaults.ConfigurationInput, existingConfigurationInput(existing), partial.ConfigurationInput)
	if len(cfgInput) == 0 {
		cfgInput = nil
	}

	st := &InstanceState{
		Version: Version1,
		Name:    name,
		Provision: ProvisionSpec{
			Provider: provider,
			Input:    mergeDocuments(defaults.ProvisionInput, existingProvisionInput(existing), partial.ProvisionInput),
		},
		Configuration: ConfigurationSpec{
			Configurator: configurator,
			Input:        cfgInput,
		},
	}

	// The provisioning result is never synthesized by a merge; it is
	// carried over verbatim and only replaced wholesale by MergeOutput.
	if existing != nil {
		st.Provision.Output = cloneDocument(existing.Provision.Output)
	}

	return st, nil
}

// MergeOutput returns a copy of st with provision.output replaced
// atomically as a whole. Passing nil clears the result, for records
// that must return to the "provisioning attempted" shape.
func (b *Builder) MergeOutput(st *InstanceState, output map[string]any) *InstanceState {
	out := st.Clone()
	if len(output) == 0 {
		out.Provision.Output = nil
	} else {
		out.Provision.Output = cloneDocument(output)
	}
	return out
}

// mergeDocuments overlays each layer left to right: later layers win
// per key, maps merge recursively, and everything is copied so the
// result aliases none of the inputs. A nil layer contributes nothing.
func mergeDocuments(layers ...map[string]any) map[string]any {
	out := map[string]any{}
	for _, layer := range layers {
		overlay(out, layer)
	}
	return out
}

func overlay(dst, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				overlay(existing, sub)
				continue
			}
			dst[k] = cloneDocument(sub)
			continue
		}
		// Includes explicit nulls: a present key always lands.
		dst[k] = cloneValue(v)
	}
}

func writeOnce(field, current, candidate string) (string, error) {
	if candidate == "" {
		return current, nil
	}
	if current != "" && candidate != current {
		return "", fmt.Errorf("%s is write-once: cannot change %q to %q", field, current, candidate)
	}
	return candidate, nil
}

func existingName(st *InstanceState) string {
	if st == nil {
		return ""
	}
	return st.Name
}

func existingProvider(st *InstanceState) string {
	if st == nil {
		return ""
	}
	return st.Provision.Provider
}

func existingProvisionInput(st *InstanceState) map[string]any {
	if st == nil {
		return nil
	}
	return st.Provision.Input
}

func existingConfigurationInput(st *InstanceState) map[string]any {
	if st == nil {
		return nil
	}
	return st.Configuration.Input
}
