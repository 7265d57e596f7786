package state

// Version1 is the only record schema version this build understands.
// Unknown or future versions are rejected before any field validation.
const Version1 = "1"

// SupportedVersions lists the schema versions the parser accepts.
var SupportedVersions = []string{Version1}

// InstanceState is the persisted record for one managed instance. The
// field names and nesting are part of the on-disk contract and must
// round-trip exactly.
type InstanceState struct {
	// Version is the schema version tag, gating parsing.
	Version string `yaml:"version" json:"version" validate:"required"`

	// Name is the unique instance identifier and storage key. Write-once.
	Name string `yaml:"name" json:"name" validate:"required,hostname_rfc1123"`

	// Provision holds the provider tag plus desired and actual
	// provisioning documents.
	Provision ProvisionSpec `yaml:"provision" json:"provision"`

	// Configuration holds the configurator tag and the desired runtime
	// configuration document.
	Configuration ConfigurationSpec `yaml:"configuration" json:"configuration"`
}

// ProvisionSpec carries the provider-specific halves of the record.
type ProvisionSpec struct {
	// Provider is the immutable provider tag, fixed at creation.
	Provider string `yaml:"provider" json:"provider" validate:"required,lowercase,alphanum"`

	// Input is the desired provisioning configuration (instance type,
	// region, disk sizing, ...). May be partially defaulted.
	Input map[string]any `yaml:"input" json:"input" validate:"required"`

	// Output is the actual result of provisioning (host address,
	// resource IDs). Nil until provisioning succeeds at least once;
	// once present it is only ever replaced as a whole.
	Output map[string]any `yaml:"output,omitempty" json:"output,omitempty"`
}

// ConfigurationSpec selects and parameterizes the post-provision
// configuration strategy.
type ConfigurationSpec struct {
	// Configurator selects which configuration strategy applies.
	Configurator string `yaml:"configurator" json:"configurator" validate:"required,lowercase,alphanum"`

	// Input is the desired runtime configuration (streaming server
	// settings, auto-stop policy, keyboard layout, ...).
	Input map[string]any `yaml:"input,omitempty" json:"input,omitempty"`
}

// Provisioned reports whether the record carries a provisioning result.
func (s *InstanceState) Provisioned() bool {
	return len(s.Provision.Output) > 0
}

// Clone returns a deep copy of the record. Documents are copied
// recursively so the copy shares no mutable data with the original.
func (s *InstanceState) Clone() *InstanceState {
	if s == nil {
		return nil
	}
	out := *s
	out.Provision.Input = cloneDocument(s.Provision.Input)
	out.Provision.Output = cloneDocument(s.Provision.Output)
	out.Configuration.Input = cloneDocument(s.Configuration.Input)
	return &out
}

// cloneDocument deep-copies a structured document. Only the shapes YAML
// round-trips through map[string]any are handled; scalars are copied
// by value.
func cloneDocument(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneDocument(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
