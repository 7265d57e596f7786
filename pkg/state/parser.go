package state

import (
	"bytes"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Parser validates untyped persisted documents against the record
// schema for their declared version. Version gating happens before any
// field-level validation; a document of an unrecognized shape is never
// probed field by field.
type Parser struct {
	schemas  *SchemaRegistry
	validate *validator.Validate
}

// NewParser creates a parser dispatching to the given sub-schema
// registry.
func NewParser(schemas *SchemaRegistry) *Parser {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report violations by on-disk field name, not Go field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Parser{schemas: schemas, validate: v}
}

// versionProbe reads only the version tag of a document.
type versionProbe struct {
	Version string `yaml:"version"`
}

// Parse validates raw against the record schema and returns the typed
// record. Parsing is all-or-nothing: any failure aggregates every
// violated field into a single ConfigurationError, and no partial
// result is ever returned.
func (p *Parser) Parse(raw []byte) (*InstanceState, error) {
	var probe versionProbe
	if err := yaml.Unmarshal(raw, &probe); err != nil {
		return nil, &ConfigurationError{Fields: []FieldError{
			{Message: fmt.Sprintf("malformed state document: %v", err)},
		}}
	}
	if !slices.Contains(SupportedVersions, probe.Version) {
		return nil, &UnsupportedVersionError{Version: probe.Version, Supported: SupportedVersions}
	}

	var st InstanceState
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&st); err != nil {
		return nil, &ConfigurationError{Fields: []FieldError{
			{Message: fmt.Sprintf("state document does not match schema version %s: %v", probe.Version, err)},
		}}
	}

	var fields []FieldError
	if err := p.validate.Struct(&st); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil, fmt.Errorf("validate common fields: %w", err)
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{
				Path:    fieldPath(fe),
				Message: constraintMessage(fe),
			})
		}
	}

	// Sub-schema dispatch happens only for tags with a registered
	// handler; an unknown tag is a distinct failure mode, not a field
	// violation.
	if tag := st.Provision.Provider; tag != "" {
		inputErrs, err := p.schemas.ValidateProvisionInput(tag, st.Provision.Input)
		if err != nil {
			return nil, err
		}
		fields = append(fields, inputErrs...)

		if st.Provision.Output != nil {
			outputErrs, err := p.schemas.ValidateProvisionOutput(tag, st.Provision.Output)
			if err != nil {
				return nil, err
			}
			fields = append(fields, outputErrs...)
		}
	}
	if tag := st.Configuration.Configurator; tag != "" {
		cfgErrs, err := p.schemas.ValidateConfigurationInput(tag, st.Configuration.Input)
		if err != nil {
			return nil, err
		}
		fields = append(fields, cfgErrs...)
	}

	if len(fields) > 0 {
		return nil, &ConfigurationError{Name: st.Name, Fields: fields}
	}
	return &st, nil
}

// Serialize renders a record to its canonical on-disk YAML form.
// Parse(Serialize(s)) yields a record equal to s.
func (p *Parser) Serialize(st *InstanceState) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(st); err != nil {
		return nil, fmt.Errorf("serialize state for %s: %w", st.Name, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("serialize state for %s: %w", st.Name, err)
	}
	return buf.Bytes(), nil
}

// fieldPath maps a validator namespace such as
// "InstanceState.provision.provider" to the on-disk path.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func constraintMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required field is missing or empty"
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("violates %q constraint (param %s)", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("violates %q constraint", fe.Tag())
	}
}
