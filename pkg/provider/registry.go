package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vapordeck/vapordeck/pkg/state"
)

// Registration bundles everything a provider backend contributes.
type Registration struct {
	// Tag is the name instances reference the provider by, such as
	// "scaleway".
	Tag string

	// Schema is the CUE source declaring the provider's #Input and
	// #Output definitions.
	Schema string

	// Defaults are merged beneath user input when building state for
	// instances of this provider.
	Defaults state.Defaults

	// NewProvisioner builds the provisioner for this backend.
	NewProvisioner func(logger zerolog.Logger) (Provisioner, error)

	// NewRunner builds the runner for this backend.
	NewRunner func(logger zerolog.Logger) (Runner, error)
}

// ConfiguratorRegistration contributes a configurator schema. The
// configurator's behavior lives in the provider's Runner; the schema
// is shared across providers.
type ConfiguratorRegistration struct {
	// Tag is the name instances reference the configurator by.
	Tag string

	// Schema is the CUE source declaring the configurator's #Input
	// definition.
	Schema string
}

// Registry maps provider and configurator tags to their registrations
// and keeps the schema registry in step with them.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Registration
	schemas   *state.SchemaRegistry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: map[string]Registration{},
		schemas:   state.NewSchemaRegistry(),
	}
}

// Register adds a provider backend. Registering the same tag twice is
// a programming error and fails.
func (r *Registry) Register(reg Registration) error {
	if reg.Tag == "" {
		return fmt.Errorf("provider registration requires a tag")
	}
	if reg.NewProvisioner == nil || reg.NewRunner == nil {
		return fmt.Errorf("provider %s: registration requires provisioner and runner factories", reg.Tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[reg.Tag]; exists {
		return fmt.Errorf("provider %s: already registered", reg.Tag)
	}
	if err := r.schemas.RegisterProvider(reg.Tag, reg.Schema); err != nil {
		return fmt.Errorf("provider %s: %w", reg.Tag, err)
	}
	r.providers[reg.Tag] = reg
	return nil
}

// RegisterConfigurator adds a configurator schema.
func (r *Registry) RegisterConfigurator(reg ConfiguratorRegistration) error {
	if reg.Tag == "" {
		return fmt.Errorf("configurator registration requires a tag")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.schemas.RegisterConfigurator(reg.Tag, reg.Schema); err != nil {
		return fmt.Errorf("configurator %s: %w", reg.Tag, err)
	}
	return nil
}

// Schemas exposes the schema registry for the parser.
func (r *Registry) Schemas() *state.SchemaRegistry {
	return r.schemas
}

// Tags returns the registered provider tags, sorted.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.providers))
	for tag := range r.providers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Defaults returns the registered defaults for tag.
func (r *Registry) Defaults(tag string) (state.Defaults, error) {
	reg, err := r.lookup(tag)
	if err != nil {
		return state.Defaults{}, err
	}
	return reg.Defaults, nil
}

// Provisioner builds the provisioner for tag.
func (r *Registry) Provisioner(tag string, logger zerolog.Logger) (Provisioner, error) {
	reg, err := r.lookup(tag)
	if err != nil {
		return nil, err
	}
	return reg.NewProvisioner(logger.With().Str("provider", tag).Logger())
}

// Runner builds the runner for tag.
func (r *Registry) Runner(tag string, logger zerolog.Logger) (Runner, error) {
	reg, err := r.lookup(tag)
	if err != nil {
		return nil, err
	}
	return reg.NewRunner(logger.With().Str("provider", tag).Logger())
}

func (r *Registry) lookup(tag string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.providers[tag]
	if !ok {
		return Registration{}, &state.UnsupportedProviderError{Provider: tag, Known: r.knownLocked()}
	}
	return reg, nil
}

func (r *Registry) knownLocked() []string {
	tags := make([]string, 0, len(r.providers))
	for tag := range r.providers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
