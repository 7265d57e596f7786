// Package scaleway implements the provider backend for Scaleway GPU
// instances, talking to the Scaleway instance API.
package scaleway

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vapordeck/vapordeck/pkg/provider"
	"github.com/vapordeck/vapordeck/pkg/state"
)

// Tag is the provider tag instances reference.
const Tag = "scaleway"

// Schema declares the provisioning documents the backend accepts and
// produces.
const Schema = `
#Input: {
	region:        string
	zone:          string
	instance_type: string
	disk_size_gb?: int & >=10
	image?:        string
	project_id?:   string
}

#Output: {
	host:      string
	server_id: string
	zone:      string
}
`

// Registration returns the backend's registry entry. The API client is
// built lazily so that registering the provider does not require
// credentials.
func Registration() provider.Registration {
	return registrationWith(func() (instanceAPI, error) {
		return newRestClient("")
	})
}

func registrationWith(newAPI func() (instanceAPI, error)) provider.Registration {
	return provider.Registration{
		Tag:    Tag,
		Schema: Schema,
		Defaults: state.Defaults{
			Configurator: "ansible",
			ProvisionInput: map[string]any{
				"region":        "fr-par",
				"zone":          "fr-par-1",
				"instance_type": "GPU-3070-S",
				"disk_size_gb":  100,
			},
		},
		NewProvisioner: func(logger zerolog.Logger) (provider.Provisioner, error) {
			api, err := newAPI()
			if err != nil {
				return nil, err
			}
			return &backend{api: api, logger: logger}, nil
		},
		NewRunner: func(logger zerolog.Logger) (provider.Runner, error) {
			api, err := newAPI()
			if err != nil {
				return nil, err
			}
			return &backend{api: api, logger: logger}, nil
		},
	}
}

type backend struct {
	api    instanceAPI
	logger zerolog.Logger
}

var (
	_ provider.Provisioner = (*backend)(nil)
	_ provider.Runner      = (*backend)(nil)
)

// Provision finds or creates the server named after the instance and
// powers it on.
func (b *backend) Provision(ctx context.Context, req provider.ProvisionRequest) (*provider.ProvisionResult, error) {
	zone, err := zoneOf(req.Input)
	if err != nil {
		return nil, provider.NewError(Tag, "provision", err)
	}

	srv, err := b.api.FindServer(ctx, zone, req.Name)
	if err != nil {
		return nil, wrap("provision", err)
	}

	if srv == nil {
		create := createServerRequest{
			Name:           req.Name,
			CommercialType: stringField(req.Input, "instance_type"),
			Image:          stringField(req.Input, "image"),
			Project:        stringField(req.Input, "project_id"),
			DynamicIP:      true,
		}
		srv, err = b.api.CreateServer(ctx, zone, create)
		if err != nil {
			return nil, wrap("provision", err)
		}
		b.logger.Info().Str("instance", req.Name).Str("server_id", srv.ID).Msg("created server")

		if err := b.api.ServerAction(ctx, zone, srv.ID, "poweron"); err != nil {
			return nil, wrap("provision", err)
		}
	}

	host := ""
	if srv.PublicIP != nil {
		host = srv.PublicIP.Address
	}
	return &provider.ProvisionResult{
		Output: provider.Document{
			"host":      host,
			"server_id": srv.ID,
			"zone":      zone,
		},
	}, nil
}

// Destroy terminates the server and its attached volumes. A server
// that is already gone is not an error.
func (b *backend) Destroy(ctx context.Context, req provider.ProvisionRequest) error {
	zone, err := zoneOf(req.Input)
	if err != nil {
		return provider.NewError(Tag, "destroy", err)
	}

	id := stringField(req.PriorOutput, "server_id")
	if id == "" {
		srv, err := b.api.FindServer(ctx, zone, req.Name)
		if err != nil {
			return wrap("destroy", err)
		}
		if srv == nil {
			return nil
		}
		id = srv.ID
	}

	// Terminate releases the server and its local volumes, but the API
	// refuses it for a server that is already powered off; those are
	// deleted directly.
	if err := b.api.ServerAction(ctx, zone, id, "terminate"); err != nil {
		switch {
		case isNotFound(err):
			return nil
		case isInvalidState(err):
			if err := b.api.DeleteServer(ctx, zone, id); err != nil && !isNotFound(err) {
				return wrap("destroy", err)
			}
		default:
			return wrap("destroy", err)
		}
	}
	b.logger.Info().Str("instance", req.Name).Str("server_id", id).Msg("terminated server")
	return nil
}

func (b *backend) Start(ctx context.Context, req provider.RunnerRequest) error {
	return b.action(ctx, "start", "poweron", req)
}

func (b *backend) Stop(ctx context.Context, req provider.RunnerRequest) error {
	return b.action(ctx, "stop", "poweroff", req)
}

func (b *backend) Restart(ctx context.Context, req provider.RunnerRequest) error {
	return b.action(ctx, "restart", "reboot", req)
}

// Configure verifies the machine is reachable through the API. The
// configurator itself runs against the machine out of band.
func (b *backend) Configure(ctx context.Context, req provider.RunnerRequest) error {
	zone, err := zoneOf(req.ProvisionInput)
	if err != nil {
		return provider.NewError(Tag, "configure", err)
	}

	srv, err := b.api.FindServer(ctx, zone, req.Name)
	if err != nil {
		return wrap("configure", err)
	}
	if srv == nil {
		return provider.NewError(Tag, "configure", fmt.Errorf("server %s not found in zone %s", req.Name, zone))
	}
	b.logger.Info().Str("instance", req.Name).Msg("applied configuration")
	return nil
}

func (b *backend) action(ctx context.Context, op, action string, req provider.RunnerRequest) error {
	zone, err := zoneOf(req.ProvisionInput)
	if err != nil {
		return provider.NewError(Tag, op, err)
	}
	id := stringField(req.ProvisionOutput, "server_id")
	if id == "" {
		return provider.NewError(Tag, op, fmt.Errorf("record carries no server_id"))
	}

	if err := b.api.ServerAction(ctx, zone, id, action); err != nil {
		return wrap(op, err)
	}
	return nil
}

func zoneOf(input provider.Document) (string, error) {
	zone := stringField(input, "zone")
	if zone == "" {
		return "", fmt.Errorf("input carries no zone")
	}
	return zone, nil
}

func stringField(doc provider.Document, key string) string {
	if doc == nil {
		return ""
	}
	s, _ := doc[key].(string)
	return s
}

// wrap tags an API failure with the provider and operation, marking
// rate limits and server-side errors retryable.
func wrap(op string, err error) error {
	var ae *apiError
	if errors.As(err, &ae) && ae.retryable() {
		return provider.NewRetryableError(Tag, op, err)
	}
	return provider.NewError(Tag, op, err)
}
