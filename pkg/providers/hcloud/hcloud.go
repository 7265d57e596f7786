// Package hcloud implements the provider backend for Hetzner Cloud
// servers using the official hcloud-go SDK.
package hcloud

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/rs/zerolog"

	"github.com/vapordeck/vapordeck/pkg/provider"
	"github.com/vapordeck/vapordeck/pkg/state"
)

// Tag is the provider tag instances reference.
const Tag = "hcloud"

// TokenEnvVar holds the Hetzner Cloud API token.
const TokenEnvVar = "HCLOUD_TOKEN"

// Schema declares the provisioning documents the backend accepts and
// produces.
const Schema = `
#Input: {
	location:    string
	server_type: string
	image?:      string
	ssh_keys?: [...string]
}

#Output: {
	host:      string
	server_id: string
	location:  string
}
`

const defaultImage = "ubuntu-24.04"

// Registration returns the backend's registry entry. The SDK client is
// built lazily so that registering the provider does not require a
// token.
func Registration() provider.Registration {
	return registrationWith(func() (*hcloud.Client, error) {
		token := os.Getenv(TokenEnvVar)
		if token == "" {
			return nil, fmt.Errorf("%s must be set for the hcloud provider", TokenEnvVar)
		}
		return hcloud.NewClient(hcloud.WithToken(token)), nil
	})
}

func registrationWith(newClient func() (*hcloud.Client, error)) provider.Registration {
	return provider.Registration{
		Tag:    Tag,
		Schema: Schema,
		Defaults: state.Defaults{
			Configurator: "ansible",
			ProvisionInput: map[string]any{
				"location":    "fsn1",
				"server_type": "ccx33",
				"image":       defaultImage,
			},
		},
		NewProvisioner: func(logger zerolog.Logger) (provider.Provisioner, error) {
			client, err := newClient()
			if err != nil {
				return nil, err
			}
			return &backend{client: client, logger: logger}, nil
		},
		NewRunner: func(logger zerolog.Logger) (provider.Runner, error) {
			client, err := newClient()
			if err != nil {
				return nil, err
			}
			return &backend{client: client, logger: logger}, nil
		},
	}
}

type backend struct {
	client *hcloud.Client
	logger zerolog.Logger
}

var (
	_ provider.Provisioner = (*backend)(nil)
	_ provider.Runner      = (*backend)(nil)
)

// Provision finds or creates the server named after the instance.
// Reprovisioning an existing server reconciles to its current state.
func (b *backend) Provision(ctx context.Context, req provider.ProvisionRequest) (*provider.ProvisionResult, error) {
	srv, _, err := b.client.Server.Get(ctx, req.Name)
	if err != nil {
		return nil, wrap("provision", err)
	}

	if srv == nil {
		opts, err := createOpts(req)
		if err != nil {
			return nil, provider.NewError(Tag, "provision", err)
		}
		result, _, err := b.client.Server.Create(ctx, opts)
		if err != nil {
			return nil, wrap("provision", err)
		}
		if err := b.client.Action.WaitFor(ctx, result.Action); err != nil {
			return nil, wrap("provision", err)
		}
		srv = result.Server
		b.logger.Info().Str("instance", req.Name).Int64("server_id", srv.ID).Msg("created server")
	}

	host := ""
	if srv.PublicNet.IPv4.IP != nil {
		host = srv.PublicNet.IPv4.IP.String()
	}
	location := stringField(req.Input, "location")
	if srv.Datacenter != nil && srv.Datacenter.Location != nil {
		location = srv.Datacenter.Location.Name
	}
	return &provider.ProvisionResult{
		Output: provider.Document{
			"host":      host,
			"server_id": fmt.Sprintf("%d", srv.ID),
			"location":  location,
		},
	}, nil
}

func createOpts(req provider.ProvisionRequest) (hcloud.ServerCreateOpts, error) {
	serverType := stringField(req.Input, "server_type")
	if serverType == "" {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("input carries no server_type")
	}
	location := stringField(req.Input, "location")
	if location == "" {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("input carries no location")
	}
	image := stringField(req.Input, "image")
	if image == "" {
		image = defaultImage
	}

	var sshKeys []*hcloud.SSHKey
	if keys, ok := req.Input["ssh_keys"].([]any); ok {
		for _, k := range keys {
			if name, ok := k.(string); ok {
				sshKeys = append(sshKeys, &hcloud.SSHKey{Name: name})
			}
		}
	}

	return hcloud.ServerCreateOpts{
		Name:       req.Name,
		ServerType: &hcloud.ServerType{Name: serverType},
		Image:      &hcloud.Image{Name: image},
		Location:   &hcloud.Location{Name: location},
		SSHKeys:    sshKeys,
	}, nil
}

// Destroy deletes the server. A server that is already gone is not an
// error.
func (b *backend) Destroy(ctx context.Context, req provider.ProvisionRequest) error {
	srv, _, err := b.client.Server.Get(ctx, req.Name)
	if err != nil {
		return wrap("destroy", err)
	}
	if srv == nil {
		return nil
	}

	result, _, err := b.client.Server.DeleteWithResult(ctx, srv)
	if err != nil {
		if hcloud.IsError(err, hcloud.ErrorCodeNotFound) {
			return nil
		}
		return wrap("destroy", err)
	}
	if err := b.client.Action.WaitFor(ctx, result.Action); err != nil {
		return wrap("destroy", err)
	}
	b.logger.Info().Str("instance", req.Name).Int64("server_id", srv.ID).Msg("deleted server")
	return nil
}

func (b *backend) Start(ctx context.Context, req provider.RunnerRequest) error {
	return b.action(ctx, "start", req, b.client.Server.Poweron)
}

func (b *backend) Stop(ctx context.Context, req provider.RunnerRequest) error {
	return b.action(ctx, "stop", req, b.client.Server.Poweroff)
}

func (b *backend) Restart(ctx context.Context, req provider.RunnerRequest) error {
	return b.action(ctx, "restart", req, b.client.Server.Reboot)
}

// Configure verifies the machine is reachable through the API. The
// configurator itself runs against the machine out of band.
func (b *backend) Configure(ctx context.Context, req provider.RunnerRequest) error {
	srv, _, err := b.client.Server.Get(ctx, req.Name)
	if err != nil {
		return wrap("configure", err)
	}
	if srv == nil {
		return provider.NewError(Tag, "configure", fmt.Errorf("server %s not found", req.Name))
	}
	b.logger.Info().Str("instance", req.Name).Msg("applied configuration")
	return nil
}

func (b *backend) action(ctx context.Context, op string, req provider.RunnerRequest, call func(context.Context, *hcloud.Server) (*hcloud.Action, *hcloud.Response, error)) error {
	srv, err := serverOf(req)
	if err != nil {
		return provider.NewError(Tag, op, err)
	}

	action, _, err := call(ctx, srv)
	if err != nil {
		return wrap(op, err)
	}
	if err := b.client.Action.WaitFor(ctx, action); err != nil {
		return wrap(op, err)
	}
	return nil
}

func serverOf(req provider.RunnerRequest) (*hcloud.Server, error) {
	raw := stringField(req.ProvisionOutput, "server_id")
	if raw == "" {
		return nil, fmt.Errorf("record carries no server_id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid server_id %q", raw)
	}
	return &hcloud.Server{ID: id}, nil
}

func stringField(doc provider.Document, key string) string {
	if doc == nil {
		return ""
	}
	s, _ := doc[key].(string)
	return s
}

// wrap tags an SDK failure with the provider and operation, marking
// rate limits and conflicts retryable.
func wrap(op string, err error) error {
	var herr hcloud.Error
	if errors.As(err, &herr) {
		switch herr.Code {
		case hcloud.ErrorCodeRateLimitExceeded, hcloud.ErrorCodeConflict, hcloud.ErrorCodeLocked:
			return provider.NewRetryableError(Tag, op, err)
		}
	}
	return provider.NewError(Tag, op, err)
}
