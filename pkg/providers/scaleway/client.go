package scaleway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	defaultBaseURL = "https://api.scaleway.com"

	// SecretKeyEnvVar holds the API secret key.
	SecretKeyEnvVar = "SCW_SECRET_KEY"

	// ProjectEnvVar holds the project ID servers are created in.
	ProjectEnvVar = "SCW_DEFAULT_PROJECT_ID"
)

// server is the slice of the Scaleway instance API server object the
// backend reads.
type server struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`

	PublicIP *struct {
		Address string `json:"address"`
	} `json:"public_ip"`
}

type createServerRequest struct {
	Name           string `json:"name"`
	CommercialType string `json:"commercial_type"`
	Project        string `json:"project,omitempty"`
	Image          string `json:"image,omitempty"`
	DynamicIP      bool   `json:"dynamic_ip_required"`
}

// instanceAPI is the slice of the Scaleway instance API the backend
// depends on.
type instanceAPI interface {
	FindServer(ctx context.Context, zone, name string) (*server, error)
	CreateServer(ctx context.Context, zone string, req createServerRequest) (*server, error)
	DeleteServer(ctx context.Context, zone, id string) error
	ServerAction(ctx context.Context, zone, id, action string) error
}

// apiError reports a non-2xx response from the instance API.
type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("scaleway api: status %d: %s", e.StatusCode, e.Message)
}

// retryable reports whether the request may succeed on a later attempt.
func (e *apiError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func isNotFound(err error) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// isInvalidState reports the API's refusal to run an action against a
// server in its current power state.
func isInvalidState(err error) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusBadRequest
}

// restClient talks to the Scaleway instance API over HTTP.
type restClient struct {
	baseURL   string
	secretKey string
	project   string
	http      *http.Client
}

var _ instanceAPI = (*restClient)(nil)

// newRestClient reads credentials from the environment.
func newRestClient(baseURL string) (*restClient, error) {
	secret := os.Getenv(SecretKeyEnvVar)
	if secret == "" {
		return nil, fmt.Errorf("%s must be set for the scaleway provider", SecretKeyEnvVar)
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &restClient{
		baseURL:   baseURL,
		secretKey: secret,
		project:   os.Getenv(ProjectEnvVar),
		http:      &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// FindServer returns the server with the given name in the zone, or
// nil when no server matches.
func (c *restClient) FindServer(ctx context.Context, zone, name string) (*server, error) {
	path := fmt.Sprintf("/instance/v1/zones/%s/servers?name=%s", zone, name)

	var out struct {
		Servers []server `json:"servers"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	// The name filter matches substrings; require an exact match.
	for i := range out.Servers {
		if out.Servers[i].Name == name {
			return &out.Servers[i], nil
		}
	}
	return nil, nil
}

func (c *restClient) CreateServer(ctx context.Context, zone string, req createServerRequest) (*server, error) {
	if req.Project == "" {
		req.Project = c.project
	}
	path := fmt.Sprintf("/instance/v1/zones/%s/servers", zone)

	var out struct {
		Server server `json:"server"`
	}
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out.Server, nil
}

func (c *restClient) DeleteServer(ctx context.Context, zone, id string) error {
	path := fmt.Sprintf("/instance/v1/zones/%s/servers/%s", zone, id)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ServerAction runs a power action: poweron, poweroff, reboot, or
// terminate.
func (c *restClient) ServerAction(ctx context.Context, zone, id, action string) error {
	path := fmt.Sprintf("/instance/v1/zones/%s/servers/%s/action", zone, id)
	body := map[string]string{"action": action}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *restClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-Auth-Token", c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(msg))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
