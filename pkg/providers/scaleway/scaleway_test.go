package scaleway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vapordeck/vapordeck/pkg/provider"
)

// testServer mocks the Scaleway instance API.
type testServer struct {
	server *httptest.Server
	mux    *http.ServeMux

	mu      sync.Mutex
	actions []string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mux := http.NewServeMux()
	ts := &testServer{mux: mux, server: httptest.NewServer(mux)}
	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *restClient {
	return &restClient{
		baseURL:   ts.server.URL,
		secretKey: "test-secret",
		http:      ts.server.Client(),
	}
}

func (ts *testServer) backend(t *testing.T) *backend {
	t.Helper()
	return &backend{api: ts.client(), logger: zerolog.Nop()}
}

func (ts *testServer) recordAction(action string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.actions = append(ts.actions, action)
}

func (ts *testServer) recordedActions() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.actions...)
}

func jsonResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func demoInput() provider.Document {
	return provider.Document{
		"region":        "fr-par",
		"zone":          "fr-par-1",
		"instance_type": "GPU-3070-S",
	}
}

func TestProvisionCreatesAndPowersOn(t *testing.T) {
	ts := newTestServer(t)

	ts.mux.HandleFunc("/instance/v1/zones/fr-par-1/servers", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			jsonResponse(w, http.StatusOK, map[string]any{"servers": []any{}})
		case http.MethodPost:
			if r.Header.Get("X-Auth-Token") != "test-secret" {
				jsonResponse(w, http.StatusUnauthorized, map[string]string{"message": "bad token"})
				return
			}
			var req createServerRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				jsonResponse(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
				return
			}
			if req.CommercialType != "GPU-3070-S" {
				t.Errorf("unexpected commercial type: %s", req.CommercialType)
			}
			jsonResponse(w, http.StatusCreated, map[string]any{
				"server": map[string]any{"id": "srv-123", "name": req.Name, "state": "starting"},
			})
		}
	})
	ts.mux.HandleFunc("/instance/v1/zones/fr-par-1/servers/srv-123/action", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		ts.recordAction(body["action"])
		jsonResponse(w, http.StatusOK, map[string]any{})
	})

	res, err := ts.backend(t).Provision(context.Background(), provider.ProvisionRequest{
		Name:  "demo-1",
		Input: demoInput(),
	})
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if res.Output["server_id"] != "srv-123" || res.Output["zone"] != "fr-par-1" {
		t.Errorf("unexpected output: %v", res.Output)
	}
	if got := ts.recordedActions(); len(got) != 1 || got[0] != "poweron" {
		t.Errorf("expected a poweron action, got %v", got)
	}
}

func TestProvisionReconcilesExistingServer(t *testing.T) {
	ts := newTestServer(t)

	ts.mux.HandleFunc("/instance/v1/zones/fr-par-1/servers", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected %s on the servers collection", r.Method)
		}
		jsonResponse(w, http.StatusOK, map[string]any{
			"servers": []any{
				map[string]any{"id": "srv-0", "name": "demo-10", "state": "running"},
				map[string]any{
					"id": "srv-123", "name": "demo-1", "state": "running",
					"public_ip": map[string]any{"address": "51.15.0.7"},
				},
			},
		})
	})

	res, err := ts.backend(t).Provision(context.Background(), provider.ProvisionRequest{
		Name:  "demo-1",
		Input: demoInput(),
	})
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if res.Output["host"] != "51.15.0.7" || res.Output["server_id"] != "srv-123" {
		t.Errorf("unexpected output: %v", res.Output)
	}
}

func TestRateLimitIsRetryable(t *testing.T) {
	ts := newTestServer(t)

	ts.mux.HandleFunc("/instance/v1/zones/fr-par-1/servers", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusTooManyRequests, map[string]string{"message": "rate limited"})
	})

	_, err := ts.backend(t).Provision(context.Background(), provider.ProvisionRequest{
		Name:  "demo-1",
		Input: demoInput(),
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	var perr *provider.Error
	if !errors.As(err, &perr) || !perr.Retryable {
		t.Errorf("expected a retryable provider error, got %v", err)
	}
}

func TestDestroyTerminatesByPriorOutput(t *testing.T) {
	ts := newTestServer(t)

	ts.mux.HandleFunc("/instance/v1/zones/fr-par-1/servers/srv-123/action", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		ts.recordAction(body["action"])
		jsonResponse(w, http.StatusOK, map[string]any{})
	})

	err := ts.backend(t).Destroy(context.Background(), provider.ProvisionRequest{
		Name:        "demo-1",
		Input:       demoInput(),
		PriorOutput: provider.Document{"server_id": "srv-123"},
	})
	if err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if got := ts.recordedActions(); len(got) != 1 || got[0] != "terminate" {
		t.Errorf("expected a terminate action, got %v", got)
	}
}

func TestDestroyDeletesStoppedServer(t *testing.T) {
	ts := newTestServer(t)

	ts.mux.HandleFunc("/instance/v1/zones/fr-par-1/servers/srv-123/action", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusBadRequest, map[string]string{"message": "server should be running"})
	})
	ts.mux.HandleFunc("/instance/v1/zones/fr-par-1/servers/srv-123", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected %s to server resource", r.Method)
		}
		ts.recordAction("delete")
		jsonResponse(w, http.StatusNoContent, nil)
	})

	err := ts.backend(t).Destroy(context.Background(), provider.ProvisionRequest{
		Name:        "demo-1",
		Input:       demoInput(),
		PriorOutput: provider.Document{"server_id": "srv-123"},
	})
	if err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if got := ts.recordedActions(); len(got) != 1 || got[0] != "delete" {
		t.Errorf("expected a direct delete after the refused terminate, got %v", got)
	}
}

func TestDestroyMissingServerIsNotAnError(t *testing.T) {
	ts := newTestServer(t)

	ts.mux.HandleFunc("/instance/v1/zones/fr-par-1/servers/srv-123/action", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusNotFound, map[string]string{"message": "unknown server"})
	})

	err := ts.backend(t).Destroy(context.Background(), provider.ProvisionRequest{
		Name:        "demo-1",
		Input:       demoInput(),
		PriorOutput: provider.Document{"server_id": "srv-123"},
	})
	if err != nil {
		t.Fatalf("expected destroy of a missing server to succeed, got %v", err)
	}
}

func TestRunnerActions(t *testing.T) {
	ts := newTestServer(t)

	ts.mux.HandleFunc("/instance/v1/zones/fr-par-1/servers/srv-123/action", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		ts.recordAction(body["action"])
		jsonResponse(w, http.StatusOK, map[string]any{})
	})

	run := provider.RunnerRequest{
		Name:            "demo-1",
		ProvisionInput:  demoInput(),
		ProvisionOutput: provider.Document{"server_id": "srv-123", "host": "51.15.0.7"},
	}
	b := ts.backend(t)
	ctx := context.Background()

	if err := b.Stop(ctx, run); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := b.Start(ctx, run); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := b.Restart(ctx, run); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}

	want := []string{"poweroff", "poweron", "reboot"}
	got := ts.recordedActions()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected actions %v, got %v", want, got)
	}
}

func TestRunnerRequiresServerID(t *testing.T) {
	ts := newTestServer(t)

	err := ts.backend(t).Start(context.Background(), provider.RunnerRequest{
		Name:           "demo-1",
		ProvisionInput: demoInput(),
	})
	if err == nil || !strings.Contains(err.Error(), "server_id") {
		t.Errorf("expected a missing server_id error, got %v", err)
	}
}
