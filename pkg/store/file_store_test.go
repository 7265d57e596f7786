package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vapordeck/vapordeck/pkg/state"
)

const testProviderSchema = `
#Input: {
	region:        string
	zone:          string
	instance_type: string
}

#Output: {
	host:      string
	server_id: string
}
`

const testConfiguratorSchema = `
#Input: {
	keyboard_layout?: string
}
`

func testParser(t *testing.T) *state.Parser {
	t.Helper()

	schemas := state.NewSchemaRegistry()
	if err := schemas.RegisterProvider("scaleway", testProviderSchema); err != nil {
		t.Fatalf("register provider: %v", err)
	}
	if err := schemas.RegisterConfigurator("ansible", testConfiguratorSchema); err != nil {
		t.Fatalf("register configurator: %v", err)
	}
	return state.NewParser(schemas)
}

func testState(name string) *state.InstanceState {
	return &state.InstanceState{
		Version: state.Version1,
		Name:    name,
		Provision: state.ProvisionSpec{
			Provider: "scaleway",
			Input: map[string]any{
				"region":        "fr-par",
				"zone":          "fr-par-1",
				"instance_type": "GPU-3070-S",
			},
		},
		Configuration: state.ConfigurationSpec{Configurator: "ansible"},
	}
}

func newTestStore(t *testing.T) *FileStore {
	t.Helper()

	s, err := NewFileStore(t.TempDir(), testParser(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return s
}

func TestFileStoreCreateLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st := testState("demo-1")
	fp, err := s.Save(ctx, st, NoPrior)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if fp == NoPrior {
		t.Fatal("save must return a fingerprint")
	}

	loaded, loadedFP, err := s.Load(ctx, "demo-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loadedFP != fp {
		t.Errorf("load fingerprint %s != save fingerprint %s", loadedFP, fp)
	}
	if loaded.Provision.Input["region"] != "fr-par" {
		t.Errorf("unexpected region: %v", loaded.Provision.Input["region"])
	}
}

func TestFileStoreLoadMissing(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.Load(context.Background(), "ghost")
	if !IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestFileStoreCreateConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, testState("demo-1"), NoPrior); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := s.Save(ctx, testState("demo-1"), NoPrior)
	if !IsConflict(err) {
		t.Fatalf("second create with NoPrior must conflict, got %v", err)
	}
}

func TestFileStoreOptimisticConcurrency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fp, err := s.Save(ctx, testState("demo-1"), NoPrior)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Two writers load the same revision; exactly one save wins.
	first := testState("demo-1")
	first.Provision.Input["zone"] = "fr-par-2"
	second := testState("demo-1")
	second.Provision.Input["zone"] = "fr-par-3"

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, st := range []*state.InstanceState{first, second} {
		wg.Add(1)
		go func(i int, st *state.InstanceState) {
			defer wg.Done()
			_, results[i] = s.Save(ctx, st, fp)
		}(i, st)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case IsConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one winner, got %d successes, %d conflicts", successes, conflicts)
	}
}

func TestFileStoreStaleFingerprintRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fp, err := s.Save(ctx, testState("demo-1"), NoPrior)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated := testState("demo-1")
	updated.Provision.Input["zone"] = "fr-par-2"
	if _, err := s.Save(ctx, updated, fp); err != nil {
		t.Fatalf("update: %v", err)
	}

	// The old fingerprint is now stale.
	stale := testState("demo-1")
	stale.Provision.Input["zone"] = "fr-par-3"
	if _, err := s.Save(ctx, stale, fp); !IsConflict(err) {
		t.Fatalf("expected ConflictError for stale fingerprint, got %v", err)
	}

	// The winner's record must be intact.
	loaded, _, err := s.Load(ctx, "demo-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Provision.Input["zone"] != "fr-par-2" {
		t.Errorf("losing writer clobbered the record: zone=%v", loaded.Provision.Input["zone"])
	}
}

func TestFileStoreDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fp, err := s.Save(ctx, testState("demo-1"), NoPrior)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.Delete(ctx, "demo-1", "wrong-fingerprint"); !IsConflict(err) {
		t.Fatalf("delete with wrong fingerprint must conflict, got %v", err)
	}
	if err := s.Delete(ctx, "demo-1", fp); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := s.Load(ctx, "demo-1"); !IsNotFound(err) {
		t.Fatalf("expected NotFoundError after delete, got %v", err)
	}
	if err := s.Delete(ctx, "demo-1", fp); !IsNotFound(err) {
		t.Fatalf("deleting a missing record must be NotFound, got %v", err)
	}
}

func TestFileStoreCrashLeftoversIgnored(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fp, err := s.Save(ctx, testState("demo-1"), NoPrior)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Simulate a crash mid-save: a half-written temp file is left
	// behind. It must affect neither loads nor listings, and the prior
	// record must remain fully intact.
	leftover := filepath.Join(s.Root(), ".demo-1.yaml.tmp-crashed")
	if err := os.WriteFile(leftover, []byte("version: \"1\"\nname: dem"), 0o600); err != nil {
		t.Fatalf("plant leftover: %v", err)
	}

	loaded, loadedFP, err := s.Load(ctx, "demo-1")
	if err != nil {
		t.Fatalf("load after simulated crash: %v", err)
	}
	if loadedFP != fp {
		t.Errorf("record changed after simulated crash")
	}
	if loaded.Name != "demo-1" {
		t.Errorf("unexpected record: %+v", loaded)
	}

	names, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 1 || names[0] != "demo-1" {
		t.Errorf("temp files must not appear in listings, got %v", names)
	}
}

func TestFileStoreRejectsInvalidRecordOnLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A record written behind the store's back with a bad shape must
	// be rejected by the parser, not returned.
	bad := "version: \"1\"\nname: demo-1\nprovision:\n  provider: scaleway\n  input: {}\nconfiguration:\n  configurator: ansible\n"
	if err := os.WriteFile(filepath.Join(s.Root(), "demo-1.yaml"), []byte(bad), 0o600); err != nil {
		t.Fatalf("plant bad record: %v", err)
	}

	_, _, err := s.Load(ctx, "demo-1")
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if _, ok := state.AsConfigurationError(err); !ok {
		t.Fatalf("expected ConfigurationError, got %T: %v", err, err)
	}
}

func TestFileStoreRejectsTraversalNames(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"", "..", "a/b", `a\b`, ".hidden"} {
		if _, _, err := s.Load(ctx, name); err == nil {
			t.Errorf("name %q must be rejected", name)
		}
	}
}

func TestFileStoreEncryptionAtRest(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "correct-horse-battery-staple")

	s := newTestStore(t)
	ctx := context.Background()

	fp, err := s.Save(ctx, testState("demo-1"), NoPrior)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(s.Root(), "demo-1.yaml"))
	if err != nil {
		t.Fatalf("read raw record: %v", err)
	}
	if !strings.HasPrefix(string(raw), "# VAPORDECK_ENCRYPTED_STATE") {
		t.Fatal("record on disk is not encrypted")
	}
	if strings.Contains(string(raw), "fr-par") {
		t.Fatal("plaintext leaked into encrypted record")
	}

	loaded, loadedFP, err := s.Load(ctx, "demo-1")
	if err != nil {
		t.Fatalf("load encrypted record: %v", err)
	}
	if loadedFP != fp {
		t.Error("fingerprint must be computed over plaintext")
	}
	if loaded.Provision.Input["region"] != "fr-par" {
		t.Errorf("decrypted record mismatch: %v", loaded.Provision.Input)
	}
}
