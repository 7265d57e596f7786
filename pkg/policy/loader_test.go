package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writePolicyFile(t *testing.T, dir, name, src string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoaderFromDirectory(t *testing.T) {
	l := NewLoader(zerolog.Nop())
	dir := t.TempDir()

	writePolicyFile(t, dir, "region.rego", `# Keep instances in fr-par.
package vapordeck.policies.region

import rego.v1

deny contains {"message": "nope", "severity": "error"} if {
	input.instance.provision.input.region != "fr-par"
}
`)
	writePolicyFile(t, dir, "notes.txt", "not a policy")

	policies, err := l.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("policies = %d, want 1", len(policies))
	}

	p := policies[0]
	if p.Name != "region" {
		t.Errorf("name = %q", p.Name)
	}
	if p.Description != "Keep instances in fr-par." {
		t.Errorf("description = %q", p.Description)
	}
	if !p.Enabled || p.Severity != SeverityError {
		t.Errorf("unexpected defaults: %+v", p)
	}
}

func TestLoaderSingleFile(t *testing.T) {
	l := NewLoader(zerolog.Nop())
	path := writePolicyFile(t, t.TempDir(), "guard.rego", `package vapordeck.policies.guard

import rego.v1

deny contains {"message": "denied", "severity": "error"} if {
	input.verb == "destroy"
}
`)

	policies, err := l.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(policies) != 1 || policies[0].Name != "guard" {
		t.Fatalf("unexpected policies: %+v", policies)
	}
}

func TestLoaderMissingPath(t *testing.T) {
	l := NewLoader(zerolog.Nop())

	_, err := l.LoadFromPaths(context.Background(), []string{"/does/not/exist"})
	if err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestLoaderSkipsBrokenFilesInDirectory(t *testing.T) {
	l := NewLoader(zerolog.Nop())
	dir := t.TempDir()

	writePolicyFile(t, dir, "ok.rego", `package vapordeck.policies.ok

import rego.v1

deny contains {"message": "x", "severity": "error"} if { false }
`)
	// An unreadable entry with the right suffix is skipped, not fatal.
	if err := os.Mkdir(filepath.Join(dir, "broken.rego"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	policies, err := l.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(policies) != 1 || policies[0].Name != "ok" {
		t.Fatalf("unexpected policies: %+v", policies)
	}
}
