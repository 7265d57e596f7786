package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func waitForChange(t *testing.T, w *Watcher, want Change) {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case got, ok := <-w.Changes():
			if !ok {
				t.Fatal("watcher closed before delivering expected change")
			}
			if got == want {
				return
			}
			// Renames surface as create+remove pairs; skip the rest.
		case <-deadline:
			t.Fatalf("no %v change for %q within deadline", want.Op, want.Name)
		}
	}
}

func TestWatcherReportsExternalEdits(t *testing.T) {
	s := newTestStore(t)
	w, err := NewWatcher(s, zerolog.Nop())
	if err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	defer w.Close()

	record := filepath.Join(s.Root(), "demo-1.yaml")
	if err := os.WriteFile(record, []byte("version: \"1\"\n"), 0o600); err != nil {
		t.Fatalf("write record: %v", err)
	}
	waitForChange(t, w, Change{Name: "demo-1", Op: ChangeUpdated})

	if err := os.Remove(record); err != nil {
		t.Fatalf("remove record: %v", err)
	}
	waitForChange(t, w, Change{Name: "demo-1", Op: ChangeRemoved})
}

func TestWatcherIgnoresTempAndLockFiles(t *testing.T) {
	s := newTestStore(t)
	w, err := NewWatcher(s, zerolog.Nop())
	if err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	defer w.Close()

	// The lock belongs to a different instance so the save below can
	// take its own lock.
	for _, name := range []string{".demo-1.yaml.tmp-1", "other.yaml.lock", ".hidden.yaml"} {
		if err := os.WriteFile(filepath.Join(s.Root(), name), []byte("x"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	// A store save lands exactly one record event, nothing for the
	// temp file or the lock.
	if _, err := s.Save(context.Background(), testState("demo-1"), NoPrior); err != nil {
		t.Fatalf("save: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case got, ok := <-w.Changes():
			if !ok {
				t.Fatal("watcher closed early")
			}
			if got.Name != "demo-1" || got.Op != ChangeUpdated {
				t.Fatalf("unexpected change: %+v", got)
			}
			return
		case <-deadline:
			t.Fatal("no change delivered for the saved record")
		}
	}
}
