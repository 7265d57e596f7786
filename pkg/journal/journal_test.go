package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vapordeck/vapordeck/pkg/lifecycle"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := New(Config{Path: filepath.Join(t.TempDir(), "journal.db")})
	if err != nil {
		t.Fatalf("new journal: %v", err)
	}
	if err := j.Init(context.Background()); err != nil {
		t.Fatalf("init journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalRecordAndHistory(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	events := []lifecycle.Event{
		{Instance: "demo-1", Verb: lifecycle.VerbCreate, Provider: "scaleway", Outcome: lifecycle.OutcomeStarted, Time: base},
		{Instance: "demo-1", Verb: lifecycle.VerbCreate, Provider: "scaleway", Outcome: lifecycle.OutcomeSucceeded, Time: base.Add(time.Minute)},
		{Instance: "other", Verb: lifecycle.VerbStop, Provider: "scaleway", Outcome: lifecycle.OutcomeSucceeded, Time: base.Add(2 * time.Minute)},
	}
	for _, ev := range events {
		if err := j.Record(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	history, err := j.History(ctx, "demo-1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Outcome != lifecycle.OutcomeSucceeded {
		t.Errorf("history must be newest first, got %+v", history[0])
	}
	if history[1].Verb != lifecycle.VerbCreate || history[1].Outcome != lifecycle.OutcomeStarted {
		t.Errorf("unexpected oldest event: %+v", history[1])
	}
}

func TestJournalLastOutcome(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	last, err := j.LastOutcome(ctx, "demo-1")
	if err != nil {
		t.Fatalf("last outcome: %v", err)
	}
	if last != nil {
		t.Fatalf("expected no events, got %+v", last)
	}

	ev := lifecycle.Event{
		Instance: "demo-1",
		Verb:     lifecycle.VerbDestroy,
		Provider: "scaleway",
		Outcome:  lifecycle.OutcomeFailed,
		Error:    "api unavailable",
		Time:     time.Now().UTC(),
	}
	if err := j.Record(ctx, ev); err != nil {
		t.Fatalf("record: %v", err)
	}

	last, err = j.LastOutcome(ctx, "demo-1")
	if err != nil {
		t.Fatalf("last outcome: %v", err)
	}
	if last == nil || last.Outcome != lifecycle.OutcomeFailed || last.Error != "api unavailable" {
		t.Errorf("unexpected last event: %+v", last)
	}
}

func TestJournalPrune(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC()
	for _, when := range []time.Time{old, old.Add(time.Hour), recent} {
		ev := lifecycle.Event{Instance: "demo-1", Verb: lifecycle.VerbStart, Outcome: lifecycle.OutcomeSucceeded, Time: when}
		if err := j.Record(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	deleted, err := j.Prune(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	history, err := j.History(ctx, "demo-1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("history length = %d, want 1", len(history))
	}
}
