package sheet

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func dirtySession(t *testing.T, rows ...SheetRow) *Session {
	t.Helper()
	s := newSession(testKey, rows, time.Now())
	if _, err := s.Update(time.Now(), setNotes(rows[0].ID, "edited")); err != nil {
		t.Fatalf("update: %v", err)
	}
	return s
}

func TestSaver_DebounceCoalesces(t *testing.T) {
	repo := newMockRowRepo()
	sv := NewSaver(SaverConfig{Repo: repo, Debounce: 20 * time.Millisecond, Logger: zerolog.Nop()})
	s := dirtySession(t, SheetRow{ID: "a"})

	for i := 0; i < 5; i++ {
		sv.Schedule(s)
	}
	sv.Wait()

	if got := repo.saveCount(); got != 1 {
		t.Errorf("expected one coalesced save, got %d", got)
	}
	if s.State() != StateReconciled {
		t.Errorf("expected reconciled, got %s", s.State())
	}
}

func TestSaver_FlushCancelsTimer(t *testing.T) {
	repo := newMockRowRepo()
	sv := NewSaver(SaverConfig{Repo: repo, Debounce: time.Hour, Logger: zerolog.Nop()})
	s := dirtySession(t, SheetRow{ID: "a"})

	sv.Schedule(s)
	if err := sv.FlushNow(context.Background(), s); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	// Wait returns only because the armed timer was cancelled
	sv.Wait()
	if repo.saveCount() != 1 {
		t.Errorf("expected one save, got %d", repo.saveCount())
	}
}

func TestSaver_CleanSessionSkipsWrite(t *testing.T) {
	repo := newMockRowRepo()
	sv := NewSaver(SaverConfig{Repo: repo, Logger: zerolog.Nop()})
	s := newSession(testKey, realRows("a"), time.Now())
	if err := sv.FlushNow(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.saveCount() != 0 {
		t.Error("clean sessions are not written")
	}
}

func TestSaver_UnmatchedLocalRow(t *testing.T) {
	repo := newMockRowRepo()
	anns := newMockAnnotations()
	sv := NewSaver(SaverConfig{Repo: repo, Annotations: anns, Logger: zerolog.Nop()})
	s := dirtySession(t, SheetRow{ID: "new-1-1-a", Notes: strPtr("x")}, SheetRow{ID: "new-1-2-b", Notes: strPtr("y")})
	repo.dropIDs["new-1-2-b"] = true

	if err := sv.FlushNow(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	view, _ := s.View()
	if view.Rows[0].ID.IsLocal() {
		t.Error("matched row should carry its server id")
	}
	if view.Rows[1].ID != "new-1-2-b" {
		t.Errorf("unmatched row must keep its local id, got %s", view.Rows[1].ID)
	}
	if _, ok := anns.rekeyed["new-1-2-b"]; ok {
		t.Error("unmatched rows are not rekeyed")
	}
}

func TestUnmatchedLocal(t *testing.T) {
	stored := []StoredRow{{Row: SheetRow{ID: "new-1"}}, {Row: SheetRow{ID: "srv"}}, {Row: SheetRow{ID: "new-2"}}}
	got := unmatchedLocal(stored, map[RowID]RowID{"new-1": "x"})
	if len(got) != 1 || got[0] != "new-2" {
		t.Errorf("expected [new-2], got %v", got)
	}
}
