package sheet

import (
	"errors"
	"testing"
	"time"
)

func setNotes(id RowID, v string) func([]SheetRow, uint64) ([]SheetRow, bool, error) {
	return func(rows []SheetRow, _ uint64) ([]SheetRow, bool, error) {
		out, err := CloneRows(rows)
		if err != nil {
			return nil, false, err
		}
		for i := range out {
			if out[i].ID == id {
				out[i].Notes = &v
			}
		}
		return out, true, nil
	}
}

func TestSession_Lifecycle(t *testing.T) {
	now := time.Now()
	s := newSession(testKey, realRows("a"), now)
	if s.State() != StateClean {
		t.Fatalf("expected clean, got %s", s.State())
	}

	rev, err := s.Update(now, setNotes("a", "edited"))
	if err != nil || rev != 1 {
		t.Fatalf("expected revision 1, got %d %v", rev, err)
	}
	if s.State() != StateDirty {
		t.Fatalf("expected dirty, got %s", s.State())
	}

	snap, ok, err := s.beginSave()
	if err != nil || !ok {
		t.Fatalf("expected save to start: %v", err)
	}
	if s.State() != StateSaving {
		t.Fatalf("expected saving, got %s", s.State())
	}

	view, _ := s.View()
	if deref(view.Rows[0].Notes) != "edited" {
		t.Error("pending edits must stay visible while saving")
	}

	if _, again := s.finishSave(snap, nil, nil, now); again {
		t.Error("no edits arrived mid-save")
	}
	if s.State() != StateReconciled {
		t.Fatalf("expected reconciled, got %s", s.State())
	}
	view, _ = s.View()
	if deref(view.Rows[0].Notes) != "edited" {
		t.Error("saved edits must become canonical")
	}
}

func TestSession_SaveFailureKeepsEdits(t *testing.T) {
	now := time.Now()
	s := newSession(testKey, realRows("a"), now)
	s.Update(now, setNotes("a", "edited"))
	snap, _, _ := s.beginSave()

	boom := errors.New("backend down")
	s.finishSave(snap, nil, boom, now)
	if s.State() != StateDirty {
		t.Fatalf("expected dirty after failure, got %s", s.State())
	}
	view, _ := s.View()
	if !errors.Is(view.SaveError, boom) {
		t.Errorf("expected save error, got %v", view.SaveError)
	}
	if deref(view.Rows[0].Notes) != "edited" {
		t.Error("failed save must not drop local edits")
	}
}

func TestSession_EditDuringSave(t *testing.T) {
	now := time.Now()
	s := newSession(testKey, []SheetRow{{ID: "new-1-1-a", Notes: strPtr("x")}}, now)
	s.Update(now, setNotes("new-1-1-a", "first"))
	snap, _, _ := s.beginSave()

	s.Update(now, setNotes("new-1-1-a", "second"))
	if s.State() != StateDirty {
		t.Fatalf("expected dirty, got %s", s.State())
	}

	rewritten, again := s.finishSave(snap, map[RowID]RowID{"new-1-1-a": "srv-1"}, nil, now)
	if !again {
		t.Error("expected another save to be requested")
	}
	if rewritten["new-1-1-a"] != "srv-1" {
		t.Errorf("expected id rewrite, got %v", rewritten)
	}
	view, _ := s.View()
	if view.Rows[0].ID != "srv-1" || deref(view.Rows[0].Notes) != "second" {
		t.Errorf("expected newer edit under server id, got %s %s", view.Rows[0].ID, deref(view.Rows[0].Notes))
	}
}

func TestSession_UnmatchedLocalKeepsID(t *testing.T) {
	now := time.Now()
	s := newSession(testKey, []SheetRow{{ID: "new-1-1-a"}, {ID: "new-1-2-b"}}, now)
	s.Update(now, setNotes("new-1-1-a", "x"))
	snap, _, _ := s.beginSave()

	rewritten, _ := s.finishSave(snap, map[RowID]RowID{"new-1-1-a": "srv-1", "new-9-9-z": "srv-9"}, nil, now)
	if len(rewritten) != 1 {
		t.Errorf("only ids present in the session are rewritten, got %v", rewritten)
	}
	view, _ := s.View()
	if view.Rows[1].ID != "new-1-2-b" {
		t.Errorf("unmatched row must keep its local id, got %s", view.Rows[1].ID)
	}
}

func TestSession_NoSaveWhenClean(t *testing.T) {
	s := newSession(testKey, realRows("a"), time.Now())
	if _, ok, _ := s.beginSave(); ok {
		t.Error("a clean session has nothing to save")
	}
}

func TestSession_Reload(t *testing.T) {
	now := time.Now()
	s := newSession(testKey, realRows("a"), now)
	s.Update(now, setNotes("a", "edited"))
	s.Reload(realRows("b"))
	if s.State() != StateClean {
		t.Fatalf("expected clean, got %s", s.State())
	}
	view, _ := s.View()
	if view.Rows[0].ID != "b" {
		t.Errorf("expected reloaded rows, got %s", view.Rows[0].ID)
	}
}

func TestSession_ClosedRejectsUpdates(t *testing.T) {
	st := NewRowStore()
	s := st.PutIfAbsent(newSession(testKey, realRows("a"), time.Now()))
	st.Drop(testKey)
	if _, err := s.Update(time.Now(), setNotes("a", "late")); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}
