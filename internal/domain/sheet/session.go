package sheet

import (
	"context"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// Session states.
const (
	StateClean      = "clean"
	StateDirty      = "dirty"
	StateSaving     = "saving"
	StateReconciled = "reconciled"
)

// Session events.
const (
	EventEdit      = "edit"
	EventSaveStart = "save_start"
	EventSaveOK    = "save_ok"
	EventSaveFail  = "save_fail"
	EventReload    = "reload"
)

var sessionEvents = fsm.Events{
	{Name: EventEdit, Src: []string{StateClean, StateSaving, StateReconciled}, Dst: StateDirty},
	{Name: EventSaveStart, Src: []string{StateDirty}, Dst: StateSaving},
	{Name: EventSaveOK, Src: []string{StateSaving}, Dst: StateReconciled},
	{Name: EventSaveFail, Src: []string{StateSaving}, Dst: StateDirty},
	{Name: EventReload, Src: []string{StateDirty, StateSaving, StateReconciled}, Dst: StateClean},
}

// Session holds one owner's rows for one month. Canonical rows are what the
// store last confirmed; pending rows are the latest local state. Reads are
// served from pending while edits are unsaved or in flight so just-typed
// values never revert.
type Session struct {
	Key SheetKey

	mu        sync.Mutex
	machine   *fsm.FSM
	canonical []SheetRow
	pending   []SheetRow
	revision  uint64
	saveErr   error
	savedAt   time.Time
	lastUsed  time.Time
	closed    bool

	// saveMu serializes writes of this session to the store.
	saveMu sync.Mutex
	timer  *time.Timer
}

func newSession(key SheetKey, rows []SheetRow, now time.Time) *Session {
	return &Session{
		Key:       key,
		machine:   fsm.NewFSM(StateClean, sessionEvents, fsm.Callbacks{}),
		canonical: rows,
		pending:   rows,
		lastUsed:  now,
	}
}

// fire sends an event, ignoring events the current state does not accept.
// Callers hold s.mu.
func (s *Session) fire(event string) {
	if !s.machine.Can(event) {
		return
	}
	_ = s.machine.Event(context.Background(), event)
}

// State returns the current state name.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Current()
}

func (s *Session) current() []SheetRow {
	switch s.machine.Current() {
	case StateDirty, StateSaving:
		return s.pending
	}
	return s.canonical
}

// Snapshot is a consistent read of a session.
type Snapshot struct {
	Rows      []SheetRow
	Revision  uint64
	State     string
	SaveError error
	SavedAt   time.Time
}

// View returns a copy of the rows the grid should render.
func (s *Session) View() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := CloneRows(s.current())
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Rows:      rows,
		Revision:  s.revision,
		State:     s.machine.Current(),
		SaveError: s.saveErr,
		SavedAt:   s.savedAt,
	}, nil
}

// Update runs fn against the current rows under the session lock. If fn
// reports a change, its rows become the pending state and the revision moves.
// fn must not retain or modify rows in place.
func (s *Session) Update(now time.Time, fn func(rows []SheetRow, revision uint64) ([]SheetRow, bool, error)) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.revision, ErrSessionNotFound
	}
	s.lastUsed = now
	next, changed, err := fn(s.current(), s.revision)
	if err != nil {
		return s.revision, err
	}
	if !changed {
		return s.revision, nil
	}
	s.pending = next
	s.revision++
	s.fire(EventEdit)
	return s.revision, nil
}

// Reload replaces both canonical and pending rows with freshly fetched state.
func (s *Session) Reload(rows []SheetRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canonical = rows
	s.pending = rows
	s.revision++
	s.saveErr = nil
	s.fire(EventReload)
}

// beginSave moves a dirty session to saving and returns the rows to write.
func (s *Session) beginSave() ([]SheetRow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine.Current() != StateDirty {
		return nil, false, nil
	}
	snap, err := CloneRows(s.pending)
	if err != nil {
		return nil, false, err
	}
	s.fire(EventSaveStart)
	return snap, true, nil
}

// finishSave records the outcome of a write. On success server ids are
// reconciled into the current pending rows by local id only; rows without a
// match keep their local id. It returns the ids that were actually rewritten
// and whether more edits arrived while the save was in flight.
func (s *Session) finishSave(saved []SheetRow, ids map[RowID]RowID, saveErr error, now time.Time) (map[RowID]RowID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if saveErr != nil {
		s.saveErr = saveErr
		s.fire(EventSaveFail)
		return nil, s.machine.Current() == StateDirty
	}

	rewritten := make(map[RowID]RowID, len(ids))
	if len(ids) > 0 {
		next := make([]SheetRow, len(s.pending))
		copy(next, s.pending)
		for i := range next {
			if server, ok := ids[next[i].ID]; ok {
				rewritten[next[i].ID] = server
				next[i].ID = server
			}
		}
		s.pending = next
		for i := range saved {
			if server, ok := ids[saved[i].ID]; ok {
				saved[i].ID = server
			}
		}
		s.revision++
	}

	s.saveErr = nil
	s.savedAt = now
	if s.machine.Current() == StateSaving {
		s.fire(EventSaveOK)
		s.canonical = s.pending
		return rewritten, false
	}
	// edits arrived mid-save: the store now holds saved, pending stays ahead
	s.canonical = saved
	return rewritten, s.machine.Current() == StateDirty
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}
