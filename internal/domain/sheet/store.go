package sheet

import (
	"fmt"
	"sync"
	"time"
)

// RowStore maps sheet keys to their open sessions. Each session owns the row
// sequence of one owner and month.
type RowStore struct {
	mu       sync.Mutex
	sessions map[SheetKey]*Session
}

func NewRowStore() *RowStore {
	return &RowStore{sessions: make(map[SheetKey]*Session)}
}

// Get returns the open session of key.
func (st *RowStore) Get(key SheetKey) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[key]
	return s, ok
}

// PutIfAbsent stores s unless a session for its key already exists, and
// returns the session that ends up stored.
func (st *RowStore) PutIfAbsent(s *Session) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if existing, ok := st.sessions[s.Key]; ok {
		return existing
	}
	st.sessions[s.Key] = s
	return s
}

// Drop removes key and marks its session closed.
func (st *RowStore) Drop(key SheetKey) (*Session, bool) {
	st.mu.Lock()
	s, ok := st.sessions[key]
	delete(st.sessions, key)
	st.mu.Unlock()
	if ok {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	}
	return s, ok
}

// Sessions returns every open session.
func (st *RowStore) Sessions() []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}

func (st *RowStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Rows returns a copy of the current rows of key.
func (st *RowStore) Rows(key SheetKey) ([]SheetRow, error) {
	s, ok := st.Get(key)
	if !ok {
		return nil, ErrSessionNotFound
	}
	snap, err := s.View()
	if err != nil {
		return nil, err
	}
	return snap.Rows, nil
}

// Apply writes a single mutation into the session of key without running
// derivations. It returns the new revision.
func (st *RowStore) Apply(key SheetKey, m Mutation, now time.Time) (uint64, error) {
	s, ok := st.Get(key)
	if !ok {
		return 0, ErrSessionNotFound
	}
	if !IsStoredField(m.Field) {
		return 0, fmt.Errorf("apply mutation: unknown field %s", m.Field)
	}
	return s.Update(now, func(rows []SheetRow, _ uint64) ([]SheetRow, bool, error) {
		return ApplyMutation(rows, m, now)
	})
}

// ApplyMutation returns a copy of rows with m applied.
func ApplyMutation(rows []SheetRow, m Mutation, now time.Time) ([]SheetRow, bool, error) {
	i, ok := indexByID(rows)[m.RowID]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrRowNotFound, m.RowID)
	}
	if m.RowID.IsPlaceholder() {
		return nil, false, fmt.Errorf("%w: %s is a placeholder", ErrRowNotFound, m.RowID)
	}
	if strEq(rows[i].Get(m.Field), m.Value) {
		return rows, false, nil
	}
	out, err := CloneRows(rows)
	if err != nil {
		return nil, false, err
	}
	out[i].Set(m.Field, m.Value)
	out[i].UpdatedAt = now.UTC()
	return out, true, nil
}
