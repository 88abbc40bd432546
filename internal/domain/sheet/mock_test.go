package sheet

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/clinicops/clinicops/internal/platform/websocket"
)

// -- Mock Collaborators --

type mockRowRepo struct {
	mu      sync.Mutex
	rows    map[SheetKey][]StoredRow
	saves   int
	failErr error
	// dropIDs omits these local ids from the returned id map
	dropIDs map[RowID]bool
}

func newMockRowRepo() *mockRowRepo {
	return &mockRowRepo{rows: make(map[SheetKey][]StoredRow), dropIDs: make(map[RowID]bool)}
}

func (m *mockRowRepo) ListRows(_ context.Context, key SheetKey) ([]StoredRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StoredRow{}, m.rows[key]...), nil
}

func (m *mockRowRepo) ReplaceRows(_ context.Context, key SheetKey, rows []StoredRow) (map[RowID]RowID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.failErr != nil {
		return nil, m.failErr
	}
	ids := make(map[RowID]RowID)
	out := make([]StoredRow, len(rows))
	for i, s := range rows {
		if s.Row.ID.IsLocal() {
			server := RowID(uuid.New().String())
			if !m.dropIDs[s.Row.ID] {
				ids[s.Row.ID] = server
			}
			s.Row.ID = server
		}
		out[i] = s
	}
	m.rows[key] = out
	return ids, nil
}

func (m *mockRowRepo) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type mockPatients struct{ refs []PatientRef }

func (m mockPatients) PatientIndex(_ context.Context, _ string) (PatientIndex, error) {
	return NewPatientIndex(m.refs), nil
}

type mockCatalog struct {
	colors []StatusColor
	codes  CodeTable
	err    error
}

func (m mockCatalog) Tables(_ context.Context, _ string) (ColorTable, CodeTable, error) {
	return NewColorTable(m.colors), m.codes, m.err
}

type mockLocks struct {
	flags LockFlags
	// onFlags runs before each lookup returns
	onFlags func()
}

func (m mockLocks) Flags(_ context.Context, _ string, _ SheetKind, _ string) (LockFlags, error) {
	if m.onFlags != nil {
		m.onFlags()
	}
	return m.flags, nil
}

type mockAnnotations struct {
	mu      sync.Mutex
	cells   map[CellKey]CellDecoration
	effects []AnnotationEffect
	rekeyed map[RowID]RowID
}

func newMockAnnotations() *mockAnnotations {
	return &mockAnnotations{cells: make(map[CellKey]CellDecoration), rekeyed: make(map[RowID]RowID)}
}

func (m *mockAnnotations) Decorations(_ context.Context, _ string, _ SheetKind) (map[CellKey]CellDecoration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[CellKey]CellDecoration, len(m.cells))
	for k, v := range m.cells {
		out[k] = v
	}
	return out, nil
}

func (m *mockAnnotations) ApplyEffects(_ context.Context, _ string, _ SheetKind, _ string, effects []AnnotationEffect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range effects {
		m.effects = append(m.effects, e)
		key := CellKey{RowID: e.RowID, Field: e.Field}
		dec := m.cells[key]
		dec.Highlight = e.Highlight
		m.cells[key] = dec
	}
	return nil
}

func (m *mockAnnotations) Rekey(_ context.Context, _ string, _ SheetKind, ids map[RowID]RowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for from, to := range ids {
		m.rekeyed[from] = to
		for k, v := range m.cells {
			if k.RowID == from {
				delete(m.cells, k)
				m.cells[CellKey{RowID: to, Field: k.Field}] = v
			}
		}
	}
	return nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (m *mockPublisher) Publish(_ context.Context, ev websocket.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *mockPublisher) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Type
	}
	return out
}

func (m *mockPublisher) has(typ string) bool {
	for _, t := range m.types() {
		if t == typ {
			return true
		}
	}
	return false
}

type testDeps struct {
	rows        *mockRowRepo
	annotations *mockAnnotations
	events      *mockPublisher
}

func newTestService(cfg Config, locks LockFlags) (*Service, testDeps) {
	d := testDeps{rows: newMockRowRepo(), annotations: newMockAnnotations(), events: &mockPublisher{}}
	env := testEnv()
	if cfg.DefaultHighlight == "" {
		cfg.DefaultHighlight = env.HighlightColor
	}
	if cfg.ReservedColor == "" {
		cfg.ReservedColor = env.ReservedColor
	}
	svc := NewService(cfg, Deps{
		Rows:     d.rows,
		Patients: mockPatients{refs: []PatientRef{{Code: "A123", FirstName: strPtr("Jane"), LastName: strPtr("Doe"), Insurance: strPtr("Acme"), Copay: strPtr("20")}}},
		Catalog: mockCatalog{
			colors: []StatusColor{{Status: "Paid", Type: StatusClaim, ColorPair: ColorPair{Background: "#00ff00"}}},
			codes:  CodeTable{"99213": "#111111"},
		},
		Locks:       mockLocks{flags: locks},
		Annotations: d.annotations,
		Events:      d.events,
	})
	return svc, d
}

func staffActor() Actor {
	return Actor{UserID: "u1", View: ViewContext{Role: RoleClinicStaff, Mode: ModeExpanded, CanEdit: true}}
}

