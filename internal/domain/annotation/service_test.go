package annotation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicops/clinicops/internal/domain/sheet"
	"github.com/clinicops/clinicops/internal/platform/websocket"
)

// -- Mocks --

type mockRepo struct {
	mu      sync.Mutex
	cells   map[Ref]*Annotation
	failErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{cells: make(map[Ref]*Annotation)}
}

func (m *mockRepo) List(_ context.Context, clinicID string, kind sheet.SheetKind) ([]*Annotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Annotation
	for ref, a := range m.cells {
		if ref.ClinicID == clinicID && ref.Kind == kind {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) Get(_ context.Context, ref Ref) (*Annotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.cells[ref]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) upsert(ref Ref, actor string, fn func(a *Annotation)) error {
	if m.failErr != nil {
		return m.failErr
	}
	a, ok := m.cells[ref]
	if !ok {
		a = &Annotation{ID: uuid.New(), Ref: ref, CreatedBy: &actor, CreatedAt: time.Now()}
		m.cells[ref] = a
	}
	fn(a)
	a.UpdatedAt = time.Now()
	if a.Highlight == nil && a.Comment == nil {
		delete(m.cells, ref)
	}
	return nil
}

func (m *mockRepo) SetHighlight(_ context.Context, ref Ref, color *string, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsert(ref, actor, func(a *Annotation) { a.Highlight = color })
}

func (m *mockRepo) SetComment(_ context.Context, ref Ref, comment *string, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsert(ref, actor, func(a *Annotation) {
		a.Comment = comment
		a.Resolved = nil
		if comment != nil {
			open := false
			a.Resolved = &open
		}
	})
}

func (m *mockRepo) SetResolved(_ context.Context, ref Ref, resolved bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.cells[ref]
	if !ok || a.Comment == nil {
		return ErrNotFound
	}
	a.Resolved = &resolved
	return nil
}

func (m *mockRepo) Delete(_ context.Context, ref Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cells[ref]; !ok {
		return ErrNotFound
	}
	delete(m.cells, ref)
	return nil
}

func (m *mockRepo) Rekey(_ context.Context, clinicID string, kind sheet.SheetKind, ids map[sheet.RowID]sheet.RowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ref, a := range m.cells {
		to, ok := ids[ref.RowID]
		if !ok || ref.ClinicID != clinicID || ref.Kind != kind {
			continue
		}
		delete(m.cells, ref)
		ref.RowID = to
		a.Ref = ref
		m.cells[ref] = a
	}
	return nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (p *mockPublisher) Publish(_ context.Context, ev websocket.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func strPtr(s string) *string { return &s }

var testRef = Ref{ClinicID: "c1", Kind: sheet.KindProviderSheet, RowID: "6a1f3c6e-0000-4000-8000-000000000001", Field: sheet.FieldNotes}

func newTestService() (*Service, *mockRepo, *mockPublisher) {
	repo := newMockRepo()
	pub := &mockPublisher{}
	return NewService(repo, pub, zerolog.Nop()), repo, pub
}

func TestService_Highlight(t *testing.T) {
	svc, repo, pub := newTestService()
	ctx := context.Background()

	a, err := svc.SetHighlight(ctx, testRef, " #ffff00 ", "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == nil || *a.Highlight != "#ffff00" || a.CommentState() != CommentAbsent {
		t.Errorf("unexpected annotation %+v", a)
	}

	a, err = svc.ClearHighlight(ctx, testRef, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != nil || len(repo.cells) != 0 {
		t.Errorf("expected empty cell removed, got %+v", a)
	}
	if len(pub.events) != 2 || pub.events[0].Topic != "sheet:c1:annotations:provider_sheet" {
		t.Errorf("unexpected events %+v", pub.events)
	}

	if _, err := svc.SetHighlight(ctx, testRef, "", "u1"); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for blank color, got %v", err)
	}
}

func TestService_CommentTriState(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.ResolveComment(ctx, testRef, true, "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound resolving an absent comment, got %v", err)
	}

	a, err := svc.SetComment(ctx, testRef, "check EOB", "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.CommentState() != CommentOpen {
		t.Errorf("expected open, got %s", a.CommentState())
	}

	a, _ = svc.ResolveComment(ctx, testRef, true, "u2")
	if a.CommentState() != CommentResolved {
		t.Errorf("expected resolved, got %s", a.CommentState())
	}
	if d := a.Decoration(); d.Resolved == nil || !*d.Resolved || *d.Comment != "check EOB" {
		t.Errorf("unexpected decoration %+v", d)
	}

	a, _ = svc.SetComment(ctx, testRef, "check EOB again", "u1")
	if a.CommentState() != CommentOpen {
		t.Errorf("editing a comment reopens it, got %s", a.CommentState())
	}

	a, err = svc.SetComment(ctx, testRef, "  ", "u1")
	if err != nil || a != nil {
		t.Errorf("expected blank comment to remove the cell, got %+v %v", a, err)
	}
}

func TestService_HighlightAndCommentCoexist(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.SetComment(ctx, testRef, "note", "u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SetHighlight(ctx, testRef, "#00ff00", "u1"); err != nil {
		t.Fatal(err)
	}
	a, _ := svc.ClearHighlight(ctx, testRef, "u1")
	if a == nil || a.Comment == nil || a.Highlight != nil {
		t.Errorf("clearing the highlight must keep the comment, got %+v", a)
	}
}

func TestService_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	tests := []Ref{
		{ClinicID: "c1", Kind: sheet.KindProviderSheet, Field: sheet.FieldNotes},
		{ClinicID: "c1", Kind: sheet.KindProviderSheet, RowID: sheet.PlaceholderID("P", 3), Field: sheet.FieldNotes},
		{ClinicID: "c1", Kind: sheet.KindProviderSheet, RowID: testRef.RowID, Field: "bogus"},
	}
	for _, ref := range tests {
		if _, err := svc.SetComment(ctx, ref, "x", "u1"); !errors.Is(err, ErrInvalid) {
			t.Errorf("%+v: expected ErrInvalid, got %v", ref, err)
		}
	}
	if err := svc.Delete(ctx, testRef, "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_DecorationsAndDelete(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	other := testRef
	other.Field = sheet.FieldClaimStatus

	svc.SetHighlight(ctx, testRef, "#ffff00", "u1")
	svc.SetComment(ctx, other, "denied?", "u1")

	dec, err := svc.Decorations(ctx, "c1", sheet.KindProviderSheet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dec) != 2 {
		t.Fatalf("expected 2 decorations, got %d", len(dec))
	}
	d := dec[sheet.CellKey{RowID: other.RowID, Field: other.Field}]
	if d.Comment == nil || d.Resolved == nil || *d.Resolved {
		t.Errorf("expected open comment decoration, got %+v", d)
	}

	if err := svc.Delete(ctx, testRef, "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dec, _ = svc.Decorations(ctx, "c1", sheet.KindProviderSheet)
	if len(dec) != 1 {
		t.Errorf("expected 1 decoration after delete, got %d", len(dec))
	}
	if dec, _ := svc.Decorations(ctx, "c1", sheet.KindBillingTodo); len(dec) != 0 {
		t.Errorf("sheet kinds must not share annotations, got %d", len(dec))
	}
}

func TestService_ApplyEffects(t *testing.T) {
	svc, repo, pub := newTestService()
	ctx := context.Background()
	local := sheet.RowID("new-1-1-abc")

	err := svc.ApplyEffects(ctx, "c1", sheet.KindProviderSheet, "u1", []sheet.AnnotationEffect{
		{RowID: local, Field: sheet.FieldCollectedFromPatient, Highlight: strPtr("#ff0000")},
		{RowID: local, Field: sheet.FieldInsurancePayment, Highlight: strPtr("#ffff00")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.cells) != 2 || len(pub.events) != 1 {
		t.Errorf("expected 2 cells and 1 event, got %d/%d", len(repo.cells), len(pub.events))
	}

	err = svc.ApplyEffects(ctx, "c1", sheet.KindProviderSheet, "u1", []sheet.AnnotationEffect{
		{RowID: local, Field: sheet.FieldInsurancePayment, Highlight: nil},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.cells) != 1 {
		t.Errorf("expected cleared highlight removed, got %d cells", len(repo.cells))
	}

	repo.failErr = errors.New("backend down")
	if err := svc.ApplyEffects(ctx, "c1", sheet.KindProviderSheet, "u1", []sheet.AnnotationEffect{
		{RowID: local, Field: sheet.FieldNotes, Highlight: strPtr("#fff")},
	}); err == nil {
		t.Error("expected write failure to surface")
	}
}

func TestService_Rekey(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	local := sheet.RowID("new-1-1-abc")
	server := sheet.RowID(uuid.New().String())

	svc.ApplyEffects(ctx, "c1", sheet.KindProviderSheet, "u1", []sheet.AnnotationEffect{
		{RowID: local, Field: sheet.FieldCollectedFromPatient, Highlight: strPtr("#ff0000")},
	})
	if err := svc.Rekey(ctx, "c1", sheet.KindProviderSheet, map[sheet.RowID]sheet.RowID{local: server}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dec, _ := svc.Decorations(ctx, "c1", sheet.KindProviderSheet)
	if _, ok := dec[sheet.CellKey{RowID: server, Field: sheet.FieldCollectedFromPatient}]; !ok {
		t.Errorf("expected highlight under server id, got %v", repo.cells)
	}
	if err := svc.Rekey(ctx, "c1", sheet.KindProviderSheet, nil); err != nil {
		t.Errorf("empty rekey is a no-op, got %v", err)
	}
}
