package sheet

import (
	"fmt"
)

// Change is one cell edit emitted by the grid: [row, col, old, new].
type Change struct {
	Row int     `json:"row"`
	Col int     `json:"col"`
	Old *string `json:"old"`
	New *string `json:"new"`
}

// Rejection is a change the reconciler refused to apply.
type Rejection struct {
	Change Change `json:"change"`
	Reason string `json:"reason"`
}

// Result is the outcome of applying one edit batch.
type Result struct {
	Rows        []SheetRow         `json:"-"`
	Mutations   []Mutation         `json:"mutations"`
	Save        *SaveRequest       `json:"save,omitempty"`
	Annotations []AnnotationEffect `json:"annotations,omitempty"`
	Rejected    []Rejection        `json:"rejected,omitempty"`
}

// Changed reports whether the batch altered any row.
func (r Result) Changed() bool {
	return len(r.Mutations) > 0
}

// Reconciler turns grid edit batches into a new row sequence, the per-field
// mutations it implies and a save request.
type Reconciler struct {
	ids     *IDGenerator
	minRows int
}

func NewReconciler(ids *IDGenerator, minRows int) *Reconciler {
	if minRows < 1 {
		minRows = DefaultMinRows
	}
	return &Reconciler{ids: ids, minRows: minRows}
}

// MinRows is the padding target used by this reconciler.
func (r *Reconciler) MinRows() int { return r.minRows }

// Apply applies batch to prior as one pass over a single working copy. prior
// is never modified.
func (r *Reconciler) Apply(key SheetKey, proj Projection, prior []SheetRow, batch []Change, env DeriveEnv) (Result, error) {
	working, err := CloneRows(prior)
	if err != nil {
		return Result{}, fmt.Errorf("apply changes: %w", err)
	}

	// a batch may grow the sheet by at most its own size plus one padding block
	limit := len(working) + len(batch) + r.minRows
	var res Result
	for _, ch := range batch {
		field, ok := proj.FieldAt(ch.Col)
		switch {
		case !ok:
			res.Rejected = append(res.Rejected, Rejection{Change: ch, Reason: "unknown column"})
			continue
		case !proj.Editable(ch.Col):
			res.Rejected = append(res.Rejected, Rejection{Change: ch, Reason: "column is read-only"})
			continue
		case ch.Row < 0:
			res.Rejected = append(res.Rejected, Rejection{Change: ch, Reason: "negative row index"})
			continue
		case ch.Row >= limit:
			res.Rejected = append(res.Rejected, Rejection{Change: ch, Reason: "row index out of range"})
			continue
		}
		if ch.Row >= len(working) {
			working = EnsurePadding(key.OwnerID, working, ch.Row+1)
		}

		row := &working[ch.Row]
		raw := ""
		if ch.New != nil {
			raw = *ch.New
		}
		patch := DeriveOnEdit(*row, field, raw, env)
		if !patchChanges(*row, patch) && len(patch.Annotations) == 0 {
			continue
		}
		if row.ID.IsPlaceholder() {
			*row = ConvertPlaceholderToReal(*row, r.ids)
			for i := range patch.Annotations {
				patch.Annotations[i].RowID = row.ID
			}
		}
		patch.ApplyTo(row)
		row.UpdatedAt = r.ids.now().UTC()
		res.Annotations = append(res.Annotations, patch.Annotations...)
	}

	working = EnsurePadding(key.OwnerID, working, r.minRows)
	res.Rows = working
	res.Mutations = Diff(key.OwnerID, prior, working)
	res.Save = &SaveRequest{Key: key}
	return res, nil
}

// Diff lists the field writes that turn prior into next. Rows unknown to prior
// (fresh local rows) report every non-null field. Placeholders are skipped.
func Diff(owner string, prior, next []SheetRow) []Mutation {
	before := indexByID(prior)
	var out []Mutation
	for i := range next {
		row := &next[i]
		if row.ID.IsPlaceholder() {
			continue
		}
		j, existed := before[row.ID]
		for _, f := range allStoredFields {
			v := row.Get(f)
			if existed {
				if strEq(prior[j].Get(f), v) {
					continue
				}
			} else if v == nil {
				continue
			}
			out = append(out, Mutation{OwnerID: owner, RowID: row.ID, Field: f, Value: v})
		}
	}
	return out
}

func patchChanges(row SheetRow, p Patch) bool {
	for _, a := range p.Assignments {
		if !strEq(row.Get(a.Field), a.Value) {
			return true
		}
	}
	return false
}
