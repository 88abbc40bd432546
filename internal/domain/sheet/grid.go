package sheet

import "strings"

// Cell class names understood by the grid widget.
const (
	ClassHighlight = "htHighlight"
	ClassCommented = "htCommented"
	ClassResolved  = "htResolved"
	ClassReadOnly  = "htReadOnly"
	ClassStatus    = "htStatus"
)

// CellMeta carries the decorations of one non-plain cell.
type CellMeta struct {
	Row        int      `json:"row"`
	Col        int      `json:"col"`
	ClassName  string   `json:"className,omitempty"`
	Title      string   `json:"title,omitempty"`
	Background string   `json:"background,omitempty"`
	CodeColors []string `json:"codeColors,omitempty"`
}

// Grid is everything the widget needs to render one sheet.
type Grid struct {
	Key       SheetKey    `json:"key"`
	Columns   Projection  `json:"columns"`
	RowIDs    []RowID     `json:"rowIds"`
	Data      [][]*string `json:"data"`
	Cells     []CellMeta  `json:"cells"`
	Revision  uint64      `json:"revision"`
	State     string      `json:"state"`
	SaveError string      `json:"saveError,omitempty"`
}

// Decorator answers the widget's per-cell callbacks for one rendered view.
type Decorator struct {
	rows        []SheetRow
	proj        Projection
	decorations map[CellKey]CellDecoration
}

func NewDecorator(rows []SheetRow, proj Projection, decorations map[CellKey]CellDecoration) *Decorator {
	return &Decorator{rows: rows, proj: proj, decorations: decorations}
}

func (d *Decorator) cell(row, col int) (CellKey, bool) {
	if row < 0 || row >= len(d.rows) {
		return CellKey{}, false
	}
	f, ok := d.proj.FieldAt(col)
	if !ok {
		return CellKey{}, false
	}
	return CellKey{RowID: d.rows[row].ID, Field: f}, true
}

func (d *Decorator) decoration(row, col int) (CellDecoration, bool) {
	key, ok := d.cell(row, col)
	if !ok {
		return CellDecoration{}, false
	}
	dec, ok := d.decorations[key]
	return dec, ok
}

// IsHighlighted reports whether the cell carries a highlight.
func (d *Decorator) IsHighlighted(row, col int) bool {
	dec, ok := d.decoration(row, col)
	return ok && dec.Highlight != nil
}

// CellTitle is the hover text of a cell: its comment, if any.
func (d *Decorator) CellTitle(row, col int) string {
	dec, ok := d.decoration(row, col)
	if !ok || dec.Comment == nil {
		return ""
	}
	return *dec.Comment
}

// CellClassName returns the space separated classes of a cell.
func (d *Decorator) CellClassName(row, col int) string {
	var classes []string
	if !d.proj.Editable(col) {
		classes = append(classes, ClassReadOnly)
	}
	if dec, ok := d.decoration(row, col); ok {
		if dec.Highlight != nil {
			classes = append(classes, ClassHighlight)
		}
		if dec.Comment != nil {
			if dec.Resolved != nil && *dec.Resolved {
				classes = append(classes, ClassResolved)
			} else {
				classes = append(classes, ClassCommented)
			}
		}
	}
	if d.statusColor(row, col) != "" {
		classes = append(classes, ClassStatus)
	}
	return strings.Join(classes, " ")
}

func (d *Decorator) statusColor(row, col int) string {
	if row < 0 || row >= len(d.rows) {
		return ""
	}
	f, ok := d.proj.FieldAt(col)
	if !ok {
		return ""
	}
	spec := specByField[f]
	if spec.shadow == "" || spec.kind == kindCodes {
		return ""
	}
	if v := d.rows[row].Get(spec.shadow); v != nil {
		return *v
	}
	return ""
}

// meta builds the CellMeta of a cell, reporting false for plain cells.
func (d *Decorator) meta(row, col int) (CellMeta, bool) {
	m := CellMeta{Row: row, Col: col, Title: d.CellTitle(row, col)}
	if dec, ok := d.decoration(row, col); ok && dec.Highlight != nil {
		m.Background = *dec.Highlight
	} else {
		m.Background = d.statusColor(row, col)
	}
	if f, _ := d.proj.FieldAt(col); f == FieldCPTCode {
		for _, c := range d.rows[row].CPTCodes {
			m.CodeColors = append(m.CodeColors, c.Color)
		}
	}
	classes := d.CellClassName(row, col)
	if classes == ClassReadOnly && m.Title == "" && m.Background == "" && len(m.CodeColors) == 0 {
		// read-only is already expressed per column
		return CellMeta{}, false
	}
	m.ClassName = classes
	return m, m.ClassName != "" || m.Title != "" || m.Background != "" || len(m.CodeColors) > 0
}

// BuildGrid renders a session snapshot through a projection.
func BuildGrid(key SheetKey, snap Snapshot, proj Projection, decorations map[CellKey]CellDecoration) Grid {
	d := NewDecorator(snap.Rows, proj, decorations)
	g := Grid{
		Key:      key,
		Columns:  proj,
		RowIDs:   make([]RowID, len(snap.Rows)),
		Data:     make([][]*string, len(snap.Rows)),
		Revision: snap.Revision,
		State:    snap.State,
	}
	if snap.SaveError != nil {
		g.SaveError = snap.SaveError.Error()
	}
	for i := range snap.Rows {
		row := &snap.Rows[i]
		g.RowIDs[i] = row.ID
		values := make([]*string, len(proj))
		for j, c := range proj {
			values[j] = row.Get(c.Field)
		}
		g.Data[i] = values
		if row.ID.IsPlaceholder() && len(decorations) == 0 {
			continue
		}
		for j := range proj {
			if m, ok := d.meta(i, j); ok {
				g.Cells = append(g.Cells, m)
			}
		}
	}
	return g
}

// MenuItem is one context menu entry.
type MenuItem struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Disabled bool   `json:"disabled,omitempty"`
}

// Context menu actions.
const (
	ActionHighlight       = "highlight"
	ActionRemoveHighlight = "remove_highlight"
	ActionComment         = "comment"
	ActionResolveComment  = "resolve_comment"
	ActionDeleteRow       = "delete_row"
	ActionToggleLock      = "toggle_lock"
)

// ContextMenu lists the actions available on a cell for the viewer.
func ContextMenu(view ViewContext, proj Projection, rows []SheetRow, decorations map[CellKey]CellDecoration, locks LockFlags, row, col int) []MenuItem {
	d := NewDecorator(rows, proj, decorations)
	key, ok := d.cell(row, col)
	if !ok {
		return nil
	}
	dec := decorations[key]
	readOnly := !view.CanEdit

	items := []MenuItem{
		{Key: ActionHighlight, Name: "Highlight cell", Disabled: readOnly},
	}
	if dec.Highlight != nil {
		items = append(items, MenuItem{Key: ActionRemoveHighlight, Name: "Remove highlight", Disabled: readOnly})
	}
	commentName := "Add comment"
	if dec.Comment != nil {
		commentName = "Edit comment"
	}
	items = append(items, MenuItem{Key: ActionComment, Name: commentName, Disabled: readOnly})
	if dec.Comment != nil && (dec.Resolved == nil || !*dec.Resolved) {
		items = append(items, MenuItem{Key: ActionResolveComment, Name: "Resolve comment", Disabled: readOnly})
	}

	canDelete := view.CanEdit && !key.RowID.IsPlaceholder() && hasEditableColumn(proj)
	items = append(items, MenuItem{Key: ActionDeleteRow, Name: "Delete row", Disabled: !canDelete})

	if view.Role == RoleClinicStaff {
		name := "Lock column"
		if locks[key.Field] {
			name = "Unlock column"
		}
		items = append(items, MenuItem{Key: ActionToggleLock, Name: name, Disabled: readOnly})
	}
	return items
}

func hasEditableColumn(p Projection) bool {
	for _, c := range p {
		if c.Editable {
			return true
		}
	}
	return false
}
