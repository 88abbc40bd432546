package sheet

import "fmt"

// DefaultMinRows is the smallest visible sequence length of a provider sheet.
const DefaultMinRows = 200

// EnsurePadding appends placeholder rows until rows has at least min entries.
// Existing rows are kept verbatim and in order. Placeholder indexes start at
// the number of placeholders already present and skip ids in use, so repeated
// calls never mint a colliding id.
func EnsurePadding(owner string, rows []SheetRow, min int) []SheetRow {
	if len(rows) >= min {
		return rows
	}
	used := make(map[RowID]bool, len(rows))
	next := 0
	for _, r := range rows {
		used[r.ID] = true
		if r.ID.IsPlaceholder() {
			next++
		}
	}
	out := make([]SheetRow, len(rows), min)
	copy(out, rows)
	for len(out) < min {
		id := PlaceholderID(owner, next)
		next++
		if used[id] {
			continue
		}
		out = append(out, SheetRow{ID: id})
	}
	return out
}

// ConvertPlaceholderToReal gives a placeholder row a local id so it can be
// edited and saved. Rows that are already local or persisted are returned as
// is.
func ConvertPlaceholderToReal(row SheetRow, ids *IDGenerator) SheetRow {
	if !row.ID.IsPlaceholder() {
		return row
	}
	now := ids.now().UTC()
	row.ID = ids.Next()
	row.CreatedAt = now
	row.UpdatedAt = now
	return row
}

// DeleteRow removes the row at index and repads the sequence. The caller is
// expected to persist the result immediately.
func DeleteRow(owner string, rows []SheetRow, index, min int) ([]SheetRow, SheetRow, error) {
	if index < 0 || index >= len(rows) {
		return rows, SheetRow{}, fmt.Errorf("delete row %d: %w", index, ErrRowIndex)
	}
	removed := rows[index]
	if removed.ID.IsPlaceholder() {
		return rows, SheetRow{}, ErrPlaceholderDelete
	}
	out := make([]SheetRow, 0, len(rows))
	out = append(out, rows[:index]...)
	out = append(out, rows[index+1:]...)
	return EnsurePadding(owner, out, min), removed, nil
}

// MoveRows moves a contiguous block of rows so that its first row lands at
// dest in the resulting sequence. Relative order and contents are kept.
func MoveRows(rows []SheetRow, sources []int, dest int) ([]SheetRow, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no source rows", ErrInvalidMove)
	}
	start := sources[0]
	for i, s := range sources {
		if s != start+i {
			return nil, fmt.Errorf("%w: source rows must be contiguous", ErrInvalidMove)
		}
	}
	end := start + len(sources)
	if start < 0 || end > len(rows) {
		return nil, fmt.Errorf("%w: source rows out of range", ErrInvalidMove)
	}
	if dest < 0 || dest > len(rows)-len(sources) {
		return nil, fmt.Errorf("%w: destination %d out of range", ErrInvalidMove, dest)
	}

	block := append([]SheetRow{}, rows[start:end]...)
	rest := make([]SheetRow, 0, len(rows)-len(block))
	rest = append(rest, rows[:start]...)
	rest = append(rest, rows[end:]...)

	out := make([]SheetRow, 0, len(rows))
	out = append(out, rest[:dest]...)
	out = append(out, block...)
	out = append(out, rest[dest:]...)
	return out, nil
}

// indexByID maps row ids to their position.
func indexByID(rows []SheetRow) map[RowID]int {
	m := make(map[RowID]int, len(rows))
	for i, r := range rows {
		m[r.ID] = i
	}
	return m
}

// StoredRow is a persisted row together with its position in the owner's
// sequence at save time.
type StoredRow struct {
	Row      SheetRow
	Position int
}

// PlaceRows lays persisted rows out at their saved positions, filling gaps
// with placeholders, then pads to min. Rows sharing a position keep their
// relative order and shift the rows after them.
func PlaceRows(owner string, stored []StoredRow, min int) []SheetRow {
	out := make([]SheetRow, 0, min)
	next := 0
	for _, s := range stored {
		for len(out) < s.Position {
			out = append(out, SheetRow{ID: PlaceholderID(owner, next)})
			next++
		}
		out = append(out, s.Row)
	}
	return EnsurePadding(owner, out, min)
}

// Positioned pairs every savable row of a sequence with its index. Placeholders
// and local rows that never received data are dropped.
func Positioned(rows []SheetRow) []StoredRow {
	var out []StoredRow
	for i, r := range rows {
		if r.ID.IsPlaceholder() {
			continue
		}
		if r.ID.IsLocal() && !r.HasData() {
			continue
		}
		out = append(out, StoredRow{Row: r, Position: i})
	}
	return out
}
