package sheet

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// NeutralCodeColor is used for billing codes missing from the code table.
const NeutralCodeColor = "#e0e0e0"

// PatientRef is the slice of a patient record used for auto-fill.
type PatientRef struct {
	Code        string  `json:"code"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Insurance   *string `json:"insurance"`
	Copay       *string `json:"copay"`
	Coinsurance *string `json:"coinsurance"`
}

// LastInitial returns the upper-cased first letter of the last name.
func (p PatientRef) LastInitial() *string {
	if p.LastName == nil {
		return nil
	}
	s := strings.TrimSpace(*p.LastName)
	if s == "" {
		return nil
	}
	r, _ := utf8.DecodeRuneInString(s)
	out := string(unicode.ToUpper(r))
	return &out
}

// PatientIndex resolves patient codes case-insensitively.
type PatientIndex map[string]PatientRef

func NewPatientIndex(refs []PatientRef) PatientIndex {
	idx := make(PatientIndex, len(refs))
	for _, r := range refs {
		key := normalizeKey(r.Code)
		if key == "" {
			continue
		}
		idx[key] = r
	}
	return idx
}

func (idx PatientIndex) Lookup(code string) (PatientRef, bool) {
	ref, ok := idx[normalizeKey(code)]
	return ref, ok
}

// ColorPair is a display color resolved for a status value.
type ColorPair struct {
	Background string `json:"background_color" yaml:"background_color"`
	Text       string `json:"text_color" yaml:"text_color"`
}

// StatusColor is one row of the status→color table.
type StatusColor struct {
	Status string     `json:"status" yaml:"status"`
	Type   StatusType `json:"type" yaml:"type"`
	ColorPair `yaml:",inline"`
}

type colorKey struct {
	status string
	typ    StatusType
}

// ColorTable maps (status text, status type) to a display color.
type ColorTable map[colorKey]ColorPair

func NewColorTable(entries []StatusColor) ColorTable {
	t := make(ColorTable, len(entries))
	for _, e := range entries {
		t[colorKey{status: normalizeKey(e.Status), typ: e.Type}] = e.ColorPair
	}
	return t
}

func (t ColorTable) Lookup(status string, typ StatusType) (ColorPair, bool) {
	c, ok := t[colorKey{status: normalizeKey(status), typ: typ}]
	return c, ok
}

// CodeTable maps billing codes to their display color.
type CodeTable map[string]string

func (t CodeTable) Color(code string) string {
	if c, ok := t[strings.ToUpper(strings.TrimSpace(code))]; ok && c != "" {
		return c
	}
	return NeutralCodeColor
}

// DeriveEnv carries every lookup a derivation may consult. Derivations read
// nothing else.
type DeriveEnv struct {
	Patients       PatientIndex
	Colors         ColorTable
	Codes          CodeTable
	HighlightColor string
	ReservedColor  string
}

// Assignment sets Field to Value. A nil Value clears the field.
type Assignment struct {
	Field Field   `json:"field"`
	Value *string `json:"value"`
}

// AnnotationEffect is a highlight change the annotation store must apply as a
// consequence of an edit. A nil Highlight removes the highlight.
type AnnotationEffect struct {
	RowID     RowID   `json:"row_id"`
	Field     Field   `json:"field"`
	Highlight *string `json:"highlight"`
}

// Patch is the result of a derivation: ordered field assignments plus
// annotation side effects. A field absent from Assignments is left untouched.
type Patch struct {
	Assignments []Assignment       `json:"assignments"`
	Annotations []AnnotationEffect `json:"annotations,omitempty"`
}

func (p *Patch) set(f Field, v *string) {
	for i := range p.Assignments {
		if p.Assignments[i].Field == f {
			p.Assignments[i].Value = v
			return
		}
	}
	p.Assignments = append(p.Assignments, Assignment{Field: f, Value: v})
}

// Lookup returns the assigned value of f and whether f is part of the patch.
func (p Patch) Lookup(f Field) (*string, bool) {
	for _, a := range p.Assignments {
		if a.Field == f {
			return a.Value, true
		}
	}
	return nil, false
}

// ApplyTo writes every assignment into row.
func (p Patch) ApplyTo(row *SheetRow) {
	for _, a := range p.Assignments {
		row.Set(a.Field, a.Value)
	}
}

// ExtractPatientCode takes the id part of a "<id> - <display name>" picker
// label. Plain ids pass through trimmed.
func ExtractPatientCode(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, " - "); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// DeriveOnEdit computes the patch produced by writing raw into field of row.
// It is a pure function of its arguments.
func DeriveOnEdit(row SheetRow, field Field, raw string, env DeriveEnv) Patch {
	var p Patch
	value := Coerce(field, raw)
	spec := specByField[field]

	switch spec.kind {
	case kindPatientRef:
		p.set(field, value)
		if value == nil {
			break
		}
		ref, ok := env.Patients.Lookup(*value)
		if !ok {
			break
		}
		code := ref.Code
		p.set(FieldPatientID, &code)
		p.set(FieldPatientFirstName, ref.FirstName)
		p.set(FieldPatientLastInitial, ref.LastInitial())
		p.set(FieldPatientInsurance, ref.Insurance)
		p.set(FieldPatientCopay, ref.Copay)
		p.set(FieldPatientCoinsurance, ref.Coinsurance)

	case kindNumeric:
		p.set(field, value)
		if field != FieldInsurancePayment && field != FieldCollectedFromPatient {
			break
		}
		other := row.CollectedFromPatient
		if field == FieldCollectedFromPatient {
			other = row.InsurancePayment
		}
		total := amountOrZero(value).Add(amountOrZero(other)).String()
		p.set(FieldTotal, &total)
		if effect, ok := zeroHighlight(row, field, raw, value, env); ok {
			p.Annotations = append(p.Annotations, effect)
		}

	case kindStatus, kindMonth:
		p.set(field, value)
		var color *string
		if value != nil {
			if c, ok := env.Colors.Lookup(*value, spec.status); ok && c.Background != "" {
				bg := c.Background
				color = &bg
			}
		}
		p.set(spec.shadow, color)

	case kindCodes:
		codes := SplitList(value)
		colors := make([]string, len(codes))
		for i, code := range codes {
			colors[i] = env.Codes.Color(code)
		}
		p.set(FieldCPTCode, value)
		if len(colors) == 0 {
			p.set(FieldCPTCodeColor, nil)
		} else {
			joined := strings.Join(colors, ",")
			p.set(FieldCPTCodeColor, &joined)
		}

	case kindDerived:
		// computed fields ignore direct writes
	default:
		p.set(field, value)
	}
	return p
}

// zeroHighlight decides the automatic highlight for a payment cell. A zero
// amount highlights the cell; "00" typed into collected_from_patient uses the
// reserved color. Moving off zero removes the highlight it created.
func zeroHighlight(row SheetRow, field Field, raw string, value *string, env DeriveEnv) (AnnotationEffect, bool) {
	effect := AnnotationEffect{RowID: row.ID, Field: field}
	if value != nil && amountOrZero(value).IsZero() {
		color := env.HighlightColor
		if field == FieldCollectedFromPatient && strings.TrimSpace(raw) == "00" {
			color = env.ReservedColor
		}
		if color == "" {
			return effect, false
		}
		effect.Highlight = &color
		return effect, true
	}
	prev := row.Get(field)
	if prev != nil {
		if d, ok := parseAmount(*prev); ok && d.IsZero() {
			return effect, true
		}
	}
	return effect, false
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
