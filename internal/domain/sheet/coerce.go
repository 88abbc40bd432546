package sheet

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Accepted date inputs. Dates are stored as YYYY-MM-DD.
var dateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"01-02-2006",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
}

// Accepted month inputs. Months are stored as YYYY-MM.
var monthFormats = []string{
	"2006-01",
	"01/2006",
	"1/2006",
	"01/06",
	"1/06",
	"January 2006",
	"Jan 2006",
	"2006-01-02",
}

// coerceText trims a value and maps blanks to nil so "no value" is never an
// empty string.
func coerceText(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	return &s
}

// parseAmount parses a currency-ish cell value. "$1,250.00" and "(20)" are
// accepted; anything else is not a number.
func parseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// coerceNumeric normalizes a numeric cell to its decimal string or nil.
func coerceNumeric(raw string) *string {
	d, ok := parseAmount(raw)
	if !ok {
		return nil
	}
	s := d.String()
	return &s
}

// amountOrZero reads a stored numeric field, treating nil and garbage as 0.
func amountOrZero(v *string) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	d, ok := parseAmount(*v)
	if !ok {
		return decimal.Zero
	}
	return d
}

func coerceDate(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			out := t.Format("2006-01-02")
			return &out
		}
	}
	return nil
}

func coerceMonth(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	for _, layout := range monthFormats {
		if t, err := time.Parse(layout, s); err == nil {
			out := t.Format("2006-01")
			return &out
		}
	}
	return nil
}

// coerceCodes normalizes a comma-joined code list: upper-cased, trimmed,
// de-duplicated, order kept.
func coerceCodes(raw string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, code := range SplitList(&raw) {
		code = strings.ToUpper(code)
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}

// Coerce converts a raw grid value into the stored form of a field. It never
// fails: unparseable input becomes nil.
func Coerce(f Field, raw string) *string {
	spec, ok := specByField[f]
	if !ok {
		return coerceText(raw)
	}
	switch spec.kind {
	case kindNumeric, kindDerived:
		return coerceNumeric(raw)
	case kindDate:
		return coerceDate(raw)
	case kindMonth:
		return coerceMonth(raw)
	case kindCodes:
		codes := coerceCodes(raw)
		if len(codes) == 0 {
			return nil
		}
		s := strings.Join(codes, ",")
		return &s
	case kindPatientRef:
		return coerceText(ExtractPatientCode(raw))
	default:
		return coerceText(raw)
	}
}
