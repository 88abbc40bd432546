package sheet

import (
	"fmt"
	"strings"
	"time"

	"github.com/tiendc/go-deepcopy"
)

// RowID identifies a row inside an owner's sequence. Three regimes share the
// same string space: placeholders ("empty-<owner>-<n>"), locally created rows
// pending their first save ("new-<ts>-<counter>-<rand>") and server-issued ids.
type RowID string

const (
	placeholderPrefix = "empty-"
	localPrefix       = "new-"
)

// IDKind is the identity regime of a RowID.
type IDKind int

const (
	KindPersisted IDKind = iota
	KindPlaceholder
	KindLocal
)

func (k IDKind) String() string {
	switch k {
	case KindPlaceholder:
		return "placeholder"
	case KindLocal:
		return "local"
	default:
		return "persisted"
	}
}

// Kind reports which identity regime the id belongs to.
func (id RowID) Kind() IDKind {
	s := string(id)
	switch {
	case strings.HasPrefix(s, placeholderPrefix):
		return KindPlaceholder
	case strings.HasPrefix(s, localPrefix):
		return KindLocal
	default:
		return KindPersisted
	}
}

func (id RowID) IsPlaceholder() bool { return id.Kind() == KindPlaceholder }
func (id RowID) IsLocal() bool       { return id.Kind() == KindLocal }

// PlaceholderID builds the deterministic id of the n-th padding row of an owner.
func PlaceholderID(owner string, n int) RowID {
	return RowID(fmt.Sprintf("%s%s-%d", placeholderPrefix, owner, n))
}

// SheetKind names a tab of the clinic workbook. Only provider sheets carry
// SheetRow data; the other kinds scope locks and annotations.
type SheetKind string

const (
	KindProviderSheet      SheetKind = "provider_sheet"
	KindBillingTodo        SheetKind = "billing_todo"
	KindAccountsReceivable SheetKind = "accounts_receivable"
	KindPatients           SheetKind = "patients"
)

var validSheetKinds = map[SheetKind]bool{
	KindProviderSheet: true, KindBillingTodo: true, KindAccountsReceivable: true, KindPatients: true,
}

// ParseSheetKind validates a sheet kind coming from a request.
func ParseSheetKind(s string) (SheetKind, error) {
	if s == "" {
		return KindProviderSheet, nil
	}
	k := SheetKind(s)
	if !validSheetKinds[k] {
		return "", fmt.Errorf("invalid sheet kind: %s", s)
	}
	return k, nil
}

// SheetKey addresses one owner's sequence for one month.
type SheetKey struct {
	ClinicID string `json:"clinic_id"`
	OwnerID  string `json:"owner_id"`
	Year     int    `json:"year"`
	Month    int    `json:"month"`
}

func (k SheetKey) Validate() error {
	if k.ClinicID == "" {
		return fmt.Errorf("clinic_id is required")
	}
	if k.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if strings.ContainsAny(k.OwnerID, " \t\n") {
		return fmt.Errorf("invalid owner_id: %q", k.OwnerID)
	}
	if k.Month < 1 || k.Month > 12 {
		return fmt.Errorf("invalid month: %d", k.Month)
	}
	if k.Year < 2000 || k.Year > 9999 {
		return fmt.Errorf("invalid year: %d", k.Year)
	}
	return nil
}

// Topic is the websocket topic grids subscribe to for this sheet.
func (k SheetKey) Topic() string {
	return fmt.Sprintf("sheet:%s:%s:%04d-%02d", k.ClinicID, k.OwnerID, k.Year, k.Month)
}

func (k SheetKey) String() string {
	return fmt.Sprintf("%s/%s/%04d-%02d", k.ClinicID, k.OwnerID, k.Year, k.Month)
}

// BillingCode is one entry of a row's CPT list together with the color
// resolved for it at edit time.
type BillingCode struct {
	Code  string `json:"code"`
	Color string `json:"color"`
}

// SheetRow is one appointment/billing line of a provider sheet.
type SheetRow struct {
	ID RowID `json:"id"`

	PatientID          *string `json:"patient_id"`
	PatientFirstName   *string `json:"patient_first_name"`
	PatientLastInitial *string `json:"patient_last_initial"`
	PatientInsurance   *string `json:"patient_insurance"`
	PatientCopay       *string `json:"patient_copay"`
	PatientCoinsurance *string `json:"patient_coinsurance"`

	AppointmentDate        *string       `json:"appointment_date"`
	CPTCodes               []BillingCode `json:"cpt_codes"`
	AppointmentStatus      *string       `json:"appointment_status"`
	AppointmentStatusColor *string       `json:"appointment_status_color"`

	ClaimStatus         *string `json:"claim_status"`
	ClaimStatusColor    *string `json:"claim_status_color"`
	SubmitDate          *string `json:"submit_date"`
	InsurancePayment    *string `json:"insurance_payment"`
	PaymentDate         *string `json:"payment_date"`
	InsuranceAdjustment *string `json:"insurance_adjustment"`

	CollectedFromPatient  *string `json:"collected_from_patient"`
	PatientPayStatus      *string `json:"patient_pay_status"`
	PatientPayStatusColor *string `json:"patient_pay_status_color"`
	ARDate                *string `json:"ar_date"`
	ARDateColor           *string `json:"ar_date_color"`

	Total *string `json:"total"`
	Notes *string `json:"notes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// slot returns the address of a scalar field. CPT fields are list-backed and
// have no slot.
func (r *SheetRow) slot(f Field) **string {
	switch f {
	case FieldPatientID:
		return &r.PatientID
	case FieldPatientFirstName:
		return &r.PatientFirstName
	case FieldPatientLastInitial:
		return &r.PatientLastInitial
	case FieldPatientInsurance:
		return &r.PatientInsurance
	case FieldPatientCopay:
		return &r.PatientCopay
	case FieldPatientCoinsurance:
		return &r.PatientCoinsurance
	case FieldAppointmentDate:
		return &r.AppointmentDate
	case FieldAppointmentStatus:
		return &r.AppointmentStatus
	case FieldAppointmentStatusColor:
		return &r.AppointmentStatusColor
	case FieldClaimStatus:
		return &r.ClaimStatus
	case FieldClaimStatusColor:
		return &r.ClaimStatusColor
	case FieldSubmitDate:
		return &r.SubmitDate
	case FieldInsurancePayment:
		return &r.InsurancePayment
	case FieldPaymentDate:
		return &r.PaymentDate
	case FieldInsuranceAdjustment:
		return &r.InsuranceAdjustment
	case FieldCollectedFromPatient:
		return &r.CollectedFromPatient
	case FieldPatientPayStatus:
		return &r.PatientPayStatus
	case FieldPatientPayStatusColor:
		return &r.PatientPayStatusColor
	case FieldARDate:
		return &r.ARDate
	case FieldARDateColor:
		return &r.ARDateColor
	case FieldTotal:
		return &r.Total
	case FieldNotes:
		return &r.Notes
	}
	return nil
}

// Get returns the value of a field in its grid/wire form. CPT codes and their
// colors are comma-joined here and nowhere else.
func (r *SheetRow) Get(f Field) *string {
	switch f {
	case FieldCPTCode:
		return joinCodes(r.CPTCodes, func(c BillingCode) string { return c.Code })
	case FieldCPTCodeColor:
		return joinCodes(r.CPTCodes, func(c BillingCode) string { return c.Color })
	}
	if p := r.slot(f); p != nil {
		return *p
	}
	return nil
}

// Set assigns a field from its grid/wire form. Setting FieldCPTCode keeps the
// color of codes that survive; FieldCPTCodeColor assigns colors positionally.
func (r *SheetRow) Set(f Field, v *string) {
	switch f {
	case FieldCPTCode:
		prev := make(map[string]string, len(r.CPTCodes))
		for _, c := range r.CPTCodes {
			prev[c.Code] = c.Color
		}
		codes := SplitList(v)
		r.CPTCodes = nil
		for _, code := range codes {
			r.CPTCodes = append(r.CPTCodes, BillingCode{Code: code, Color: prev[code]})
		}
		return
	case FieldCPTCodeColor:
		colors := SplitList(v)
		for i := range r.CPTCodes {
			if i < len(colors) {
				r.CPTCodes[i].Color = colors[i]
			} else {
				r.CPTCodes[i].Color = ""
			}
		}
		return
	}
	if p := r.slot(f); p != nil {
		*p = v
	}
}

// HasData reports whether any grid or shadow field carries a value.
func (r *SheetRow) HasData() bool {
	if len(r.CPTCodes) > 0 {
		return true
	}
	for _, f := range allStoredFields {
		if f == FieldCPTCode || f == FieldCPTCodeColor {
			continue
		}
		if r.Get(f) != nil {
			return true
		}
	}
	return false
}

func joinCodes(codes []BillingCode, pick func(BillingCode) string) *string {
	if len(codes) == 0 {
		return nil
	}
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = pick(c)
	}
	s := strings.Join(parts, ",")
	return &s
}

// SplitList splits a comma-joined cell value, trimming entries and dropping
// blanks.
func SplitList(v *string) []string {
	if v == nil {
		return nil
	}
	var out []string
	for _, part := range strings.Split(*v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// CloneRows returns a deep copy of a row sequence so a working copy never
// shares pointers with the snapshot it was taken from.
func CloneRows(rows []SheetRow) ([]SheetRow, error) {
	out := make([]SheetRow, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	if err := deepcopy.Copy(&out, &rows); err != nil {
		return nil, fmt.Errorf("clone rows: %w", err)
	}
	return out, nil
}

// Mutation is a single field write against an owner's row.
type Mutation struct {
	OwnerID string  `json:"owner_id"`
	RowID   RowID   `json:"row_id"`
	Field   Field   `json:"field"`
	Value   *string `json:"value"`
}

// SaveRequest asks the persistence adapter to write an owner's full sequence.
type SaveRequest struct {
	Key       SheetKey `json:"key"`
	Immediate bool     `json:"immediate"`
}

func strPtr(s string) *string { return &s }

func strEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
