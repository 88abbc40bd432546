package patient

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/clinicops/internal/domain/sheet"
)

var (
	ErrNotFound = errors.New("patient not found")
	ErrInvalid  = errors.New("invalid patient")
)

// Patient is the reference record a sheet row's patient id auto-fills from.
type Patient struct {
	ID          uuid.UUID `json:"id"`
	ClinicID    string    `json:"clinic_id"`
	Code        string    `json:"code"`
	FirstName   *string   `json:"first_name,omitempty"`
	LastName    *string   `json:"last_name,omitempty"`
	Insurance   *string   `json:"insurance,omitempty"`
	Copay       *string   `json:"copay,omitempty"`
	Coinsurance *string   `json:"coinsurance,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Label is the picker text, "<code> - <first> <last>". The sheet extracts the
// code back out of it on edit.
func (p *Patient) Label() string {
	name := strings.TrimSpace(deref(p.FirstName) + " " + deref(p.LastName))
	if name == "" {
		return p.Code
	}
	return p.Code + " - " + name
}

func (p *Patient) ToRef() sheet.PatientRef {
	return sheet.PatientRef{
		Code:        p.Code,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Insurance:   p.Insurance,
		Copay:       p.Copay,
		Coinsurance: p.Coinsurance,
	}
}

func (p *Patient) normalize() {
	p.Code = strings.TrimSpace(p.Code)
	for _, s := range []**string{&p.FirstName, &p.LastName, &p.Insurance, &p.Copay, &p.Coinsurance} {
		if *s == nil {
			continue
		}
		v := strings.TrimSpace(**s)
		if v == "" {
			*s = nil
		} else {
			*s = &v
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
