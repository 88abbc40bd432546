package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/clinicops/clinicops/internal/domain/sheet"
)

var ErrInvalid = errors.New("invalid catalog entry")

// BillingCode is one entry of the billing code table.
type BillingCode struct {
	Code        string  `json:"code" yaml:"code"`
	Description *string `json:"description,omitempty" yaml:"description"`
	Color       *string `json:"color,omitempty" yaml:"color"`
}

// Tables is a clinic's complete catalog.
type Tables struct {
	StatusColors []sheet.StatusColor `json:"status_colors" yaml:"status_colors"`
	BillingCodes []BillingCode       `json:"billing_codes" yaml:"billing_codes"`
}

func (t Tables) Empty() bool {
	return len(t.StatusColors) == 0 && len(t.BillingCodes) == 0
}

func (t Tables) ColorTable() sheet.ColorTable {
	return sheet.NewColorTable(t.StatusColors)
}

func (t Tables) CodeTable() sheet.CodeTable {
	ct := make(sheet.CodeTable, len(t.BillingCodes))
	for _, c := range t.BillingCodes {
		if c.Color == nil {
			continue
		}
		ct[strings.ToUpper(c.Code)] = *c.Color
	}
	return ct
}

var statusTypes = map[sheet.StatusType]bool{
	sheet.StatusAppointment: true,
	sheet.StatusClaim:       true,
	sheet.StatusPatientPay:  true,
	sheet.StatusMonth:       true,
}

func validateStatusColor(c *sheet.StatusColor) error {
	c.Status = strings.TrimSpace(c.Status)
	if c.Status == "" {
		return fmt.Errorf("%w: status is required", ErrInvalid)
	}
	if !statusTypes[c.Type] {
		return fmt.Errorf("%w: unknown status type %q", ErrInvalid, c.Type)
	}
	if c.Background == "" {
		return fmt.Errorf("%w: background_color is required", ErrInvalid)
	}
	if c.Text == "" {
		c.Text = "#000000"
	}
	return nil
}

func validateBillingCode(c *BillingCode) error {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	if c.Code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalid)
	}
	if strings.Contains(c.Code, ",") {
		return fmt.Errorf("%w: code %q may not contain a comma", ErrInvalid, c.Code)
	}
	return nil
}
