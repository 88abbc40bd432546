package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var builtinDefaults []byte

// LoadDefaults reads the fallback tables from path, or the built-in set when
// path is empty.
func LoadDefaults(path string) (Tables, error) {
	data := builtinDefaults
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Tables{}, fmt.Errorf("read lookup defaults: %w", err)
		}
		data = b
	}
	return ParseDefaults(data)
}

func ParseDefaults(data []byte) (Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tables{}, fmt.Errorf("parse lookup defaults: %w", err)
	}
	for i := range t.StatusColors {
		if err := validateStatusColor(&t.StatusColors[i]); err != nil {
			return Tables{}, fmt.Errorf("status color %d: %w", i, err)
		}
	}
	for i := range t.BillingCodes {
		if err := validateBillingCode(&t.BillingCodes[i]); err != nil {
			return Tables{}, fmt.Errorf("billing code %d: %w", i, err)
		}
	}
	return t, nil
}
