package scan

import (
	"fmt"
	"strings"
)

// Identity is the expected manufacturer and model of an instrument.
type Identity struct {
	Manufacturer string
	Model        string
}

// Validate checks that both fields are set.
func (id Identity) Validate() error {
	if strings.TrimSpace(id.Manufacturer) == "" || strings.TrimSpace(id.Model) == "" {
		return fmt.Errorf("%w: manufacturer %q, model %q", ErrIdentityRequired, id.Manufacturer, id.Model)
	}

	return nil
}

// Matches reports whether raw contains both the manufacturer and the model.
// The comparison is case-sensitive.
func (id Identity) Matches(raw string) bool {
	return strings.Contains(raw, id.Manufacturer) && strings.Contains(raw, id.Model)
}

func (id Identity) String() string {
	return id.Manufacturer + " " + id.Model
}
