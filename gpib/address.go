package gpib

import (
	"fmt"
)

// Address limits.
const (
	MaxPrimary   = 30
	MaxSecondary = 15

	// secondaryBase is added to the secondary address on the wire (SAD = 96 + n).
	secondaryBase = 96
)

// Address is the bus location of one instrument.
// A zero Secondary means that no secondary address is used.
type Address struct {
	Primary   uint8
	Secondary uint8
}

// NewAddress validates primary and secondary and returns the Address.
func NewAddress(primary, secondary int) (Address, error) {
	if primary < 0 || primary > MaxPrimary {
		return Address{}, fmt.Errorf("%w: primary %d not in [0, %d]", ErrAddressOutOfRange, primary, MaxPrimary)
	}
	if secondary < 0 || secondary > MaxSecondary {
		return Address{}, fmt.Errorf("%w: secondary %d not in [0, %d]", ErrAddressOutOfRange, secondary, MaxSecondary)
	}

	return Address{Primary: uint8(primary), Secondary: uint8(secondary)}, nil
}

// Validate checks the address ranges. Addresses built as struct literals
// bypass NewAddress, so every transport calls Validate in Open.
func (a Address) Validate() error {
	_, err := NewAddress(int(a.Primary), int(a.Secondary))
	return err
}

// HasSecondary reports whether a secondary address is in use.
func (a Address) HasSecondary() bool { return a.Secondary != 0 }

// String returns the VISA-like resource form, e.g. "GPIB::22" or "GPIB::22::5".
func (a Address) String() string {
	if a.HasSecondary() {
		return fmt.Sprintf("GPIB::%d::%d", a.Primary, a.Secondary)
	}

	return fmt.Sprintf("GPIB::%d", a.Primary)
}
