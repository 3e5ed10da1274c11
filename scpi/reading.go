package scpi

import (
	"strings"
)

// Reading is one decoded measurement line.
type Reading struct {
	Value float64
	// Unit is the unit letter of the value field, empty when absent.
	Unit string
	// Timestamp is the instrument timestamp truncated to an integer, 0 when
	// the line had no timestamp field.
	Timestamp uint64
	// Raw is the undecoded line.
	Raw string
}

// ParseReading decodes a measurement line under grammar g.
//
// The first field is the value. When unit is not empty, the value's unit
// letter must equal it. The optional second field is the timestamp. Further
// fields are only counted.
func ParseReading(line, unit string, g Grammar) (Reading, error) {
	fields := strings.Split(line, ",")
	if err := g.checkFields(len(fields)); err != nil {
		return Reading{}, &ParseError{Input: line, Reason: "field count", Err: err}
	}

	value, err := ParseNumber(fields[0])
	if err != nil {
		return Reading{}, err
	}
	if g.RequireUnit && value.Unit == "" {
		return Reading{}, &ParseError{Input: line, Reason: "missing unit letter"}
	}
	if unit != "" && value.Unit != unit {
		return Reading{}, &UnitMismatchError{Expected: unit, Got: value.Unit}
	}

	reading := Reading{Value: value.Value, Unit: value.Unit, Raw: line}
	if len(fields) > 1 {
		ts, err := ParseNumber(fields[1])
		if err != nil {
			return Reading{}, err
		}

		var ok bool
		if reading.Timestamp, ok = toTimestamp(ts.Value); !ok {
			return Reading{}, &ParseError{Input: line, Reason: "timestamp out of range"}
		}
	}

	return reading, nil
}
