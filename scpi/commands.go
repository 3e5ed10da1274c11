package scpi

import (
	"strconv"
)

// Commands understood by both bench instruments.
const (
	Reset        = "*RST"
	Identify     = "*IDN?"
	ClearStatus  = "*CLS"
	Initiate     = "INIT"
	Read         = ":READ?"
	OutputOn     = ":OUTP ON"
	OutputOff    = ":OUTP OFF"
	QueryVoltage = ":SOUR:VOLT:LEV?"
)

const setVoltagePrefix = ":SOUR:VOLT:LEV "

// SetVoltage returns the command that sets the source level to v volts.
func SetVoltage(v float64) string {
	return setVoltagePrefix + FormatNumber(v)
}

// FormatNumber formats v in the shortest form that parses back to v.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
