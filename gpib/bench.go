package gpib

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Identification strings answered by the simulated bench.
const (
	SimSourceIDN = "KEITHLEY INSTRUMENTS INC.,MODEL 2410,1234567,C33 Mar 31 2015 09:32:39/A02  /K/J"
	SimSensorIDN = "KEITHLEY INSTRUMENTS INC.,MODEL 6487,4096012,A04 Oct 26 2007 13:31:28/A02  /E"
)

// Bench is a virtual source plus sensor pair. The sensor current follows the
// source voltage through a linear leakage model:
//
//	I = Offset + Conductance*V + Noise*sin(n)
//
// where n is the number of readings taken so far. The output must be on for
// the voltage term to contribute.
type Bench struct {
	mu sync.Mutex

	Conductance float64
	Offset      float64
	Noise       float64
	// Tick is the timestamp increment per sensor reading, in seconds.
	Tick float64

	SourceIDN string
	SensorIDN string

	voltage  float64
	outputOn bool
	reads    uint64
}

// NewBench creates a bench with a 1 nA/V leakage and small deterministic noise.
func NewBench() *Bench {
	return &Bench{
		Conductance: 1e-9,
		Offset:      1e-12,
		Noise:       1e-13,
		Tick:        1,
		SourceIDN:   SimSourceIDN,
		SensorIDN:   SimSensorIDN,
	}
}

// Voltage returns the voltage currently applied by the source.
func (b *Bench) Voltage() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.voltage
}

// OutputOn reports whether the source output is enabled.
func (b *Bench) OutputOn() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.outputOn
}

// Source returns the responder of the voltage source.
func (b *Bench) Source() Responder {
	return ResponderFunc(b.respondSource)
}

// Sensor returns the responder of the current sensor.
func (b *Bench) Sensor() Responder {
	return ResponderFunc(b.respondSensor)
}

func (b *Bench) current() float64 {
	i := b.Offset + b.Noise*math.Sin(float64(b.reads))
	if b.outputOn {
		i += b.Conductance * b.voltage
	}

	return i
}

func (b *Bench) respondSource(_ Address, command string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fields := strings.Fields(strings.ToUpper(command))
	if len(fields) == 0 {
		return "", false
	}

	switch fields[0] {
	case "*IDN?":
		return b.SourceIDN, true
	case "*RST":
		b.voltage = 0
		b.outputOn = false
	case ":SOUR:VOLT:LEV", ":SOUR:VOLT", ":SOURCE:VOLTAGE:LEVEL":
		if len(fields) < 2 {
			return "", false
		}
		if v, err := strconv.ParseFloat(fields[1], 64); err == nil {
			b.voltage = v
		}
	case ":SOUR:VOLT:LEV?", ":SOUR:VOLT?":
		return fmt.Sprintf("%+.6E", b.voltage), true
	case ":OUTP", ":OUTPUT":
		if len(fields) >= 2 {
			b.outputOn = fields[1] == "ON" || fields[1] == "1"
		}
	case ":READ?":
		b.reads++
		return fmt.Sprintf("%+.6E,%+.6E,+9.910000E+37,%+.6E,+1.000000E+00", b.voltage, b.current(), float64(b.reads)*b.Tick), true
	}

	return "", false
}

func (b *Bench) respondSensor(_ Address, command string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fields := strings.Fields(strings.ToUpper(command))
	if len(fields) == 0 {
		return "", false
	}

	switch fields[0] {
	case "*IDN?":
		return b.SensorIDN, true
	case ":READ?", "READ?":
		b.reads++
		return fmt.Sprintf("%+.6EA,%+.6E,+0.000000E+00", b.current(), float64(b.reads)*b.Tick), true
	}

	return "", false
}
