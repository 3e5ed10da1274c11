package config

import (
	"errors"
	"fmt"
	"math"

	"github.com/arloliu/go-ivscan/device"
	"github.com/arloliu/go-ivscan/gpib"
	"github.com/arloliu/go-ivscan/logger"
	"github.com/arloliu/go-ivscan/messenger"
	"github.com/arloliu/go-ivscan/scan"
	"github.com/arloliu/go-ivscan/scpi"
)

const (
	// maxStages bounds a range expansion.
	maxStages = 100000
	// rangeEpsilon absorbs rounding in the stage count of fractional steps.
	rangeEpsilon = 1e-9
)

// LogLevel parses the configured log level.
func (c *Config) LogLevel() (logger.Level, error) {
	return logger.ParseLevel(c.Log.Level)
}

// Logger builds the configured logger. Format "console" selects the
// console-slog handler.
func (c *Config) Logger() (logger.Logger, error) {
	level, err := c.LogLevel()
	if err != nil {
		return nil, err
	}

	return logger.NewSlogWithOptions(logger.Options{Level: level, Format: c.Log.Format}), nil
}

// Validate checks the backend and its connection parameters.
func (b BusConfig) Validate() error {
	switch b.Backend {
	case BackendPrologixSerial:
		if b.Port == "" {
			return errors.New("bus.port is empty")
		}
	case BackendPrologixTCP:
		if b.Host == "" {
			return errors.New("bus.host is empty")
		}
		if b.TCPPort <= 0 || b.TCPPort > math.MaxUint16 {
			return fmt.Errorf("bus.tcp_port %d out of range", b.TCPPort)
		}
	case BackendSim:
	default:
		return fmt.Errorf("unknown bus.backend %q", b.Backend)
	}

	return nil
}

// Dialer returns a shared dialer for the Prologix backends, so that both
// instruments use one controller. It fails for the sim backend.
func (b BusConfig) Dialer() (gpib.Dialer, error) {
	switch b.Backend {
	case BackendPrologixSerial:
		return gpib.SharedDialer(gpib.SerialDialer(b.Port, b.Baud)), nil
	case BackendPrologixTCP:
		return gpib.SharedDialer(gpib.TCPDialer(b.Host, b.TCPPort)), nil
	default:
		return nil, fmt.Errorf("bus.backend %q has no dialer", b.Backend)
	}
}

// PrologixOptions returns the transport options of the Prologix backends.
func (b BusConfig) PrologixOptions(terminator byte, l logger.Logger) []gpib.PrologixOption {
	opts := []gpib.PrologixOption{gpib.WithTerminator(terminator)}
	if b.ReadTimeout > 0 {
		opts = append(opts, gpib.WithReadTimeout(b.ReadTimeout))
	}
	if l != nil {
		opts = append(opts, gpib.WithLogger(l))
	}

	return opts
}

// ResponseGrammar returns the response grammar named by the grammar field.
func (m MessengerConfig) ResponseGrammar() (scpi.Grammar, error) {
	return scpi.GrammarByName(m.Grammar)
}

// TerminatorByte returns the response terminator. Empty means LF; the escape
// sequences "\n" and "\r" and the names LF and CR are accepted.
func (m MessengerConfig) TerminatorByte() (byte, error) {
	switch m.Terminator {
	case "", "\n", `\n`, "LF", "lf":
		return '\n', nil
	case "\r", `\r`, "CR", "cr":
		return '\r', nil
	}
	if len(m.Terminator) != 1 {
		return 0, fmt.Errorf("messenger.terminator %q is not a single byte", m.Terminator)
	}

	return m.Terminator[0], nil
}

// Options returns the messenger options. Clock and logger are added by the
// caller.
func (m MessengerConfig) Options() ([]messenger.Option, error) {
	term, err := m.TerminatorByte()
	if err != nil {
		return nil, err
	}

	opts := []messenger.Option{
		messenger.WithAckDelay(m.AckDelay),
		messenger.WithTerminator(term),
	}
	if m.ReadBuffer > 0 {
		opts = append(opts, messenger.WithReadBufferSize(m.ReadBuffer))
	}

	return opts, nil
}

// Address converts and validates the address.
func (a AddressConfig) Address() (gpib.Address, error) {
	return gpib.NewAddress(a.Primary, a.Secondary)
}

// Identity converts the identity.
func (i IdentityConfig) Identity() scan.Identity {
	return scan.Identity{Manufacturer: i.Manufacturer, Model: i.Model}
}

// Commands returns the command lists with blank entries dropped.
func (i InstrumentConfig) Commands() device.CommandSet {
	return device.NewCommandSet(i.ConfigCommands, i.OperationCommands, i.ClosingCommands)
}

// IsSet reports whether a range was configured.
func (r RangeConfig) IsSet() bool { return r.Step != 0 || r.Start != 0 || r.Stop != 0 }

// Expand lists the range values like Python's range: start inclusive, stop
// exclusive, moving by step. Values are computed from the index, so float
// steps do not accumulate error.
func (r RangeConfig) Expand() ([]float64, error) {
	if r.Step == 0 || math.IsNaN(r.Step) || math.IsInf(r.Step, 0) {
		return nil, fmt.Errorf("plan.range.step %g must be finite and non-zero", r.Step)
	}
	if math.IsNaN(r.Start) || math.IsInf(r.Start, 0) || math.IsNaN(r.Stop) || math.IsInf(r.Stop, 0) {
		return nil, errors.New("plan.range bounds must be finite")
	}

	n := math.Ceil((r.Stop-r.Start)/r.Step - rangeEpsilon)
	if n <= 0 {
		return nil, nil
	}
	if n > maxStages {
		return nil, fmt.Errorf("plan.range has %g stages, more than %d", n, maxStages)
	}

	out := make([]float64, int(n))
	for i := range out {
		out[i] = r.Start + float64(i)*r.Step
	}

	return out, nil
}

// VoltageList returns the explicit voltages, or the expanded range. Setting
// both is an error.
func (p PlanConfig) VoltageList() ([]float64, error) {
	switch {
	case len(p.Voltages) > 0 && p.Range.IsSet():
		return nil, errors.New("plan: set either voltages or range, not both")
	case len(p.Voltages) > 0:
		return append([]float64(nil), p.Voltages...), nil
	case p.Range.IsSet():
		return p.Range.Expand()
	default:
		return nil, errors.New("plan: no voltages")
	}
}

// RampPlan converts and validates the plan.
func (p PlanConfig) RampPlan() (scan.RampPlan, error) {
	voltages, err := p.VoltageList()
	if err != nil {
		return scan.RampPlan{}, err
	}

	// The ramp-down sequence walks every applied level in descending order,
	// which would bias a mirrored sweep up to its positive peak again.
	if p.BothPolarities {
		if p.RampDown {
			return scan.RampPlan{}, errors.New("plan: both_polarities already ends at 0 V; disable ramp_down")
		}
		voltages = scan.MirrorSweep(voltages)
	}

	plan := scan.RampPlan{
		Voltages:     voltages,
		TestVoltage:  p.TestVoltage,
		Settle:       p.Settle,
		TestDuration: p.TestDuration,
		Repetitions:  p.Repetitions,
		RampDown:     p.RampDown,
	}
	if err := plan.Validate(); err != nil {
		return scan.RampPlan{}, err
	}

	return plan, nil
}
