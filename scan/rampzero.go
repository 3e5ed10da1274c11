package scan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/arloliu/go-ivscan/internal/clock"
	"github.com/arloliu/go-ivscan/logger"
	"github.com/arloliu/go-ivscan/scpi"
)

// VoltageSource is the part of *device.Device used by RampToZero.
type VoltageSource interface {
	Fetch(ctx context.Context, cmd string) ([]string, error)
	Send(ctx context.Context, cmd string) error
}

// RampToZero queries the present source level and walks it to 0 V in steps
// of at most step volts, waiting settle after each step. It returns the
// commanded levels.
//
// It is meant for recovery when a previous run left the source biased.
func RampToZero(ctx context.Context, src VoltageSource, step float64, settle time.Duration, clk clock.Clock, l logger.Logger) ([]float64, error) {
	if !(step > 0) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("scan: ramp step %g must be positive", step)
	}
	if clk == nil {
		clk = clock.Real()
	}
	if l == nil {
		l = logger.GetLogger()
	}

	lines, err := src.Fetch(ctx, scpi.QueryVoltage)
	if err != nil {
		return nil, err
	}
	if len(lines) != 1 {
		return nil, &scpi.ParseError{Input: fmt.Sprint(lines), Reason: "source level query"}
	}
	level, err := scpi.ParseNumber(lines[0])
	if err != nil {
		return nil, err
	}

	seq := StepsToZero(level.Value, step)
	l.Info("ramping source to zero", "from", level.Value, "steps", len(seq))

	for _, v := range seq {
		if err := src.Send(ctx, scpi.SetVoltage(v)); err != nil {
			return seq, err
		}
		if err := clk.Sleep(ctx, settle); err != nil {
			return seq, errors.Join(fmt.Errorf("scan: ramp to zero interrupted at %g V", v), err)
		}
	}

	return seq, nil
}

// StepsToZero returns the levels from v toward 0, at most step apart,
// excluding v and ending with 0. It is empty when v is 0.
func StepsToZero(v, step float64) []float64 {
	if v == 0 {
		return nil
	}

	n := int(math.Ceil(roundNano(math.Abs(v) / step)))
	seq := make([]float64, 0, n)
	for i := 1; i < n; i++ {
		seq = append(seq, math.Copysign(roundNano(math.Abs(v)-float64(i)*step), v))
	}

	return append(seq, 0)
}

// roundNano rounds x to 1e-9, below any source resolution, so that repeated
// subtraction of step does not send levels like 0.6000000000000001.
func roundNano(x float64) float64 {
	return math.Round(x*1e9) / 1e9
}
