package scan

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// RampPlan defines a full sweep. Voltages are visited in slice order, which
// is the sweep order and is not sorted.
type RampPlan struct {
	Voltages []float64
	// TestVoltage selects the stability test: a stage whose absolute voltage
	// equals TestVoltage runs it instead of the settle wait.
	TestVoltage float64
	// Settle is the wait before readings, and the polling interval of the
	// stability test.
	Settle time.Duration
	// TestDuration is the length of the stability test.
	TestDuration time.Duration
	// Repetitions is the number of readings averaged per stage.
	Repetitions int
	// RampDown walks the source back to 0 V at the end of the run.
	RampDown bool
}

// IsTestStage reports whether a stage at v runs the stability test.
func (p RampPlan) IsTestStage(v float64) bool {
	return math.Abs(v) == p.TestVoltage
}

// HasTestStage reports whether any stage runs the stability test.
func (p RampPlan) HasTestStage() bool {
	return slices.ContainsFunc(p.Voltages, p.IsTestStage)
}

// Validate checks that the plan can be run.
func (p RampPlan) Validate() error {
	var problems []string

	if len(p.Voltages) == 0 {
		problems = append(problems, "no ramp voltages")
	}
	for i, v := range p.Voltages {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			problems = append(problems, fmt.Sprintf("voltage %d is not finite", i))
		}
	}
	if math.IsNaN(p.TestVoltage) || math.IsInf(p.TestVoltage, 0) {
		problems = append(problems, "test voltage is not finite")
	}
	if p.Repetitions < 1 {
		problems = append(problems, fmt.Sprintf("repetitions %d < 1", p.Repetitions))
	}
	if p.Settle < 0 {
		problems = append(problems, fmt.Sprintf("negative settle time %v", p.Settle))
	}
	if p.TestDuration < 0 {
		problems = append(problems, fmt.Sprintf("negative test duration %v", p.TestDuration))
	}
	// The stability loop only advances through the settle wait.
	if p.HasTestStage() && p.Settle <= 0 {
		problems = append(problems, "stability test needs a positive settle time")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPlan, strings.Join(problems, "; "))
	}

	return nil
}

// RampDownSequence returns the distinct values of voltages plus 0, sorted
// strictly descending. It contains 0 exactly once.
func RampDownSequence(voltages []float64) []float64 {
	seq := make([]float64, 0, len(voltages)+1)
	seq = append(seq, 0)
	for _, v := range voltages {
		if v == 0 {
			// also folds -0
			continue
		}
		seq = append(seq, v)
	}

	slices.SortFunc(seq, func(a, b float64) int {
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		default:
			return 0
		}
	})

	return slices.Compact(seq)
}

// MirrorSweep extends a sweep to both polarities: the given voltages, back to
// 0 V over the same levels, the negated voltages, and back to 0 V again. The
// return legs skip the peak and are measured like any other stage. The
// result always ends at 0 V.
func MirrorSweep(voltages []float64) []float64 {
	out := slices.Clone(voltages)
	out = appendReturnLeg(out, voltages)

	neg := make([]float64, 0, len(voltages))
	for _, v := range voltages {
		if v != 0 {
			neg = append(neg, -v)
		}
	}
	out = append(out, neg...)

	return appendReturnLeg(out, neg)
}

// appendReturnLeg appends leg in reverse without its last level, then 0 when
// out does not already end there.
func appendReturnLeg(out, leg []float64) []float64 {
	if len(leg) == 0 {
		return out
	}
	for i := len(leg) - 2; i >= 0; i-- {
		out = append(out, leg[i])
	}
	if out[len(out)-1] != 0 {
		out = append(out, 0)
	}

	return out
}
