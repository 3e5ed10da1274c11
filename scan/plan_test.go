package scan

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRampDownSequence(t *testing.T) {
	stages := []float64{-5, 10, -2}
	seq := RampDownSequence(stages)
	require.Equal(t, []float64{10, 0, -2, -5}, seq)

	zeros := 0
	for i, v := range seq {
		if v == 0 {
			zeros++
		}
		if i > 0 {
			assert.Greater(t, seq[i-1], v)
		}
	}
	assert.Equal(t, 1, zeros)
	assert.ElementsMatch(t, append([]float64{0}, stages...), seq)
}

func TestRampDownSequence_DuplicatesAndZero(t *testing.T) {
	assert.Equal(t, []float64{100, 50, 0}, RampDownSequence([]float64{0, 50, 100, 50, math.Copysign(0, -1)}))
	assert.Equal(t, []float64{0}, RampDownSequence(nil))
}

func TestRampPlan_IsTestStage(t *testing.T) {
	p := RampPlan{TestVoltage: 1000}
	assert.True(t, p.IsTestStage(1000))
	assert.True(t, p.IsTestStage(-1000))
	assert.False(t, p.IsTestStage(950))
}

func TestRampPlan_Validate(t *testing.T) {
	valid := RampPlan{
		Voltages:     []float64{0, 50, 100},
		TestVoltage:  100,
		Settle:       time.Second,
		TestDuration: time.Minute,
		Repetitions:  3,
	}
	require.NoError(t, valid.Validate())

	tests := map[string]func(p *RampPlan){
		"no voltages":       func(p *RampPlan) { p.Voltages = nil },
		"nan voltage":       func(p *RampPlan) { p.Voltages = []float64{math.NaN()} },
		"zero repetitions":  func(p *RampPlan) { p.Repetitions = 0 },
		"negative settle":   func(p *RampPlan) { p.Settle = -time.Second },
		"negative duration": func(p *RampPlan) { p.TestDuration = -time.Second },
		"test needs settle": func(p *RampPlan) { p.Settle = 0 },
		"inf test voltage":  func(p *RampPlan) { p.TestVoltage = math.Inf(1) },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			p := valid
			mutate(&p)
			require.ErrorIs(t, p.Validate(), ErrInvalidPlan)
		})
	}

	noTest := valid
	noTest.TestVoltage = 1000
	noTest.Settle = 0
	require.NoError(t, noTest.Validate())
}

func TestStepsToZero(t *testing.T) {
	assert.Equal(t, []float64{50, 0}, StepsToZero(100, 50))
	assert.Equal(t, []float64{70, 20, 0}, StepsToZero(120, 50))
	assert.Equal(t, []float64{-70, -20, 0}, StepsToZero(-120, 50))
	assert.Equal(t, []float64{0}, StepsToZero(10, 50))
	assert.Empty(t, StepsToZero(0, 50))
	assert.Equal(t, []float64{0.6, 0.3, 0}, StepsToZero(0.9, 0.3))
	assert.Equal(t, []float64{-0.6, -0.3, 0}, StepsToZero(-0.9, 0.3))
	assert.Equal(t, []float64{0.2, 0.1, 0}, StepsToZero(0.3, 0.1))
}

func TestMirrorSweep(t *testing.T) {
	assert.Equal(t, []float64{0, 50, 100, 50, 0, -50, -100, -50, 0}, MirrorSweep([]float64{0, 50, 100}))
	assert.Equal(t, []float64{100, 0, -100, 0}, MirrorSweep([]float64{100}))
	assert.Equal(t, []float64{0}, MirrorSweep([]float64{0}))
	assert.Empty(t, MirrorSweep(nil))

	// Only the peaks of each polarity run the stability test.
	plan := RampPlan{Voltages: MirrorSweep([]float64{0, 50, 100}), TestVoltage: 100}
	tests := 0
	for _, v := range plan.Voltages {
		if plan.IsTestStage(v) {
			tests++
		}
	}
	assert.Equal(t, 2, tests)
}
