package scan

import (
	"sync/atomic"
)

// Metrics contains atomic counters of scan runs. A Metrics value can be shared
// by several controllers; each counter can be used as the value of a
// prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// RunCount is the number of runs started.
	RunCount atomic.Uint64
	// StageCount is the number of ramp stages completed.
	StageCount atomic.Uint64
	// ReadingCount is the number of sensor readings taken.
	ReadingCount atomic.Uint64
	// AbortCount is the number of aborted runs.
	AbortCount atomic.Uint64
	// SinkErrCount is the number of failed sink calls.
	SinkErrCount atomic.Uint64
	// RunningGauge is the number of runs in progress.
	RunningGauge atomic.Int64
}

func (m *Metrics) incRunCount() {
	m.RunCount.Add(1)
	m.RunningGauge.Add(1)
}

func (m *Metrics) decRunningGauge() {
	m.RunningGauge.Add(-1)
}

func (m *Metrics) incStageCount() {
	m.StageCount.Add(1)
}

func (m *Metrics) incReadingCount() {
	m.ReadingCount.Add(1)
}

func (m *Metrics) incAbortCount() {
	m.AbortCount.Add(1)
}

func (m *Metrics) incSinkErrCount() {
	m.SinkErrCount.Add(1)
}
