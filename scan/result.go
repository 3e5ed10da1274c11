package scan

import (
	"time"
)

// ResultPoint is the aggregated measurement of one ramp stage.
type ResultPoint struct {
	Stage   int     `json:"stage"`
	Voltage float64 `json:"voltage"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"stddev"`
	Samples int     `json:"samples"`
}

// StabilitySample is one reading taken after the transient readings of a
// stability test, or one reading of a time series.
type StabilitySample struct {
	Stage     int           `json:"stage"`
	Voltage   float64       `json:"voltage"`
	Elapsed   time.Duration `json:"elapsed"`
	Current   float64       `json:"current"`
	Timestamp uint64        `json:"timestamp"`
}

// Result is the outcome of a run. Points produced before an abort are kept.
type Result struct {
	RunID      string            `json:"run_id"`
	Plan       RampPlan          `json:"-"`
	Points     []ResultPoint     `json:"points"`
	Stability  []StabilitySample `json:"stability,omitempty"`
	State      State             `json:"state"`
	Err        error             `json:"-"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Status is a snapshot of a running scan.
type Status struct {
	RunID            string        `json:"run_id"`
	State            State         `json:"state"`
	Stage            int           `json:"stage"`
	Stages           int           `json:"stages"`
	Voltage          float64       `json:"voltage"`
	Points           []ResultPoint `json:"points"`
	StabilitySamples int           `json:"stability_samples"`
	Error            string        `json:"error,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
}
