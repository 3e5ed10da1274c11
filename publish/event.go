package publish

import (
	"encoding/json"
	"time"

	"github.com/arloliu/go-ivscan/scan"
)

// EventType names a scan event.
type EventType string

const (
	EventRunStarted      EventType = "run_started"
	EventPoint           EventType = "point"
	EventStabilitySample EventType = "stability_sample"
	EventRunFinished     EventType = "run_finished"
)

// Event is the JSON document published for every sink call.
type Event struct {
	Type  EventType       `json:"type"`
	RunID string          `json:"run_id"`
	Time  time.Time       `json:"time"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RunStarted is the data of EventRunStarted.
type RunStarted struct {
	Voltages     []float64     `json:"voltages"`
	TestVoltage  float64       `json:"test_voltage"`
	Settle       time.Duration `json:"settle"`
	TestDuration time.Duration `json:"test_duration"`
	Repetitions  int           `json:"repetitions"`
	RampDown     bool          `json:"ramp_down"`
	StartedAt    time.Time     `json:"started_at"`
}

// RunFinished is the data of EventRunFinished.
type RunFinished struct {
	State            scan.State `json:"state"`
	Error            string     `json:"error,omitempty"`
	Points           int        `json:"points"`
	StabilitySamples int        `json:"stability_samples"`
	FinishedAt       time.Time  `json:"finished_at"`
}

func newEvent(typ EventType, runID string, at time.Time, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: typ, RunID: runID, Time: at, Data: raw}, nil
}
